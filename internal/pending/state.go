// Package pending applies staged one-shot UI actions at the top of a render pass,
// before any widget reads its bound state. Apply is pure: it takes a State and
// returns the next one.
package pending

import "encoding/json"

// Widget keys written by the prefill slot.
const (
	FieldPropertyName    = "property_name"
	FieldCity            = "city"
	FieldState           = "state"
	FieldZipCode         = "zip_code"
	FieldZipCodeProperty = "zip_code_property"
)

// User is the user snapshot returned by the auth endpoints.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	AccountID int64  `json:"account_id"`
	Role      string `json:"role"`
}

// Capabilities is the cached response of the capabilities endpoint.
type Capabilities struct {
	Plan          string   `json:"plan"`
	EffectivePlan string   `json:"effective_plan"`
	Role          string   `json:"role"`
	Status        string   `json:"subscription_status"`
	List          []string `json:"capabilities"`
}

// Has reports whether the cached list contains c.
func (c *Capabilities) Has(capability string) bool {
	if c == nil {
		return false
	}
	for _, v := range c.List {
		if v == capability {
			return true
		}
	}
	return false
}

// Pending holds the staged actions. Each slot is optional and is consumed by the
// next Apply whether or not its payload is valid.
type Pending struct {
	// RecoveryRerun requests one extra pass after the backend came back.
	RecoveryRerun bool

	// Auth is a JSON object with any of access_token, refresh_token, session_id and
	// current_user. All four non-null sets a full login; otherwise each present key is
	// applied alone and null clears it.
	Auth json.RawMessage

	// Nav is the page to render next.
	Nav string

	// Prefill is a JSON object of form fields (property_name, city, state, zip_code).
	Prefill json.RawMessage

	// RefreshLists invalidates cached lists so they are fetched again.
	RefreshLists bool
}

// Empty reports whether no slot is set.
func (p Pending) Empty() bool {
	return !p.RecoveryRerun && len(p.Auth) == 0 && p.Nav == "" && len(p.Prefill) == 0 && !p.RefreshLists
}

// State is the client-held state that survives across render passes.
type State struct {
	AccessToken   string
	RefreshToken  string
	SessionID     string
	User          *User
	Authenticated bool

	// Canonical auth context, derived from User and Capabilities.
	AccountID *int64
	Role      string
	Plan      string

	Capabilities *Capabilities

	NavPage    string
	Fields     map[string]string
	ListsStale bool

	Pending Pending
}

// Field returns a form field value.
func (s State) Field(key string) string {
	return s.Fields[key]
}
