package pending

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// ErrMalformedPayload is returned (wrapped) when a slot's payload cannot be applied.
var ErrMalformedPayload = errors.New("malformed pending payload")

// Apply consumes every staged action in a fixed order: recovery rerun, auth,
// navigation, prefill, list refresh, then auth-context normalisation. Every present
// slot is cleared even if its payload is malformed; payload errors are returned for
// display. needsRerun is true iff at least one slot was consumed, in which case the
// caller renders exactly one more pass.
func Apply(s State) (next State, needsRerun bool, errs []error) {
	next = s
	next.Fields = maps.Clone(s.Fields)
	p := s.Pending
	next.Pending = Pending{}

	if p.RecoveryRerun {
		needsRerun = true
	}

	if len(p.Auth) > 0 {
		needsRerun = true
		if err := applyAuth(&next, p.Auth); err != nil {
			errs = append(errs, fmt.Errorf("applying auth payload: %w", err))
		}
	}

	if p.Nav != "" {
		needsRerun = true
		next.NavPage = p.Nav
	}

	if len(p.Prefill) > 0 {
		needsRerun = true
		if err := applyPrefill(&next, p.Prefill); err != nil {
			errs = append(errs, fmt.Errorf("applying prefill payload: %w", err))
		}
	}

	if p.RefreshLists {
		needsRerun = true
		next.ListsStale = true
	}

	normalize(&next)
	return next, needsRerun, errs
}

var authKeys = []string{"access_token", "refresh_token", "session_id", "current_user"}

func applyAuth(s *State, raw json.RawMessage) error {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		return fmt.Errorf("%w: auth payload is not an object", ErrMalformedPayload)
	}

	full := true
	for _, k := range authKeys {
		if v, ok := payload[k]; !ok || isNull(v) {
			full = false
			break
		}
	}

	// Decode everything first so a bad field leaves the state untouched.
	var (
		access, refresh, session string
		user                     *User
	)
	if err := decodeString(payload, "access_token", &access); err != nil {
		return err
	}
	if err := decodeString(payload, "refresh_token", &refresh); err != nil {
		return err
	}
	if err := decodeString(payload, "session_id", &session); err != nil {
		return err
	}
	if v, ok := payload["current_user"]; ok && !isNull(v) {
		user = &User{}
		if err := json.Unmarshal(v, user); err != nil {
			return fmt.Errorf("%w: current_user: %v", ErrMalformedPayload, err)
		}
	}

	if full {
		s.AccessToken = access
		s.RefreshToken = refresh
		s.SessionID = session
		s.User = user
		s.Authenticated = true
		accountID := user.AccountID
		s.AccountID = &accountID
		s.Role = user.Role
		s.Plan = ""
		s.Capabilities = nil
		return nil
	}

	if _, ok := payload["access_token"]; ok {
		s.AccessToken = access
	}
	if _, ok := payload["refresh_token"]; ok {
		s.RefreshToken = refresh
	}
	if _, ok := payload["session_id"]; ok {
		s.SessionID = session
	}
	if _, ok := payload["current_user"]; ok {
		s.User = user
		if user == nil {
			s.AccountID = nil
			s.Role = ""
			s.Plan = ""
			s.Capabilities = nil
		}
	}
	s.Authenticated = s.AccessToken != "" && s.User != nil
	return nil
}

var prefillKeys = []string{FieldPropertyName, FieldCity, FieldState, FieldZipCode}

func applyPrefill(s *State, raw json.RawMessage) error {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		return fmt.Errorf("%w: prefill payload is not an object", ErrMalformedPayload)
	}

	values := make(map[string]string, len(prefillKeys))
	for _, k := range prefillKeys {
		var v string
		if err := decodeString(payload, k, &v); err != nil {
			return err
		}
		if _, ok := payload[k]; ok {
			values[k] = v
		}
	}

	if s.Fields == nil {
		s.Fields = make(map[string]string)
	}
	for k, v := range values {
		if k == FieldZipCode {
			// The analyzer form and the sidebar each bind their own ZIP widget.
			s.Fields[FieldZipCodeProperty] = v
		}
		s.Fields[k] = v
	}
	return nil
}

// normalize fills the canonical auth context from the user snapshot and the cached
// capabilities without overwriting values that are already set.
func normalize(s *State) {
	if s.User != nil {
		if s.AccountID == nil {
			accountID := s.User.AccountID
			s.AccountID = &accountID
		}
		if s.Role == "" {
			s.Role = s.User.Role
		}
	}
	if s.Capabilities != nil {
		if s.Plan == "" {
			s.Plan = s.Capabilities.Plan
		}
		if s.Role == "" {
			s.Role = s.Capabilities.Role
		}
	}
}

func decodeString(payload map[string]json.RawMessage, key string, dst *string) error {
	v, ok := payload[key]
	if !ok || isNull(v) {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%w: %s must be a string", ErrMalformedPayload, key)
	}
	return nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
