package account

import (
	"time"

	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
)

// Account represents a row in the accounts table. It is the tenant boundary.
type Account struct {
	ID        int64
	Name      string
	PlanName  string // legacy label, mirrors the subscription plan
	CreatedAt time.Time
}

// User represents a row in the users table.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         entitlements.Role
	AccountID    int64
	IsActive     bool
	CreatedAt    time.Time
}

// ScopeAccountID implements tenant.Scoped.
func (u User) ScopeAccountID() int64 { return u.AccountID }

// Summary is an account with its subscription state, for the admin listing.
type Summary struct {
	Account
	UserCount          int
	SubscriptionStatus *string
	SubscriptionPlan   *string
}
