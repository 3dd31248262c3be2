package account

import (
	"context"
	"errors"

	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
)

// ErrAccountNotFound is returned when an account record is not found.
var ErrAccountNotFound = errors.New("account not found")

// ErrUserNotFound is returned when a user record is not found.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = errors.New("email already registered")

// Repository provides operations on the accounts and users tables.
type Repository interface {
	// CreateWithOwner inserts the account, its first user and an active/free
	// subscription in one transaction.
	CreateWithOwner(ctx context.Context, a *Account, owner *User) error
	GetAccount(ctx context.Context, id int64) (*Account, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	SetUserRole(ctx context.Context, userID int64, role entitlements.Role) error
	ListAccounts(ctx context.Context) ([]Summary, error)
}
