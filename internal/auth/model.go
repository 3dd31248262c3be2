package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/brinkadata/brinkadata-platform/internal/account"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
)

// Session represents a row in the auth_sessions table. Only the SHA-256 hash of the
// current refresh token is stored.
type Session struct {
	ID               uuid.UUID
	UserID           int64
	AccountID        int64
	RefreshTokenHash string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time
}

// Active reports whether the session is neither revoked nor expired at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// ScopeAccountID implements tenant.Scoped.
func (s Session) ScopeAccountID() int64 { return s.AccountID }

// TokenPair is returned on every successful issue, refresh or resume.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        uuid.UUID
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult is a token pair together with the user it was issued to.
type LoginResult struct {
	TokenPair
	User *account.User
}

// Claims are the JWT claims of an access token.
type Claims struct {
	jwt.RegisteredClaims
	UserID    int64  `json:"uid"`
	AccountID int64  `json:"aid"`
	SessionID string `json:"sid,omitempty"`
}

// Identity is stored in the request context after authentication.
type Identity struct {
	UserID       int64
	Email        string
	AccountID    int64
	Role         entitlements.Role
	SessionID    uuid.UUID // uuid.Nil when the token carries no session
	Entitlements *entitlements.Entitlements
}
