package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/brinkadata/brinkadata-platform/internal/account"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
)

// UserLookup loads users by id.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*account.User, error)
}

// Authenticator turns a bearer access token into a request Identity.
type Authenticator struct {
	issuer   *Issuer
	users    UserLookup
	resolver *entitlements.Resolver
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(issuer *Issuer, users UserLookup, resolver *entitlements.Resolver) *Authenticator {
	return &Authenticator{issuer: issuer, users: users, resolver: resolver}
}

// Authenticate verifies the token, loads the user and its session, and resolves
// entitlements fresh for this request.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	claims, err := a.issuer.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}

	u, err := a.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}
	if claims.AccountID != u.AccountID {
		return nil, ErrInvalidToken
	}

	sessionID := uuid.Nil
	if claims.SessionID != "" {
		sessionID, err = uuid.Parse(claims.SessionID)
		if err != nil {
			return nil, ErrInvalidToken
		}
		if _, err := a.issuer.ActiveSession(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	ent, err := a.resolver.Resolve(ctx, u.Role, u.AccountID)
	if err != nil {
		return nil, fmt.Errorf("resolving entitlements: %w", err)
	}

	return &Identity{
		UserID:       u.ID,
		Email:        u.Email,
		AccountID:    u.AccountID,
		Role:         u.Role,
		SessionID:    sessionID,
		Entitlements: ent,
	}, nil
}
