package resume

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brinkadata/brinkadata-platform/internal/account"
	"github.com/brinkadata/brinkadata-platform/internal/auth"
)

var (
	// ErrNoActiveSession is returned when a code is requested without a session.
	ErrNoActiveSession = errors.New("no active session")

	// ErrInvalidCode is returned for malformed or unknown codes.
	ErrInvalidCode = errors.New("invalid resume code")

	// ErrAlreadyUsed is returned when a code has been redeemed before.
	ErrAlreadyUsed = errors.New("resume code already used")

	// ErrExpired is returned when a code is past its expiry.
	ErrExpired = errors.New("resume code expired")

	// ErrSessionRevoked is returned when the code's session is no longer active.
	ErrSessionRevoked = errors.New("session revoked")
)

const (
	codeBytes   = 6
	codeChars   = 8
	maxAttempts = 5
)

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Broker issues and redeems resume codes.
type Broker struct {
	codes  Store
	issuer *auth.Issuer
	users  auth.UserLookup
	ttl    time.Duration
}

// NewBroker creates a Broker. Codes live for ttl.
func NewBroker(codes Store, issuer *auth.Issuer, users auth.UserLookup, ttl time.Duration) *Broker {
	return &Broker{codes: codes, issuer: issuer, users: users, ttl: ttl}
}

// RequestCode creates a code bound to the session and its current refresh hash.
func (b *Broker) RequestCode(ctx context.Context, sessionID uuid.UUID) (*Code, error) {
	if sessionID == uuid.Nil {
		return nil, ErrNoActiveSession
	}
	s, err := b.issuer.ActiveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := b.issuer.Now()
	for range maxAttempts {
		code, err := newCode()
		if err != nil {
			return nil, err
		}
		c := &Code{
			Code:             code,
			SessionID:        s.ID,
			RefreshTokenHash: s.RefreshTokenHash,
			CreatedAt:        now,
			ExpiresAt:        now.Add(b.ttl),
		}
		err = b.codes.Insert(ctx, c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCodeCollision) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("generating unique resume code after %d attempts: %w", maxAttempts, ErrCodeCollision)
}

// Redeem consumes a code and rotates its session from the hash captured at issue.
// Once a code passes the expiry check it is consumed whatever happens next.
func (b *Broker) Redeem(ctx context.Context, input string) (*auth.LoginResult, error) {
	code, ok := Normalize(input)
	if !ok {
		return nil, ErrInvalidCode
	}

	c, err := b.codes.Get(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}
	if c.UsedAt != nil {
		return nil, ErrAlreadyUsed
	}

	now := b.issuer.Now()
	if !now.Before(c.ExpiresAt) {
		return nil, ErrExpired
	}

	marked, err := b.codes.MarkUsed(ctx, code, now)
	if err != nil {
		return nil, err
	}
	if !marked {
		return nil, ErrAlreadyUsed
	}

	s, err := b.issuer.ActiveSession(ctx, c.SessionID)
	if err != nil {
		if errors.Is(err, auth.ErrSessionInvalid) {
			return nil, ErrSessionRevoked
		}
		return nil, err
	}

	u, err := b.users.GetUserByID(ctx, s.UserID)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if !u.IsActive {
		return nil, auth.ErrInactiveUser
	}

	pair, err := b.issuer.RotateFrom(ctx, c.SessionID, c.RefreshTokenHash)
	if err != nil {
		if errors.Is(err, auth.ErrSessionInvalid) {
			return nil, ErrSessionRevoked
		}
		if errors.Is(err, auth.ErrTokenMismatch) {
			slog.Warn("resume code rejected, session refreshed since issue", "session_id", c.SessionID)
		}
		return nil, err
	}

	return &auth.LoginResult{TokenPair: *pair, User: u}, nil
}

// Normalize returns the canonical XXXX-XXXX form of a user-typed code. Surrounding
// space, case and the dash are optional in the input.
func Normalize(input string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(input))
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != codeChars {
		return "", false
	}
	for _, r := range s {
		if !strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZ234567", r) {
			return "", false
		}
	}
	return s[:4] + "-" + s[4:], true
}

func newCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	s := codeEncoding.EncodeToString(b)[:codeChars]
	return s[:4] + "-" + s[4:], nil
}
