package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/brinkadata/brinkadata-platform/internal/account"
	"github.com/brinkadata/brinkadata-platform/internal/events"
)

var (
	// ErrSessionInvalid is returned when a session is missing, revoked or expired.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrTokenMismatch is returned when a presented refresh token does not match the
	// session's current hash. This is the replay signal of a rotated-out token.
	ErrTokenMismatch = errors.New("refresh token mismatch")

	// ErrInvalidToken is returned when an access token fails verification.
	ErrInvalidToken = errors.New("invalid access token")

	// ErrInactiveUser is returned when issuing for or authenticating an inactive user.
	ErrInactiveUser = errors.New("user is inactive")

	// ErrMissingAccount is returned when issuing for a user without a valid account id.
	ErrMissingAccount = errors.New("user has no account")
)

// IssuerConfig holds the signing secret and token lifetimes.
type IssuerConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issuer creates sessions and mints access/refresh token pairs.
type Issuer struct {
	sessions   SessionRepository
	publisher  events.Publisher
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an Issuer. A nil publisher disables events.
func NewIssuer(sessions SessionRepository, cfg IssuerConfig, publisher events.Publisher) *Issuer {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Issuer{
		sessions:   sessions,
		publisher:  publisher,
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the clock used for expiry decisions.
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

// Now returns the issuer's current time.
func (i *Issuer) Now() time.Time {
	return i.now()
}

// Issue creates a new session for u and returns its first token pair.
func (i *Issuer) Issue(ctx context.Context, u *account.User) (*TokenPair, error) {
	if !u.IsActive {
		return nil, ErrInactiveUser
	}
	if u.AccountID <= 0 {
		return nil, ErrMissingAccount
	}

	raw, hash, err := NewRefreshToken()
	if err != nil {
		return nil, err
	}

	now := i.now()
	s := &Session{
		ID:               uuid.New(),
		UserID:           u.ID,
		AccountID:        u.AccountID,
		RefreshTokenHash: hash,
		CreatedAt:        now,
		ExpiresAt:        now.Add(i.refreshTTL),
	}
	if err := i.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	pair, err := i.pair(s, raw, now)
	if err != nil {
		return nil, err
	}

	i.publish(ctx, events.SessionIssued, s)
	return pair, nil
}

// Refresh rotates the session's refresh token. The presented token must hash to the
// current stored value; a stale token yields ErrTokenMismatch.
func (i *Issuer) Refresh(ctx context.Context, sessionID uuid.UUID, presented string) (*TokenPair, error) {
	s, pair, err := i.rotate(ctx, sessionID, HashToken(presented))
	if err != nil {
		return nil, err
	}
	i.publish(ctx, events.SessionRefreshed, s)
	return pair, nil
}

// RotateFrom rotates the session starting from a previously captured hash instead of
// a presented token. A refresh since the capture makes it fail with ErrTokenMismatch.
func (i *Issuer) RotateFrom(ctx context.Context, sessionID uuid.UUID, capturedHash string) (*TokenPair, error) {
	s, pair, err := i.rotate(ctx, sessionID, capturedHash)
	if err != nil {
		return nil, err
	}
	i.publish(ctx, events.SessionResumed, s)
	return pair, nil
}

func (i *Issuer) rotate(ctx context.Context, sessionID uuid.UUID, oldHash string) (*Session, *TokenPair, error) {
	now := i.now()

	s, err := i.ActiveSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	raw, newHash, err := NewRefreshToken()
	if err != nil {
		return nil, nil, err
	}

	ok, err := i.sessions.Rotate(ctx, sessionID, oldHash, newHash, now)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		// Distinguish a session that died in the meantime from a stale token.
		if _, err := i.ActiveSession(ctx, sessionID); err != nil {
			return nil, nil, err
		}
		slog.Warn("refresh token mismatch, possible token replay",
			"session_id", sessionID,
			"user_id", s.UserID,
			"account_id", s.AccountID,
		)
		i.publish(ctx, events.SessionTokenMismatch, s)
		return nil, nil, ErrTokenMismatch
	}

	s.RefreshTokenHash = newHash
	pair, err := i.pair(s, raw, now)
	if err != nil {
		return nil, nil, err
	}
	return s, pair, nil
}

// Revoke marks the session revoked. Unknown or already revoked sessions are not an error.
func (i *Issuer) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	revoked, err := i.sessions.Revoke(ctx, sessionID, i.now())
	if err != nil {
		return err
	}
	if revoked {
		i.publisher.Publish(ctx, events.Event{
			Type:      events.SessionRevoked,
			SessionID: sessionID.String(),
		})
	}
	return nil
}

// ActiveSession returns the session if it exists and is active, ErrSessionInvalid otherwise.
func (i *Issuer) ActiveSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	s, err := i.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if !s.Active(i.now()) {
		return nil, ErrSessionInvalid
	}
	return s, nil
}

// ParseAccessToken verifies signature, algorithm and expiry and returns the claims.
func (i *Issuer) ParseAccessToken(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) pair(s *Session, refreshToken string, now time.Time) (*TokenPair, error) {
	accessExp := now.Add(i.accessTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(s.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
		UserID:    s.UserID,
		AccountID: s.AccountID,
		SessionID: s.ID.String(),
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	return &TokenPair{
		AccessToken:      signed,
		RefreshToken:     refreshToken,
		SessionID:        s.ID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: s.ExpiresAt,
	}, nil
}

func (i *Issuer) publish(ctx context.Context, typ string, s *Session) {
	i.publisher.Publish(ctx, events.Event{
		Type:       typ,
		AccountID:  s.AccountID,
		UserID:     s.UserID,
		SessionID:  s.ID.String(),
		OccurredAt: i.now(),
	})
}
