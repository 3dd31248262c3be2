package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session record is not found.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository provides operations on the auth_sessions table.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)

	// Rotate replaces the refresh hash only if the stored hash equals oldHash and the
	// session is still active at now. It reports whether a row was updated.
	Rotate(ctx context.Context, id uuid.UUID, oldHash, newHash string, now time.Time) (bool, error)

	// Revoke sets revoked_at if it is unset. It reports whether the session was
	// revoked by this call.
	Revoke(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// Purge deletes sessions that expired or were revoked before cutoff.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}
