// Package authtest provides an in-memory session store for tests.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brinkadata/brinkadata-platform/internal/auth"
)

// Sessions is an in-memory auth.SessionRepository with the same compare-and-swap
// semantics as the Postgres implementation.
type Sessions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]auth.Session
}

// NewSessions creates an empty store.
func NewSessions() *Sessions {
	return &Sessions{rows: make(map[uuid.UUID]auth.Session)}
}

// Create implements auth.SessionRepository.
func (m *Sessions) Create(_ context.Context, s *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.ID] = *s
	return nil
}

// Get implements auth.SessionRepository.
func (m *Sessions) Get(_ context.Context, id uuid.UUID) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, auth.ErrSessionNotFound
	}
	return &s, nil
}

// Rotate implements auth.SessionRepository.
func (m *Sessions) Rotate(_ context.Context, id uuid.UUID, oldHash, newHash string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.RefreshTokenHash != oldHash || !s.Active(now) {
		return false, nil
	}
	s.RefreshTokenHash = newHash
	m.rows[id] = s
	return true, nil
}

// Revoke implements auth.SessionRepository.
func (m *Sessions) Revoke(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	s.RevokedAt = &now
	m.rows[id] = s
	return true, nil
}

// Purge implements auth.SessionRepository.
func (m *Sessions) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.rows {
		if s.ExpiresAt.Before(cutoff) || (s.RevokedAt != nil && s.RevokedAt.Before(cutoff)) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

// Expire moves a session's expiry to at.
func (m *Sessions) Expire(id uuid.UUID, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[id]; ok {
		s.ExpiresAt = at
		m.rows[id] = s
	}
}

// Len returns the number of stored sessions.
func (m *Sessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
