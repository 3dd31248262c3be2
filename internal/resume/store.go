// Package resume issues short one-time codes that let a client recover its session
// without re-entering credentials.
package resume

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCodeCollision is returned when an inserted code already exists.
var ErrCodeCollision = errors.New("resume code collision")

// ErrCodeNotFound is returned when a code record is not found.
var ErrCodeNotFound = errors.New("resume code not found")

// Code represents a row in the resume_codes table.
type Code struct {
	Code             string
	SessionID        uuid.UUID
	RefreshTokenHash string // the session's hash when the code was issued
	CreatedAt        time.Time
	ExpiresAt        time.Time
	UsedAt           *time.Time
}

// Store provides operations on the resume_codes table.
type Store interface {
	Insert(ctx context.Context, c *Code) error
	Get(ctx context.Context, code string) (*Code, error)

	// MarkUsed sets used_at only if it is unset and reports whether it did.
	MarkUsed(ctx context.Context, code string, now time.Time) (bool, error)

	// Purge deletes codes that expired before now or were used before usedBefore.
	Purge(ctx context.Context, now, usedBefore time.Time) (int64, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &PostgresStore{pool: pool}
}

// Insert stores a new code.
func (s *PostgresStore) Insert(ctx context.Context, c *Code) error {
	query := `
		INSERT INTO resume_codes (code, session_id, refresh_token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query, c.Code, c.SessionID, c.RefreshTokenHash, c.CreatedAt, c.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCodeCollision
		}
		return fmt.Errorf("inserting resume code: %w", err)
	}
	return nil
}

// Get retrieves a code in its canonical form.
func (s *PostgresStore) Get(ctx context.Context, code string) (*Code, error) {
	query := `
		SELECT code, session_id, refresh_token_hash, created_at, expires_at, used_at
		FROM resume_codes
		WHERE code = $1`

	var c Code
	err := s.pool.QueryRow(ctx, query, code).Scan(
		&c.Code, &c.SessionID, &c.RefreshTokenHash, &c.CreatedAt, &c.ExpiresAt, &c.UsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("querying resume code: %w", err)
	}
	return &c, nil
}

// MarkUsed consumes a code atomically.
func (s *PostgresStore) MarkUsed(ctx context.Context, code string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE resume_codes SET used_at = $2 WHERE code = $1 AND used_at IS NULL`, code, now)
	if err != nil {
		return false, fmt.Errorf("marking resume code used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Purge deletes dead codes.
func (s *PostgresStore) Purge(ctx context.Context, now, usedBefore time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM resume_codes WHERE expires_at < $1 OR used_at < $2`, now, usedBefore)
	if err != nil {
		return 0, fmt.Errorf("purging resume codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
