package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements SessionRepository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new SessionRepository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) SessionRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new session. The id must be set by the caller.
func (r *PostgresRepository) Create(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO auth_sessions (id, user_id, account_id, refresh_token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.UserID,
		s.AccountID,
		s.RefreshTokenHash,
		s.CreatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// Get retrieves a session by id, whatever its state.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `
		SELECT id, user_id, account_id, refresh_token_hash, created_at, expires_at, revoked_at
		FROM auth_sessions
		WHERE id = $1`

	var s Session
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.AccountID, &s.RefreshTokenHash,
		&s.CreatedAt, &s.ExpiresAt, &s.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &s, nil
}

// Rotate performs the compare-and-swap of the refresh hash in a single statement.
func (r *PostgresRepository) Rotate(ctx context.Context, id uuid.UUID, oldHash, newHash string, now time.Time) (bool, error) {
	query := `
		UPDATE auth_sessions
		SET refresh_token_hash = $3
		WHERE id = $1
		  AND refresh_token_hash = $2
		  AND revoked_at IS NULL
		  AND expires_at > $4`

	tag, err := r.pool.Exec(ctx, query, id, oldHash, newHash, now)
	if err != nil {
		return false, fmt.Errorf("rotating session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Revoke sets revoked_at on an unrevoked session.
func (r *PostgresRepository) Revoke(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE auth_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, now)
	if err != nil {
		return false, fmt.Errorf("revoking session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Purge deletes dead sessions. Their resume codes go with them (ON DELETE CASCADE).
func (r *PostgresRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM auth_sessions WHERE expires_at < $1 OR revoked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
