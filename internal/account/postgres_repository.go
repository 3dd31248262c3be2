package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brinkadata/brinkadata-platform/internal/database"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
)

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// CreateWithOwner inserts the account, the owner user and the account's
// subscription atomically. Returns ErrEmailTaken on a duplicate email.
func (r *PostgresRepository) CreateWithOwner(ctx context.Context, a *Account, owner *User) error {
	if a.PlanName == "" {
		a.PlanName = string(entitlements.PlanFree)
	}
	if owner.Role == "" {
		owner.Role = entitlements.RoleOwner
	}

	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO accounts (name, plan_name) VALUES ($1, $2) RETURNING id, created_at`,
			a.Name, a.PlanName,
		).Scan(&a.ID, &a.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting account: %w", err)
		}

		owner.AccountID = a.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO users (email, password_hash, role, account_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id, is_active, created_at`,
			owner.Email, owner.PasswordHash, string(owner.Role), owner.AccountID,
		).Scan(&owner.ID, &owner.IsActive, &owner.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrEmailTaken
			}
			return fmt.Errorf("inserting user: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO subscriptions (account_id, status, plan_name)
			VALUES ($1, $2, $3)`,
			a.ID, string(entitlements.StatusActive), a.PlanName,
		)
		if err != nil {
			return fmt.Errorf("inserting subscription: %w", err)
		}
		return nil
	})
}

// GetAccount retrieves a single account by id.
func (r *PostgresRepository) GetAccount(ctx context.Context, id int64) (*Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, plan_name, created_at FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.PlanName, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("querying account: %w", err)
	}
	return &a, nil
}

const userColumns = `id, email, password_hash, role, account_id, is_active, created_at`

// GetUserByID retrieves a single user by id.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByEmail retrieves a single user by email. Emails are stored lower-cased.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// SetUserRole changes a user's role.
func (r *PostgresRepository) SetUserRole(ctx context.Context, userID int64, role entitlements.Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, userID, string(role))
	if err != nil {
		return fmt.Errorf("updating user role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListAccounts returns every account with its user count and subscription state,
// newest first.
func (r *PostgresRepository) ListAccounts(ctx context.Context) ([]Summary, error) {
	query := `
		SELECT a.id, a.name, a.plan_name, a.created_at,
		       (SELECT COUNT(*) FROM users u WHERE u.account_id = a.id),
		       s.status, s.plan_name
		FROM accounts a
		LEFT JOIN subscriptions s ON s.account_id = a.id
		ORDER BY a.id DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(
			&s.ID, &s.Name, &s.PlanName, &s.CreatedAt,
			&s.UserCount, &s.SubscriptionStatus, &s.SubscriptionPlan,
		); err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}
	return summaries, nil
}

func (r *PostgresRepository) scanUser(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	var role string
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &role, &u.AccountID, &u.IsActive, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u.Role = entitlements.Role(role)
	return &u, nil
}
