// Package subscription stores the billing state of each account.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
)

// ErrNotFound is returned when an account has no subscription row.
var ErrNotFound = errors.New("subscription not found")

// Subscription represents a row in the subscriptions table.
type Subscription struct {
	ID                     int64
	AccountID              int64
	Status                 entitlements.Status
	PlanName               entitlements.Plan
	Provider               string
	ProviderCustomerID     *string
	ProviderSubscriptionID *string
	CancelAtPeriodEnd      bool
	CurrentPeriodEnd       *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ScopeAccountID implements tenant.Scoped.
func (s Subscription) ScopeAccountID() int64 { return s.AccountID }

// Entitlement returns the fields the entitlement resolver consumes.
func (s *Subscription) Entitlement() entitlements.Subscription {
	return entitlements.Subscription{
		Status:            s.Status,
		PlanName:          s.PlanName,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CurrentPeriodEnd:  s.CurrentPeriodEnd,
	}
}

// Repository provides operations on the subscriptions table.
type Repository interface {
	entitlements.SubscriptionReader
	Get(ctx context.Context, accountID int64) (*Subscription, error)
	SetStatus(ctx context.Context, accountID int64, status entitlements.Status) (*Subscription, error)
	SetPlan(ctx context.Context, accountID int64, plan entitlements.Plan) (*Subscription, error)
}

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

const columns = `id, account_id, status, plan_name, provider, provider_customer_id,
	provider_subscription_id, cancel_at_period_end, current_period_end, created_at, updated_at`

// Get retrieves the subscription of an account.
func (r *PostgresRepository) Get(ctx context.Context, accountID int64) (*Subscription, error) {
	return r.scanOne(ctx, `SELECT `+columns+` FROM subscriptions WHERE account_id = $1`, accountID)
}

// Snapshot implements entitlements.SubscriptionReader.
func (r *PostgresRepository) Snapshot(ctx context.Context, accountID int64) (entitlements.Subscription, bool, error) {
	s, err := r.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return entitlements.Subscription{}, false, nil
		}
		return entitlements.Subscription{}, false, err
	}
	return s.Entitlement(), true, nil
}

// SetStatus changes the billing status, creating a free subscription row first if
// the account has none.
func (r *PostgresRepository) SetStatus(ctx context.Context, accountID int64, status entitlements.Status) (*Subscription, error) {
	query := `
		INSERT INTO subscriptions (account_id, status)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = NOW()
		RETURNING ` + columns

	return r.scanOne(ctx, query, accountID, string(status))
}

// SetPlan moves the account to plan, marks the subscription active and keeps the
// legacy accounts.plan_name label in sync.
func (r *PostgresRepository) SetPlan(ctx context.Context, accountID int64, plan entitlements.Plan) (*Subscription, error) {
	query := `
		WITH legacy AS (
			UPDATE accounts SET plan_name = $2 WHERE id = $1
		)
		INSERT INTO subscriptions (account_id, status, plan_name)
		VALUES ($1, 'active', $2)
		ON CONFLICT (account_id) DO UPDATE
		SET plan_name = EXCLUDED.plan_name, status = 'active', updated_at = NOW()
		RETURNING ` + columns

	return r.scanOne(ctx, query, accountID, string(plan))
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, args ...any) (*Subscription, error) {
	var s Subscription
	var status, plan string
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&s.ID, &s.AccountID, &status, &plan, &s.Provider,
		&s.ProviderCustomerID, &s.ProviderSubscriptionID,
		&s.CancelAtPeriodEnd, &s.CurrentPeriodEnd,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	s.Status = entitlements.Status(status)
	s.PlanName = entitlements.Plan(plan)
	return &s, nil
}
