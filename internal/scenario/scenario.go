// Package scenario stores up to three named what-if variants (slots A, B and C)
// for each saved asset.
package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brinkadata/brinkadata-platform/internal/tenant"
)

// Slots lists the valid scenario slots in display order.
var Slots = []string{"A", "B", "C"}

// NormalizeSlot upper-cases s and reports whether it names a valid slot.
func NormalizeSlot(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, v := range Slots {
		if s == v {
			return s, true
		}
	}
	return "", false
}

// Scenario represents a row in the scenarios table.
type Scenario struct {
	ID        int64
	AccountID int64
	AssetID   int64
	Slot      string
	Label     string
	Metrics   json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScopeAccountID implements tenant.Scoped.
func (s Scenario) ScopeAccountID() int64 { return s.AccountID }

// Repository provides tenant-scoped access to scenarios. Callers verify that the
// asset belongs to the account before writing.
type Repository interface {
	// Save inserts or replaces the scenario in its slot and reports whether the slot was empty.
	Save(ctx context.Context, accountID int64, s *Scenario) (created bool, err error)
	List(ctx context.Context, accountID, assetID int64) ([]Scenario, error)
	Clear(ctx context.Context, accountID, assetID int64, slot string) error
	Count(ctx context.Context, accountID int64) (int, error)
}

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool  *pgxpool.Pool
	guard *tenant.Guard
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool, guard *tenant.Guard) Repository {
	return &PostgresRepository{pool: pool, guard: guard}
}

const columns = `id, account_id, asset_id, slot, label, metrics, created_at, updated_at`

func (r *PostgresRepository) Save(ctx context.Context, accountID int64, s *Scenario) (bool, error) {
	accountID, err := r.guard.RequireAccountID(ctx, accountID)
	if err != nil {
		return false, err
	}
	if len(s.Metrics) == 0 {
		s.Metrics = json.RawMessage("{}")
	}

	query := `
		INSERT INTO scenarios (account_id, asset_id, slot, label, metrics)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, asset_id, slot)
		DO UPDATE SET label = EXCLUDED.label, metrics = EXCLUDED.metrics, updated_at = NOW()
		RETURNING id, account_id, created_at, updated_at, (xmax = 0) AS created`

	var created bool
	err = r.pool.QueryRow(ctx, query, accountID, s.AssetID, s.Slot, s.Label, string(s.Metrics)).
		Scan(&s.ID, &s.AccountID, &s.CreatedAt, &s.UpdatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("saving scenario: %w", err)
	}

	return created, tenant.AssertRowScoped(ctx, r.guard, "scenario.save", s, accountID)
}

func (r *PostgresRepository) List(ctx context.Context, accountID, assetID int64) ([]Scenario, error) {
	accountID, err := r.guard.RequireAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + columns + ` FROM scenarios WHERE account_id = $1 AND asset_id = $2 ORDER BY slot`
	if err := r.guard.CheckQuery(ctx, "scenario.list", query); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, accountID, assetID)
	if err != nil {
		return nil, fmt.Errorf("listing scenarios: %w", err)
	}
	defer rows.Close()

	scenarios := []Scenario{}
	for rows.Next() {
		s, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scenario row: %w", err)
		}
		scenarios = append(scenarios, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scenario rows: %w", err)
	}

	if err := tenant.AssertRowsScoped(ctx, r.guard, "scenario.list", scenarios, accountID); err != nil {
		return nil, err
	}
	return scenarios, nil
}

// Clear empties a slot. Clearing an empty slot is not an error.
func (r *PostgresRepository) Clear(ctx context.Context, accountID, assetID int64, slot string) error {
	accountID, err := r.guard.RequireAccountID(ctx, accountID)
	if err != nil {
		return err
	}

	query := `DELETE FROM scenarios WHERE account_id = $1 AND asset_id = $2 AND slot = $3`
	if err := r.guard.CheckQuery(ctx, "scenario.clear", query); err != nil {
		return err
	}

	if _, err := r.pool.Exec(ctx, query, accountID, assetID, slot); err != nil {
		return fmt.Errorf("clearing scenario: %w", err)
	}
	return nil
}

// Count returns the number of scenarios the account has saved across all assets.
func (r *PostgresRepository) Count(ctx context.Context, accountID int64) (int, error) {
	accountID, err := r.guard.RequireAccountID(ctx, accountID)
	if err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM scenarios WHERE account_id = $1`
	if err := r.guard.CheckQuery(ctx, "scenario.count", query); err != nil {
		return 0, err
	}

	var n int
	if err := r.pool.QueryRow(ctx, query, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting scenarios: %w", err)
	}
	return n, nil
}

func scanScenario(row pgx.Row) (*Scenario, error) {
	var s Scenario
	var metrics []byte
	if err := row.Scan(&s.ID, &s.AccountID, &s.AssetID, &s.Slot, &s.Label, &metrics, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Metrics = metrics
	return &s, nil
}
