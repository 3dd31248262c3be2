// Package asset stores the saved properties ("deals") of each account. Every
// operation takes the caller's account id and is checked by the tenant guard.
// Deleting an asset moves it to the trash; trashed assets are invisible to Get,
// List, Count and Update until restored.
package asset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brinkadata/brinkadata-platform/internal/tenant"
)

// ErrNotFound is returned when an asset does not exist in the caller's account.
var ErrNotFound = errors.New("asset not found")

// ErrDuplicateSourceRef is returned when the account already saved the same source_ref.
var ErrDuplicateSourceRef = errors.New("asset with this source_ref already exists")

const (
	DefaultLimit = 50
	MaxLimit     = 200
	MaxOffset    = 5000
)

// Repository provides tenant-scoped CRUD on the assets table.
type Repository interface {
	Create(ctx context.Context, accountID int64, a *Asset) error
	Get(ctx context.Context, accountID, id int64) (*Asset, error)
	List(ctx context.Context, accountID int64, filter ListFilter) (*ListResult, error)
	Count(ctx context.Context, accountID int64) (int, error)
	Update(ctx context.Context, accountID, id int64, fields UpdateFields) (*Asset, error)
	Delete(ctx context.Context, accountID, id int64) error
	ListTrash(ctx context.Context, accountID int64) ([]Asset, error)
	Restore(ctx context.Context, accountID, id int64) (*Asset, error)
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

const columns = `id, account_id, created_by, name, address_line1, address_line2, city, state,
	postal_code, country, source, source_ref, property_data, created_at, updated_at, deleted_at`

// Create inserts an asset owned by accountID. The account id on a is ignored.
func (r *PostgresRepository) Create(ctx context.Context, accountID int64, a *Asset) error {
	accountID, err := r.guard.RequireAccountID(ctx, accountID)
	if err != nil {
		return err
	}

	if a.Country == "" {
		a.Country = "US"
	}
	if a.Source == "" {
		a.Source = "manual"
	}
	if len(a.PropertyData) == 0 {
		a.PropertyData = []byte("{}")
	}

	query := `
		INSERT INTO assets (account_id, created_by, name, address_line1, address_line2, city,
		                    state, postal_code, country, source, source_ref, property_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, account_id, created_at, updated_at`

	err = r.pool.QueryRow(ctx, query,
		accountID,
		a.CreatedBy,
		a.Name,
		a.AddressLine1,
		a.AddressLine2,
		a.City,
		a.State,
		a.PostalCode,
		a.Country,
		a.Source,
		a.SourceRef,
		string(a.PropertyData),
	).Scan(&a.ID, &a.AccountID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSourceRef
		}
		return fmt.Errorf("inserting asset: %w", err)
	}

	return tenant.AssertRowScoped(ctx, r.guard, "asset.create", a, accountID)
}

// Get retrieves one asset. Assets of other accounts are reported as ErrNotFound.
func (r *PostgresRepository) Get(ctx context.Context, accountID, id int64) (*Asset, error) {
	accountID, err := r.guard.RequireAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + columns + ` FROM assets WHERE id = $1 AND account_id = $2 AND deleted_at IS NULL`
	if err := r.guard.CheckQuery(ctx, "asset.get", query); err != nil {
		return nil, err
	}

	a, err := r.scanOne(ctx, query, id, accountID)
	if err != nil {
		return nil, err
	}
	if err := tenant.AssertRowScoped(ctx, r.guard, "asset.get", a, accountID); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns a page of the account's assets, newest first.
func (r *PostgresRepository) List(ctx context.Context, accountID int64, filter ListFilter) (*ListResult, error) {
	accountID, err := r.guard.RequireAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if filter.Limit < 1 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Offset > MaxOffset {
		filter.Offset = MaxOffset
	}

	conditions := []string{"account_id = $1", "deleted_at IS NULL"}
	args := []any{accountID}
	argIdx := 2

	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, fmt.Sprintf(
			`(name ILIKE $%d ESCAPE '\' OR address_line1 ILIKE $%d ESCAPE '\' OR city ILIKE $%d ESCAPE '\')`,
			argIdx, argIdx, argIdx))
		args = append(args, "%"+escapeLike(*filter.Query)+"%")
		argIdx++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM assets %s", whereClause)
	if err := r.guard.CheckQuery(ctx, "asset.list.count", countQuery); err != nil {
		return nil, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting assets: %w", err)
	}

	dataQuery := fmt.Sprintf(`
		SELECT %s
		FROM assets
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, columns, whereClause, argIdx, argIdx+1)
	if err := r.guard.CheckQuery(ctx, "asset.list", dataQuery); err != nil {
		return nil, err
	}

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer rows.Close()

	assets := []Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset row: %w", err)
		}
		assets = append(assets, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating asset rows: %w", err)
	}

	if err := tenant.AssertRowsScoped(ctx, r.guard, "asset.list", assets, accountID); err != nil {
		return nil, err
	}

	return &ListResult{
		Assets: assets,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// Count returns the number of assets the account has saved.
func (r *PostgresRepository) Count(ctx context.Context, accountID int64) (int, error) {
	accountID, err := r.guard.RequireAccountID(ctx, accountID)
	if err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM assets WHERE account_id = $1 AND deleted_at IS NULL`
	if err := r.guard.CheckQuery(ctx, "asset.count", query); err != nil {
		return 0, err
	}

	var n int
	if err := r.pool.QueryRow(ctx, query, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting assets: %w", err)
	}
	return n, nil
}

// Update modifies the given fields of an asset in the caller's account.
func (r *PostgresRepository) Update(ctx context.Context, accountID, id int64, fields UpdateFields) (*Asset, error) {
	accountID, err := r.guard.RequireAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var setClauses []string
	var args []any
	argIdx := 1

	set := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if fields.Name != nil {
		set("name", *fields.Name)
	}
	if fields.AddressLine1 != nil {
		set("address_line1", *fields.AddressLine1)
	}
	if fields.AddressLine2 != nil {
		set("address_line2", *fields.AddressLine2)
	}
	if fields.City != nil {
		set("city", *fields.City)
	}
	if fields.State != nil {
		set("state", *fields.State)
	}
	if fields.PostalCode != nil {
		set("postal_code", *fields.PostalCode)
	}
	if fields.Country != nil {
		set("country", *fields.Country)
	}
	if fields.SourceRef != nil {
		set("source_ref", *fields.SourceRef)
	}
	if fields.PropertyData != nil {
		set("property_data", string(fields.PropertyData))
	}

	if len(setClauses) == 0 {
		return r.Get(ctx, accountID, id)
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id, accountID)

	query := fmt.Sprintf(`
		UPDATE assets
		SET %s
		WHERE id = $%d AND account_id = $%d AND deleted_at IS NULL
		RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, argIdx+1, columns)
	if err := r.guard.CheckQuery(ctx, "asset.update", query); err != nil {
		return nil, err
	}

	a, err := r.scanOne(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateSourceRef
		}
		return nil, err
	}
	if err := tenant.AssertRowScoped(ctx, r.guard, "asset.update", a, accountID); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete moves an asset of the caller's account to the trash.
func (r *PostgresRepository) Delete(ctx context.Context, accountID, id int64) error {
	accountID, err := r.guard.RequireAccountID(ctx, accountID)
	if err != nil {
		return err
	}

	query := `
		UPDATE assets
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND account_id = $2 AND deleted_at IS NULL`
	if err := r.guard.CheckQuery(ctx, "asset.delete", query); err != nil {
		return err
	}

	result, err := r.pool.Exec(ctx, query, id, accountID)
	if err != nil {
		return fmt.Errorf("trashing asset: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTrash returns the account's trashed assets, most recently deleted first.
func (r *PostgresRepository) ListTrash(ctx context.Context, accountID int64) ([]Asset, error) {
	accountID, err := r.guard.RequireAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + columns + `
		FROM assets
		WHERE account_id = $1 AND deleted_at IS NOT NULL
		ORDER BY deleted_at DESC, id DESC`
	if err := r.guard.CheckQuery(ctx, "asset.trash", query); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing trashed assets: %w", err)
	}
	defer rows.Close()

	assets := []Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset row: %w", err)
		}
		assets = append(assets, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating asset rows: %w", err)
	}

	if err := tenant.AssertRowsScoped(ctx, r.guard, "asset.trash", assets, accountID); err != nil {
		return nil, err
	}
	return assets, nil
}

// Restore takes an asset out of the trash. Restoring an asset whose source_ref was
// saved again in the meantime returns ErrDuplicateSourceRef.
func (r *PostgresRepository) Restore(ctx context.Context, accountID, id int64) (*Asset, error) {
	accountID, err := r.guard.RequireAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE assets
		SET deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND account_id = $2 AND deleted_at IS NOT NULL
		RETURNING ` + columns
	if err := r.guard.CheckQuery(ctx, "asset.restore", query); err != nil {
		return nil, err
	}

	a, err := r.scanOne(ctx, query, id, accountID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateSourceRef
		}
		return nil, err
	}
	if err := tenant.AssertRowScoped(ctx, r.guard, "asset.restore", a, accountID); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, args ...any) (*Asset, error) {
	a, err := scanAsset(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning asset row: %w", err)
	}
	return a, nil
}

func scanAsset(row pgx.Row) (*Asset, error) {
	var a Asset
	var data []byte
	err := row.Scan(
		&a.ID, &a.AccountID, &a.CreatedBy, &a.Name,
		&a.AddressLine1, &a.AddressLine2, &a.City, &a.State, &a.PostalCode,
		&a.Country, &a.Source, &a.SourceRef, &data,
		&a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	a.PropertyData = data
	return &a, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes a user search term match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
