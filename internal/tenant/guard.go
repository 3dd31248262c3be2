// Package tenant is the last line of defense against cross-account reads and writes.
// Queries are expected to filter by account_id already; the guard catches regressions.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/brinkadata/brinkadata-platform/internal/strictness"
)

var (
	// ErrMissingScope is returned in strict mode when a request reaches a tenant-scoped
	// operation without a valid account id.
	ErrMissingScope = errors.New("tenant scope missing")

	// ErrScopeViolation is returned in strict mode when a row belongs to another account
	// or a tenant query lacks an account_id predicate.
	ErrScopeViolation = errors.New("tenant isolation violation")
)

// Scoped is implemented by every tenant-owned row.
type Scoped interface {
	ScopeAccountID() int64
}

// Guard asserts tenant scoping. Its behaviour on a violation is decided by the
// injected policy.
type Guard struct {
	policy       strictness.Policy
	tenantTables []string
}

// NewGuard creates a Guard. tenantTables lists the tables CheckQuery treats as tenant-owned.
func NewGuard(policy strictness.Policy, tenantTables ...string) *Guard {
	return &Guard{policy: policy, tenantTables: tenantTables}
}

// RequireAccountID validates an account id. A missing (non-positive) id fails in strict
// mode; in permissive mode it is logged and the sentinel 0 is returned.
func (g *Guard) RequireAccountID(ctx context.Context, accountID int64) (int64, error) {
	if accountID > 0 {
		return accountID, nil
	}
	if err := g.policy.Violation(ctx, ErrMissingScope, "account_id", accountID); err != nil {
		return 0, err
	}
	return 0, nil
}

// Mismatch describes one row that does not belong to the expected account.
type Mismatch struct {
	Index int
	Found int64
}

// AssertRowsScoped checks that every row belongs to expected.
func AssertRowsScoped[T Scoped](ctx context.Context, g *Guard, label string, rows []T, expected int64) error {
	var mismatches []Mismatch
	for i, row := range rows {
		if got := row.ScopeAccountID(); got != expected {
			mismatches = append(mismatches, Mismatch{Index: i, Found: got})
		}
	}
	if len(mismatches) == 0 {
		return nil
	}

	return g.policy.Violation(ctx, ErrScopeViolation,
		"label", label,
		"expected_account_id", expected,
		"mismatched_rows", len(mismatches),
		slog.Group("mismatches", mismatchAttrs(mismatches)...),
	)
}

// AssertRowScoped checks a single row. A nil row is a not-found case and passes.
func AssertRowScoped[T Scoped](ctx context.Context, g *Guard, label string, row *T, expected int64) error {
	if row == nil {
		return nil
	}
	if got := (*row).ScopeAccountID(); got != expected {
		return g.policy.Violation(ctx, ErrScopeViolation,
			"label", label,
			"expected_account_id", expected,
			"found_account_id", got,
		)
	}
	return nil
}

var accountPredicate = regexp.MustCompile(`(?i)\baccount_id\s*(=|in\b)`)

// CheckQuery flags SELECT, UPDATE and DELETE statements on tenant-owned tables that do
// not constrain account_id.
func (g *Guard) CheckQuery(ctx context.Context, label, sql string) error {
	lower := strings.ToLower(sql)
	if !strings.Contains(lower, "select") && !strings.Contains(lower, "update") && !strings.Contains(lower, "delete") {
		return nil
	}

	touchesTenant := false
	for _, t := range g.tenantTables {
		if strings.Contains(lower, t) {
			touchesTenant = true
			break
		}
	}
	if !touchesTenant || accountPredicate.MatchString(sql) {
		return nil
	}

	return g.policy.Violation(ctx, fmt.Errorf("%w: query without account_id filter", ErrScopeViolation),
		"label", label,
		"sql", truncate(sql, 100),
	)
}

// mismatchAttrs renders each mismatch as row_<index>=<observed account id>.
func mismatchAttrs(ms []Mismatch) []any {
	out := make([]any, 0, len(ms))
	for _, m := range ms {
		out = append(out, slog.Int64(fmt.Sprintf("row_%d", m.Index), m.Found))
	}
	return out
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
