package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brinkadata/brinkadata-platform/internal/strictness"
)

var (
	// ErrCapabilityDenied is returned when role or plan does not grant a capability.
	ErrCapabilityDenied = errors.New("capability denied")

	// ErrPaymentRequired is returned when a capability is missing while the
	// subscription is past due.
	ErrPaymentRequired = errors.New("payment required")

	// ErrQuotaExceeded is returned when a plan quota has been reached.
	ErrQuotaExceeded = errors.New("plan limit reached")

	// ErrInvalidData is returned in strict mode when stored role, plan or status
	// values are not members of their enums.
	ErrInvalidData = errors.New("invalid entitlement data")
)

// QuotaError carries the numbers behind ErrQuotaExceeded.
type QuotaError struct {
	Limit LimitName
	Usage int
	Max   int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("plan limit reached: %d/%d %s", e.Usage, e.Max, e.Limit)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// SubscriptionReader loads the billing state of an account. found is false
// when the account has no subscription row.
type SubscriptionReader interface {
	Snapshot(ctx context.Context, accountID int64) (sub Subscription, found bool, err error)
}

// Entitlements is the resolved, per-request view of what a user may do.
type Entitlements struct {
	Role              Role
	Status            Status
	Plan              Plan
	EffectivePlan     Plan
	Capabilities      Set
	Limits            Limits
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
}

// Can reports whether the capability is granted.
func (e *Entitlements) Can(c Capability) bool {
	return e.Capabilities.Has(c)
}

// Require returns nil when c is granted, ErrPaymentRequired when it is missing on a
// past-due subscription, and ErrCapabilityDenied otherwise.
func (e *Entitlements) Require(c Capability) error {
	if e.Can(c) {
		return nil
	}
	if e.Status == StatusPastDue {
		return ErrPaymentRequired
	}
	return ErrCapabilityDenied
}

// CheckQuota returns a *QuotaError when usage has reached the effective plan's limit.
func (e *Entitlements) CheckQuota(name LimitName, usage int) error {
	limit := e.Limits.Limit(name)
	if usage >= limit {
		return &QuotaError{Limit: name, Usage: usage, Max: limit}
	}
	return nil
}

// Resolver computes Entitlements from a role and the account's subscription.
// It is called on every authenticated request; nothing is cached.
type Resolver struct {
	subs   SubscriptionReader
	policy strictness.Policy
}

// NewResolver creates a Resolver.
func NewResolver(subs SubscriptionReader, policy strictness.Policy) *Resolver {
	return &Resolver{subs: subs, policy: policy}
}

// Resolve loads the account's subscription and computes entitlements for role.
// Accounts without a subscription row are treated as active/free.
func (r *Resolver) Resolve(ctx context.Context, role Role, accountID int64) (*Entitlements, error) {
	sub, found, err := r.subs.Snapshot(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("loading subscription: %w", err)
	}
	if !found {
		sub = DefaultSubscription()
	}
	return r.ResolveWith(ctx, role, sub)
}

// ResolveWith computes entitlements for an already loaded subscription.
func (r *Resolver) ResolveWith(ctx context.Context, role Role, sub Subscription) (*Entitlements, error) {
	if !role.Valid() {
		if err := r.policy.Violation(ctx, fmt.Errorf("%w: unknown role %q", ErrInvalidData, role)); err != nil {
			return nil, err
		}
	}
	if !sub.Status.Valid() {
		if err := r.policy.Violation(ctx, fmt.Errorf("%w: unknown subscription status %q", ErrInvalidData, sub.Status)); err != nil {
			return nil, err
		}
	}
	if !sub.PlanName.Valid() {
		if err := r.policy.Violation(ctx, fmt.Errorf("%w: unknown plan %q", ErrInvalidData, sub.PlanName)); err != nil {
			return nil, err
		}
		sub.PlanName = PlanFree
	}

	effective := EffectivePlan(sub)
	return &Entitlements{
		Role:              role,
		Status:            sub.Status,
		Plan:              sub.PlanName,
		EffectivePlan:     effective,
		Capabilities:      Capabilities(role, sub),
		Limits:            LimitsFor(effective),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
	}, nil
}

// PlanInfo describes one plan for the public catalog.
type PlanInfo struct {
	Name         Plan     `json:"name"`
	Limits       Limits   `json:"limits"`
	Capabilities []string `json:"capabilities"`
}

// Catalog lists every plan with its limits and capabilities, cheapest first.
func Catalog() []PlanInfo {
	out := make([]PlanInfo, 0, len(Plans))
	for _, p := range Plans {
		out = append(out, PlanInfo{
			Name:         p,
			Limits:       LimitsFor(p),
			Capabilities: PlanCapabilities(p).Sorted(),
		})
	}
	return out
}
