package entitlements

import "time"

// Role is a user's role within their account.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleMember    Role = "member"
	RoleReadOnly  Role = "read_only"
	RoleAffiliate Role = "affiliate"
)

// Plan is a billing plan name.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanTeam       Plan = "team"
	PlanEnterprise Plan = "enterprise"
)

// Status is a subscription billing status.
type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Capability is a single named permission token.
type Capability string

const (
	CapProjectCreate          Capability = "project:create"
	CapProjectView            Capability = "project:view"
	CapAssetManage            Capability = "asset:manage"
	CapAssetView              Capability = "asset:view"
	CapSearchBasic            Capability = "search:basic"
	CapSearchAdvanced         Capability = "search:advanced"
	CapAnalysisSingleProperty Capability = "analysis:single_property"
	CapAnalysisPortfolio      Capability = "analysis:portfolio"
	CapExportCSV              Capability = "export:csv"
)

// Roles, Plans, Statuses and AllCapabilities list every member of each enum in a stable order.
var (
	Roles    = []Role{RoleOwner, RoleAdmin, RoleMember, RoleReadOnly, RoleAffiliate}
	Plans    = []Plan{PlanFree, PlanPro, PlanTeam, PlanEnterprise}
	Statuses = []Status{StatusTrialing, StatusActive, StatusPastDue, StatusCanceled}

	AllCapabilities = []Capability{
		CapProjectCreate, CapProjectView,
		CapAssetManage, CapAssetView,
		CapSearchBasic, CapSearchAdvanced,
		CapAnalysisSingleProperty, CapAnalysisPortfolio,
		CapExportCSV,
	}
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	_, ok := planRank[p]
	return ok
}

// Valid reports whether s is a known subscription status.
func (s Status) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// PaysForPlan reports whether the status keeps the purchased plan in force.
func (s Status) PaysForPlan() bool {
	return s == StatusActive || s == StatusTrialing
}

// Subscription is the billing state the resolver needs. Storage-specific fields
// (provider ids, timestamps) live in the subscription package.
type Subscription struct {
	Status            Status
	PlanName          Plan
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
}

// DefaultSubscription is assumed for accounts without a subscription row.
func DefaultSubscription() Subscription {
	return Subscription{Status: StatusActive, PlanName: PlanFree}
}

// Limits are the quotas and feature flags of a plan.
type Limits struct {
	SavedDeals int  `json:"max_saved_deals"`
	Scenarios  int  `json:"max_scenarios"`
	Export     bool `json:"can_export"`
	IRRNPV     bool `json:"can_use_irr_npv"`
	API        bool `json:"can_use_api"`
}

// LimitName identifies a countable quota.
type LimitName string

const (
	LimitSavedDeals LimitName = "saved_deals"
	LimitScenarios  LimitName = "scenarios"
)
