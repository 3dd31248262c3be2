package entitlements

import "slices"

// Set is an immutable-by-convention capability set.
type Set map[Capability]struct{}

func newSet(caps ...Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether c is in the set.
func (s Set) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// SubsetOf reports whether every member of s is in other.
func (s Set) SubsetOf(other Set) bool {
	for c := range s {
		if !other.Has(c) {
			return false
		}
	}
	return true
}

// Sorted returns the members as strings in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, string(c))
	}
	slices.Sort(out)
	return out
}

var (
	baseline = []Capability{CapProjectView, CapAssetView, CapSearchBasic, CapAnalysisSingleProperty}

	planCapabilities = map[Plan]Set{
		PlanFree:       newSet(baseline...),
		PlanPro:        newSet(AllCapabilities...),
		PlanTeam:       newSet(AllCapabilities...),
		PlanEnterprise: newSet(AllCapabilities...),
	}

	roleCapabilities = map[Role]Set{
		RoleOwner:     newSet(AllCapabilities...),
		RoleAdmin:     newSet(AllCapabilities...),
		RoleMember:    newSet(AllCapabilities...),
		RoleReadOnly:  newSet(baseline...),
		RoleAffiliate: newSet(CapProjectView, CapAssetView),
	}

	roleRank = map[Role]int{
		RoleAffiliate: 0,
		RoleReadOnly:  1,
		RoleMember:    2,
		RoleAdmin:     3,
		RoleOwner:     4,
	}

	planRank = map[Plan]int{
		PlanFree:       1,
		PlanPro:        2,
		PlanTeam:       3,
		PlanEnterprise: 4,
	}

	planLimits = map[Plan]Limits{
		PlanFree:       {SavedDeals: 25, Scenarios: 3},
		PlanPro:        {SavedDeals: 250, Scenarios: 25, Export: true, IRRNPV: true},
		PlanTeam:       {SavedDeals: 1000, Scenarios: 100, Export: true, IRRNPV: true, API: true},
		PlanEnterprise: {SavedDeals: 10000, Scenarios: 500, Export: true, IRRNPV: true, API: true},
	}
)

// EffectivePlan returns the plan actually enforced: the purchased plan while the
// subscription is active or trialing, free otherwise.
func EffectivePlan(sub Subscription) Plan {
	if sub.Status.PaysForPlan() {
		return sub.PlanName
	}
	return PlanFree
}

// Capabilities returns the capabilities granted to role under the subscription's
// effective plan. Unknown roles or plans grant nothing.
func Capabilities(role Role, sub Subscription) Set {
	return Intersect(role, EffectivePlan(sub))
}

// Intersect returns the capabilities granted to role on plan.
func Intersect(role Role, plan Plan) Set {
	out := Set{}
	rs, pl := roleCapabilities[role], planCapabilities[plan]
	for c := range rs {
		if pl.Has(c) {
			out[c] = struct{}{}
		}
	}
	return out
}

// PlanCapabilities returns the full capability set of a plan, ignoring role.
func PlanCapabilities(plan Plan) Set {
	return newSet(keys(planCapabilities[plan])...)
}

// LimitsFor returns the plan's limits, falling back to free for unknown plans.
func LimitsFor(plan Plan) Limits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits[PlanFree]
}

// Limit returns the numeric quota for name on plan.
func (l Limits) Limit(name LimitName) int {
	switch name {
	case LimitSavedDeals:
		return l.SavedDeals
	case LimitScenarios:
		return l.Scenarios
	}
	return 1_000_000
}

// RoleAtLeast reports whether have ranks at or above need. Unknown roles never qualify.
func RoleAtLeast(have, need Role) bool {
	h, ok1 := roleRank[have]
	n, ok2 := roleRank[need]
	return ok1 && ok2 && h >= n
}

// PlanAtLeast reports whether have ranks at or above need. Unknown plans never qualify.
func PlanAtLeast(have, need Plan) bool {
	h, ok1 := planRank[have]
	n, ok2 := planRank[need]
	return ok1 && ok2 && h >= n
}

func keys(s Set) []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	return out
}
