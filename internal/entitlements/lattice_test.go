package entitlements_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
)

func TestEffectivePlan_DowngradeIsTotal(t *testing.T) {
	for _, plan := range entitlements.Plans {
		for _, status := range entitlements.Statuses {
			sub := entitlements.Subscription{Status: status, PlanName: plan}
			got := entitlements.EffectivePlan(sub)

			switch status {
			case entitlements.StatusActive, entitlements.StatusTrialing:
				assert.Equal(t, plan, got, "status=%s plan=%s", status, plan)
			default:
				assert.Equal(t, entitlements.PlanFree, got, "status=%s plan=%s", status, plan)
			}
		}
	}
}

func TestEffectivePlan_ProToPastDue(t *testing.T) {
	sub := entitlements.Subscription{Status: entitlements.StatusActive, PlanName: entitlements.PlanPro}
	assert.Equal(t, entitlements.PlanPro, entitlements.EffectivePlan(sub))

	sub.Status = entitlements.StatusPastDue
	assert.Equal(t, entitlements.PlanFree, entitlements.EffectivePlan(sub))
}

func TestCapabilities_Table(t *testing.T) {
	active := func(p entitlements.Plan) entitlements.Subscription {
		return entitlements.Subscription{Status: entitlements.StatusActive, PlanName: p}
	}

	tests := []struct {
		name    string
		role    entitlements.Role
		sub     entitlements.Subscription
		granted []entitlements.Capability
		denied  []entitlements.Capability
	}{
		{
			name:    "owner on pro gets everything",
			role:    entitlements.RoleOwner,
			sub:     active(entitlements.PlanPro),
			granted: entitlements.AllCapabilities,
		},
		{
			name:    "owner on free is capped by the plan",
			role:    entitlements.RoleOwner,
			sub:     active(entitlements.PlanFree),
			granted: []entitlements.Capability{entitlements.CapAssetView, entitlements.CapSearchBasic},
			denied:  []entitlements.Capability{entitlements.CapExportCSV, entitlements.CapAnalysisPortfolio, entitlements.CapAssetManage},
		},
		{
			name:    "read_only never mutates on enterprise",
			role:    entitlements.RoleReadOnly,
			sub:     active(entitlements.PlanEnterprise),
			granted: []entitlements.Capability{entitlements.CapProjectView, entitlements.CapAssetView},
			denied:  []entitlements.Capability{entitlements.CapAssetManage, entitlements.CapProjectCreate, entitlements.CapExportCSV},
		},
		{
			name:    "canceled team owner is downgraded",
			role:    entitlements.RoleOwner,
			sub:     entitlements.Subscription{Status: entitlements.StatusCanceled, PlanName: entitlements.PlanTeam},
			granted: []entitlements.Capability{entitlements.CapAssetView},
			denied:  []entitlements.Capability{entitlements.CapExportCSV, entitlements.CapSearchAdvanced},
		},
		{
			name:    "trialing pro member keeps export",
			role:    entitlements.RoleMember,
			sub:     entitlements.Subscription{Status: entitlements.StatusTrialing, PlanName: entitlements.PlanPro},
			granted: []entitlements.Capability{entitlements.CapExportCSV, entitlements.CapAssetManage},
		},
		{
			name:    "affiliate only views",
			role:    entitlements.RoleAffiliate,
			sub:     active(entitlements.PlanEnterprise),
			granted: []entitlements.Capability{entitlements.CapProjectView, entitlements.CapAssetView},
			denied:  []entitlements.Capability{entitlements.CapSearchBasic, entitlements.CapAssetManage},
		},
		{
			name:   "unknown role gets nothing",
			role:   entitlements.Role("superhero"),
			sub:    active(entitlements.PlanPro),
			denied: entitlements.AllCapabilities,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := entitlements.Capabilities(tt.role, tt.sub)
			for _, c := range tt.granted {
				assert.True(t, caps.Has(c), "expected %s", c)
			}
			for _, c := range tt.denied {
				assert.False(t, caps.Has(c), "unexpected %s", c)
			}
		})
	}
}

func TestCapabilities_FreeNeverGrantsExportOrPortfolio(t *testing.T) {
	for _, role := range entitlements.Roles {
		for _, status := range entitlements.Statuses {
			for _, plan := range entitlements.Plans {
				sub := entitlements.Subscription{Status: status, PlanName: plan}
				if entitlements.EffectivePlan(sub) != entitlements.PlanFree {
					continue
				}
				caps := entitlements.Capabilities(role, sub)
				assert.False(t, caps.Has(entitlements.CapExportCSV))
				assert.False(t, caps.Has(entitlements.CapAnalysisPortfolio))
			}
		}
	}
}

func TestCapabilities_MonotonicInRole(t *testing.T) {
	for _, plan := range entitlements.Plans {
		for _, lower := range entitlements.Roles {
			for _, higher := range entitlements.Roles {
				if !entitlements.RoleAtLeast(higher, lower) {
					continue
				}
				lo := entitlements.Intersect(lower, plan)
				hi := entitlements.Intersect(higher, plan)
				assert.True(t, lo.SubsetOf(hi), "plan=%s: %s should be within %s", plan, lower, higher)
			}
		}
	}
}

func TestCapabilities_MonotonicInPlan(t *testing.T) {
	for _, role := range entitlements.Roles {
		for _, lower := range entitlements.Plans {
			for _, higher := range entitlements.Plans {
				if !entitlements.PlanAtLeast(higher, lower) {
					continue
				}
				assert.True(t, entitlements.Intersect(role, lower).SubsetOf(entitlements.Intersect(role, higher)),
					"role=%s: %s should be within %s", role, lower, higher)
			}
		}
	}
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, entitlements.RoleAtLeast(entitlements.RoleOwner, entitlements.RoleAdmin))
	assert.True(t, entitlements.RoleAtLeast(entitlements.RoleMember, entitlements.RoleMember))
	assert.False(t, entitlements.RoleAtLeast(entitlements.RoleReadOnly, entitlements.RoleMember))
	assert.False(t, entitlements.RoleAtLeast(entitlements.Role("ghost"), entitlements.RoleAffiliate))
}

func TestPlanAtLeast(t *testing.T) {
	assert.True(t, entitlements.PlanAtLeast(entitlements.PlanEnterprise, entitlements.PlanTeam))
	assert.False(t, entitlements.PlanAtLeast(entitlements.PlanFree, entitlements.PlanPro))
	assert.False(t, entitlements.PlanAtLeast(entitlements.Plan("gold"), entitlements.PlanFree))
}

func TestLimitsFor(t *testing.T) {
	tests := []struct {
		plan   entitlements.Plan
		deals  int
		export bool
		api    bool
	}{
		{entitlements.PlanFree, 25, false, false},
		{entitlements.PlanPro, 250, true, false},
		{entitlements.PlanTeam, 1000, true, true},
		{entitlements.PlanEnterprise, 10000, true, true},
		{entitlements.Plan("bogus"), 25, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			l := entitlements.LimitsFor(tt.plan)
			assert.Equal(t, tt.deals, l.SavedDeals)
			assert.Equal(t, tt.export, l.Export)
			assert.Equal(t, tt.api, l.API)
			assert.Equal(t, tt.deals, l.Limit(entitlements.LimitSavedDeals))
		})
	}
}

func TestSetSorted(t *testing.T) {
	caps := entitlements.Intersect(entitlements.RoleAffiliate, entitlements.PlanPro)
	assert.Equal(t, []string{"asset:view", "project:view"}, caps.Sorted())
}
