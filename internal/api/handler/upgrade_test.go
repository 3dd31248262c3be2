package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brinkadata/brinkadata-platform/internal/api/handler"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
	"github.com/brinkadata/brinkadata-platform/internal/events"
	"github.com/brinkadata/brinkadata-platform/internal/subscription"
)

func TestUpgradeHandler_Upgrade(t *testing.T) {
	// Arrange
	free := testIdentity(entitlements.RoleOwner, entitlements.PlanFree, entitlements.StatusActive)
	var gotAccount int64
	var gotPlan entitlements.Plan
	subs := &mockSubscriptions{setPlanFn: func(_ context.Context, accountID int64, plan entitlements.Plan) (*subscription.Subscription, error) {
		gotAccount, gotPlan = accountID, plan
		return &subscription.Subscription{AccountID: accountID, Status: entitlements.StatusActive, PlanName: plan}, nil
	}}
	rec := &events.Recorder{}
	w := httptest.NewRecorder()

	// Act
	handler.NewUpgradeHandler(subs, rec).Upgrade(w, newRequest(t, http.MethodPost, "/account/upgrade", map[string]string{"plan": "team"}, free))

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), gotAccount)
	assert.Equal(t, entitlements.PlanTeam, gotPlan)
	assert.Equal(t, "team", dataOf(t, w)["effective_plan"])
	require.Equal(t, []string{events.SubscriptionChanged}, rec.Types())
	assert.Equal(t, "team", rec.Events()[0].Attributes["plan"])
}

func TestUpgradeHandler_RejectsNonUpgrades(t *testing.T) {
	tests := []struct {
		name string
		plan string
	}{
		{name: "same plan", plan: "pro"},
		{name: "downgrade", plan: "free"},
		{name: "unknown plan", plan: "platinum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			subs := &mockSubscriptions{setPlanFn: func(context.Context, int64, entitlements.Plan) (*subscription.Subscription, error) {
				called = true
				return nil, errNotImplemented
			}}
			rec := &events.Recorder{}
			w := httptest.NewRecorder()

			handler.NewUpgradeHandler(subs, rec).Upgrade(w, newRequest(t, http.MethodPost, "/account/upgrade", map[string]string{"plan": tt.plan}, proOwner()))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			code, _ := errorOf(t, w)
			assert.Equal(t, "VALIDATION_ERROR", code)
			assert.False(t, called)
			assert.Empty(t, rec.Events())
		})
	}
}

func TestUpgradeHandler_RequiresIdentity(t *testing.T) {
	w := httptest.NewRecorder()
	handler.NewUpgradeHandler(&mockSubscriptions{}, nil).Upgrade(w, newRequest(t, http.MethodPost, "/account/upgrade", map[string]string{"plan": "pro"}, nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
