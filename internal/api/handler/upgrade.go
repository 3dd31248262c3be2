package handler

import (
	"net/http"

	"github.com/brinkadata/brinkadata-platform/internal/api/middleware"
	"github.com/brinkadata/brinkadata-platform/internal/api/response"
	"github.com/brinkadata/brinkadata-platform/internal/api/validation"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
	"github.com/brinkadata/brinkadata-platform/internal/events"
)

// UpgradeHandler handles POST /account/upgrade. The router restricts it to owners.
type UpgradeHandler struct {
	subs      SubscriptionWriter
	publisher events.Publisher
}

// NewUpgradeHandler creates a new UpgradeHandler. A nil publisher discards events.
func NewUpgradeHandler(subs SubscriptionWriter, publisher events.Publisher) *UpgradeHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &UpgradeHandler{subs: subs, publisher: publisher}
}

// Upgrade moves the caller's account to a higher plan. Same-plan and downgrade
// requests are rejected.
func (h *UpgradeHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var req setPlanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if errs := validation.ValidatePlan(req.Plan); len(errs) > 0 {
		validationFailed(w, errs, requestID)
		return
	}

	target := entitlements.Plan(req.Plan)
	current := identity.Entitlements.Plan
	if target == current || !entitlements.PlanAtLeast(target, current) {
		validationFailed(w, []validation.FieldError{{
			Field:   "plan",
			Message: "plan must be higher than the current plan (" + string(current) + ")",
		}}, requestID)
		return
	}

	sub, err := h.subs.SetPlan(r.Context(), identity.AccountID, target)
	if err != nil {
		writeError(w, r, err, "upgrade plan")
		return
	}
	publishSubscriptionChanged(r.Context(), h.publisher, identity.AccountID, identity.UserID, sub)

	response.Success(w, http.StatusOK, entitlementsFor(identity.AccountID, identity.Role, sub.Entitlement()), requestID)
}
