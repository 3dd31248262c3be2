package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/brinkadata/brinkadata-platform/internal/account"
	"github.com/brinkadata/brinkadata-platform/internal/api/middleware"
	"github.com/brinkadata/brinkadata-platform/internal/api/response"
	"github.com/brinkadata/brinkadata-platform/internal/api/validation"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
	"github.com/brinkadata/brinkadata-platform/internal/events"
	"github.com/brinkadata/brinkadata-platform/internal/subscription"
)

// SubscriptionWriter changes an account's subscription.
type SubscriptionWriter interface {
	SetPlan(ctx context.Context, accountID int64, plan entitlements.Plan) (*subscription.Subscription, error)
	SetStatus(ctx context.Context, accountID int64, status entitlements.Status) (*subscription.Subscription, error)
}

// AccountAdmin is the subset of account.Repository used by the admin endpoints.
type AccountAdmin interface {
	SetUserRole(ctx context.Context, userID int64, role entitlements.Role) error
	ListAccounts(ctx context.Context) ([]account.Summary, error)
}

type setPlanRequest struct {
	Plan string `json:"plan"`
}

type setRoleRequest struct {
	Role string `json:"role"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type adminEntitlementsResponse struct {
	AccountID          int64    `json:"account_id"`
	Role               string   `json:"role"`
	Plan               string   `json:"plan"`
	EffectivePlan      string   `json:"effective_plan"`
	SubscriptionStatus string   `json:"subscription_status"`
	Capabilities       []string `json:"capabilities"`
}

type accountSummaryResponse struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	PlanName           string    `json:"plan_name"`
	UserCount          int       `json:"user_count"`
	SubscriptionStatus *string   `json:"subscription_status"`
	SubscriptionPlan   *string   `json:"subscription_plan"`
	CreatedAt          time.Time `json:"created_at"`
}

// AdminHandler handles the dev-only /admin endpoints. Changes apply to the
// caller's own account and user.
type AdminHandler struct {
	subs      SubscriptionWriter
	accounts  AccountAdmin
	publisher events.Publisher
}

// NewAdminHandler creates a new AdminHandler. A nil publisher discards events.
func NewAdminHandler(subs SubscriptionWriter, accounts AccountAdmin, publisher events.Publisher) *AdminHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &AdminHandler{subs: subs, accounts: accounts, publisher: publisher}
}

// SetPlan handles POST /admin/set_plan.
func (h *AdminHandler) SetPlan(w http.ResponseWriter, r *http.Request) {
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

	sub, err := h.subs.SetPlan(r.Context(), identity.AccountID, entitlements.Plan(req.Plan))
	if err != nil {
		writeError(w, r, err, "set plan")
		return
	}
	publishSubscriptionChanged(r.Context(), h.publisher, identity.AccountID, identity.UserID, sub)

	response.Success(w, http.StatusOK, entitlementsFor(identity.AccountID, identity.Role, sub.Entitlement()), requestID)
}

// SetSubscriptionStatus handles POST /admin/set_subscription_status.
func (h *AdminHandler) SetSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var req setStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if errs := validation.ValidateStatus(req.Status); len(errs) > 0 {
		validationFailed(w, errs, requestID)
		return
	}

	sub, err := h.subs.SetStatus(r.Context(), identity.AccountID, entitlements.Status(req.Status))
	if err != nil {
		writeError(w, r, err, "set subscription status")
		return
	}
	publishSubscriptionChanged(r.Context(), h.publisher, identity.AccountID, identity.UserID, sub)

	response.Success(w, http.StatusOK, entitlementsFor(identity.AccountID, identity.Role, sub.Entitlement()), requestID)
}

// SetRole handles POST /admin/set_role for the calling user.
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var req setRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if errs := validation.ValidateRole(req.Role); len(errs) > 0 {
		validationFailed(w, errs, requestID)
		return
	}

	role := entitlements.Role(req.Role)
	if err := h.accounts.SetUserRole(r.Context(), identity.UserID, role); err != nil {
		writeError(w, r, err, "set role")
		return
	}

	ent := identity.Entitlements
	response.Success(w, http.StatusOK, entitlementsFor(identity.AccountID, role, entitlements.Subscription{
		Status:            ent.Status,
		PlanName:          ent.Plan,
		CancelAtPeriodEnd: ent.CancelAtPeriodEnd,
		CurrentPeriodEnd:  ent.CurrentPeriodEnd,
	}), requestID)
}

// ListAccounts handles GET /admin/accounts.
func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.accounts.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, err, "list accounts")
		return
	}

	items := make([]accountSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, accountSummaryResponse{
			ID:                 s.ID,
			Name:               s.Name,
			PlanName:           s.PlanName,
			UserCount:          s.UserCount,
			SubscriptionStatus: s.SubscriptionStatus,
			SubscriptionPlan:   s.SubscriptionPlan,
			CreatedAt:          s.CreatedAt.UTC(),
		})
	}

	response.SuccessList(w, http.StatusOK, items, len(items), len(items), 0, middleware.GetRequestID(r.Context()))
}

func publishSubscriptionChanged(ctx context.Context, publisher events.Publisher, accountID, userID int64, sub *subscription.Subscription) {
	publisher.Publish(ctx, events.Event{
		Type:      events.SubscriptionChanged,
		AccountID: accountID,
		UserID:    userID,
		Attributes: map[string]any{
			"status": string(sub.Status),
			"plan":   string(sub.PlanName),
		},
		OccurredAt: time.Now().UTC(),
	})
}

func entitlementsFor(accountID int64, role entitlements.Role, sub entitlements.Subscription) adminEntitlementsResponse {
	return adminEntitlementsResponse{
		AccountID:          accountID,
		Role:               string(role),
		Plan:               string(sub.PlanName),
		EffectivePlan:      string(entitlements.EffectivePlan(sub)),
		SubscriptionStatus: string(sub.Status),
		Capabilities:       entitlements.Capabilities(role, sub).Sorted(),
	}
}
