package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/brinkadata/brinkadata-platform/internal/account"
	"github.com/brinkadata/brinkadata-platform/internal/api/middleware"
	"github.com/brinkadata/brinkadata-platform/internal/api/response"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
)

// AccountReader loads an account row.
type AccountReader interface {
	GetAccount(ctx context.Context, id int64) (*account.Account, error)
}

// UsageCounter counts what an account has used against its plan quotas.
type UsageCounter interface {
	Count(ctx context.Context, accountID int64) (int, error)
}

type capabilitiesResponse struct {
	Plan               string              `json:"plan"`
	EffectivePlan      string              `json:"effective_plan"`
	Role               string              `json:"role"`
	SubscriptionStatus string              `json:"subscription_status"`
	Capabilities       []string            `json:"capabilities"`
	Limits             entitlements.Limits `json:"limits"`
}

type subscriptionSnapshot struct {
	Status            string     `json:"status"`
	Plan              string     `json:"plan"`
	EffectivePlan     string     `json:"effective_plan"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end"`
}

type usageResponse struct {
	SavedDeals int `json:"saved_deals"`
}

type accountInfoResponse struct {
	AccountID    int64                `json:"account_id"`
	Name         string               `json:"name"`
	Plan         string               `json:"plan"`
	User         userResponse         `json:"user"`
	Subscription subscriptionSnapshot `json:"subscription"`
	Capabilities []string             `json:"capabilities"`
	Limits       entitlements.Limits  `json:"limits"`
	Usage        usageResponse        `json:"usage"`
}

// AccountHandler handles the /account endpoints and /auth/capabilities.
type AccountHandler struct {
	accounts AccountReader
	usage    UsageCounter
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts AccountReader, usage UsageCounter) *AccountHandler {
	return &AccountHandler{accounts: accounts, usage: usage}
}

// Capabilities handles GET /auth/capabilities and GET /account/capabilities.
// The entitlements were resolved by the auth middleware for this request.
func (h *AccountHandler) Capabilities(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	ent := identity.Entitlements

	response.Success(w, http.StatusOK, capabilitiesResponse{
		Plan:               string(ent.Plan),
		EffectivePlan:      string(ent.EffectivePlan),
		Role:               string(identity.Role),
		SubscriptionStatus: string(ent.Status),
		Capabilities:       ent.Capabilities.Sorted(),
		Limits:             ent.Limits,
	}, middleware.GetRequestID(r.Context()))
}

// Info handles GET /account/info.
func (h *AccountHandler) Info(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	ent := identity.Entitlements

	acct, err := h.accounts.GetAccount(r.Context(), identity.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			// The token names an account that no longer exists: a server error, not a 404.
			err = fmt.Errorf("authenticated account %d missing", identity.AccountID)
		}
		writeError(w, r, err, "load account")
		return
	}

	savedDeals, err := h.usage.Count(r.Context(), identity.AccountID)
	if err != nil {
		writeError(w, r, err, "count saved deals")
		return
	}

	response.Success(w, http.StatusOK, accountInfoResponse{
		AccountID: acct.ID,
		Name:      acct.Name,
		Plan:      string(ent.EffectivePlan),
		User: userResponse{
			ID:        identity.UserID,
			Email:     identity.Email,
			AccountID: identity.AccountID,
			Role:      string(identity.Role),
		},
		Subscription: subscriptionSnapshot{
			Status:            string(ent.Status),
			Plan:              string(ent.Plan),
			EffectivePlan:     string(ent.EffectivePlan),
			CancelAtPeriodEnd: ent.CancelAtPeriodEnd,
			CurrentPeriodEnd:  ent.CurrentPeriodEnd,
		},
		Capabilities: ent.Capabilities.Sorted(),
		Limits:       ent.Limits,
		Usage:        usageResponse{SavedDeals: savedDeals},
	}, middleware.GetRequestID(r.Context()))
}

// Plans handles GET /account/plans. It needs no authentication.
func (h *AccountHandler) Plans(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, map[string]any{"plans": entitlements.Catalog()}, middleware.GetRequestID(r.Context()))
}
