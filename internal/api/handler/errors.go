package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/brinkadata/brinkadata-platform/internal/account"
	"github.com/brinkadata/brinkadata-platform/internal/api/middleware"
	"github.com/brinkadata/brinkadata-platform/internal/api/response"
	"github.com/brinkadata/brinkadata-platform/internal/asset"
	"github.com/brinkadata/brinkadata-platform/internal/auth"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
	"github.com/brinkadata/brinkadata-platform/internal/resume"
	"github.com/brinkadata/brinkadata-platform/internal/subscription"
	"github.com/brinkadata/brinkadata-platform/internal/tenant"
)

// writeError maps a domain error to its HTTP status and error code. Unknown errors
// are logged and returned as 500 without detail. action completes "failed to ...".
func writeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	requestID := middleware.GetRequestID(r.Context())

	var quota *entitlements.QuotaError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, "Invalid email or password", requestID)

	case errors.Is(err, auth.ErrSessionInvalid),
		errors.Is(err, auth.ErrTokenMismatch),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, resume.ErrInvalidCode),
		errors.Is(err, resume.ErrAlreadyUsed),
		errors.Is(err, resume.ErrExpired),
		errors.Is(err, resume.ErrSessionRevoked):
		slog.Info("authentication rejected", "action", action, "reason", err.Error(), "requestId", requestID)
		response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, middleware.MsgLoginAgain, requestID)

	case errors.Is(err, auth.ErrInactiveUser):
		response.Err(w, http.StatusForbidden, response.CodeForbidden, "User account is inactive", requestID)

	case errors.As(err, &quota):
		response.ErrWithDetails(w, http.StatusPaymentRequired, response.CodePlanLimitReached,
			fmt.Sprintf("Plan limit reached: %d/%d %s. Upgrade to continue.", quota.Usage, quota.Max, quota.Limit),
			map[string]any{"limit": quota.Limit, "usage": quota.Usage, "max": quota.Max}, requestID)

	case errors.Is(err, entitlements.ErrPaymentRequired):
		response.Err(w, http.StatusPaymentRequired, response.CodePaymentRequired, "Payment required to use this feature", requestID)

	case errors.Is(err, entitlements.ErrCapabilityDenied):
		response.Err(w, http.StatusForbidden, response.CodeForbidden, "Insufficient permissions", requestID)

	case errors.Is(err, tenant.ErrMissingScope), errors.Is(err, tenant.ErrScopeViolation):
		slog.Error("tenant scope violation", "action", action, "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, response.CodeTenantScopeViolation, "Tenant scope violation", requestID)

	case errors.Is(err, account.ErrEmailTaken):
		response.Err(w, http.StatusConflict, response.CodeConflict, "Email already registered", requestID)

	case errors.Is(err, asset.ErrDuplicateSourceRef):
		response.Err(w, http.StatusConflict, response.CodeConflict, "Asset with this source_ref already exists", requestID)

	case errors.Is(err, resume.ErrNoActiveSession):
		response.Err(w, http.StatusConflict, response.CodeNoActiveSession, "No active session to resume", requestID)

	case errors.Is(err, asset.ErrNotFound):
		response.Err(w, http.StatusNotFound, response.CodeNotFound, "Asset not found", requestID)

	case errors.Is(err, account.ErrAccountNotFound),
		errors.Is(err, account.ErrUserNotFound),
		errors.Is(err, subscription.ErrNotFound):
		response.Err(w, http.StatusNotFound, response.CodeNotFound, "Resource not found", requestID)

	default:
		slog.Error("failed to "+action, "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "An unexpected error occurred", requestID)
	}
}

// identityOrUnauthorized returns the request identity or writes a 401.
func identityOrUnauthorized(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, middleware.MsgLoginAgain, middleware.GetRequestID(r.Context()))
		return nil, false
	}
	return identity, true
}
