package middleware

import (
	"errors"
	"net/http"

	"github.com/brinkadata/brinkadata-platform/internal/api/response"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
)

// RequireCapability returns middleware that rejects identities whose entitlements
// do not grant c. A missing capability on a past-due subscription is reported as
// 402 so the client can prompt for payment instead of an upgrade.
func RequireCapability(c entitlements.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			identity := GetIdentity(r.Context())
			if identity == nil || identity.Entitlements == nil {
				response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, MsgLoginAgain, requestID)
				return
			}

			if err := identity.Entitlements.Require(c); err != nil {
				if errors.Is(err, entitlements.ErrPaymentRequired) {
					response.ErrWithDetails(w, http.StatusPaymentRequired, response.CodePaymentRequired,
						"Payment required to use this feature", map[string]string{"capability": string(c)}, requestID)
					return
				}
				response.ErrWithDetails(w, http.StatusForbidden, response.CodeForbidden,
					"Insufficient permissions", map[string]string{"capability": string(c)}, requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole returns middleware that rejects identities below the given role.
func RequireRole(min entitlements.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			identity := GetIdentity(r.Context())
			if identity == nil {
				response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, MsgLoginAgain, requestID)
				return
			}

			if !entitlements.RoleAtLeast(identity.Role, min) {
				response.Err(w, http.StatusForbidden, response.CodeForbidden, "Insufficient permissions", requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DevOnly returns middleware that hides a route group outside the dev environment.
func DevOnly(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isDev {
				response.Err(w, http.StatusForbidden, response.CodeForbidden,
					"Admin endpoints are only available in development", GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
