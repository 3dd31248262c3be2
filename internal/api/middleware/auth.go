package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brinkadata/brinkadata-platform/internal/api/response"
	"github.com/brinkadata/brinkadata-platform/internal/auth"
)

const identityKey contextKey = "identity"

// MsgLoginAgain is the single message returned for every authentication failure.
const MsgLoginAgain = "Please log in again"

// Authenticator resolves an access token to an Identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Identity, error)
}

// Auth is middleware that extracts the Bearer token from the Authorization header
// and resolves it to an Identity. Every token or session failure returns 401 with
// the same message; a deactivated user returns 403.
func Auth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			token, ok := bearerToken(r)
			if !ok {
				response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, MsgLoginAgain, requestID)
				return
			}

			identity, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrInactiveUser):
					response.Err(w, http.StatusForbidden, response.CodeForbidden, "User account is inactive", requestID)
				case errors.Is(err, auth.ErrInvalidToken),
					errors.Is(err, auth.ErrSessionInvalid),
					errors.Is(err, auth.ErrMissingAccount):
					slog.Debug("authentication rejected", "error", err, "requestId", requestID)
					response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, MsgLoginAgain, requestID)
				default:
					slog.Error("failed to authenticate request", "error", err, "requestId", requestID)
					response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Authentication failed", requestID)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity retrieves the authenticated Identity from the request context.
func GetIdentity(ctx context.Context) *auth.Identity {
	if id, ok := ctx.Value(identityKey).(*auth.Identity); ok {
		return id
	}
	return nil
}
