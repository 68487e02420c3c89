package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	id "ncc/pkg/domain"
	request "ncc/pkg/platform/middleware/request"
	"ncc/pkg/requestcontext"
)

// HeaderAdminToken carries the operator token used by the regadmin CLI.
const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken guards operator routes with a shared secret.
// An empty expected token disables the routes entirely.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderAdminToken)
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RoleChecker resolves whether a user currently holds the admin role.
type RoleChecker interface {
	IsAdmin(ctx context.Context, userID id.UserID) (bool, error)
}

// RequireAdminRole re-validates the caller's role against the profile store on
// every request. Must run after auth.RequireAuth.
func RequireAdminRole(checker RoleChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := requestcontext.UserID(ctx)
			w.Header().Set("Content-Type", "application/json")
			if userID.IsNil() {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"authentication required"}`))
				return
			}

			ok, err := checker.IsAdmin(ctx, userID)
			if err != nil {
				logger.ErrorContext(ctx, "failed to resolve caller role",
					"error", err,
					"user_id", userID,
					"request_id", request.GetRequestID(ctx),
				)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal_error"}`))
				return
			}
			if !ok {
				logger.WarnContext(ctx, "non-admin attempted staff route",
					"user_id", userID,
					"path", r.URL.Path,
					"request_id", request.GetRequestID(ctx),
				)
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"admin role required"}`))
				return
			}

			w.Header().Del("Content-Type")
			next.ServeHTTP(w, r)
		})
	}
}
