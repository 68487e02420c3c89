package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "ncc/pkg/domain"
	request "ncc/pkg/platform/middleware/request"
	"ncc/pkg/requestcontext"
)

// TokenValidator validates an access token, including signature, expiry and revocation.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*Claims, error)
}

// Claims is what the middleware needs from a validated token.
type Claims struct {
	UserID id.UserID
	Email  string
	JTI    string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func withClaims(ctx context.Context, token string, claims *Claims) context.Context {
	ctx = requestcontext.WithUserID(ctx, claims.UserID)
	ctx = requestcontext.WithUserEmail(ctx, claims.Email)
	ctx = requestcontext.WithTokenID(ctx, claims.JTI)
	return requestcontext.WithBearerToken(ctx, token)
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := bearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateAccessToken(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(ctx, token, claims)))
		})
	}
}

// OptionalAuth attaches the caller when a valid bearer token is present and
// lets anonymous requests through. A present but invalid token is still rejected.
func OptionalAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			claims, err := validator.ValidateAccessToken(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid optional token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(ctx, token, claims)))
		})
	}
}
