package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ncc/pkg/domain"
	"ncc/pkg/requestcontext"
)

type stubValidator struct {
	claims *Claims
	err    error
	seen   string
}

func (s *stubValidator) ValidateAccessToken(_ context.Context, token string) (*Claims, error) {
	s.seen = token
	return s.claims, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequireAuth(t *testing.T) {
	userID := id.UserID("0b8a1c1e-3f55-4a8e-9c55-6b0f3d3c2a11")

	t.Run("missing header is rejected", func(t *testing.T) {
		v := &stubValidator{}
		called := false
		h := RequireAuth(v, discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, called)
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		v := &stubValidator{err: errors.New("expired")}
		h := RequireAuth(v, discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer abc")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "abc", v.seen)
	})

	t.Run("valid token populates request context", func(t *testing.T) {
		v := &stubValidator{claims: &Claims{UserID: userID, Email: "alice@example.com", JTI: "jti-1"}}
		var ctx context.Context
		h := RequireAuth(v, discardLogger())(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			ctx = r.Context()
		}))
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer good-token")
		h.ServeHTTP(httptest.NewRecorder(), r)

		require.NotNil(t, ctx)
		assert.Equal(t, userID, requestcontext.UserID(ctx))
		assert.Equal(t, "alice@example.com", requestcontext.UserEmail(ctx))
		assert.Equal(t, "jti-1", requestcontext.TokenID(ctx))
		assert.Equal(t, "good-token", requestcontext.BearerToken(ctx))
	})
}

func TestOptionalAuth(t *testing.T) {
	t.Run("anonymous request passes through", func(t *testing.T) {
		called := false
		h := OptionalAuth(&stubValidator{}, discardLogger())(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			called = true
			assert.True(t, requestcontext.UserID(r.Context()).IsNil())
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
		assert.True(t, called)
	})

	t.Run("bad token is still rejected", func(t *testing.T) {
		h := OptionalAuth(&stubValidator{err: errors.New("revoked")}, discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Authorization", "Bearer revoked")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
