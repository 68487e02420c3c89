package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncc/pkg/platform/middleware/admin"
)

type fakeOps struct {
	lastQuery string
	lastBody  map[string]string
}

func (f *fakeOps) server(t *testing.T) *httptest.Server {
	r := chi.NewRouter()
	r.Route("/ops", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get(admin.HeaderAdminToken) != "secret" {
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
					return
				}
				next.ServeHTTP(w, r)
			})
		})
		r.Get("/registrations", func(w http.ResponseWriter, r *http.Request) {
			f.lastQuery = r.URL.RawQuery
			_, _ = w.Write([]byte(`{"registrations":[{"registrationId":"NCC-1-AAAAAAAAA","status":"pending_verification",
				"paymentStatus":"verification_pending","personalInfo":{"fullName":"Alice Wonder","email":"alice@example.com"}}],"count":1}`))
		})
		r.Put("/registrations/{id}/status", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastBody))
			if f.lastBody["status"] == "submitted" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"validation_error","error_description":"unknown registration status"}`))
				return
			}
			_, _ = w.Write([]byte(`{"registrationId":"` + chi.URLParam(r, "id") + `","axis":"status","from":"pending_verification","to":"approved","changed":true}`))
		})
		r.Get("/registrations/{id}/history", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"registrationId":"NCC-1-AAAAAAAAA","entries":[{"action":"registration_status_changed","from":"pending_verification","to":"approved","actorId":"operator","timestamp":"2026-03-02T10:00:00Z"}]}`))
		})
		r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"profile":{"id":"` + chi.URLParam(r, "id") + `"}}`))
		})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	var out bytes.Buffer
	full := append([]string{"--server", srv.URL, "--token", "secret"}, args...)
	err := run(context.Background(), full, &out)
	return out.String(), err
}

func TestList(t *testing.T) {
	ops := &fakeOps{}
	srv := ops.server(t)

	out, err := runCLI(t, srv, "list", "--status", "pending_verification", "--limit", "5")
	require.NoError(t, err)
	assert.Equal(t, "limit=5&status=pending_verification", ops.lastQuery)
	assert.Contains(t, out, "NCC-1-AAAAAAAAA")
	assert.Contains(t, out, "Alice Wonder")
}

func TestSetStatus(t *testing.T) {
	ops := &fakeOps{}
	srv := ops.server(t)

	out, err := runCLI(t, srv, "status", "NCC-1-AAAAAAAAA", "approved")
	require.NoError(t, err)
	assert.Equal(t, "approved", ops.lastBody["status"])
	assert.Equal(t, "NCC-1-AAAAAAAAA status: pending_verification -> approved\n", out)

	_, err = runCLI(t, srv, "status", "NCC-1-AAAAAAAAA", "submitted")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "unknown registration status")
}

func TestHistoryAndShow(t *testing.T) {
	srv := (&fakeOps{}).server(t)

	out, err := runCLI(t, srv, "history", "NCC-1-AAAAAAAAA")
	require.NoError(t, err)
	assert.Contains(t, out, "registration_status_changed")
	assert.Contains(t, out, "operator")

	out, err = runCLI(t, srv, "--json", "show", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "user-1"`)
}

func TestWrongToken(t *testing.T) {
	srv := (&fakeOps{}).server(t)
	var out bytes.Buffer
	err := run(context.Background(), []string{"--server", srv.URL, "--token", "nope", "list"}, &out)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestUsageErrors(t *testing.T) {
	srv := (&fakeOps{}).server(t)
	for _, args := range [][]string{
		{},
		{"status", "only-one"},
		{"frobnicate"},
	} {
		_, err := runCLI(t, srv, args...)
		assert.ErrorIs(t, err, errUsage, args)
	}

	t.Setenv("ADMIN_TOKEN", "")
	err := run(context.Background(), []string{"list"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errUsage)
}
