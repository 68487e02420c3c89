// Package httptransport assembles the public HTTP surface from the domain handlers.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ncc/internal/platform/metrics"
	"ncc/pkg/platform/httputil"
	"ncc/pkg/platform/middleware/metadata"
	request "ncc/pkg/platform/middleware/request"
	"ncc/pkg/platform/middleware/requesttime"
)

const defaultRequestTimeout = 60 * time.Second

// Registrar mounts a domain's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Handlers       []Registrar
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	HealthChecks   map[string]HealthCheck
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter wires the shared middleware stack, the health and metrics
// endpoints and every domain handler.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(request.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(middleware.Timeout(deps.RequestTimeout))

	r.Get("/healthz", healthHandler(deps.HealthChecks, deps.Logger))
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	for _, h := range deps.Handlers {
		h.Register(r)
	}
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
				resp.Checks[name] = "down"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
