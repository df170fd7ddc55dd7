package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ehs/pkg/platform/httputil"
	"ehs/pkg/platform/middleware/logging"
	"ehs/pkg/platform/middleware/metadata"
	"ehs/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterConfig carries the cross-cutting pieces of the router.
type RouterConfig struct {
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Checks   map[string]HealthCheck
}

// NewRouter wires the middleware chain, health and metrics endpoints, and the
// handler's routes.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(metadata.RequestMetadata)
	r.Use(requesttime.Middleware)
	r.Use(logging.AccessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz(cfg.Checks))
	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{Registry: cfg.Registry}))
	}
	h.Register(r)
	return r
}

func healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make(map[string]string, len(checks))
		status := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}
