package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notary/internal/platform/metrics"
	"notary/internal/platform/middleware"
	"notary/pkg/platform/httputil"
	"notary/pkg/platform/middleware/metadata"
	"notary/pkg/platform/middleware/requesttime"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Registrar mounts a feature's routes.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig carries what the router needs from main.
type RouterConfig struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	// Stats returns the number of registered documents for /health.
	Stats  func(ctx context.Context) (uint64, error)
	Checks map[string]HealthCheck
}

type healthResponse struct {
	Status    string            `json:"status"`
	Documents uint64            `json:"documents"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewRouter wires the middleware chain, operational endpoints and feature routes.
func NewRouter(cfg RouterConfig, features ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.LatencyMiddleware(cfg.Metrics))
	r.Use(requesttime.Middleware)

	r.Get("/health", healthHandler(cfg))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		r.Use(middleware.ContentTypeJSON)
		for _, f := range features {
			f.Register(r)
		}
	})
	return r
}

func healthHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK

		if cfg.Stats != nil {
			n, err := cfg.Stats(ctx)
			if err != nil {
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
			resp.Documents = n
		}

		names := make([]string, 0, len(cfg.Checks))
		for name := range cfg.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(names))
			}
			if err := cfg.Checks[name](ctx); err != nil {
				cfg.Logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
				resp.Checks[name] = "down"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "up"
		}

		httputil.WriteJSON(w, status, resp)
	}
}
