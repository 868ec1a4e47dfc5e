package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"busybeaver/internal/platform/metrics"
	authmw "busybeaver/pkg/platform/middleware/auth"
	"busybeaver/pkg/platform/middleware/metadata"
	"busybeaver/pkg/platform/middleware/requesttime"
)

// RouterConfig carries everything the HTTP layer delegates to.
type RouterConfig struct {
	KV      KVService
	Jobs    JobService
	Checks  []ReadinessCheck
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Validator protects /api with bearer tokens; nil leaves it open.
	Validator authmw.TokenValidator
	// BaseContext decorates every request context, e.g. with the app.
	BaseContext func(context.Context) context.Context
}

// NewRouter wires all public endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(metadata.RequestMetadata)
	r.Use(requesttime.Middleware)
	r.Use(withBaseContext(cfg.BaseContext))
	r.Use(requestLogger(logger, cfg.Metrics))

	NewHealthHandler(cfg.Checks, logger).Register(r)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.Validator != nil {
			api.Use(authmw.RequireAuth(cfg.Validator, logger))
		}
		NewKVHandler(cfg.KV, logger).Register(api)
		NewJobsHandler(cfg.Jobs, logger).Register(api)
	})
	return r
}
