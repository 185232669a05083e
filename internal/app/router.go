package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/udaykiran1867/tce-project1/internal/auth"
	"github.com/udaykiran1867/tce-project1/internal/inventory"
	"github.com/udaykiran1867/tce-project1/internal/observability"
	"github.com/udaykiran1867/tce-project1/internal/platform/httpx"
	"github.com/udaykiran1867/tce-project1/internal/reporting"
	"github.com/udaykiran1867/tce-project1/jobs"
)

// HealthCheck probes one dependency for /healthz. Optional dependencies are
// reported but never fail the check.
type HealthCheck struct {
	Name     string
	Ping     func(context.Context) error
	Optional bool
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	InventoryHandler *inventory.Handler
	ReportHandler    *reporting.Handler
	JobHandler       *jobs.Handler
	Verifier         *auth.Verifier
	Metrics          *observability.Metrics
	HealthChecks     []HealthCheck
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(logger, params.HealthChecks))
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Group(func(r chi.Router) {
		if params.Verifier != nil {
			r.Use(params.Verifier.Middleware)
		}
		if params.InventoryHandler != nil {
			r.Route("/products", params.InventoryHandler.MountProductRoutes)
			r.Route("/transactions", params.InventoryHandler.MountTransactionRoutes)
			r.Route("/ledger", params.InventoryHandler.MountLedgerRoutes)
		}
		if params.ReportHandler != nil {
			r.Route("/logs", params.ReportHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

func healthHandler(logger *slog.Logger, checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		results := make(map[string]string, len(checks))
		for _, check := range checks {
			if check.Ping == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				logger.Warn("health check failed", slog.String("dependency", check.Name), slog.Any("error", err))
				results[check.Name] = "unavailable"
				if !check.Optional {
					status = http.StatusServiceUnavailable
					body["status"] = "unavailable"
				} else if body["status"] == "ok" {
					body["status"] = "degraded"
				}
				continue
			}
			results[check.Name] = "ok"
		}
		if len(results) > 0 {
			body["checks"] = results
		}
		httpx.JSON(w, status, body)
	}
}
