package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salespulse/salespulse/internal/analytics"
	"github.com/salespulse/salespulse/internal/classify"
	"github.com/salespulse/salespulse/internal/imports"
	"github.com/salespulse/salespulse/internal/planfact"
	"github.com/salespulse/salespulse/jobs"
)

const healthPingTimeout = 2 * time.Second

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Pool             *pgxpool.Pool
	ImportsHandler   *imports.Handler
	AnalyticsHandler *analytics.Handler
	ClassifyHandler  *classify.Handler
	PlanFactHandler  *planfact.Handler
	JobsHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with SalesPulse defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			ctx, cancel := context.WithTimeout(req.Context(), healthPingTimeout)
			defer cancel()
			if err := params.Pool.Ping(ctx); err != nil {
				params.Logger.Warn("health ping", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/imports", params.ImportsHandler.MountRoutes)
		api.Route("/analytics", func(ar chi.Router) {
			params.AnalyticsHandler.MountRoutes(ar)
			params.ClassifyHandler.MountRoutes(ar)
			params.PlanFactHandler.MountReportRoutes(ar)
		})
		api.Route("/plans", params.PlanFactHandler.MountPlanRoutes)
		if params.JobsHandler != nil {
			api.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
