package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcusai/insights-backend/api/controllers"
	"github.com/marcusai/insights-backend/api/middleware"
	"github.com/marcusai/insights-backend/internal/reports"
	"github.com/marcusai/insights-backend/pkg/config"
	"github.com/marcusai/insights-backend/pkg/logger"
)

// Dependencies carries the optional infra clients the readiness probe pings.
// A nil entry means the dependency was never configured.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    controllers.Pinger
	PubSub   controllers.Pinger
	BigQuery controllers.Pinger
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	deps Dependencies,
	reportsService reports.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":       deps.DB,
			"redis":    deps.Redis,
			"pubsub":   deps.PubSub,
			"bigquery": deps.BigQuery,
		}))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/reports", func(r chi.Router) {
			r.Get("/performance", controllers.PerformanceReport(reportsService, logg))
			r.Get("/hourly", controllers.HourlyBreakdown(reportsService, logg))
			r.Get("/history", controllers.ReportHistory(reportsService, logg))
		})
		r.Get("/connections", controllers.ConnectionStatuses(reportsService, logg))
	})

	return r
}
