package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/vinlotto-backend/api/controllers"
	"github.com/angelmondragon/vinlotto-backend/api/middleware"
	"github.com/angelmondragon/vinlotto-backend/pkg/config"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
)

// OpsDeps is everything the ops surface serves.
type OpsDeps struct {
	Processor controllers.OrderProcessor
	Events    controllers.EventLister
	DB        controllers.Pinger
	Redis     controllers.Pinger
	Gatherer  prometheus.Gatherer
}

// NewOpsRouter builds the worker's ops surface: health checks, metrics and the
// operator trigger.
func NewOpsRouter(cfg *config.Config, logg *logger.Logger, deps OpsDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/ops/orders/{orderID}", func(r chi.Router) {
		r.Post("/process", controllers.ProcessOrder(deps.Processor, logg))
		if deps.Events != nil {
			r.Get("/events", controllers.OrderEvents(deps.Events, logg))
		}
	})

	return r
}
