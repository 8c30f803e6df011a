package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/moviesearch/pkg/health"
	"github.com/utafrali/moviesearch/pkg/middleware"
)

// RouterConfig holds the router settings.
type RouterConfig struct {
	CORS          middleware.CORSConfig
	SearchTimeout time.Duration
}

// NewRouter creates a chi router with all movie routes registered.
func NewRouter(
	movies *MovieHandler,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing("http"))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics())
	r.Use(chimw.Compress(5))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/movies", func(r chi.Router) {
		r.With(chimw.Timeout(cfg.SearchTimeout)).Get("/search", movies.Search)
		r.Post("/", movies.Upsert)
		r.Post("/reindex", movies.Reindex)
	})

	return r
}
