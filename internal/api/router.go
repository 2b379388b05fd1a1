// Package api assembles the HTTP surface of the relay.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nemo-admissions/nemo-relay/internal/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	RateLimit      RateLimit
	MaxBodyBytes   int64
}

const defaultMaxBodyBytes = 64 * 1024

// NewRouter creates the HTTP router serving the relay.
func NewRouter(relay handlers.Relay, opts Options, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("module", "api"))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	r := chi.NewRouter()

	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handlers.HandleHealth)

	r.Group(func(r chi.Router) {
		if opts.RateLimit.RequestsPerMinute > 0 {
			r.Use(NewRateLimiter(opts.RateLimit, logger).Middleware)
		}
		r.Use(chimw.RequestSize(maxBody))

		r.Post("/invocations", relay.HandleInvocations)
	})

	return r
}
