package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatmood/internal/api/middleware"
	"github.com/eldtechnologies/chatmood/internal/handlers"
	"github.com/eldtechnologies/chatmood/internal/store"
)

// Options configures the ops HTTP router.
type Options struct {
	Driver   string // store driver name shown in /health
	Instance string
}

// NewRouter creates the ops and read-only analysis API.
func NewRouter(logger zerolog.Logger, db store.DataStore, redisStore *store.RedisStore, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ReadOnly)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Dashboards read from any origin.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(db, opts.Driver, redisStore)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api", h.Root)
	r.Get("/health", h.Health(opts.Instance))
	r.Get("/analyses", h.RecentAnalyses)
	r.Get("/analyses/stats", h.Stats)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.Error(w, http.StatusNotFound, "not found")
	})

	return r
}
