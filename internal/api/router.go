package api

import (
	"log/slog"
	"net/http"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// NewRouter wires the HTTP surface. redisClient may be nil, in which case
// Idempotency-Key headers are ignored.
func NewRouter(h *Handlers, redisClient *redis.Client, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.RequestID)
	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)
	r.Use(middleware.Metrics)

	r.Get("/", h.Health)

	r.With(middleware.Idempotency(redisClient, log)).Post("/messages", h.CreateMessage)
	r.Get("/messages", h.ListMessages)
	r.Get("/search", h.SearchMessages)

	r.Handle("/metrics", promhttp.Handler())

	log.Debug("registered routes", "routes", []string{"GET /", "POST /messages", "GET /messages", "GET /search", "GET /metrics"})

	return r
}
