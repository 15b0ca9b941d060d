package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouteOptions struct {
	CORSAllowedOrigins []string
	RateLimitRPM       int
	RequestTimeout     time.Duration

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

func (h *Handler) Routes(m *Middleware, opts RouteOptions) *chi.Mux {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(m.Timeout(opts.RequestTimeout))
	r.Use(middleware.Heartbeat("/ping"))

	r.Use(m.CORS(opts.CORSAllowedOrigins))
	r.Use(m.RateLimit(opts.RateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	// v1 API routes
	r.Route("/v1", func(r chi.Router) {
		r.Route("/kv", func(r chi.Router) {
			r.Post("/get", h.Get)
			r.Post("/set", h.Set)
			r.Post("/del", h.Del)
			r.Post("/list", h.List)
		})
	})

	return r
}
