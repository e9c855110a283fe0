package http

import (
	"lockstats/internal/api/http/handlers"
	"lockstats/internal/api/http/mw"
	"lockstats/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Middlewares left nil are not mounted
type Middlewares struct {
	Logging   *mw.LoggingMiddleware
	CORS      *mw.CORSMiddleware
	RateLimit *mw.RateLimitMiddleware
	JWT       *mw.JWTMiddleware
}

func BuildRouter(h *handlers.Handler, m Middlewares) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if m.Logging != nil {
		r.Use(m.Logging.Handler)
	}
	r.Use(middleware.Compress(5, "application/json"))
	if m.CORS != nil {
		r.Use(m.CORS.Handler())
	}

	// tech endpoints not auth
	r.Get("/healthz", h.Healthz)
	r.Get("/readiness", h.Readiness)
	r.Mount("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		// jwt first so the limiter can key by subject
		if m.JWT != nil {
			api.Use(m.JWT.Handler)
		}
		if m.RateLimit != nil {
			api.Use(m.RateLimit.Handler)
		}

		api.Get("/users/{address}", h.GetUser)
		api.Get("/movements/{id}", h.GetMovement)
		api.Get("/tokens/{address}", h.GetToken)
		api.Get("/buckets/{period}/{class}", h.GetBucket)
	})

	return r
}
