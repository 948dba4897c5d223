/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Remote address from X-Forwarded-For / X-Real-IP
  3. Logger:     zap request logging (RequestLogger)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Prometheus request counters by route pattern
  6. CORS:       Cross-origin requests for the frontend
  7. Owner:      Owner scope for every request

ROUTE GROUPS:
  /api/v1/habits/*       Habit registry and stats
  /api/v1/completions/*  Completion ledger
  /api/v1/streaks/*      Streak reads and manual recompute
  /api/v1/scenarios/*    Demo scenarios
  /                      Banner
  /health                Liveness (pings the store)
  /metrics               Prometheus (when enabled)

SECURITY NOTE:
  No authentication middleware. Every request runs as Options.Owner.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/streak-engine/habit"
)

// Options configures the router.
type Options struct {
	Owner          habit.OwnerID
	AllowedOrigins []string
	// MetricsPath mounts the Prometheus handler; empty disables it.
	MetricsPath string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	if opts.Owner == 0 {
		opts.Owner = habit.DefaultOwner
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(OwnerMiddleware(opts.Owner))

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	if opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, promhttp.Handler())
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Habit routes
		r.Route("/habits", func(r chi.Router) {
			r.Post("/", h.CreateHabit)
			r.Get("/", h.ListHabits)
			r.Get("/{id}", h.GetHabit)
			r.Put("/{id}", h.UpdateHabit)
			r.Delete("/{id}", h.DeleteHabit)
			r.Get("/{id}/stats", h.GetHabitStats)
		})

		// Completion routes
		r.Route("/completions", func(r chi.Router) {
			r.Post("/", h.CreateCompletion)
			r.Get("/habit/{habit_id}", h.ListCompletionsByHabit)
			r.Get("/{id}", h.GetCompletion)
			r.Put("/{id}", h.UpdateCompletion)
			r.Delete("/{id}", h.DeleteCompletion)
		})

		// Streak routes
		r.Route("/streaks", func(r chi.Router) {
			r.Get("/{habit_id}", h.GetStreak)
			r.Post("/{habit_id}/recalculate", h.RecalculateStreak)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
