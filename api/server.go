/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the storefront

ROUTE GROUPS:
  /api/accounts/*   Account state, history, redemption
  /api/orders/*     Order pipeline hook
  /api/tiers        Tier catalog (read)
  /api/rewards      Reward catalog (read)
  /api/settings     Program configuration (read)
  /api/scenarios/*  Demo scenario loaders (dev only)
  /api/admin/*      Adjustments, sweep, redemption audit, reset

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public; gate
  /api/admin before production exposure.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Account routes
		r.Route("/accounts/{customerID}", func(r chi.Router) {
			r.Get("/", h.GetAccount)
			r.Get("/transactions", h.GetTransactions)
			r.Post("/redeem", h.Redeem)
		})

		// Order pipeline hook
		r.Post("/orders/points", h.OrderPoints)

		// Catalog read paths
		r.Get("/tiers", h.ListTiers)
		r.Get("/rewards", h.ListRewards)
		r.Get("/settings", h.GetSettings)

		// Demo scenarios (development/demo only: loading resets the database)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/adjustments", h.CreateAdjustment)
			r.Post("/sweep", h.TriggerSweep)
			r.Route("/redemptions", func(r chi.Router) {
				r.Get("/", h.ListRedemptions)
				r.Post("/{id}/reissue", h.ReissueCoupon)
			})
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
