/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontends and dashboards

ROUTE GROUPS:
  /api/barrels/*     Wholesale liquid purchasing
  /api/bottler/*     Bottling runs
  /api/carts/*       Potion sales
  /api/catalog       Sellable stock
  /api/inventory/*   Audit and capacity purchasing
  /api/admin/*       Destructive operations
  /metrics           Prometheus scrape endpoint
  /healthz           Liveness probe

SECURITY NOTE:
  No authentication middleware. All endpoints are public; front with a
  gateway before exposing this beyond a trusted network.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/barrels", func(r chi.Router) {
			r.Post("/plan", h.PlanBarrels)
			r.Post("/deliver/{orderID}", h.DeliverBarrels)
		})

		r.Route("/bottler", func(r chi.Router) {
			r.Post("/plan", h.PlanBottling)
			r.Post("/deliver/{orderID}", h.DeliverBottles)
		})

		r.Route("/carts", func(r chi.Router) {
			r.Post("/{cartID}/checkout", h.Checkout)
		})

		r.Get("/catalog", h.GetCatalog)

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/audit", h.GetAudit)
			r.Post("/plan", h.PlanCapacity)
			r.Post("/deliver/{orderID}", h.DeliverCapacity)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/reset", h.Reset)
		})
	})

	// Operational endpoints
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
