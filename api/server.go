/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for back-office frontends

ROUTE GROUPS:
  /api/inbound, /api/usage, /api/outbound, /api/adjustments, /api/transfers
  /api/orders/{id}/receive, /api/orders/{id}/complete
  /api/stock/*, /api/movements

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
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Postings
		r.Post("/inbound", h.ReceiveInbound)
		r.Post("/usage", h.RecordUsage)
		r.Post("/outbound", h.RecordOutbound)
		r.Post("/adjustments", h.CreateAdjustment)
		r.Post("/transfers", h.CreateTransfer)

		// Order-driven flows
		r.Route("/orders", func(r chi.Router) {
			r.Post("/{id}/receive", h.ReceiveOrder)
			r.Post("/{id}/complete", h.CompleteOrder)
		})

		// Read-side projections
		r.Route("/stock", func(r chi.Router) {
			r.Get("/{location}", h.GetStock)
			r.Get("/{location}/items/{code}", h.GetItemBalance)
		})
		r.Get("/movements", h.GetMovements)

		// Health
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
