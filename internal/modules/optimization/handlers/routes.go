package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimization", func(r chi.Router) {
		r.Post("/optimize", h.HandleOptimize)

		r.Post("/monte-carlo", h.HandleMonteCarlo)
		r.Get("/monte-carlo/stream", h.HandleMonteCarloStream)

		r.Get("/portfolio/{portfolioID}/risk-metrics", h.HandleGetRiskMetrics)
	})
}
