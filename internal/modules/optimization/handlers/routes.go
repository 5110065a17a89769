package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers optimizer routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimizer", func(r chi.Router) {
		r.Get("/", h.HandleGetStatus)
		r.Post("/run", h.HandleRun)
		r.Post("/batch", h.HandleBatch)

		r.Get("/profiles", h.HandleListProfiles)
		r.Post("/profiles/{name}/run", h.HandleRunProfile)

		r.Get("/runs", h.HandleListRuns)
		r.Get("/runs/{id}", h.HandleGetRun)
	})
}
