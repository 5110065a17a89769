// Package handlers provides HTTP handlers for discrete share allocation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/allocation"
)

// Handler handles allocation HTTP requests
type Handler struct {
	allocator *allocation.Allocator
	log       zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(allocator *allocation.Allocator, log zerolog.Logger) *Handler {
	return &Handler{
		allocator: allocator,
		log:       log.With().Str("handler", "allocation").Logger(),
	}
}

// RegisterRoutes registers allocation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/allocation", func(r chi.Router) {
		r.Post("/discrete", h.HandleDiscrete)
	})
}

// DiscreteRequest is the body of POST /allocation/discrete.
type DiscreteRequest struct {
	Weights      map[string]float64 `json:"weights"`
	LatestPrices map[string]float64 `json:"latest_prices"`
	Budget       float64            `json:"budget"`
	Method       string             `json:"method,omitempty"`
}

// HandleDiscrete converts weights into whole shares.
func (h *Handler) HandleDiscrete(w http.ResponseWriter, r *http.Request) {
	var req DiscreteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	method, err := allocation.ParseMethod(req.Method)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	assets := make([]string, 0, len(req.Weights))
	for asset := range req.Weights {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	weights := make(domain.Weights, len(assets))
	for i, asset := range assets {
		weights[i] = domain.AssetWeight{Asset: asset, Weight: req.Weights[asset]}
	}

	alloc, err := h.allocator.Allocate(r.Context(), weights, req.LatestPrices, req.Budget, method)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, alloc)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	kind := domain.ErrorKind(err)
	status := http.StatusUnprocessableEntity
	switch kind {
	case "validation":
		status = http.StatusBadRequest
	case "internal":
		status = http.StatusInternalServerError
	}

	body := map[string]interface{}{"error": err.Error(), "kind": kind}
	var tooSmall *domain.BudgetTooSmallError
	if errors.As(err, &tooSmall) {
		body["minimum_required"] = tooSmall.MinimumRequired
		body["asset"] = tooSmall.Asset
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
