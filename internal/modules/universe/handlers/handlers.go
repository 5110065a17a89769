// Package handlers provides HTTP handlers for the price history store.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/universe"
)

// maxImportBytes caps the size of an uploaded CSV.
const maxImportBytes = 32 << 20

// HistoryStore is the read side of the price history.
type HistoryStore interface {
	ListAssets(ctx context.Context) ([]universe.AssetSummary, error)
	GetPriceMatrix(ctx context.Context, assets []string, lookbackDays int) (domain.PriceMatrix, error)
	DeleteAsset(ctx context.Context, asset string) (int64, error)
}

// Handler handles price history HTTP requests
type Handler struct {
	history  HistoryStore
	importer *universe.ImportService
	log      zerolog.Logger
}

// NewHandler creates a new history handler
func NewHandler(history HistoryStore, importer *universe.ImportService, log zerolog.Logger) *Handler {
	return &Handler{
		history:  history,
		importer: importer,
		log:      log.With().Str("handler", "history").Logger(),
	}
}

// RegisterRoutes registers history routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Post("/import", h.HandleImport)
		r.Get("/assets", h.HandleListAssets)
		r.Delete("/assets/{asset}", h.HandleDeleteAsset)
		r.Get("/prices", h.HandleGetPrices)
	})
}

// HandleImport stores a CSV price table sent as the request body.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}

	result, err := h.importer.ImportCSV(r.Context(), io.LimitReader(r.Body, maxImportBytes), source)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleListAssets returns every stored asset with its date range.
func (h *Handler) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.history.ListAssets(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"assets": assets,
		"count":  len(assets),
	})
}

// HandleDeleteAsset removes the stored history of one asset.
func (h *Handler) HandleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	deleted, err := h.history.DeleteAsset(r.Context(), asset)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if deleted == 0 {
		h.writeError(w, http.StatusNotFound, "no history for "+asset)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset":   asset,
		"deleted": deleted,
	})
}

// HandleGetPrices returns the aligned matrix for ?assets=A,B&lookback_days=N, as JSON
// or, with ?format=csv, in the import layout.
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	var assets []string
	if raw := r.URL.Query().Get("assets"); raw != "" {
		for _, a := range strings.Split(raw, ",") {
			if a = strings.TrimSpace(a); a != "" {
				assets = append(assets, a)
			}
		}
	}

	lookback := 0
	if raw := r.URL.Query().Get("lookback_days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			h.writeError(w, http.StatusBadRequest, "lookback_days must be a non-negative integer")
			return
		}
		lookback = v
	}

	pm, err := h.history.GetPriceMatrix(r.Context(), assets, lookback)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusOK)
		if err := universe.WritePriceCSV(w, pm); err != nil {
			h.log.Error().Err(err).Msg("Failed to write CSV response")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, universe.TableFromMatrix(pm))
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

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		h.writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind, "field": validation.Field})
		return
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind})
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
