// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/profiles"
	"github.com/aristath/frontier/internal/modules/runs"
	"github.com/aristath/frontier/internal/modules/universe"
)

// RunStore archives and serves optimization runs.
type RunStore interface {
	Save(ctx context.Context, result *optimization.Result) (string, error)
	Get(ctx context.Context, id string) (*runs.Run, error)
	List(ctx context.Context, label string, limit int) ([]runs.Summary, error)
}

// Handler handles optimizer HTTP requests
type Handler struct {
	service     *optimization.OptimizerService
	history     profiles.PriceSource
	runStore    RunStore
	runner      *profiles.Runner
	profiles    []config.Profile
	base        optimization.Settings
	maxParallel int
	log         zerolog.Logger
}

// NewHandler creates a new optimizer handler. history, runStore and runner may be nil,
// which disables the routes that need them.
func NewHandler(
	service *optimization.OptimizerService,
	history profiles.PriceSource,
	runStore RunStore,
	runner *profiles.Runner,
	profileList []config.Profile,
	base optimization.Settings,
	maxParallel int,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:     service,
		history:     history,
		runStore:    runStore,
		runner:      runner,
		profiles:    profileList,
		base:        base,
		maxParallel: maxParallel,
		log:         log.With().Str("handler", "optimizer").Logger(),
	}
}

// RunRequest is the body of POST /optimizer/run. Prices are taken inline when given,
// otherwise Assets and LookbackDays select them from the history store.
type RunRequest struct {
	config.Profile
	Prices *universe.PriceTable `json:"prices,omitempty"`
	Save   bool                 `json:"save,omitempty"`
}

// RunResponse wraps a result with its archive ID.
type RunResponse struct {
	RunID  string               `json:"run_id,omitempty"`
	Result *optimization.Result `json:"result"`
}

// BatchRequest is the body of POST /optimizer/batch. Every run shares one price matrix.
type BatchRequest struct {
	Prices       *universe.PriceTable `json:"prices,omitempty"`
	Assets       []string             `json:"assets,omitempty"`
	LookbackDays int                  `json:"lookback_days,omitempty"`
	Runs         []config.Profile     `json:"runs"`
	Parallelism  int                  `json:"parallelism,omitempty"`
}

// BatchItem is one entry of the batch response.
type BatchItem struct {
	Label  string               `json:"label"`
	Result *optimization.Result `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
	Kind   string               `json:"kind,omitempty"`
}

// HandleGetStatus returns the defaults runs start from and the configured profiles.
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	names := make([]string, len(h.profiles))
	for i, p := range h.profiles {
		names[i] = p.Name
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"risk_free_rate":    h.base.RiskFreeRate,
		"periods_per_year":  h.base.Returns.PeriodsPerYear,
		"objective":         h.base.Objective,
		"shrinkage_target":  h.base.Covariance.Target,
		"return_method":     h.base.Returns.Method,
		"weight_cutoff":     h.base.Clean.Cutoff,
		"weight_decimals":   h.base.Clean.Decimals,
		"budget":            h.base.Budget,
		"allocation_method": h.base.AllocationMethod,
		"profiles":          names,
		"history_enabled":   h.history != nil,
		"archive_enabled":   h.runStore != nil,
	})
}

// HandleRun runs the pipeline once.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	pm, err := h.loadPrices(r.Context(), req.Prices, req.Assets, req.LookbackDays)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	profile := req.Profile
	profile.Assets = pm.Assets
	if err := profile.Validate(); err != nil {
		h.writeDomainError(w, &domain.ValidationError{Field: "settings", Message: err.Error()})
		return
	}

	result, err := h.service.Optimize(r.Context(), pm, profile.Settings(h.base))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := RunResponse{Result: result}
	if req.Save && h.runStore != nil {
		id, err := h.runStore.Save(r.Context(), result)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to archive run")
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.RunID = id
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleBatch runs several settings against one price matrix concurrently.
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Runs) == 0 {
		h.writeError(w, http.StatusBadRequest, "runs must not be empty")
		return
	}

	pm, err := h.loadPrices(r.Context(), req.Prices, req.Assets, req.LookbackDays)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	batch := make([]optimization.Settings, len(req.Runs))
	for i, p := range req.Runs {
		if p.Name == "" {
			p.Name = fmt.Sprintf("run-%d", i+1)
		}
		p.Assets = pm.Assets
		if err := p.Validate(); err != nil {
			h.writeDomainError(w, &domain.ValidationError{Field: fmt.Sprintf("runs[%d]", i), Message: err.Error()})
			return
		}
		batch[i] = p.Settings(h.base)
	}

	parallelism := req.Parallelism
	if parallelism <= 0 || parallelism > h.maxParallel {
		parallelism = h.maxParallel
	}

	outcomes, err := h.service.OptimizeBatch(r.Context(), pm, batch, parallelism)
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	items := make([]BatchItem, len(outcomes))
	for i, o := range outcomes {
		items[i] = BatchItem{Label: o.Settings.Label, Result: o.Result}
		if o.Err != nil {
			items[i].Error = o.Err.Error()
			items[i].Kind = domain.ErrorKind(o.Err)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"results": items})
}

// HandleListProfiles returns the configured profiles.
func (h *Handler) HandleListProfiles(w http.ResponseWriter, r *http.Request) {
	list := h.profiles
	if list == nil {
		list = []config.Profile{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": list})
}

// HandleRunProfile runs one configured profile against stored history and archives it.
func (h *Handler) HandleRunProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	profile := config.FindProfile(h.profiles, name)
	if profile == nil {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown profile %q", name))
		return
	}
	if h.runner == nil {
		h.writeError(w, http.StatusServiceUnavailable, "profile runs need the history store")
		return
	}

	outcome, err := h.runner.Run(r.Context(), *profile)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RunResponse{RunID: outcome.RunID, Result: outcome.Result})
}

// HandleListRuns returns archived runs, newest first.
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runStore == nil {
		h.writeError(w, http.StatusServiceUnavailable, "run archive disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = v
	}

	summaries, err := h.runStore.List(r.Context(), r.URL.Query().Get("label"), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  summaries,
		"count": len(summaries),
	})
}

// HandleGetRun returns one archived run.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.runStore == nil {
		h.writeError(w, http.StatusServiceUnavailable, "run archive disabled")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := h.runStore.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		return
	}

	h.writeJSON(w, http.StatusOK, run)
}

func (h *Handler) loadPrices(ctx context.Context, table *universe.PriceTable, assets []string, lookbackDays int) (domain.PriceMatrix, error) {
	if table != nil {
		pm, err := table.Matrix()
		if err != nil {
			return domain.PriceMatrix{}, err
		}
		if len(assets) > 0 {
			return pm.Subset(assets)
		}
		return pm, nil
	}
	if h.history == nil {
		return domain.PriceMatrix{}, &domain.ValidationError{Field: "prices", Message: "prices are required when the history store is disabled"}
	}
	if len(assets) == 0 {
		return domain.PriceMatrix{}, &domain.ValidationError{Field: "assets", Message: "assets or prices are required"}
	}
	return h.history.GetPriceMatrix(ctx, assets, lookbackDays)
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
	var (
		infeasible *domain.InfeasibleError
		tooSmall   *domain.BudgetTooSmallError
		validation *domain.ValidationError
	)
	switch {
	case errors.As(err, &validation):
		body["field"] = validation.Field
	case errors.As(err, &infeasible):
		body["constraint"] = infeasible.Constraint
	case errors.As(err, &tooSmall):
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
