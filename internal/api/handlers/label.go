package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/pkg/logger"
)

// LabelHandler handles outcome labeling API endpoints
type LabelHandler struct {
	labeler contracts.Labeler
	states  contracts.ReplayStateRepository
	logger  *logger.Logger
}

// NewLabelHandler creates a new label handler
func NewLabelHandler(labeler contracts.Labeler, states contracts.ReplayStateRepository, log *logger.Logger) *LabelHandler {
	return &LabelHandler{
		labeler: labeler,
		states:  states,
		logger:  log,
	}
}

// labelRunRequest is the Run request body
type labelRunRequest struct {
	Horizon string `json:"horizon"`
	Symbol  string `json:"symbol"`
	Limit   int    `json:"limit"`
}

// Run labels mature unlabeled states for one horizon
// POST /api/label/run
func (h *LabelHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req labelRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Horizon == "" {
		respondError(w, http.StatusBadRequest, "horizon is required")
		return
	}

	stats, err := h.labeler.LabelPending(ctx, req.Horizon, req.Symbol, req.Limit)
	if err != nil {
		if errors.Is(err, contracts.ErrValidation) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithError(err).WithField("horizon", req.Horizon).Error("Label run failed")
		respondError(w, http.StatusInternalServerError, "label run failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"horizon": req.Horizon,
		"symbol":  req.Symbol,
		"labeled": stats.Labeled,
		"skipped": stats.Skipped,
		"failed":  stats.Failed,
	})
}

// Status reports labeling coverage
// GET /api/label/status?batch_id=&symbol=
func (h *LabelHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := r.URL.Query().Get("batch_id")
	symbol := r.URL.Query().Get("symbol")

	progress, err := h.states.LabelProgress(ctx, batchID, symbol)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get label progress")
		respondError(w, http.StatusInternalServerError, "failed to get label progress")
		return
	}

	respondJSON(w, http.StatusOK, progress)
}
