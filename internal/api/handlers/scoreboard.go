package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/internal/policy"
	"github.com/wonny/argus/internal/scoreboard"
	"github.com/wonny/argus/pkg/logger"
)

// ScoreboardHandler handles scoreboard and baseline API endpoints
// ⭐ SSOT: Scoreboard API 핸들러는 이 구조체에서만
type ScoreboardHandler struct {
	states     contracts.ReplayStateRepository
	baselines  contracts.BaselineRepository
	policy     *policy.Evaluation
	policyHash string
	logger     *logger.Logger
}

// NewScoreboardHandler creates a new scoreboard handler
func NewScoreboardHandler(
	states contracts.ReplayStateRepository,
	baselines contracts.BaselineRepository,
	pol *policy.Evaluation,
	policyHash string,
	log *logger.Logger,
) *ScoreboardHandler {
	return &ScoreboardHandler{
		states:     states,
		baselines:  baselines,
		policy:     pol,
		policyHash: policyHash,
		logger:     log,
	}
}

// buildReport aggregates labeled states matching the query filter
func (h *ScoreboardHandler) buildReport(r *http.Request) (*contracts.ScoreboardReport, error) {
	filter := contracts.StateFilter{
		BatchID:     r.URL.Query().Get("batch_id"),
		Symbol:      r.URL.Query().Get("symbol"),
		LabeledOnly: true,
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errors.New("from must be RFC3339")
		}
		filter.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errors.New("to must be RFC3339")
		}
		filter.To = t
	}

	states, err := h.states.List(r.Context(), filter)
	if err != nil {
		return nil, err
	}
	return scoreboard.BuildReport(states, h.policy, h.policyHash), nil
}

// GetScoreboard computes the scoreboard over labeled states
// GET /api/scoreboard?batch_id=&symbol=&from=&to=
func (h *ScoreboardHandler) GetScoreboard(w http.ResponseWriter, r *http.Request) {
	report, err := h.buildReport(r)
	if err != nil {
		if errors.Is(err, contracts.ErrPersistence) {
			h.logger.WithError(err).Error("Failed to build scoreboard")
			respondError(w, http.StatusInternalServerError, "failed to build scoreboard")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// saveBaselineRequest is the SaveBaseline request body
type saveBaselineRequest struct {
	Name string `json:"name"`
}

// SaveBaseline freezes the current scoreboard metrics under a name.
// The query filter scopes which states feed the snapshot.
// POST /api/scoreboard/baselines?batch_id=&symbol=
func (h *ScoreboardHandler) SaveBaseline(w http.ResponseWriter, r *http.Request) {
	var req saveBaselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := h.buildReport(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	baseline := &contracts.Baseline{
		Name:       req.Name,
		PolicyHash: h.policyHash,
		Metrics:    scoreboard.Metrics(report),
	}
	id, err := h.baselines.Save(r.Context(), baseline)
	if err != nil {
		if errors.Is(err, contracts.ErrValidation) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to save baseline")
		respondError(w, http.StatusInternalServerError, "failed to save baseline")
		return
	}

	baseline.ID = id
	respondJSON(w, http.StatusCreated, baseline)
}

// ListBaselines returns all saved baselines, newest first
// GET /api/scoreboard/baselines
func (h *ScoreboardHandler) ListBaselines(w http.ResponseWriter, r *http.Request) {
	baselines, err := h.baselines.List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list baselines")
		respondError(w, http.StatusInternalServerError, "failed to list baselines")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"baselines": baselines,
		"count":     len(baselines),
	})
}

// DiffBaseline compares the current scoreboard against a saved baseline
// GET /api/scoreboard/baselines/:id/diff?batch_id=&symbol=
func (h *ScoreboardHandler) DiffBaseline(w http.ResponseWriter, r *http.Request) {
	baselineID := mux.Vars(r)["id"]

	baseline, err := h.baselines.Get(r.Context(), baselineID)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			respondError(w, http.StatusNotFound, "baseline not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get baseline")
		respondError(w, http.StatusInternalServerError, "failed to get baseline")
		return
	}

	report, err := h.buildReport(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	diff := scoreboard.Diff(scoreboard.Metrics(report), baseline)
	respondJSON(w, http.StatusOK, diff)
}
