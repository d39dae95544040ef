package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/internal/replay"
	"github.com/wonny/argus/pkg/logger"
)

// ReplayHandler handles replay batch API endpoints
// ⭐ SSOT: Replay API 핸들러는 이 구조체에서만
type ReplayHandler struct {
	orchestrator *replay.Orchestrator
	registry     contracts.BatchRegistry
	states       contracts.ReplayStateRepository
	logger       *logger.Logger
}

// NewReplayHandler creates a new replay handler
func NewReplayHandler(
	orch *replay.Orchestrator,
	registry contracts.BatchRegistry,
	states contracts.ReplayStateRepository,
	log *logger.Logger,
) *ReplayHandler {
	return &ReplayHandler{
		orchestrator: orch,
		registry:     registry,
		states:       states,
		logger:       log,
	}
}

// createBatchRequest is the CreateBatch request body
type createBatchRequest struct {
	Symbol     string `json:"symbol"`
	Start      string `json:"start"` // RFC3339
	End        string `json:"end"`   // RFC3339
	Step       string `json:"step"`  // Go duration, e.g. "4h"
	MaxSamples int    `json:"max_samples"`
	Mode       string `json:"mode"` // LOCAL | VENDOR_FALLBACK
	Run        bool   `json:"run"`  // start immediately
}

// CreateBatch creates a new replay batch
// POST /api/replay/batches
func (h *ReplayHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		respondError(w, http.StatusBadRequest, "start must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		respondError(w, http.StatusBadRequest, "end must be RFC3339")
		return
	}
	step, err := time.ParseDuration(req.Step)
	if err != nil {
		respondError(w, http.StatusBadRequest, "step must be a duration like 4h")
		return
	}

	mode := contracts.DataSourceMode(req.Mode)
	if mode == "" {
		mode = contracts.ModeLocal
	}

	batch, err := h.orchestrator.CreateBatch(ctx, replay.CreateBatchRequest{
		Symbol:     req.Symbol,
		Start:      start,
		End:        end,
		Step:       step,
		MaxSamples: req.MaxSamples,
		Mode:       mode,
	})
	if err != nil {
		if errors.Is(err, contracts.ErrValidation) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to create batch")
		respondError(w, http.StatusInternalServerError, "failed to create batch")
		return
	}

	if req.Run {
		h.runAsync(batch.ID)
	}

	respondJSON(w, http.StatusCreated, batch)
}

// RunBatch starts or resumes a batch asynchronously
// POST /api/replay/batches/:id/run
func (h *ReplayHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := mux.Vars(r)["id"]

	batch, err := h.registry.Get(ctx, batchID)
	if err != nil {
		respondBatchError(w, h.logger, err)
		return
	}
	// A persisted RUNNING batch is only conflicting when this process has
	// a live loop for it; otherwise it is an orphan the run can adopt.
	if batch.Status == contracts.BatchRunning {
		if h.orchestrator.IsRunning(batchID) {
			respondError(w, http.StatusConflict, "batch is already running")
			return
		}
	} else if !batch.Status.CanTransitionTo(contracts.BatchRunning) {
		respondError(w, http.StatusConflict, "batch is "+string(batch.Status)+", cannot run")
		return
	}

	h.runAsync(batchID)
	respondJSON(w, http.StatusAccepted, map[string]string{
		"batch_id": batchID,
		"status":   string(contracts.BatchRunning),
	})
}

// runAsync drives a batch in the background; the run loop persists all
// progress so the HTTP response does not need to wait.
func (h *ReplayHandler) runAsync(batchID string) {
	go func() {
		if _, err := h.orchestrator.Run(context.Background(), batchID); err != nil {
			h.logger.WithError(err).WithField("batch_id", batchID).Error("Batch run failed")
		}
	}()
}

// PauseBatch requests a pause at the next sample boundary
// POST /api/replay/batches/:id/pause
func (h *ReplayHandler) PauseBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := mux.Vars(r)["id"]

	if err := h.orchestrator.Pause(ctx, batchID); err != nil {
		respondBatchError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"batch_id": batchID,
		"status":   "PAUSE_REQUESTED",
	})
}

// GetBatch returns one batch with its sample progress
// GET /api/replay/batches/:id
func (h *ReplayHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := mux.Vars(r)["id"]

	batch, err := h.registry.Get(ctx, batchID)
	if err != nil {
		respondBatchError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, batch)
}

// ListBatches returns all batches, newest first
// GET /api/replay/batches
func (h *ReplayHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	batches, err := h.registry.List(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list batches")
		respondError(w, http.StatusInternalServerError, "failed to list batches")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
		"count":   len(batches),
	})
}

// GetResults returns persisted replay states for a batch
// GET /api/replay/batches/:id/results?limit=50&offset=0
func (h *ReplayHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := mux.Vars(r)["id"]

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	states, err := h.states.List(ctx, contracts.StateFilter{BatchID: batchID})
	if err != nil {
		h.logger.WithError(err).WithField("batch_id", batchID).Error("Failed to list states")
		respondError(w, http.StatusInternalServerError, "failed to list results")
		return
	}

	total := len(states)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"batch_id": batchID,
		"total":    total,
		"offset":   offset,
		"results":  states[offset:end],
	})
}

// GetFailures returns only the failed samples of a batch
// GET /api/replay/batches/:id/failures
func (h *ReplayHandler) GetFailures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := mux.Vars(r)["id"]

	batch, err := h.registry.Get(ctx, batchID)
	if err != nil {
		respondBatchError(w, h.logger, err)
		return
	}

	var failures []contracts.ReplaySample
	for _, s := range batch.Samples {
		if s.Status == contracts.SampleFailed || s.Status == contracts.SampleInsufficientData {
			failures = append(failures, s)
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"batch_id": batchID,
		"count":    len(failures),
		"failures": failures,
	})
}

// respondBatchError maps repository errors onto HTTP statuses
func respondBatchError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, contracts.ErrNotFound):
		respondError(w, http.StatusNotFound, "batch not found")
	case errors.Is(err, contracts.ErrValidation):
		respondError(w, http.StatusConflict, err.Error())
	default:
		log.WithError(err).Error("Batch operation failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// queryInt reads an integer query parameter with a default
func queryInt(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return defaultValue
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
