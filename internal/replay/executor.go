package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/internal/snapshot"
	"github.com/wonny/argus/pkg/logger"
	"github.com/wonny/argus/pkg/metrics"
)

// SnapshotBuilder is what the executor needs from the snapshot layer
type SnapshotBuilder interface {
	Build(ctx context.Context, req snapshot.Request) (*contracts.DecisionSnapshot, error)
}

// ExecutorConfig fixes the snapshot shape for every sample in a run
type ExecutorConfig struct {
	Venues           []string
	Timeframes       []contracts.Timeframe
	PrimaryTimeframe contracts.Timeframe
	Window           map[contracts.Timeframe]int
	MinCandles       map[contracts.Timeframe]int
	HistoryBars      int
}

// DefaultExecutorConfig returns the standard single-venue setup.
// MinCandles는 지표 워밍업에 필요한 최소 이력 — 이보다 얇으면 샘플 포기.
func DefaultExecutorConfig(venue string) ExecutorConfig {
	return ExecutorConfig{
		Venues: []string{venue},
		Timeframes: []contracts.Timeframe{
			contracts.Timeframe5m, contracts.Timeframe1h,
			contracts.Timeframe4h, contracts.Timeframe1d,
		},
		PrimaryTimeframe: contracts.Timeframe4h,
		Window: map[contracts.Timeframe]int{
			contracts.Timeframe5m: 200,
			contracts.Timeframe1h: 168,
			contracts.Timeframe4h: 120,
			contracts.Timeframe1d: 60,
		},
		MinCandles: map[contracts.Timeframe]int{
			contracts.Timeframe5m: 150,
			contracts.Timeframe1h: 120,
			contracts.Timeframe4h: 84,
			contracts.Timeframe1d: 30,
		},
		HistoryBars: 60,
	}
}

// Executor runs one replay sample end to end: snapshot → decision →
// persisted state.
// ⭐ SSOT: 샘플 실행 파이프라인은 여기서만
type Executor struct {
	builder SnapshotBuilder
	engine  contracts.DecisionEngine
	states  contracts.ReplayStateRepository
	metrics *metrics.Recorder
	config  ExecutorConfig
	logger  *logger.Logger
}

// NewExecutor creates a new sample executor
func NewExecutor(
	builder SnapshotBuilder,
	engine contracts.DecisionEngine,
	states contracts.ReplayStateRepository,
	rec *metrics.Recorder,
	cfg ExecutorConfig,
	log *logger.Logger,
) *Executor {
	return &Executor{
		builder: builder,
		engine:  engine,
		states:  states,
		metrics: rec,
		config:  cfg,
		logger:  log.WithField("module", "sample_executor"),
	}
}

// Execute runs one sample. When the idempotency key already has a
// state, that state comes back untouched with executed=false — resumed
// and re-run batches never recompute finished work.
//
// Transient failures (rate limit, persistence) are returned without
// writing anything; the orchestrator owns retries and failure records.
func (e *Executor) Execute(ctx context.Context, batchID, symbol string, asOf time.Time) (state *contracts.ReplayState, executed bool, err error) {
	existing, err := e.states.GetByKey(ctx, batchID, symbol, asOf)
	if err == nil {
		e.metrics.RecordSample(symbol, "skipped")
		return existing, false, nil
	}
	if !errors.Is(err, contracts.ErrNotFound) {
		return nil, false, fmt.Errorf("idempotency check: %w", err)
	}

	started := time.Now()

	snap, err := e.builder.Build(ctx, snapshot.Request{
		Symbol:           symbol,
		AsOf:             asOf,
		Venues:           e.config.Venues,
		Timeframes:       e.config.Timeframes,
		PrimaryTimeframe: e.config.PrimaryTimeframe,
		Window:           e.config.Window,
		MinCandles:       e.config.MinCandles,
		HistoryBars:      e.config.HistoryBars,
	})
	if err != nil {
		return nil, false, err
	}

	decision, err := e.engine.Evaluate(ctx, snap)
	if err != nil {
		return nil, false, fmt.Errorf("evaluate snapshot: %w", err)
	}

	state = &contracts.ReplayState{
		BatchID:       batchID,
		Symbol:        symbol,
		AsOf:          asOf,
		Price:         snap.PrimaryPrice(),
		Decision:      *decision,
		ConfigVersion: e.engine.ConfigVersion(),
		Status:        contracts.SampleCompleted,
	}

	id, inserted, err := e.states.Insert(ctx, state)
	if err != nil {
		return nil, false, fmt.Errorf("persist state: %w", err)
	}
	state.ID = id
	if !inserted {
		// Lost an insert race; the stored row is authoritative
		stored, err := e.states.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		e.metrics.RecordSample(symbol, "skipped")
		return stored, false, nil
	}

	e.metrics.RecordSample(symbol, "completed")
	e.metrics.RecordSampleDuration(symbol, time.Since(started).Seconds())
	e.logger.WithFields(map[string]interface{}{
		"batch_id": batchID,
		"symbol":   symbol,
		"as_of":    asOf.Format(time.RFC3339),
		"bias":     string(decision.Bias),
	}).Debug("Sample executed")
	return state, true, nil
}

// RecordFailure persists a terminal failed state for a sample the
// orchestrator has given up on. 실패도 기록해야 재실행 시 건너뛴다.
func (e *Executor) RecordFailure(ctx context.Context, batchID, symbol string, asOf time.Time, status contracts.SampleStatus, message string) (string, error) {
	if status != contracts.SampleFailed && status != contracts.SampleInsufficientData {
		return "", fmt.Errorf("%w: %s is not a failure status", contracts.ErrValidation, status)
	}

	id, _, err := e.states.Insert(ctx, &contracts.ReplayState{
		BatchID:      batchID,
		Symbol:       symbol,
		AsOf:         asOf,
		Status:       status,
		ErrorMessage: message,
	})
	if err != nil {
		return "", fmt.Errorf("persist failure: %w", err)
	}

	e.metrics.RecordSample(symbol, "failed")
	return id, nil
}
