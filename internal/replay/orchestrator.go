package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/internal/interval"
	"github.com/wonny/argus/pkg/logger"
	"github.com/wonny/argus/pkg/metrics"
)

// SampleExecutor is what the orchestrator needs per sample
type SampleExecutor interface {
	Execute(ctx context.Context, batchID, symbol string, asOf time.Time) (*contracts.ReplayState, bool, error)
	RecordFailure(ctx context.Context, batchID, symbol string, asOf time.Time, status contracts.SampleStatus, message string) (string, error)
}

// Backfiller fills store gaps from the vendor (vendor-fallback mode only)
type Backfiller interface {
	SyncSymbol(ctx context.Context, symbol string, tf contracts.Timeframe, until time.Time) (int, error)
}

// SchedulerControl pauses background jobs while a vendor-mode batch
// holds the shared request quota.
type SchedulerControl interface {
	PauseAll()
	ResumeAll()
}

// OrchestratorConfig tunes the batch run loop
type OrchestratorConfig struct {
	// VendorCallDelay spaces samples in vendor-fallback mode so a batch
	// stays inside the per-minute quota.
	VendorCallDelay time.Duration

	// RateLimitCooldown is the wait after a 429 before retrying a sample
	RateLimitCooldown time.Duration

	// MaxSampleRetries bounds transient-error retries per sample
	MaxSampleRetries int

	// SyncTimeframes are backfilled when a sample hits insufficient data
	SyncTimeframes []contracts.Timeframe

	// AutoLabelHorizon triggers labeling after a batch completes ("" = off)
	AutoLabelHorizon string

	// AutoLabelMaturity is the auto-label horizon's span plus maturation.
	// The trigger fires only for historical batches: the last instant
	// plus this duration must already have passed (0 = always fire).
	AutoLabelMaturity time.Duration
}

// DefaultOrchestratorConfig returns production settings
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		VendorCallDelay:   1100 * time.Millisecond,
		RateLimitCooldown: 5 * time.Second,
		MaxSampleRetries:  3,
		SyncTimeframes: []contracts.Timeframe{
			contracts.Timeframe5m, contracts.Timeframe1h,
			contracts.Timeframe4h, contracts.Timeframe1d,
		},
		AutoLabelHorizon: "medium",
		// medium horizon: 8h forward span + 8h maturation
		AutoLabelMaturity: 16 * time.Hour,
	}
}

// Orchestrator owns the replay batch lifecycle:
// PENDING→RUNNING→{COMPLETED,FAILED,PAUSED}, PAUSED→RUNNING.
// ⭐ SSOT: 배치 상태 전이는 여기서만
type Orchestrator struct {
	executor  SampleExecutor
	registry  contracts.BatchRegistry
	syncer    Backfiller
	labeler   contracts.Labeler
	scheduler SchedulerControl
	metrics   *metrics.Recorder
	config    OrchestratorConfig
	logger    *logger.Logger

	mu      sync.Mutex
	paused  map[string]bool // pause requests by batch ID
	running map[string]bool
}

// NewOrchestrator creates a new batch orchestrator. syncer, labeler and
// scheduler are optional collaborators; nil disables the behavior.
func NewOrchestrator(
	executor SampleExecutor,
	registry contracts.BatchRegistry,
	syncer Backfiller,
	labeler contracts.Labeler,
	scheduler SchedulerControl,
	rec *metrics.Recorder,
	cfg OrchestratorConfig,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		executor:  executor,
		registry:  registry,
		syncer:    syncer,
		labeler:   labeler,
		scheduler: scheduler,
		metrics:   rec,
		config:    cfg,
		logger:    log.WithField("module", "batch_orchestrator"),
		paused:    make(map[string]bool),
		running:   make(map[string]bool),
	}
}

// CreateBatchRequest describes a new replay batch
type CreateBatchRequest struct {
	Symbol     string
	Start      time.Time
	End        time.Time
	Step       time.Duration
	MaxSamples int
	Mode       contracts.DataSourceMode
}

// CreateBatch validates the request, enumerates the sample instants and
// registers the batch as PENDING. Invalid requests never reach the run
// loop.
func (o *Orchestrator) CreateBatch(ctx context.Context, req CreateBatchRequest) (*contracts.ReplayBatch, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", contracts.ErrValidation)
	}
	if req.Mode != contracts.ModeLocal && req.Mode != contracts.ModeVendorFallback {
		return nil, fmt.Errorf("%w: unknown data source mode %q", contracts.ErrValidation, req.Mode)
	}

	instants, err := interval.Enumerate(req.Start, req.End, req.Step, req.MaxSamples)
	if err != nil {
		return nil, err
	}
	if len(instants) == 0 {
		return nil, fmt.Errorf("%w: empty replay range", contracts.ErrValidation)
	}

	samples := make([]contracts.ReplaySample, 0, len(instants))
	for _, t := range instants {
		samples = append(samples, contracts.ReplaySample{AsOf: t, Status: contracts.SamplePending})
	}

	batch := &contracts.ReplayBatch{
		ID:         uuid.New().String(),
		Symbol:     req.Symbol,
		Start:      req.Start,
		End:        req.End,
		Step:       req.Step,
		MaxSamples: req.MaxSamples,
		Mode:       req.Mode,
		Status:     contracts.BatchPending,
		Samples:    samples,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := o.registry.Put(ctx, batch); err != nil {
		return nil, err
	}

	o.logger.WithFields(map[string]interface{}{
		"batch_id": batch.ID,
		"symbol":   batch.Symbol,
		"samples":  len(samples),
		"mode":     string(batch.Mode),
	}).Info("Batch created")
	return batch, nil
}

// Pause requests a pause. The run loop honors it at the next sample
// boundary — 실행 중인 샘플은 끝까지 간다.
func (o *Orchestrator) Pause(ctx context.Context, batchID string) error {
	batch, err := o.registry.Get(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status != contracts.BatchRunning {
		return fmt.Errorf("%w: batch %s is %s, only RUNNING can pause", contracts.ErrValidation, batchID, batch.Status)
	}

	o.mu.Lock()
	o.paused[batchID] = true
	o.mu.Unlock()
	return nil
}

// Run executes a PENDING batch, or resumes a PAUSED one. Terminal
// samples are never re-executed on resume.
//
// A batch persisted as RUNNING but with no live loop in this process is
// an orphan from a crashed run; Run adopts it the same way it resumes a
// PAUSED batch, so a restart can always pick up where the crash left off.
func (o *Orchestrator) Run(ctx context.Context, batchID string) (*contracts.ReplayBatch, error) {
	batch, err := o.registry.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.running[batchID] {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: batch %s already running in this process", contracts.ErrValidation, batchID)
	}
	if batch.Status == contracts.BatchRunning {
		o.logger.WithField("batch_id", batchID).Warn("Adopting orphaned RUNNING batch")
	} else if !batch.Status.CanTransitionTo(contracts.BatchRunning) {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: batch %s is %s, cannot run", contracts.ErrValidation, batchID, batch.Status)
	}
	o.running[batchID] = true
	o.paused[batchID] = false
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.running, batchID)
		o.mu.Unlock()
	}()

	batch.Status = contracts.BatchRunning
	if batch.StartedAt.IsZero() {
		batch.StartedAt = time.Now().UTC()
	}
	if err := o.registry.Put(ctx, batch); err != nil {
		return nil, err
	}

	o.metrics.BatchStarted()
	defer o.metrics.BatchFinished()

	// Vendor-mode batches own the shared request quota; background jobs
	// step aside until the batch is done.
	if batch.Mode == contracts.ModeVendorFallback && o.scheduler != nil {
		o.scheduler.PauseAll()
		defer o.scheduler.ResumeAll()
	}

	o.logger.WithFields(map[string]interface{}{
		"batch_id": batch.ID,
		"symbol":   batch.Symbol,
		"samples":  len(batch.Samples),
	}).Info("Batch run started")

	for i := range batch.Samples {
		sample := &batch.Samples[i]
		if sample.Status.Terminal() {
			continue // resume: finished work stays finished
		}

		if o.pauseRequested(batchID) || ctx.Err() != nil {
			return o.pauseBatch(batch)
		}

		o.runSample(ctx, batch, sample)
		batch.Recount()
		batch.UpdatedAt = time.Now().UTC()
		if err := o.registry.Put(context.WithoutCancel(ctx), batch); err != nil {
			o.logger.WithError(err).Error("Batch progress persist failed")
		}

		if batch.Mode == contracts.ModeVendorFallback && o.config.VendorCallDelay > 0 {
			if err := sleepCtx(ctx, o.config.VendorCallDelay); err != nil {
				return o.pauseBatch(batch)
			}
		}
	}

	batch.Recount()
	batch.Status = batch.FinalStatus()
	if batch.Status == contracts.BatchFailed {
		batch.Error = "no samples completed"
	}
	batch.UpdatedAt = time.Now().UTC()
	if err := o.registry.Put(context.WithoutCancel(ctx), batch); err != nil {
		return nil, err
	}

	o.logger.WithFields(map[string]interface{}{
		"batch_id":  batch.ID,
		"status":    string(batch.Status),
		"completed": batch.Completed,
		"failed":    batch.Failed,
	}).Info("Batch run finished")

	o.autoLabel(ctx, batch)
	return batch, nil
}

// runSample drives one sample through transient retries to a terminal status
func (o *Orchestrator) runSample(ctx context.Context, batch *contracts.ReplayBatch, sample *contracts.ReplaySample) {
	sample.Status = contracts.SampleRunning

	retries := 0
	syncedOnce := false
	for {
		state, _, err := o.executor.Execute(ctx, batch.ID, batch.Symbol, sample.AsOf)
		if err == nil {
			sample.Status = state.Status
			sample.StateID = state.ID
			sample.Error = state.ErrorMessage
			return
		}

		switch {
		case errors.Is(err, contracts.ErrRateLimited):
			retries++
			if retries > o.config.MaxSampleRetries {
				o.failSample(ctx, batch, sample, contracts.SampleFailed, err)
				return
			}
			o.logger.WithFields(map[string]interface{}{
				"batch_id": batch.ID,
				"as_of":    sample.AsOf.Format(time.RFC3339),
				"retry":    retries,
			}).Warn("Rate limited, cooling down")
			if sleepCtx(ctx, o.config.RateLimitCooldown) != nil {
				o.failSample(ctx, batch, sample, contracts.SampleFailed, err)
				return
			}

		case errors.Is(err, contracts.ErrPersistence):
			retries++
			if retries > o.config.MaxSampleRetries {
				o.failSample(ctx, batch, sample, contracts.SampleFailed, err)
				return
			}
			if sleepCtx(ctx, time.Duration(retries)*time.Second) != nil {
				o.failSample(ctx, batch, sample, contracts.SampleFailed, err)
				return
			}

		case errors.Is(err, contracts.ErrInsufficientData):
			// Dataset edge: backfill once, then give the sample one more
			// chance. LOCAL mode has no vendor to ask.
			if !syncedOnce && batch.Mode == contracts.ModeVendorFallback && o.syncer != nil {
				syncedOnce = true
				o.backfill(ctx, batch.Symbol, sample.AsOf)
				continue
			}
			o.failSample(ctx, batch, sample, contracts.SampleInsufficientData, err)
			return

		case errors.Is(err, contracts.ErrLookahead):
			// Logic defect — never swallowed quietly
			o.logger.WithError(err).WithFields(map[string]interface{}{
				"batch_id": batch.ID,
				"symbol":   batch.Symbol,
				"as_of":    sample.AsOf.Format(time.RFC3339),
			}).Error("LOOKAHEAD VIOLATION — sample aborted")
			o.failSample(ctx, batch, sample, contracts.SampleFailed, err)
			return

		default:
			o.failSample(ctx, batch, sample, contracts.SampleFailed, err)
			return
		}
	}
}

// failSample records a terminal failure both in the batch document and
// as a replay state row.
func (o *Orchestrator) failSample(ctx context.Context, batch *contracts.ReplayBatch, sample *contracts.ReplaySample, status contracts.SampleStatus, cause error) {
	sample.Status = status
	sample.Error = cause.Error()

	id, err := o.executor.RecordFailure(context.WithoutCancel(ctx), batch.ID, batch.Symbol, sample.AsOf, status, cause.Error())
	if err != nil {
		o.logger.WithError(err).Warn("Failure record persist failed")
		return
	}
	sample.StateID = id
}

// backfill syncs all configured timeframes up to the sample instant
func (o *Orchestrator) backfill(ctx context.Context, symbol string, until time.Time) {
	for _, tf := range o.config.SyncTimeframes {
		if _, err := o.syncer.SyncSymbol(ctx, symbol, tf, until); err != nil {
			o.logger.WithError(err).WithFields(map[string]interface{}{
				"symbol":    symbol,
				"timeframe": string(tf),
			}).Warn("Backfill sync failed")
		}
	}
}

// pauseBatch persists the PAUSED status and returns the batch
func (o *Orchestrator) pauseBatch(batch *contracts.ReplayBatch) (*contracts.ReplayBatch, error) {
	batch.Recount()
	batch.Status = contracts.BatchPaused
	batch.UpdatedAt = time.Now().UTC()
	if err := o.registry.Put(context.Background(), batch); err != nil {
		return nil, err
	}
	o.logger.WithField("batch_id", batch.ID).Info("Batch paused")
	return batch, nil
}

// autoLabel kicks the labeler after a finished batch (best effort).
// Live-edge batches are skipped; the periodic label job picks their
// states up once they mature.
func (o *Orchestrator) autoLabel(ctx context.Context, batch *contracts.ReplayBatch) {
	if o.labeler == nil || o.config.AutoLabelHorizon == "" || batch.Completed == 0 {
		return
	}
	if n := len(batch.Samples); n > 0 && o.config.AutoLabelMaturity > 0 {
		mature := batch.Samples[n-1].AsOf.Add(o.config.AutoLabelMaturity)
		if time.Now().UTC().Before(mature) {
			o.logger.WithFields(map[string]interface{}{
				"batch_id":  batch.ID,
				"mature_at": mature.Format(time.RFC3339),
			}).Debug("Auto-label skipped, batch not yet mature")
			return
		}
	}
	stats, err := o.labeler.LabelPending(ctx, o.config.AutoLabelHorizon, batch.Symbol, batch.Completed)
	if err != nil {
		o.logger.WithError(err).Warn("Auto-label after batch failed")
		return
	}
	o.logger.WithFields(map[string]interface{}{
		"batch_id": batch.ID,
		"labeled":  stats.Labeled,
		"skipped":  stats.Skipped,
	}).Info("Auto-label after batch completed")
}

// IsRunning reports whether this process has a live run loop for the batch
func (o *Orchestrator) IsRunning(batchID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running[batchID]
}

func (o *Orchestrator) pauseRequested(batchID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused[batchID]
}

// sleepCtx sleeps unless the context ends first
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
