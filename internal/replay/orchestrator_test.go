package replay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/argus/internal/contracts"
)

func fastConfig() OrchestratorConfig {
	cfg := DefaultOrchestratorConfig()
	cfg.VendorCallDelay = 0
	cfg.RateLimitCooldown = time.Millisecond
	cfg.MaxSampleRetries = 2
	cfg.SyncTimeframes = []contracts.Timeframe{contracts.Timeframe4h}
	return cfg
}

func newTestOrchestrator(exec SampleExecutor, cfg OrchestratorConfig) (*Orchestrator, *MemoryRegistry) {
	registry := NewMemoryRegistry()
	o := NewOrchestrator(exec, registry, nil, nil, nil, testMetrics(), cfg, nopLogger())
	return o, registry
}

func hourlyBatchRequest(samples int) CreateBatchRequest {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return CreateBatchRequest{
		Symbol: "BTCUSDT",
		Start:  start,
		End:    start.Add(time.Duration(samples-1) * time.Hour),
		Step:   time.Hour,
		Mode:   contracts.ModeLocal,
	}
}

func TestCreateBatch(t *testing.T) {
	o, _ := newTestOrchestrator(newScriptedExecutor(nil), fastConfig())

	batch, err := o.CreateBatch(context.Background(), hourlyBatchRequest(5))
	require.NoError(t, err)
	assert.Equal(t, contracts.BatchPending, batch.Status)
	assert.Len(t, batch.Samples, 5)
	for _, s := range batch.Samples {
		assert.Equal(t, contracts.SamplePending, s.Status)
	}
}

func TestCreateBatch_MaxSamplesCap(t *testing.T) {
	o, _ := newTestOrchestrator(newScriptedExecutor(nil), fastConfig())

	req := hourlyBatchRequest(100)
	req.MaxSamples = 10
	batch, err := o.CreateBatch(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, batch.Samples, 10)
}

func TestCreateBatch_Validation(t *testing.T) {
	o, _ := newTestOrchestrator(newScriptedExecutor(nil), fastConfig())

	bad := hourlyBatchRequest(5)
	bad.Symbol = ""
	_, err := o.CreateBatch(context.Background(), bad)
	assert.True(t, errors.Is(err, contracts.ErrValidation))

	bad = hourlyBatchRequest(5)
	bad.Step = 0
	_, err = o.CreateBatch(context.Background(), bad)
	assert.True(t, errors.Is(err, contracts.ErrValidation))

	bad = hourlyBatchRequest(5)
	bad.End = bad.Start.Add(-time.Hour)
	_, err = o.CreateBatch(context.Background(), bad)
	assert.True(t, errors.Is(err, contracts.ErrValidation))

	bad = hourlyBatchRequest(5)
	bad.Mode = "STREAMING"
	_, err = o.CreateBatch(context.Background(), bad)
	assert.True(t, errors.Is(err, contracts.ErrValidation))
}

func TestRun_AllSamplesComplete(t *testing.T) {
	o, _ := newTestOrchestrator(newScriptedExecutor(nil), fastConfig())

	batch, err := o.CreateBatch(context.Background(), hourlyBatchRequest(4))
	require.NoError(t, err)

	done, err := o.Run(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.BatchCompleted, done.Status)
	assert.Equal(t, 4, done.Completed)
	assert.Equal(t, 0, done.Failed)
}

// Partial failure still completes the batch; FAILED is reserved for
// zero completions.
func TestRun_CompletionRule(t *testing.T) {
	failFirst := func(asOf time.Time, _ int) error {
		if asOf.Hour() == 0 {
			return fmt.Errorf("%w: no candles", contracts.ErrInsufficientData)
		}
		return nil
	}
	o, _ := newTestOrchestrator(newScriptedExecutor(failFirst), fastConfig())

	batch, err := o.CreateBatch(context.Background(), hourlyBatchRequest(3))
	require.NoError(t, err)

	done, err := o.Run(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.BatchCompleted, done.Status)
	assert.Equal(t, 2, done.Completed)
	assert.Equal(t, 1, done.Failed)
	assert.Equal(t, contracts.SampleInsufficientData, done.Samples[0].Status)
}

func TestRun_AllFailedIsFailed(t *testing.T) {
	alwaysFail := func(time.Time, int) error { return errors.New("boom") }
	o, _ := newTestOrchestrator(newScriptedExecutor(alwaysFail), fastConfig())

	batch, err := o.CreateBatch(context.Background(), hourlyBatchRequest(3))
	require.NoError(t, err)

	done, err := o.Run(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.BatchFailed, done.Status)
	assert.Equal(t, 0, done.Completed)
	assert.NotEmpty(t, done.Error)
}

func TestRun_TerminalBatchRejected(t *testing.T) {
	o, _ := newTestOrchestrator(newScriptedExecutor(nil), fastConfig())

	batch, err := o.CreateBatch(context.Background(), hourlyBatchRequest(2))
	require.NoError(t, err)
	_, err = o.Run(context.Background(), batch.ID)
	require.NoError(t, err)

	_, err = o.Run(context.Background(), batch.ID)
	assert.True(t, errors.Is(err, contracts.ErrValidation), "completed batch must not rerun")
}

func TestRun_RateLimitRetriesThenFails(t *testing.T) {
	rateLimited := func(time.Time, int) error {
		return fmt.Errorf("%w: 429", contracts.ErrRateLimited)
	}
	exec := newScriptedExecutor(rateLimited)
	cfg := fastConfig()
	o, _ := newTestOrchestrator(exec, cfg)

	batch, err := o.CreateBatch(context.Background(), hourlyBatchRequest(1))
	require.NoError(t, err)

	done, err := o.Run(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.BatchFailed, done.Status)
	// initial attempt + MaxSampleRetries
	assert.Equal(t, cfg.MaxSampleRetries+1, exec.attemptsFor(batch.Start))
}

func TestRun_RateLimitRecovers(t *testing.T) {
	flaky := func(_ time.Time, attempt int) error {
		if attempt == 1 {
			return fmt.Errorf("%w: 429", contracts.ErrRateLimited)
		}
		return nil
	}
	o, _ := newTestOrchestrator(newScriptedExecutor(flaky), fastConfig())

	batch, err := o.CreateBatch(context.Background(), hourlyBatchRequest(2))
	require.NoError(t, err)

	done, err := o.Run(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.BatchCompleted, done.Status)
	assert.Equal(t, 2, done.Completed)
}

// Vendor-fallback mode backfills once on thin data, then retries the sample
func TestRun_InsufficientDataSyncRetry(t *testing.T) {
	thinOnce := func(_ time.Time, attempt int) error {
		if attempt == 1 {
			return fmt.Errorf("%w: 10 candles", contracts.ErrInsufficientData)
		}
		return nil
	}
	exec := newScriptedExecutor(thinOnce)
	syncer := &fakeSyncer{}
	registry := NewMemoryRegistry()
	o := NewOrchestrator(exec, registry, syncer, nil, nil, testMetrics(), fastConfig(), nopLogger())

	req := hourlyBatchRequest(1)
	req.Mode = contracts.ModeVendorFallback
	batch, err := o.CreateBatch(context.Background(), req)
	require.NoError(t, err)

	done, err := o.Run(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.BatchCompleted, done.Status)
	assert.Equal(t, 1, syncer.count())
}

// LOCAL mode has no vendor: thin data fails the sample immediately
func TestRun_InsufficientDataLocalMode(t *testing.T) {
	thin := func(time.Time, int) error {
		return fmt.Errorf("%w: 10 candles", contracts.ErrInsufficientData)
	}
	exec := newScriptedExecutor(thin)
	syncer := &fakeSyncer{}
	registry := NewMemoryRegistry()
	o := NewOrchestrator(exec, registry, syncer, nil, nil, testMetrics(), fastConfig(), nopLogger())

	batch, err := o.CreateBatch(context.Background(), hourlyBatchRequest(1))
	require.NoError(t, err)

	done, err := o.Run(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.SampleInsufficientData, done.Samples[0].Status)
	assert.Equal(t, 0, syncer.count())
	assert.Equal(t, 1, exec.attemptsFor(batch.Start))
}

func TestRun_PauseAndResume(t *testing.T) {
	exec := newScriptedExecutor(nil)
	o, registry := newTestOrchestrator(exec, fastConfig())

	batch, err := o.CreateBatch(context.Background(), hourlyBatchRequest(6))
	require.NoError(t, err)

	// Request the pause from inside the third sample
	executed := 0
	exec.onExecute = func(time.Time) {
		executed++
		if executed == 3 {
			require.NoError(t, o.Pause(context.Background(), batch.ID))
		}
	}

	paused, err := o.Run(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.BatchPaused, paused.Status)
	assert.Equal(t, 3, paused.Completed)

	stored, err := registry.Get(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.BatchPaused, stored.Status, "pause must be durable")

	// Resume: only the remaining samples run
	exec.onExecute = nil
	done, err := o.Run(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.BatchCompleted, done.Status)
	assert.Equal(t, 6, done.Completed)

	for _, s := range done.Samples {
		assert.Equal(t, 1, exec.attemptsFor(s.AsOf), "sample %v re-executed on resume", s.AsOf)
	}
}

func TestPause_OnlyRunningBatches(t *testing.T) {
	o, _ := newTestOrchestrator(newScriptedExecutor(nil), fastConfig())

	batch, err := o.CreateBatch(context.Background(), hourlyBatchRequest(2))
	require.NoError(t, err)

	err = o.Pause(context.Background(), batch.ID)
	assert.True(t, errors.Is(err, contracts.ErrValidation), "PENDING batch must not pause")
}

// A batch left RUNNING by a crashed process must be adoptable on
// restart: Run picks it up like a PAUSED resume, skipping finished work.
func TestRun_AdoptsOrphanedRunningBatch(t *testing.T) {
	exec := newScriptedExecutor(nil)
	o, registry := newTestOrchestrator(exec, fastConfig())

	batch, err := o.CreateBatch(context.Background(), hourlyBatchRequest(4))
	require.NoError(t, err)

	// Simulate the crash: two samples done, status stuck at RUNNING
	stored, err := registry.Get(context.Background(), batch.ID)
	require.NoError(t, err)
	stored.Status = contracts.BatchRunning
	stored.Samples[0].Status = contracts.SampleCompleted
	stored.Samples[1].Status = contracts.SampleCompleted
	stored.Recount()
	require.NoError(t, registry.Put(context.Background(), stored))

	done, err := o.Run(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.BatchCompleted, done.Status)
	assert.Equal(t, 4, done.Completed)
	assert.Equal(t, 0, exec.attemptsFor(stored.Samples[0].AsOf), "finished sample re-executed")
	assert.Equal(t, 1, exec.attemptsFor(stored.Samples[2].AsOf))
}

// Adoption is for orphans only: a batch with a live loop in this
// process still rejects a second Run.
func TestRun_RejectsBatchRunningInProcess(t *testing.T) {
	exec := newScriptedExecutor(nil)
	o, _ := newTestOrchestrator(exec, fastConfig())

	batch, err := o.CreateBatch(context.Background(), hourlyBatchRequest(3))
	require.NoError(t, err)

	exec.onExecute = func(time.Time) {
		_, err := o.Run(context.Background(), batch.ID)
		assert.True(t, errors.Is(err, contracts.ErrValidation), "concurrent run must be rejected")
	}

	_, err = o.Run(context.Background(), batch.ID)
	require.NoError(t, err)
}

func TestRun_AutoLabelTrigger(t *testing.T) {
	exec := newScriptedExecutor(nil)
	labeler := &fakeLabeler{}
	registry := NewMemoryRegistry()
	cfg := fastConfig()
	cfg.AutoLabelHorizon = "medium"
	o := NewOrchestrator(exec, registry, nil, labeler, nil, testMetrics(), cfg, nopLogger())

	batch, err := o.CreateBatch(context.Background(), hourlyBatchRequest(2))
	require.NoError(t, err)
	_, err = o.Run(context.Background(), batch.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, labeler.calls)
	assert.Equal(t, "medium", labeler.horizon)
}

// Outcomes of a live-edge batch cannot have matured yet; the completion
// trigger stays quiet and leaves those states to the periodic label job.
func TestRun_AutoLabelSkipsImmatureBatch(t *testing.T) {
	exec := newScriptedExecutor(nil)
	labeler := &fakeLabeler{}
	registry := NewMemoryRegistry()
	cfg := fastConfig()
	cfg.AutoLabelHorizon = "medium"
	o := NewOrchestrator(exec, registry, nil, labeler, nil, testMetrics(), cfg, nopLogger())

	start := time.Now().UTC().Truncate(time.Hour)
	batch, err := o.CreateBatch(context.Background(), CreateBatchRequest{
		Symbol: "BTCUSDT",
		Start:  start,
		End:    start.Add(time.Hour),
		Step:   time.Hour,
		Mode:   contracts.ModeLocal,
	})
	require.NoError(t, err)

	done, err := o.Run(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.BatchCompleted, done.Status)
	assert.Equal(t, 0, labeler.calls, "immature batch must not auto-label")
}
