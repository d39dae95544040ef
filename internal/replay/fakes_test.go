package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/internal/snapshot"
	"github.com/wonny/argus/pkg/logger"
	"github.com/wonny/argus/pkg/metrics"
)

func testMetrics() *metrics.Recorder {
	return metrics.NewFor(prometheus.NewRegistry())
}

func stateKey(batchID, symbol string, asOf time.Time) string {
	return fmt.Sprintf("%s|%s|%d", batchID, symbol, asOf.Unix())
}

// memStateRepo is an in-memory contracts.ReplayStateRepository
type memStateRepo struct {
	mu    sync.Mutex
	byKey map[string]*contracts.ReplayState
	byID  map[string]*contracts.ReplayState
	seq   int
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{
		byKey: make(map[string]*contracts.ReplayState),
		byID:  make(map[string]*contracts.ReplayState),
	}
}

func (m *memStateRepo) Insert(_ context.Context, state *contracts.ReplayState) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := stateKey(state.BatchID, state.Symbol, state.AsOf)
	if existing, ok := m.byKey[key]; ok {
		return existing.ID, false, nil
	}

	m.seq++
	clone := *state
	clone.ID = fmt.Sprintf("state-%d", m.seq)
	clone.CreatedAt = time.Now().UTC()
	m.byKey[key] = &clone
	m.byID[clone.ID] = &clone
	return clone.ID, true, nil
}

func (m *memStateRepo) GetByKey(_ context.Context, batchID, symbol string, asOf time.Time) (*contracts.ReplayState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.byKey[stateKey(batchID, symbol, asOf)]; ok {
		clone := *state
		return &clone, nil
	}
	return nil, contracts.ErrNotFound
}

func (m *memStateRepo) GetByID(_ context.Context, id string) (*contracts.ReplayState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.byID[id]; ok {
		clone := *state
		return &clone, nil
	}
	return nil, contracts.ErrNotFound
}

func (m *memStateRepo) ListUnlabeled(_ context.Context, symbol string, matureBefore time.Time, limit int) ([]*contracts.ReplayState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*contracts.ReplayState
	for _, s := range m.byID {
		if s.Status != contracts.SampleCompleted || s.Outcome != nil {
			continue
		}
		if symbol != "" && s.Symbol != symbol {
			continue
		}
		if s.AsOf.After(matureBefore) {
			continue
		}
		clone := *s
		out = append(out, &clone)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStateRepo) SetOutcome(_ context.Context, id string, outcome contracts.SampleOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.byID[id]
	if !ok {
		return contracts.ErrNotFound
	}
	if state.Outcome != nil {
		return contracts.ErrOutcomeImmutable
	}
	state.Outcome = &outcome
	return nil
}

func (m *memStateRepo) List(_ context.Context, filter contracts.StateFilter) ([]*contracts.ReplayState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*contracts.ReplayState
	for _, s := range m.byID {
		if filter.BatchID != "" && s.BatchID != filter.BatchID {
			continue
		}
		if filter.Symbol != "" && s.Symbol != filter.Symbol {
			continue
		}
		if filter.LabeledOnly && s.Outcome == nil {
			continue
		}
		clone := *s
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memStateRepo) LabelProgress(_ context.Context, batchID, symbol string) (contracts.LabelProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var p contracts.LabelProgress
	for _, s := range m.byID {
		if batchID != "" && s.BatchID != batchID {
			continue
		}
		if symbol != "" && s.Symbol != symbol {
			continue
		}
		if s.Status != contracts.SampleCompleted {
			continue
		}
		p.Total++
		if s.Outcome != nil {
			p.Labeled++
		}
	}
	p.Unlabeled = p.Total - p.Labeled
	return p, nil
}

// fakeBuilder returns a canned snapshot or a scripted error
type fakeBuilder struct {
	mu    sync.Mutex
	calls int
	err   error
	snap  *contracts.DecisionSnapshot
}

func (f *fakeBuilder) Build(_ context.Context, req snapshot.Request) (*contracts.DecisionSnapshot, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.snap != nil {
		return f.snap, nil
	}
	return &contracts.DecisionSnapshot{
		Symbol:           req.Symbol,
		AsOf:             req.AsOf,
		PrimaryTimeframe: req.PrimaryTimeframe,
		Summaries: map[string]map[contracts.Timeframe]contracts.VenueTimeframeSummary{
			"bybit": {
				req.PrimaryTimeframe: {
					Venue:     "bybit",
					Timeframe: req.PrimaryTimeframe,
					Price:     50000,
				},
			},
		},
		History: []contracts.RollingBar{{Close: 50000}},
	}, nil
}

// fakeEngine returns a fixed decision and counts evaluations
type fakeEngine struct {
	mu    sync.Mutex
	calls int
	bias  contracts.Bias
}

func (f *fakeEngine) Evaluate(_ context.Context, _ *contracts.DecisionSnapshot) (*contracts.DecisionResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	bias := f.bias
	if bias == "" {
		bias = contracts.BiasLong
	}
	return &contracts.DecisionResult{
		Bias:          bias,
		Confidence:    7.0,
		Regime:        contracts.Regime{Type: "TREND", Subtype: "UP"},
		Scenario:      "trend-continuation",
		ConfigVersion: "test-v1",
	}, nil
}

func (f *fakeEngine) ConfigVersion() string { return "test-v1" }

func (f *fakeEngine) evaluations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// scriptedExecutor implements SampleExecutor with per-instant scripts
type scriptedExecutor struct {
	mu sync.Mutex
	// script returns the error for the nth attempt (1-based) at an instant
	script    func(asOf time.Time, attempt int) error
	onExecute func(asOf time.Time)
	attempts  map[int64]int
	failures  int
	seq       int
}

func newScriptedExecutor(script func(asOf time.Time, attempt int) error) *scriptedExecutor {
	return &scriptedExecutor{script: script, attempts: make(map[int64]int)}
}

func (f *scriptedExecutor) Execute(_ context.Context, batchID, symbol string, asOf time.Time) (*contracts.ReplayState, bool, error) {
	f.mu.Lock()
	f.attempts[asOf.Unix()]++
	attempt := f.attempts[asOf.Unix()]
	f.seq++
	id := fmt.Sprintf("state-%d", f.seq)
	hook := f.onExecute
	f.mu.Unlock()

	if hook != nil {
		hook(asOf)
	}
	if f.script != nil {
		if err := f.script(asOf, attempt); err != nil {
			return nil, false, err
		}
	}
	return &contracts.ReplayState{
		ID:      id,
		BatchID: batchID,
		Symbol:  symbol,
		AsOf:    asOf,
		Status:  contracts.SampleCompleted,
	}, true, nil
}

func (f *scriptedExecutor) RecordFailure(_ context.Context, _, _ string, _ time.Time, status contracts.SampleStatus, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
	f.seq++
	return fmt.Sprintf("state-%d", f.seq), nil
}

func (f *scriptedExecutor) attemptsFor(asOf time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[asOf.Unix()]
}

// fakeSyncer records backfill calls
type fakeSyncer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSyncer) SyncSymbol(_ context.Context, _ string, _ contracts.Timeframe, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 10, nil
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeLabeler records auto-label triggers
type fakeLabeler struct {
	mu      sync.Mutex
	calls   int
	horizon string
}

func (f *fakeLabeler) LabelPending(_ context.Context, horizon, _ string, limit int) (contracts.LabelStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.horizon = horizon
	return contracts.LabelStats{Labeled: limit}, nil
}

func nopLogger() *logger.Logger { return logger.NewNop() }
