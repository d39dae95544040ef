package outcome

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/internal/policy"
	"github.com/wonny/argus/pkg/logger"
	"github.com/wonny/argus/pkg/metrics"
)

// fakeStates serves prepared unlabeled states and records outcomes
type fakeStates struct {
	contracts.ReplayStateRepository

	states       []*contracts.ReplayState
	outcomes     map[string]contracts.SampleOutcome
	matureBefore time.Time
}

func (f *fakeStates) ListUnlabeled(_ context.Context, symbol string, matureBefore time.Time, limit int) ([]*contracts.ReplayState, error) {
	f.matureBefore = matureBefore
	var out []*contracts.ReplayState
	for _, s := range f.states {
		if symbol != "" && s.Symbol != symbol {
			continue
		}
		if s.AsOf.After(matureBefore) || s.Outcome != nil {
			continue
		}
		out = append(out, s)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStates) SetOutcome(_ context.Context, id string, outcome contracts.SampleOutcome) error {
	if _, ok := f.outcomes[id]; ok {
		return contracts.ErrOutcomeImmutable
	}
	f.outcomes[id] = outcome
	return nil
}

// fakeCandles serves a fixed forward path
type fakeCandles struct {
	contracts.CandleStore

	forward []contracts.Candle
}

func (f *fakeCandles) GetAfter(_ context.Context, _, _ string, _ contracts.Timeframe, after time.Time, limit int) ([]contracts.Candle, error) {
	var out []contracts.Candle
	for _, c := range f.forward {
		if c.Time.After(after) {
			out = append(out, c)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

var testAsOf = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func testPolicy() *policy.Evaluation {
	pol := policy.Default()
	pol.Horizons = []contracts.Horizon{{
		Name:              "medium",
		Maturation:        8 * time.Hour,
		ForwardCandles:    3,
		Resolution:        contracts.Timeframe1h,
		NoiseThresholdPct: 0.5,
	}}
	return pol
}

func forwardCloses(closes ...float64) []contracts.Candle {
	candles := make([]contracts.Candle, 0, len(closes))
	for i, c := range closes {
		candles = append(candles, contracts.Candle{
			Time:  testAsOf.Add(time.Duration(i+1) * time.Hour),
			Open:  c, High: c, Low: c, Close: c,
		})
	}
	return candles
}

func pendingState(bias contracts.Bias, entry float64) *contracts.ReplayState {
	return &contracts.ReplayState{
		ID:       "state-1",
		BatchID:  "batch-1",
		Symbol:   "BTCUSDT",
		AsOf:     testAsOf,
		Price:    entry,
		Decision: contracts.DecisionResult{Bias: bias},
		Status:   contracts.SampleCompleted,
	}
}

func newTestLabeler(states *fakeStates, candles *fakeCandles) *Labeler {
	l := NewLabeler(states, candles, testPolicy(), metrics.NewFor(prometheus.NewRegistry()), "bybit", logger.NewNop())
	l.now = func() time.Time { return testAsOf.Add(24 * time.Hour) }
	return l
}

// LONG at 50000 with forward closes 50200, 50800, 50100: the window
// ends +0.2% from entry, inside the ±0.5% noise band, so the peak at
// 50800 does not rescue the call.
func TestLabel_NoiseDespiteIntraWindowPeak(t *testing.T) {
	states := &fakeStates{
		states:   []*contracts.ReplayState{pendingState(contracts.BiasLong, 50000)},
		outcomes: map[string]contracts.SampleOutcome{},
	}
	candles := &fakeCandles{forward: forwardCloses(50200, 50800, 50100)}

	stats, err := newTestLabeler(states, candles).LabelPending(context.Background(), "medium", "BTCUSDT", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Labeled)

	outcome := states.outcomes["state-1"]
	assert.Equal(t, contracts.LabelNoise, outcome.Label)
	assert.InDelta(t, 0.2, outcome.MovePct, 1e-9)
	assert.Equal(t, "medium", outcome.Horizon)
	assert.Equal(t, 50100.0, outcome.Price)
}

func TestLabel_ContinuationAndReversal(t *testing.T) {
	tests := []struct {
		name   string
		bias   contracts.Bias
		closes []float64
		want   contracts.OutcomeLabel
	}{
		{"long with the move", contracts.BiasLong, []float64{50500, 51000, 51500}, contracts.LabelContinuation},
		{"long against the move", contracts.BiasLong, []float64{49500, 49200, 48900}, contracts.LabelReversal},
		{"short with the move", contracts.BiasShort, []float64{49500, 49200, 48900}, contracts.LabelContinuation},
		{"short against the move", contracts.BiasShort, []float64{50500, 51000, 51500}, contracts.LabelReversal},
		{"wait in flat market", contracts.BiasWait, []float64{50050, 50100, 50080}, contracts.LabelNoise},
		{"wait in moving market", contracts.BiasWait, []float64{50500, 51000, 51500}, contracts.LabelContinuation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			states := &fakeStates{
				states:   []*contracts.ReplayState{pendingState(tt.bias, 50000)},
				outcomes: map[string]contracts.SampleOutcome{},
			}
			candles := &fakeCandles{forward: forwardCloses(tt.closes...)}

			stats, err := newTestLabeler(states, candles).LabelPending(context.Background(), "medium", "BTCUSDT", 10)
			require.NoError(t, err)
			require.Equal(t, 1, stats.Labeled)
			assert.Equal(t, tt.want, states.outcomes["state-1"].Label)
		})
	}
}

// LONG entry 100, window touches 106 high and 97 low: MFE 6%, MAE 3%.
// The same path judged as SHORT flips the excursions.
func TestLabel_Excursions(t *testing.T) {
	forward := []contracts.Candle{
		{Time: testAsOf.Add(time.Hour), Open: 100, High: 106, Low: 99, Close: 104},
		{Time: testAsOf.Add(2 * time.Hour), Open: 104, High: 105, Low: 97, Close: 98},
		{Time: testAsOf.Add(3 * time.Hour), Open: 98, High: 103, Low: 98, Close: 102},
	}

	states := &fakeStates{
		states:   []*contracts.ReplayState{pendingState(contracts.BiasLong, 100)},
		outcomes: map[string]contracts.SampleOutcome{},
	}
	_, err := newTestLabeler(states, &fakeCandles{forward: forward}).LabelPending(context.Background(), "medium", "BTCUSDT", 10)
	require.NoError(t, err)

	long := states.outcomes["state-1"]
	assert.InDelta(t, 6.0, long.MFEPct, 1e-9)
	assert.InDelta(t, 3.0, long.MAEPct, 1e-9)

	states = &fakeStates{
		states:   []*contracts.ReplayState{pendingState(contracts.BiasShort, 100)},
		outcomes: map[string]contracts.SampleOutcome{},
	}
	_, err = newTestLabeler(states, &fakeCandles{forward: forward}).LabelPending(context.Background(), "medium", "BTCUSDT", 10)
	require.NoError(t, err)

	short := states.outcomes["state-1"]
	assert.InDelta(t, 3.0, short.MFEPct, 1e-9)
	assert.InDelta(t, 6.0, short.MAEPct, 1e-9)
}

// No forward data at all (dataset edge): skip, never fail
func TestLabel_NoForwardDataSkips(t *testing.T) {
	states := &fakeStates{
		states:   []*contracts.ReplayState{pendingState(contracts.BiasLong, 50000)},
		outcomes: map[string]contracts.SampleOutcome{},
	}

	stats, err := newTestLabeler(states, &fakeCandles{}).LabelPending(context.Background(), "medium", "BTCUSDT", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Labeled)
	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, states.outcomes)
}

// A truncated window still labels on what exists
func TestLabel_PartialForwardWindow(t *testing.T) {
	states := &fakeStates{
		states:   []*contracts.ReplayState{pendingState(contracts.BiasLong, 50000)},
		outcomes: map[string]contracts.SampleOutcome{},
	}
	candles := &fakeCandles{forward: forwardCloses(50500, 51000)} // horizon wants 3

	stats, err := newTestLabeler(states, candles).LabelPending(context.Background(), "medium", "BTCUSDT", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Labeled)
	assert.Equal(t, contracts.LabelContinuation, states.outcomes["state-1"].Label)
}

func TestLabel_MaturityCutoff(t *testing.T) {
	states := &fakeStates{
		states:   []*contracts.ReplayState{pendingState(contracts.BiasLong, 50000)},
		outcomes: map[string]contracts.SampleOutcome{},
	}
	l := newTestLabeler(states, &fakeCandles{forward: forwardCloses(50500, 51000, 51500)})

	_, err := l.LabelPending(context.Background(), "medium", "BTCUSDT", 10)
	require.NoError(t, err)

	// now = asOf+24h, maturation 8h
	assert.Equal(t, testAsOf.Add(16*time.Hour), states.matureBefore)
}

func TestLabel_UnknownHorizon(t *testing.T) {
	states := &fakeStates{outcomes: map[string]contracts.SampleOutcome{}}
	_, err := newTestLabeler(states, &fakeCandles{}).LabelPending(context.Background(), "weekly", "", 10)
	assert.Error(t, err)
}
