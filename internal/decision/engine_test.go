package decision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/pkg/logger"
)

func snapshotWith(change, cvd float64) *contracts.DecisionSnapshot {
	return &contracts.DecisionSnapshot{
		Symbol:           "BTCUSDT",
		AsOf:             time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		PrimaryTimeframe: contracts.Timeframe4h,
		Summaries: map[string]map[contracts.Timeframe]contracts.VenueTimeframeSummary{
			"bybit": {
				contracts.Timeframe4h: {
					Venue:          "bybit",
					Timeframe:      contracts.Timeframe4h,
					Price:          50000,
					PriceChangePct: change,
					CVD:            cvd,
				},
			},
		},
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	engine := NewEngine(logger.NewNop())
	snap := snapshotWith(2.5, 500)

	first, err := engine.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	second, err := engine.Evaluate(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, first.Bias, second.Bias)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Scores, second.Scores)
}

func TestEvaluate_DirectionalCalls(t *testing.T) {
	engine := NewEngine(logger.NewNop())

	up, err := engine.Evaluate(context.Background(), snapshotWith(2.5, 500))
	require.NoError(t, err)
	assert.Equal(t, contracts.BiasLong, up.Bias)
	assert.Greater(t, up.Confidence, 0.0)
	assert.LessOrEqual(t, up.Confidence, 10.0)

	down, err := engine.Evaluate(context.Background(), snapshotWith(-2.5, -500))
	require.NoError(t, err)
	assert.Equal(t, contracts.BiasShort, down.Bias)
}

func TestEvaluate_FlatMarketWaits(t *testing.T) {
	engine := NewEngine(logger.NewNop())

	flat, err := engine.Evaluate(context.Background(), snapshotWith(0.05, 0))
	require.NoError(t, err)
	assert.Equal(t, contracts.BiasWait, flat.Bias)
}

func TestEvaluate_TagsConfigVersion(t *testing.T) {
	engine := NewEngine(logger.NewNop())

	res, err := engine.Evaluate(context.Background(), snapshotWith(2.5, 500))
	require.NoError(t, err)
	assert.Equal(t, engine.ConfigVersion(), res.ConfigVersion)
	assert.NotEmpty(t, res.ConfigVersion)
}

func TestEvaluate_EmptySnapshotFails(t *testing.T) {
	engine := NewEngine(logger.NewNop())

	_, err := engine.Evaluate(context.Background(), &contracts.DecisionSnapshot{})
	assert.Error(t, err)
}
