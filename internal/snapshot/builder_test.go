package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/pkg/logger"
)

// fakeStore serves an in-memory series, filtering by cutoff the way the
// real repository does.
type fakeStore struct {
	series map[string]*contracts.CandleSeries // venue|tf
	// raw bypasses the cutoff filter to simulate a buggy store
	raw bool
}

func key(venue string, tf contracts.Timeframe) string { return venue + "|" + string(tf) }

func (f *fakeStore) GetUpTo(_ context.Context, venue, symbol string, tf contracts.Timeframe, cutoff time.Time, limit int) (*contracts.CandleSeries, error) {
	src, ok := f.series[key(venue, tf)]
	if !ok {
		return &contracts.CandleSeries{Venue: venue, Symbol: symbol, Timeframe: tf}, nil
	}
	out := &contracts.CandleSeries{Venue: venue, Symbol: symbol, Timeframe: tf}
	for _, c := range src.Candles {
		if f.raw || !c.Time.After(cutoff) {
			out.Candles = append(out.Candles, c)
		}
	}
	if len(out.Candles) > limit {
		out.Candles = out.Candles[len(out.Candles)-limit:]
	}
	for _, p := range src.OpenInterest {
		if f.raw || !p.Time.After(cutoff) {
			out.OpenInterest = append(out.OpenInterest, p)
		}
	}
	for _, p := range src.Funding {
		if f.raw || !p.Time.After(cutoff) {
			out.Funding = append(out.Funding, p)
		}
	}
	for _, p := range src.TakerVolume {
		if f.raw || !p.Time.After(cutoff) {
			out.TakerVolume = append(out.TakerVolume, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAfter(_ context.Context, _, _ string, _ contracts.Timeframe, _ time.Time, _ int) ([]contracts.Candle, error) {
	return nil, nil
}

func (f *fakeStore) LatestCandleTime(_ context.Context, _, _ string, _ contracts.Timeframe) (time.Time, error) {
	return time.Time{}, nil
}

func (f *fakeStore) SaveSeries(_ context.Context, _ *contracts.CandleSeries) error { return nil }

func testLogger() *logger.Logger { return logger.NewNop() }

func hourlyCandles(start time.Time, closes ...float64) []contracts.Candle {
	candles := make([]contracts.Candle, 0, len(closes))
	for i, close := range closes {
		candles = append(candles, contracts.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   close,
			High:   close + 10,
			Low:    close - 10,
			Close:  close,
			Volume: 100,
		})
	}
	return candles
}

func baseRequest() Request {
	return Request{
		Symbol:           "BTCUSDT",
		AsOf:             time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
		Venues:           []string{"bybit"},
		Timeframes:       []contracts.Timeframe{contracts.Timeframe1h},
		PrimaryTimeframe: contracts.Timeframe1h,
		Window:           map[contracts.Timeframe]int{contracts.Timeframe1h: 50},
		HistoryBars:      50,
	}
}

// Candles at or after the as-of instant must never reach the snapshot.
// The marker candle sits exactly one interval before as-of alignment —
// it is still open at 12:30 and must be excluded.
func TestBuild_ExcludesUnclosedCandles(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{series: map[string]*contracts.CandleSeries{
		key("bybit", contracts.Timeframe1h): {
			// closes: last fully closed candle opens 11:00; the 12:00
			// candle (open at as-of alignment) is a marker that must
			// be filtered by the cutoff.
			Candles: hourlyCandles(start,
				50000, 50100, 50200, 50300, 50400, 50500, 50600,
				50700, 50800, 50900, 51000, 51100, 999999),
		},
	}}

	snap, err := NewBuilder(store, testLogger()).Build(context.Background(), baseRequest())
	require.NoError(t, err)

	sum, ok := snap.Summary("bybit", contracts.Timeframe1h)
	require.True(t, ok)
	assert.Equal(t, 51100.0, sum.Price, "marker candle leaked into the snapshot")

	for _, bar := range snap.History {
		assert.True(t, bar.Time.Before(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
			"history bar %v is not closed at as-of", bar.Time)
	}
}

func TestBuild_LookaheadGuard(t *testing.T) {
	asOf := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	store := &fakeStore{
		raw: true, // broken store: ignores the cutoff
		series: map[string]*contracts.CandleSeries{
			key("bybit", contracts.Timeframe1h): {
				Candles: hourlyCandles(asOf.Add(time.Hour), 50000, 50100),
			},
		},
	}

	_, err := NewBuilder(store, testLogger()).Build(context.Background(), baseRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrLookahead), "got %v", err)
}

func TestBuild_SingleCandleHasZeroChange(t *testing.T) {
	store := &fakeStore{series: map[string]*contracts.CandleSeries{
		key("bybit", contracts.Timeframe1h): {
			Candles: hourlyCandles(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), 50000),
		},
	}}

	snap, err := NewBuilder(store, testLogger()).Build(context.Background(), baseRequest())
	require.NoError(t, err)

	sum, _ := snap.Summary("bybit", contracts.Timeframe1h)
	assert.Equal(t, 0.0, sum.PriceChangePct)
	assert.Equal(t, 50000.0, sum.Price)
}

// Price change is measured against the previous candle, not the first
// candle of the window.
func TestBuild_PriceChangeVsPreviousCandle(t *testing.T) {
	store := &fakeStore{series: map[string]*contracts.CandleSeries{
		key("bybit", contracts.Timeframe1h): {
			Candles: hourlyCandles(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), 100, 200, 110),
		},
	}}

	snap, err := NewBuilder(store, testLogger()).Build(context.Background(), baseRequest())
	require.NoError(t, err)

	sum, _ := snap.Summary("bybit", contracts.Timeframe1h)
	assert.InDelta(t, -45.0, sum.PriceChangePct, 1e-9) // (110-200)/200
	assert.Equal(t, 110.0, sum.Price)
}

func TestBuild_EmptyTakerSeriesGivesZeroCVD(t *testing.T) {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	store := &fakeStore{series: map[string]*contracts.CandleSeries{
		key("bybit", contracts.Timeframe1h): {
			Candles: hourlyCandles(start, 50000, 50100, 50200),
		},
	}}

	snap, err := NewBuilder(store, testLogger()).Build(context.Background(), baseRequest())
	require.NoError(t, err)

	sum, _ := snap.Summary("bybit", contracts.Timeframe1h)
	assert.Equal(t, 0.0, sum.CVD)
}

func TestBuild_CVDSumsTakerDelta(t *testing.T) {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	store := &fakeStore{series: map[string]*contracts.CandleSeries{
		key("bybit", contracts.Timeframe1h): {
			Candles: hourlyCandles(start, 50000, 50100, 50200),
			TakerVolume: []contracts.TakerVolumePoint{
				{Time: start, BuyVolume: 120, SellVolume: 100},
				{Time: start.Add(time.Hour), BuyVolume: 80, SellVolume: 110},
			},
		},
	}}

	snap, err := NewBuilder(store, testLogger()).Build(context.Background(), baseRequest())
	require.NoError(t, err)

	sum, _ := snap.Summary("bybit", contracts.Timeframe1h)
	assert.InDelta(t, -10.0, sum.CVD, 1e-9) // (120-100) + (80-110)
}

func TestBuild_InsufficientData(t *testing.T) {
	store := &fakeStore{series: map[string]*contracts.CandleSeries{
		key("bybit", contracts.Timeframe1h): {
			Candles: hourlyCandles(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), 50000),
		},
	}}

	req := baseRequest()
	req.MinCandles = map[contracts.Timeframe]int{contracts.Timeframe1h: 10}

	_, err := NewBuilder(store, testLogger()).Build(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrInsufficientData), "got %v", err)
}

func TestBuild_Validation(t *testing.T) {
	b := NewBuilder(&fakeStore{}, testLogger())

	req := baseRequest()
	req.Symbol = ""
	_, err := b.Build(context.Background(), req)
	assert.True(t, errors.Is(err, contracts.ErrValidation))

	req = baseRequest()
	req.PrimaryTimeframe = "7m"
	_, err = b.Build(context.Background(), req)
	assert.True(t, errors.Is(err, contracts.ErrValidation))
}
