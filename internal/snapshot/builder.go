package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/internal/interval"
	"github.com/wonny/argus/pkg/logger"
)

// Builder reconstructs the decision engine input as it would have
// looked at a historical instant.
// ⭐ SSOT: 과거 시점 스냅샷 생성은 여기서만 — zero-lookahead 보장 지점
type Builder struct {
	store  contracts.CandleStore
	logger *logger.Logger
}

// NewBuilder creates a new snapshot builder
func NewBuilder(store contracts.CandleStore, log *logger.Logger) *Builder {
	return &Builder{
		store:  store,
		logger: log.WithField("module", "snapshot_builder"),
	}
}

// Request describes one snapshot to build
type Request struct {
	Symbol           string
	AsOf             time.Time
	Venues           []string
	Timeframes       []contracts.Timeframe
	PrimaryTimeframe contracts.Timeframe

	// Window is the number of candles per timeframe feeding the summary
	// statistics. MinCandles rejects thin series (dataset edges).
	Window     map[contracts.Timeframe]int
	MinCandles map[contracts.Timeframe]int

	// HistoryBars bounds the primary-timeframe rolling history
	HistoryBars int
}

func (r *Request) validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol required", contracts.ErrValidation)
	}
	if r.AsOf.IsZero() {
		return fmt.Errorf("%w: as-of instant required", contracts.ErrValidation)
	}
	if len(r.Venues) == 0 || len(r.Timeframes) == 0 {
		return fmt.Errorf("%w: at least one venue and timeframe required", contracts.ErrValidation)
	}
	if !r.PrimaryTimeframe.Valid() {
		return fmt.Errorf("%w: invalid primary timeframe %q", contracts.ErrValidation, r.PrimaryTimeframe)
	}
	return nil
}

// Build assembles a DecisionSnapshot from stored data only. Every input
// timestamp is at or before the last candle closed at AsOf; any newer
// timestamp aborts the build with ErrLookahead.
func (b *Builder) Build(ctx context.Context, req Request) (*contracts.DecisionSnapshot, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	snap := &contracts.DecisionSnapshot{
		Symbol:           req.Symbol,
		AsOf:             req.AsOf,
		PrimaryTimeframe: req.PrimaryTimeframe,
		Summaries:        make(map[string]map[contracts.Timeframe]contracts.VenueTimeframeSummary),
	}

	for _, venue := range req.Venues {
		for _, tf := range req.Timeframes {
			series, err := b.fetchClosed(ctx, venue, req.Symbol, tf, req.AsOf, req.windowFor(tf))
			if err != nil {
				return nil, err
			}
			if len(series.Candles) < req.minFor(tf) {
				return nil, fmt.Errorf("%w: %s/%s %s has %d candles, need %d",
					contracts.ErrInsufficientData, venue, req.Symbol, tf, len(series.Candles), req.minFor(tf))
			}

			snapSummary := summarize(venue, tf, series)
			if snap.Summaries[venue] == nil {
				snap.Summaries[venue] = make(map[contracts.Timeframe]contracts.VenueTimeframeSummary)
			}
			snap.Summaries[venue][tf] = snapSummary

			if venue == req.Venues[0] && tf == req.PrimaryTimeframe {
				snap.History = rollingHistory(series, req.HistoryBars)
			}
		}
	}

	return snap, nil
}

// fetchClosed loads closed candles only and enforces the lookahead guard
func (b *Builder) fetchClosed(ctx context.Context, venue, symbol string, tf contracts.Timeframe, asOf time.Time, window int) (*contracts.CandleSeries, error) {
	cutoff := interval.LastClosedOpen(asOf, tf.Duration())

	series, err := b.store.GetUpTo(ctx, venue, symbol, tf, cutoff, window)
	if err != nil {
		return nil, fmt.Errorf("load %s/%s %s: %w", venue, symbol, tf, err)
	}

	// Hard guard: the store must never hand back data newer than the
	// decision instant. This firing means a logic defect, not bad input.
	if max := series.MaxTimestamp(); max.After(asOf) {
		b.logger.WithFields(map[string]interface{}{
			"symbol":    symbol,
			"venue":     venue,
			"timeframe": string(tf),
			"as_of":     asOf.Format(time.RFC3339),
			"max_ts":    max.Format(time.RFC3339),
		}).Error("Lookahead violation detected in snapshot build")
		return nil, fmt.Errorf("%w: %s/%s %s has timestamp %s after as-of %s",
			contracts.ErrLookahead, venue, symbol, tf, max.Format(time.RFC3339), asOf.Format(time.RFC3339))
	}

	return series, nil
}

func (r *Request) windowFor(tf contracts.Timeframe) int {
	if n, ok := r.Window[tf]; ok && n > 0 {
		return n
	}
	return 100
}

func (r *Request) minFor(tf contracts.Timeframe) int {
	if n, ok := r.MinCandles[tf]; ok && n > 0 {
		return n
	}
	return 1
}

// summarize folds a candle series into the fixed-shape summary.
// 부족한 병렬 시리즈는 0으로 요약된다 — 빌드 실패 사유가 아니다.
func summarize(venue string, tf contracts.Timeframe, series *contracts.CandleSeries) contracts.VenueTimeframeSummary {
	s := contracts.VenueTimeframeSummary{
		Venue:     venue,
		Timeframe: tf,
	}

	n := len(series.Candles)
	if n == 0 {
		return s
	}

	last := series.Candles[n-1]
	s.Price = last.Close
	for _, c := range series.Candles {
		s.Volume += c.Volume
	}

	// Price change is vs the previous candle, not the window start.
	// Fewer than two candles gives no change basis; report 0, not NaN.
	if n >= 2 {
		prev := series.Candles[n-2]
		if prev.Close != 0 {
			s.PriceChangePct = (last.Close - prev.Close) / prev.Close * 100
		}
	}

	if m := len(series.OpenInterest); m > 0 {
		s.OpenInterest = series.OpenInterest[m-1].Value
		if m >= 2 && series.OpenInterest[0].Value != 0 {
			s.OpenInterestChangePct = (series.OpenInterest[m-1].Value - series.OpenInterest[0].Value) / series.OpenInterest[0].Value * 100
		}
	}

	for _, p := range series.TakerVolume {
		s.CVD += p.BuyVolume - p.SellVolume
	}

	if m := len(series.Funding); m > 0 {
		var sum float64
		for _, p := range series.Funding {
			sum += p.Rate
		}
		s.AvgFundingRate = sum / float64(m)
	}

	return s
}

// rollingHistory joins the primary candles with OI and funding points.
// 각 바에는 그 바 open time 이전(포함) 가장 최근 관측치를 붙인다.
func rollingHistory(series *contracts.CandleSeries, maxBars int) []contracts.RollingBar {
	candles := series.Candles
	if maxBars > 0 && len(candles) > maxBars {
		candles = candles[len(candles)-maxBars:]
	}

	bars := make([]contracts.RollingBar, 0, len(candles))
	oi, funding := series.OpenInterest, series.Funding
	for _, c := range candles {
		bar := contracts.RollingBar{
			Time:  c.Time,
			Open:  c.Open,
			High:  c.High,
			Low:   c.Low,
			Close: c.Close,
		}
		for i := len(oi) - 1; i >= 0; i-- {
			if !oi[i].Time.After(c.Time) {
				bar.OpenInterest = oi[i].Value
				break
			}
		}
		for i := len(funding) - 1; i >= 0; i-- {
			if !funding[i].Time.After(c.Time) {
				bar.FundingRate = funding[i].Rate
				break
			}
		}
		bars = append(bars, bar)
	}
	return bars
}
