package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/pkg/logger"
)

// fetchPageSize is the max rows per vendor request
const fetchPageSize = 1000

// defaultBackfill bounds the first sync of an empty series
const defaultBackfill = 400

// SyncService fills gaps between the local candle store and the vendor.
// ⭐ SSOT: 로컬 스토어 보충(backfill)은 이 서비스에서만
type SyncService struct {
	vendor *VendorClient
	store  contracts.CandleStore
	logger *logger.Logger
	venue  string
}

// NewSyncService creates a new sync service
func NewSyncService(vendor *VendorClient, store contracts.CandleStore, venue string, log *logger.Logger) *SyncService {
	return &SyncService{
		vendor: vendor,
		store:  store,
		logger: log.WithField("module", "candle_sync"),
		venue:  venue,
	}
}

// SyncResult summarizes one sync pass
type SyncResult struct {
	Symbol    string
	Timeframe contracts.Timeframe
	Candles   int
	Error     error
}

// SyncSymbol backfills one (symbol, timeframe) series up to the given
// instant. Returns the number of candles written.
// 빈 시리즈는 defaultBackfill개만 당겨온다 — 무한 백필 방지.
func (s *SyncService) SyncSymbol(ctx context.Context, symbol string, tf contracts.Timeframe, until time.Time) (int, error) {
	if !tf.Valid() {
		return 0, fmt.Errorf("%w: invalid timeframe %q", contracts.ErrValidation, tf)
	}

	latest, err := s.store.LatestCandleTime(ctx, s.venue, symbol, tf)
	if err != nil {
		return 0, fmt.Errorf("latest candle time: %w", err)
	}

	start := until.Add(-time.Duration(defaultBackfill) * tf.Duration())
	if !latest.IsZero() {
		next := latest.Add(tf.Duration())
		if !next.Before(until) {
			return 0, nil // already current
		}
		start = next
	}

	total := 0
	for cursor := start; cursor.Before(until); {
		candles, err := s.vendor.FetchKlines(ctx, symbol, tf, cursor, until, fetchPageSize)
		if err != nil {
			return total, fmt.Errorf("fetch klines: %w", err)
		}
		if len(candles) == 0 {
			break
		}

		series := &contracts.CandleSeries{
			Venue:     s.venue,
			Symbol:    symbol,
			Timeframe: tf,
			Candles:   candles,
		}

		// Parallel series are best-effort: a gap here must not block candles
		pageEnd := candles[len(candles)-1].Time
		if oi, err := s.vendor.FetchOpenInterest(ctx, symbol, tf, cursor, pageEnd, fetchPageSize); err == nil {
			series.OpenInterest = oi
		} else {
			s.logger.WithError(err).WithField("symbol", symbol).Warn("Open interest fetch failed, continuing")
		}
		if funding, err := s.vendor.FetchFundingHistory(ctx, symbol, cursor, pageEnd, fetchPageSize); err == nil {
			series.Funding = funding
		} else {
			s.logger.WithError(err).WithField("symbol", symbol).Warn("Funding fetch failed, continuing")
		}

		if err := s.store.SaveSeries(ctx, series); err != nil {
			return total, fmt.Errorf("save series: %w", err)
		}
		total += len(candles)

		if len(candles) < fetchPageSize {
			break
		}
		cursor = pageEnd.Add(tf.Duration())
	}

	s.logger.WithFields(map[string]interface{}{
		"symbol":    symbol,
		"timeframe": string(tf),
		"candles":   total,
		"until":     until.Format(time.RFC3339),
	}).Info("Candle sync completed")
	return total, nil
}

// SyncAll backfills all given timeframes for a symbol. Failures on one
// timeframe do not stop the others.
func (s *SyncService) SyncAll(ctx context.Context, symbol string, tfs []contracts.Timeframe, until time.Time) []SyncResult {
	results := make([]SyncResult, 0, len(tfs))
	for _, tf := range tfs {
		n, err := s.SyncSymbol(ctx, symbol, tf, until)
		results = append(results, SyncResult{
			Symbol:    symbol,
			Timeframe: tf,
			Candles:   n,
			Error:     err,
		})
		if err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"symbol":    symbol,
				"timeframe": string(tf),
			}).Error("Timeframe sync failed")
		}
	}
	return results
}
