package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/argus/internal/contracts"
)

// Repository implements contracts.CandleStore on Postgres.
// ⭐ SSOT: 캔들/OI/펀딩/테이커 저장소는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new market data repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetUpTo returns up to limit candles with open time ≤ cutoff, newest
// last, plus the parallel series covering the same window.
// 리플레이 스냅샷 빌더는 반드시 이 쿼리만 사용한다 (zero-lookahead).
func (r *Repository) GetUpTo(ctx context.Context, venue, symbol string, tf contracts.Timeframe, cutoff time.Time, limit int) (*contracts.CandleSeries, error) {
	query := `
		SELECT open_time, open_price, high_price, low_price, close_price, volume
		FROM market.candles
		WHERE venue = $1 AND symbol = $2 AND timeframe = $3 AND open_time <= $4
		ORDER BY open_time DESC
		LIMIT $5
	`

	rows, err := r.pool.Query(ctx, query, venue, symbol, string(tf), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query candles: %v", contracts.ErrPersistence, err)
	}
	defer rows.Close()

	var candles []contracts.Candle
	for rows.Next() {
		var c contracts.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("%w: scan candle: %v", contracts.ErrPersistence, err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrPersistence, err)
	}

	// DESC fetch for the LIMIT, reversed to oldest-first for consumers
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	series := &contracts.CandleSeries{
		Venue:     venue,
		Symbol:    symbol,
		Timeframe: tf,
		Candles:   candles,
	}
	if len(candles) == 0 {
		return series, nil
	}

	windowStart := candles[0].Time
	if series.OpenInterest, err = r.getOpenInterest(ctx, venue, symbol, tf, windowStart, cutoff); err != nil {
		return nil, err
	}
	if series.Funding, err = r.getFunding(ctx, venue, symbol, windowStart, cutoff); err != nil {
		return nil, err
	}
	if series.TakerVolume, err = r.getTakerVolume(ctx, venue, symbol, tf, windowStart, cutoff); err != nil {
		return nil, err
	}
	return series, nil
}

// GetAfter returns up to limit candles strictly after the given instant,
// oldest first. 라벨러 전용 쿼리 — 미래 데이터만 본다.
func (r *Repository) GetAfter(ctx context.Context, venue, symbol string, tf contracts.Timeframe, after time.Time, limit int) ([]contracts.Candle, error) {
	query := `
		SELECT open_time, open_price, high_price, low_price, close_price, volume
		FROM market.candles
		WHERE venue = $1 AND symbol = $2 AND timeframe = $3 AND open_time > $4
		ORDER BY open_time ASC
		LIMIT $5
	`

	rows, err := r.pool.Query(ctx, query, venue, symbol, string(tf), after, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query forward candles: %v", contracts.ErrPersistence, err)
	}
	defer rows.Close()

	var candles []contracts.Candle
	for rows.Next() {
		var c contracts.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("%w: scan candle: %v", contracts.ErrPersistence, err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// LatestCandleTime returns the newest stored open time (zero time when empty)
func (r *Repository) LatestCandleTime(ctx context.Context, venue, symbol string, tf contracts.Timeframe) (time.Time, error) {
	query := `
		SELECT COALESCE(MAX(open_time), 'epoch'::timestamptz)
		FROM market.candles
		WHERE venue = $1 AND symbol = $2 AND timeframe = $3
	`

	var latest time.Time
	if err := r.pool.QueryRow(ctx, query, venue, symbol, string(tf)).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("%w: latest candle time: %v", contracts.ErrPersistence, err)
	}
	if latest.Unix() == 0 {
		return time.Time{}, nil
	}
	return latest, nil
}

// SaveSeries upserts candles and parallel series
func (r *Repository) SaveSeries(ctx context.Context, series *contracts.CandleSeries) error {
	candleQuery := `
		INSERT INTO market.candles (venue, symbol, timeframe, open_time, open_price, high_price, low_price, close_price, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (venue, symbol, timeframe, open_time) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume
	`
	for _, c := range series.Candles {
		if _, err := r.pool.Exec(ctx, candleQuery,
			series.Venue, series.Symbol, string(series.Timeframe),
			c.Time, c.Open, c.High, c.Low, c.Close, c.Volume,
		); err != nil {
			return fmt.Errorf("%w: upsert candle: %v", contracts.ErrPersistence, err)
		}
	}

	oiQuery := `
		INSERT INTO market.open_interest (venue, symbol, timeframe, ts, value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (venue, symbol, timeframe, ts) DO UPDATE SET value = EXCLUDED.value
	`
	for _, p := range series.OpenInterest {
		if _, err := r.pool.Exec(ctx, oiQuery,
			series.Venue, series.Symbol, string(series.Timeframe), p.Time, p.Value,
		); err != nil {
			return fmt.Errorf("%w: upsert open interest: %v", contracts.ErrPersistence, err)
		}
	}

	fundingQuery := `
		INSERT INTO market.funding_rates (venue, symbol, ts, rate)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (venue, symbol, ts) DO UPDATE SET rate = EXCLUDED.rate
	`
	for _, p := range series.Funding {
		if _, err := r.pool.Exec(ctx, fundingQuery,
			series.Venue, series.Symbol, p.Time, p.Rate,
		); err != nil {
			return fmt.Errorf("%w: upsert funding: %v", contracts.ErrPersistence, err)
		}
	}

	takerQuery := `
		INSERT INTO market.taker_volumes (venue, symbol, timeframe, ts, buy_volume, sell_volume)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (venue, symbol, timeframe, ts) DO UPDATE SET
			buy_volume = EXCLUDED.buy_volume,
			sell_volume = EXCLUDED.sell_volume
	`
	for _, p := range series.TakerVolume {
		if _, err := r.pool.Exec(ctx, takerQuery,
			series.Venue, series.Symbol, string(series.Timeframe), p.Time, p.BuyVolume, p.SellVolume,
		); err != nil {
			return fmt.Errorf("%w: upsert taker volume: %v", contracts.ErrPersistence, err)
		}
	}
	return nil
}

func (r *Repository) getOpenInterest(ctx context.Context, venue, symbol string, tf contracts.Timeframe, from, to time.Time) ([]contracts.OpenInterestPoint, error) {
	query := `
		SELECT ts, value
		FROM market.open_interest
		WHERE venue = $1 AND symbol = $2 AND timeframe = $3 AND ts >= $4 AND ts <= $5
		ORDER BY ts ASC
	`

	rows, err := r.pool.Query(ctx, query, venue, symbol, string(tf), from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: query open interest: %v", contracts.ErrPersistence, err)
	}
	defer rows.Close()

	var points []contracts.OpenInterestPoint
	for rows.Next() {
		var p contracts.OpenInterestPoint
		if err := rows.Scan(&p.Time, &p.Value); err != nil {
			return nil, fmt.Errorf("%w: scan open interest: %v", contracts.ErrPersistence, err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *Repository) getFunding(ctx context.Context, venue, symbol string, from, to time.Time) ([]contracts.FundingPoint, error) {
	query := `
		SELECT ts, rate
		FROM market.funding_rates
		WHERE venue = $1 AND symbol = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts ASC
	`

	rows, err := r.pool.Query(ctx, query, venue, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: query funding: %v", contracts.ErrPersistence, err)
	}
	defer rows.Close()

	var points []contracts.FundingPoint
	for rows.Next() {
		var p contracts.FundingPoint
		if err := rows.Scan(&p.Time, &p.Rate); err != nil {
			return nil, fmt.Errorf("%w: scan funding: %v", contracts.ErrPersistence, err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *Repository) getTakerVolume(ctx context.Context, venue, symbol string, tf contracts.Timeframe, from, to time.Time) ([]contracts.TakerVolumePoint, error) {
	query := `
		SELECT ts, buy_volume, sell_volume
		FROM market.taker_volumes
		WHERE venue = $1 AND symbol = $2 AND timeframe = $3 AND ts >= $4 AND ts <= $5
		ORDER BY ts ASC
	`

	rows, err := r.pool.Query(ctx, query, venue, symbol, string(tf), from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: query taker volume: %v", contracts.ErrPersistence, err)
	}
	defer rows.Close()

	var points []contracts.TakerVolumePoint
	for rows.Next() {
		var p contracts.TakerVolumePoint
		if err := rows.Scan(&p.Time, &p.BuyVolume, &p.SellVolume); err != nil {
			return nil, fmt.Errorf("%w: scan taker volume: %v", contracts.ErrPersistence, err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
