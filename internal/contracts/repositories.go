package contracts

import (
	"context"
	"time"
)

// CandleStore is the historical series store: append-only candles plus
// parallel OI/funding/taker series, queryable by time range.
// ⭐ SSOT: 리플레이는 "≤ cutoff", 라벨링은 "> after" 쿼리만 사용
type CandleStore interface {
	// GetUpTo returns up to limit candles (and parallel series) with
	// open time ≤ cutoff, newest last.
	GetUpTo(ctx context.Context, venue, symbol string, tf Timeframe, cutoff time.Time, limit int) (*CandleSeries, error)

	// GetAfter returns up to limit candles with open time strictly
	// after the given instant, oldest first.
	GetAfter(ctx context.Context, venue, symbol string, tf Timeframe, after time.Time, limit int) ([]Candle, error)

	// LatestCandleTime returns the newest stored open time, or the zero
	// time when the series is empty.
	LatestCandleTime(ctx context.Context, venue, symbol string, tf Timeframe) (time.Time, error)

	// SaveSeries upserts candles and parallel series.
	SaveSeries(ctx context.Context, series *CandleSeries) error
}

// StateFilter selects replay states for scoreboard queries
type StateFilter struct {
	BatchID     string
	Symbol      string
	From        time.Time
	To          time.Time
	LabeledOnly bool
}

// ReplayStateRepository persists replay states. Uniqueness on
// (batch_id, as_of, symbol) resolves races between concurrent
// idempotency checks and inserts — 앱 레벨 락 없음.
type ReplayStateRepository interface {
	// Insert persists a new state. When the idempotency key already
	// exists it returns the existing ID with inserted=false.
	Insert(ctx context.Context, state *ReplayState) (id string, inserted bool, err error)

	// GetByKey returns the state for an idempotency key, or ErrNotFound.
	GetByKey(ctx context.Context, batchID, symbol string, asOf time.Time) (*ReplayState, error)

	GetByID(ctx context.Context, id string) (*ReplayState, error)

	// ListUnlabeled returns COMPLETED states without an outcome whose
	// as-of instant is at or before matureBefore, oldest first.
	ListUnlabeled(ctx context.Context, symbol string, matureBefore time.Time, limit int) ([]*ReplayState, error)

	// SetOutcome records the outcome exactly once. A second write for
	// the same state returns ErrOutcomeImmutable.
	SetOutcome(ctx context.Context, id string, outcome SampleOutcome) error

	// List returns states matching the filter, oldest first.
	List(ctx context.Context, filter StateFilter) ([]*ReplayState, error)

	// LabelProgress reports labeling coverage for a batch and/or symbol.
	LabelProgress(ctx context.Context, batchID, symbol string) (LabelProgress, error)
}

// BatchRegistry maps batch identifiers to batch state. The durable
// implementation survives process restarts; the in-memory one is for
// tests and ephemeral runs.
type BatchRegistry interface {
	Put(ctx context.Context, batch *ReplayBatch) error
	Get(ctx context.Context, id string) (*ReplayBatch, error)
	List(ctx context.Context) ([]*ReplayBatch, error)
}

// DecisionEngine scores one snapshot. Consumed as an opaque collaborator;
// 판단 로직 자체는 이 시스템의 평가 대상이다.
type DecisionEngine interface {
	Evaluate(ctx context.Context, snapshot *DecisionSnapshot) (*DecisionResult, error)

	// ConfigVersion tags results for reproducibility across tuning runs.
	ConfigVersion() string
}

// Labeler assigns ground-truth outcomes to mature replay states
type Labeler interface {
	LabelPending(ctx context.Context, horizon, symbol string, limit int) (LabelStats, error)
}

// BaselineRepository persists named scoreboard baselines
type BaselineRepository interface {
	Save(ctx context.Context, baseline *Baseline) (string, error)
	Get(ctx context.Context, id string) (*Baseline, error)
	List(ctx context.Context) ([]*Baseline, error)
}
