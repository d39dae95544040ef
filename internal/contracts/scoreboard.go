package contracts

import "time"

// GroupAccuracy is the correct/total accuracy of one group of samples.
// Reported=false means the group did not clear the minimum sample count
// and its accuracy should not drive tuning decisions.
type GroupAccuracy struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
	Reported bool    `json:"reported"`
}

// BucketStats is the accuracy of one confidence bucket
type BucketStats struct {
	Bucket        string  `json:"bucket"` // e.g. "[3,6)"
	Lo            float64 `json:"lo"`
	Hi            float64 `json:"hi"`
	Total         int     `json:"total"`
	Correct       int     `json:"correct"`
	Accuracy      float64 `json:"accuracy"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// CalibrationResult reports whether accuracy is monotonically
// non-decreasing over confidence buckets with enough samples.
type CalibrationResult struct {
	Monotonic       bool     `json:"monotonic"`
	CheckedBuckets  []string `json:"checked_buckets"`
	ExcludedBuckets []string `json:"excluded_buckets"` // below min sample count, still reported
}

// WaitEffectiveness compares forward movement during WAIT periods vs
// directional periods. Ratio < threshold means WAIT is filtering out
// good opportunities — an inverted signal.
type WaitEffectiveness struct {
	WaitAvgAbsMovePct        float64 `json:"wait_avg_abs_move_pct"`
	DirectionalAvgAbsMovePct float64 `json:"directional_avg_abs_move_pct"`
	Ratio                    float64 `json:"ratio"`
	Inverted                 bool    `json:"inverted"`
	WaitSamples              int     `json:"wait_samples"`
	DirectionalSamples       int     `json:"directional_samples"`
}

// AlignmentStats compares accuracy when multi-timeframe bias views agree
// vs conflict.
type AlignmentStats struct {
	Aligned    GroupAccuracy `json:"aligned"`
	Conflicted GroupAccuracy `json:"conflicted"`
}

// FailureCategory classifies why a directional bias reversed
type FailureCategory string

const (
	FailureRegimeMisread        FailureCategory = "REGIME_MISREAD"
	FailureContradictingSignals FailureCategory = "CONTRADICTING_SIGNALS"
	FailureHorizonConflict      FailureCategory = "HORIZON_CONFLICT"
	FailureUnknown              FailureCategory = "UNKNOWN"
)

// ScoreboardReport 라벨된 샘플 집합에 대한 계산 뷰 (비영속)
type ScoreboardReport struct {
	GeneratedAt     time.Time                   `json:"generated_at"`
	PolicyHash      string                      `json:"policy_hash"`
	SampleCount     int                         `json:"sample_count"`
	OverallAccuracy float64                     `json:"overall_accuracy"`
	ByBias          map[Bias]GroupAccuracy      `json:"by_bias"`
	ByBucket        []BucketStats               `json:"by_bucket"`
	ByRegime        map[string]GroupAccuracy    `json:"by_regime"`
	ByScenario      map[string]GroupAccuracy    `json:"by_scenario"`
	ByTimeframe     map[Timeframe]GroupAccuracy `json:"by_timeframe"`
	Calibration     CalibrationResult           `json:"calibration"`
	Wait            WaitEffectiveness           `json:"wait_effectiveness"`
	Alignment       AlignmentStats              `json:"alignment"`
	Failures        map[FailureCategory]int     `json:"failures"`
}

// BaselineMetrics is the subset of report metrics frozen in a baseline
type BaselineMetrics struct {
	SampleCount            int     `json:"sample_count"`
	OverallAccuracy        float64 `json:"overall_accuracy"`
	DirectionalAccuracy    float64 `json:"directional_accuracy"`
	WaitAccuracy           float64 `json:"wait_accuracy"`
	HighConfidenceAccuracy float64 `json:"high_confidence_accuracy"`
	WaitEffectivenessRatio float64 `json:"wait_effectiveness_ratio"`
}

// Baseline is a named, timestamped metric snapshot used for before/after
// comparison across tuning iterations.
type Baseline struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	PolicyHash string          `json:"policy_hash"`
	CreatedAt  time.Time       `json:"created_at"`
	Metrics    BaselineMetrics `json:"metrics"`
}

// MetricDelta is one signed headline-metric difference
type MetricDelta struct {
	Metric   string  `json:"metric"`
	Baseline float64 `json:"baseline"`
	Current  float64 `json:"current"`
	Delta    float64 `json:"delta"`
}

// BaselineDiff compares a current report against a saved baseline
type BaselineDiff struct {
	BaselineID   string        `json:"baseline_id"`
	BaselineName string        `json:"baseline_name"`
	Deltas       []MetricDelta `json:"deltas"`
	Verdict      string        `json:"verdict"` // improved | declined | unchanged | mixed
}
