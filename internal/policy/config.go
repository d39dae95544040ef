package policy

import (
	"fmt"
	"time"

	"github.com/wonny/argus/internal/contracts"
)

// Evaluation holds the hand-tuned evaluation policy: horizons, noise
// thresholds, confidence buckets and minimum sample counts.
// ⭐ SSOT: 수치 정책은 전부 여기서만 — 코드에 하드코딩 금지
type Evaluation struct {
	Horizons []contracts.Horizon `json:"horizons"`

	// Buckets partition the 0–10 confidence scale. Edges are inclusive
	// below, exclusive above; the last bucket is closed at 10.
	BucketEdges []float64 `json:"bucket_edges"`

	// MinBucketSamples excludes small buckets from the calibration
	// monotonicity check (still reported).
	MinBucketSamples int `json:"min_bucket_samples"`

	// MinGroupSamples gates regime/scenario/timeframe accuracy reporting.
	MinGroupSamples int `json:"min_group_samples"`

	// WaitEffectivenessThreshold: ratio below this flags WAIT as inverted.
	WaitEffectivenessThreshold float64 `json:"wait_effectiveness_threshold"`

	// ScoreMarginContradiction: losing-side score within this margin of
	// the winner counts as a contradicting-signal read.
	ScoreMarginContradiction float64 `json:"score_margin_contradiction"`
}

// Default returns the compiled-in policy used when no YAML file exists.
// 값 자체는 정책이며 구조가 아니다 — 튜닝 시 YAML로 덮어쓴다.
func Default() *Evaluation {
	return &Evaluation{
		Horizons: []contracts.Horizon{
			{
				Name:              "short",
				Maturation:        45 * time.Minute,
				ForwardCandles:    9,
				Resolution:        contracts.Timeframe5m,
				NoiseThresholdPct: 0.3,
			},
			{
				Name:              "medium",
				Maturation:        8 * time.Hour,
				ForwardCandles:    8,
				Resolution:        contracts.Timeframe1h,
				NoiseThresholdPct: 0.5,
			},
			{
				Name:              "long",
				Maturation:        72 * time.Hour,
				ForwardCandles:    18,
				Resolution:        contracts.Timeframe4h,
				NoiseThresholdPct: 1.0,
			},
		},
		BucketEdges:                []float64{0, 3, 6, 8, 10},
		MinBucketSamples:           10,
		MinGroupSamples:            5,
		WaitEffectivenessThreshold: 0.8,
		ScoreMarginContradiction:   1.0,
	}
}

// Horizon returns the named horizon, or ErrValidation when unknown
func (e *Evaluation) Horizon(name string) (contracts.Horizon, error) {
	for _, h := range e.Horizons {
		if h.Name == name {
			return h, nil
		}
	}
	return contracts.Horizon{}, fmt.Errorf("%w: unknown horizon %q", contracts.ErrValidation, name)
}

// Validate checks structural policy invariants
func Validate(e *Evaluation) error {
	if len(e.Horizons) == 0 {
		return fmt.Errorf("%w: at least one horizon required", contracts.ErrValidation)
	}
	seen := make(map[string]bool)
	for _, h := range e.Horizons {
		if h.Name == "" {
			return fmt.Errorf("%w: horizon name required", contracts.ErrValidation)
		}
		if seen[h.Name] {
			return fmt.Errorf("%w: duplicate horizon %q", contracts.ErrValidation, h.Name)
		}
		seen[h.Name] = true
		if !h.Resolution.Valid() {
			return fmt.Errorf("%w: horizon %q has invalid resolution %q", contracts.ErrValidation, h.Name, h.Resolution)
		}
		if h.ForwardCandles <= 0 {
			return fmt.Errorf("%w: horizon %q needs forward_candles > 0", contracts.ErrValidation, h.Name)
		}
		if h.NoiseThresholdPct <= 0 {
			return fmt.Errorf("%w: horizon %q needs noise_threshold_pct > 0", contracts.ErrValidation, h.Name)
		}
		if h.Maturation < 0 {
			return fmt.Errorf("%w: horizon %q has negative maturation", contracts.ErrValidation, h.Name)
		}
	}

	if len(e.BucketEdges) < 2 {
		return fmt.Errorf("%w: at least two bucket edges required", contracts.ErrValidation)
	}
	if e.BucketEdges[0] != 0 || e.BucketEdges[len(e.BucketEdges)-1] != 10 {
		return fmt.Errorf("%w: bucket edges must span [0,10]", contracts.ErrValidation)
	}
	for i := 1; i < len(e.BucketEdges); i++ {
		if e.BucketEdges[i] <= e.BucketEdges[i-1] {
			return fmt.Errorf("%w: bucket edges must be strictly increasing", contracts.ErrValidation)
		}
	}

	if e.WaitEffectivenessThreshold <= 0 {
		return fmt.Errorf("%w: wait_effectiveness_threshold must be positive", contracts.ErrValidation)
	}
	return nil
}

// BucketIndex returns the index of the bucket claiming the confidence
// value. Exactly one bucket claims any value in [0,10].
func (e *Evaluation) BucketIndex(confidence float64) int {
	if confidence < 0 {
		return 0
	}
	last := len(e.BucketEdges) - 2
	for i := 0; i < last; i++ {
		if confidence < e.BucketEdges[i+1] {
			return i
		}
	}
	// Final bucket is closed above: [edge, 10]
	return last
}

// BucketName formats a bucket for reports, e.g. "[3,6)" or "[8,10]"
func (e *Evaluation) BucketName(i int) string {
	lo, hi := e.BucketEdges[i], e.BucketEdges[i+1]
	if i == len(e.BucketEdges)-2 {
		return fmt.Sprintf("[%g,%g]", lo, hi)
	}
	return fmt.Sprintf("[%g,%g)", lo, hi)
}

// BucketCount returns the number of confidence buckets
func (e *Evaluation) BucketCount() int {
	return len(e.BucketEdges) - 1
}
