package contracts

import "time"

// OutcomeLabel is the ground-truth label of a replay sample
type OutcomeLabel string

const (
	// LabelContinuation — 바이어스 방향으로 노이즈 임계 이상 움직임
	LabelContinuation OutcomeLabel = "CONTINUATION"
	// LabelReversal — 반대 방향으로 노이즈 임계 이상 움직임
	LabelReversal OutcomeLabel = "REVERSAL"
	// LabelNoise — 결정적 움직임 없음 (WAIT 바이어스에는 정답)
	LabelNoise OutcomeLabel = "NOISE"
)

// Horizon defines how far forward an outcome is judged and when a sample
// is mature enough to label.
type Horizon struct {
	Name string `json:"name"`

	// Maturation is the minimum age past as-of before labeling. For
	// historical batches the future already exists in the store, so
	// maturation is automatic.
	Maturation time.Duration `json:"maturation"`

	// ForwardCandles is the fixed number of forward candles evaluated.
	ForwardCandles int `json:"forward_candles"`

	// Resolution is the candle interval used for the forward path.
	Resolution Timeframe `json:"resolution"`

	// NoiseThresholdPct separates decisive moves from noise (absolute %).
	NoiseThresholdPct float64 `json:"noise_threshold_pct"`
}

// Span returns the total forward window covered by the horizon
func (h Horizon) Span() time.Duration {
	return time.Duration(h.ForwardCandles) * h.Resolution.Duration()
}

// LabelStats summarizes one labeling run
type LabelStats struct {
	Labeled int `json:"labeled"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// LabelProgress reports labeling coverage for a batch or symbol
type LabelProgress struct {
	Total     int `json:"total"`     // COMPLETED states
	Labeled   int `json:"labeled"`
	Unlabeled int `json:"unlabeled"`
}
