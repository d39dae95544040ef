package scoreboard

import (
	"math"
	"time"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/internal/policy"
)

// BuildReport folds labeled replay states into the scoreboard. Pure
// computation over its inputs: same states + same policy = same report.
// ⭐ SSOT: 평가 지표 계산은 여기서만
//
// Unlabeled states are ignored. Small groups are computed but flagged
// Reported=false so thin evidence never drives tuning.
func BuildReport(states []*contracts.ReplayState, pol *policy.Evaluation, policyHash string) *contracts.ScoreboardReport {
	report := &contracts.ScoreboardReport{
		GeneratedAt: time.Now().UTC(),
		PolicyHash:  policyHash,
		ByBias:      make(map[contracts.Bias]contracts.GroupAccuracy),
		ByRegime:    make(map[string]contracts.GroupAccuracy),
		ByScenario:  make(map[string]contracts.GroupAccuracy),
		ByTimeframe: make(map[contracts.Timeframe]contracts.GroupAccuracy),
		Failures:    make(map[contracts.FailureCategory]int),
	}

	labeled := make([]*contracts.ReplayState, 0, len(states))
	for _, s := range states {
		if s.Labeled() {
			labeled = append(labeled, s)
		}
	}
	report.SampleCount = len(labeled)
	if len(labeled) == 0 {
		report.Calibration.Monotonic = true
		return report
	}

	overall := newCounter()
	byBias := map[contracts.Bias]*counter{}
	byRegime := map[string]*counter{}
	byScenario := map[string]*counter{}
	byTimeframe := map[contracts.Timeframe]*counter{}
	buckets := newBucketCounters(pol)
	aligned, conflicted := newCounter(), newCounter()

	var waitMove, dirMove float64
	var waitN, dirN int

	for _, s := range labeled {
		correct := s.Correct()
		overall.add(correct)

		bump(byBias, s.Decision.Bias, correct)
		if s.Decision.Regime.Type != "" {
			bump(byRegime, regimeKey(s.Decision.Regime), correct)
		}
		if s.Decision.Scenario != "" {
			bump(byScenario, s.Decision.Scenario, correct)
		}
		for tf, view := range s.Decision.TimeframeBiases {
			// A timeframe view is judged on its own call, not the headline
			bump(byTimeframe, tf, viewCorrect(view, s.Outcome.Label))
		}

		b := &buckets[pol.BucketIndex(s.Decision.Confidence)]
		b.total++
		b.confSum += s.Decision.Confidence
		if correct {
			b.correct++
		}

		if s.Decision.Aligned() {
			aligned.add(correct)
		} else {
			conflicted.add(correct)
		}

		if s.Decision.Bias == contracts.BiasWait {
			waitMove += math.Abs(s.Outcome.MovePct)
			waitN++
		} else {
			dirMove += math.Abs(s.Outcome.MovePct)
			dirN++

			if s.Outcome.Label == contracts.LabelReversal {
				report.Failures[Classify(s, pol)]++
			}
		}
	}

	report.OverallAccuracy = overall.accuracy()
	for bias, c := range byBias {
		report.ByBias[bias] = c.group(pol.MinGroupSamples)
	}
	for regime, c := range byRegime {
		report.ByRegime[regime] = c.group(pol.MinGroupSamples)
	}
	for scenario, c := range byScenario {
		report.ByScenario[scenario] = c.group(pol.MinGroupSamples)
	}
	for tf, c := range byTimeframe {
		report.ByTimeframe[tf] = c.group(pol.MinGroupSamples)
	}

	report.ByBucket, report.Calibration = bucketReport(buckets, pol)
	report.Alignment = contracts.AlignmentStats{
		Aligned:    aligned.group(pol.MinGroupSamples),
		Conflicted: conflicted.group(pol.MinGroupSamples),
	}
	report.Wait = waitEffectiveness(waitMove, dirMove, waitN, dirN, pol.WaitEffectivenessThreshold)

	return report
}

// viewCorrect judges a single timeframe view against the outcome
func viewCorrect(view contracts.Bias, label contracts.OutcomeLabel) bool {
	if view == contracts.BiasWait {
		return label == contracts.LabelNoise
	}
	return label == contracts.LabelContinuation
}

func regimeKey(r contracts.Regime) string {
	if r.Subtype == "" {
		return r.Type
	}
	return r.Type + "/" + r.Subtype
}

// counter accumulates correct/total
type counter struct {
	total   int
	correct int
}

func newCounter() *counter { return &counter{} }

func (c *counter) add(correct bool) {
	c.total++
	if correct {
		c.correct++
	}
}

func (c *counter) accuracy() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.correct) / float64(c.total)
}

func (c *counter) group(minSamples int) contracts.GroupAccuracy {
	return contracts.GroupAccuracy{
		Total:    c.total,
		Correct:  c.correct,
		Accuracy: c.accuracy(),
		Reported: c.total >= minSamples,
	}
}

func bump[K comparable](m map[K]*counter, key K, correct bool) {
	c, ok := m[key]
	if !ok {
		c = newCounter()
		m[key] = c
	}
	c.add(correct)
}

type bucketCounter struct {
	total   int
	correct int
	confSum float64
}

func newBucketCounters(pol *policy.Evaluation) []bucketCounter {
	return make([]bucketCounter, pol.BucketCount())
}

// bucketReport emits every bucket (exhaustive partition of 0–10) and the
// monotonicity check over buckets clearing MinBucketSamples.
func bucketReport(buckets []bucketCounter, pol *policy.Evaluation) ([]contracts.BucketStats, contracts.CalibrationResult) {
	stats := make([]contracts.BucketStats, 0, len(buckets))
	calibration := contracts.CalibrationResult{Monotonic: true}

	prev := -1.0
	for i, b := range buckets {
		s := contracts.BucketStats{
			Bucket:  pol.BucketName(i),
			Lo:      pol.BucketEdges[i],
			Hi:      pol.BucketEdges[i+1],
			Total:   b.total,
			Correct: b.correct,
		}
		if b.total > 0 {
			s.Accuracy = float64(b.correct) / float64(b.total)
			s.AvgConfidence = b.confSum / float64(b.total)
		}
		stats = append(stats, s)

		if b.total < pol.MinBucketSamples {
			calibration.ExcludedBuckets = append(calibration.ExcludedBuckets, s.Bucket)
			continue
		}
		calibration.CheckedBuckets = append(calibration.CheckedBuckets, s.Bucket)
		if s.Accuracy < prev {
			calibration.Monotonic = false
		}
		prev = s.Accuracy
	}
	return stats, calibration
}

// waitEffectiveness: ratio = wait ÷ directional average absolute move.
// 임계값 아래로 떨어지면 WAIT이 나쁜 기회가 아니라 좋은 기회를 거르고
// 있다는 신호 (inverted).
func waitEffectiveness(waitMove, dirMove float64, waitN, dirN int, threshold float64) contracts.WaitEffectiveness {
	w := contracts.WaitEffectiveness{
		WaitSamples:        waitN,
		DirectionalSamples: dirN,
	}
	if waitN > 0 {
		w.WaitAvgAbsMovePct = waitMove / float64(waitN)
	}
	if dirN > 0 {
		w.DirectionalAvgAbsMovePct = dirMove / float64(dirN)
	}
	if w.DirectionalAvgAbsMovePct > 0 && waitN > 0 {
		w.Ratio = w.WaitAvgAbsMovePct / w.DirectionalAvgAbsMovePct
		w.Inverted = w.Ratio < threshold
	}
	return w
}

// Metrics freezes the headline numbers of a report for baselines
func Metrics(report *contracts.ScoreboardReport) contracts.BaselineMetrics {
	m := contracts.BaselineMetrics{
		SampleCount:            report.SampleCount,
		OverallAccuracy:        report.OverallAccuracy,
		WaitEffectivenessRatio: report.Wait.Ratio,
	}

	var dirTotal, dirCorrect int
	for bias, g := range report.ByBias {
		if bias.Directional() {
			dirTotal += g.Total
			dirCorrect += g.Correct
		} else {
			m.WaitAccuracy = g.Accuracy
		}
	}
	if dirTotal > 0 {
		m.DirectionalAccuracy = float64(dirCorrect) / float64(dirTotal)
	}

	// Highest bucket with any samples carries the high-confidence read
	for i := len(report.ByBucket) - 1; i >= 0; i-- {
		if report.ByBucket[i].Total > 0 {
			m.HighConfidenceAccuracy = report.ByBucket[i].Accuracy
			break
		}
	}
	return m
}
