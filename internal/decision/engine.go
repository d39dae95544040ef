package decision

import (
	"context"
	"fmt"
	"math"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/pkg/logger"
)

// configVersion tags every result for reproducibility across tuning runs
const configVersion = "heuristic-v1"

// Engine is the heuristic bias scorer. It reads the fixed-shape
// snapshot only — no clocks, no stores — so identical snapshots always
// produce identical results.
// ⭐ SSOT: 바이어스 판단 로직은 여기서만
type Engine struct {
	logger *logger.Logger
}

// NewEngine creates a new decision engine
func NewEngine(log *logger.Logger) *Engine {
	return &Engine{logger: log.WithField("module", "decision_engine")}
}

// ConfigVersion returns the scoring ruleset version
func (e *Engine) ConfigVersion() string {
	return configVersion
}

// Evaluate scores one snapshot into a bias call
func (e *Engine) Evaluate(_ context.Context, snap *contracts.DecisionSnapshot) (*contracts.DecisionResult, error) {
	if snap == nil || len(snap.Summaries) == 0 {
		return nil, fmt.Errorf("%w: empty snapshot", contracts.ErrValidation)
	}

	result := &contracts.DecisionResult{
		TimeframeBiases: make(map[contracts.Timeframe]contracts.Bias),
		ConfigVersion:   configVersion,
	}

	// Score each timeframe independently, then blend with the primary
	// timeframe weighted double.
	var long, short float64
	var weights float64
	for _, byTf := range snap.Summaries {
		for tf, sum := range byTf {
			l, s, signals := scoreSummary(sum)
			w := 1.0
			if tf == snap.PrimaryTimeframe {
				w = 2.0
			}
			long += l * w
			short += s * w
			weights += w

			result.TimeframeBiases[tf] = tfBias(l, s)
			result.Signals = append(result.Signals, signals...)
		}
	}
	if weights > 0 {
		long /= weights
		short /= weights
	}

	regime := classifyRegime(snap.History)
	result.Regime = regime

	// Compressed ranges favor standing aside regardless of raw scores
	wait := 2.0
	if regime.Type == "RANGE" {
		wait += 2.5
	}

	result.Scores = contracts.ScoreBreakdown{Long: long, Short: short, Wait: wait}

	switch {
	case long > short && long > wait:
		result.Bias = contracts.BiasLong
		result.Confidence = clampConfidence(long - short)
		result.Scenario = scenarioFor(contracts.BiasLong, regime)
	case short > long && short > wait:
		result.Bias = contracts.BiasShort
		result.Confidence = clampConfidence(short - long)
		result.Scenario = scenarioFor(contracts.BiasShort, regime)
	default:
		result.Bias = contracts.BiasWait
		result.Confidence = clampConfidence(wait - math.Max(long, short))
		result.Scenario = scenarioFor(contracts.BiasWait, regime)
	}

	return result, nil
}

// scoreSummary converts one (venue, timeframe) summary into directional scores
func scoreSummary(sum contracts.VenueTimeframeSummary) (long, short float64, signals []string) {
	// Price momentum
	switch {
	case sum.PriceChangePct > 1.0:
		long += 2.5
		signals = append(signals, fmt.Sprintf("%s momentum up %.2f%%", sum.Timeframe, sum.PriceChangePct))
	case sum.PriceChangePct > 0.2:
		long += 1.0
	case sum.PriceChangePct < -1.0:
		short += 2.5
		signals = append(signals, fmt.Sprintf("%s momentum down %.2f%%", sum.Timeframe, sum.PriceChangePct))
	case sum.PriceChangePct < -0.2:
		short += 1.0
	}

	// Taker flow confirms or fades the move
	if sum.CVD > 0 {
		long += 1.0
	} else if sum.CVD < 0 {
		short += 1.0
	}

	// Rising OI with the move means fresh positioning, not a short squeeze
	if sum.OpenInterestChangePct > 0.5 {
		if sum.PriceChangePct > 0 {
			long += 1.0
		} else if sum.PriceChangePct < 0 {
			short += 1.0
		}
	}

	// Stretched funding argues against chasing
	if sum.AvgFundingRate > 0.0005 {
		short += 0.5
		signals = append(signals, fmt.Sprintf("%s funding stretched long %.4f", sum.Timeframe, sum.AvgFundingRate))
	} else if sum.AvgFundingRate < -0.0005 {
		long += 0.5
	}

	return long, short, signals
}

// tfBias maps per-timeframe scores to a view
func tfBias(long, short float64) contracts.Bias {
	switch {
	case long-short >= 1.0:
		return contracts.BiasLong
	case short-long >= 1.0:
		return contracts.BiasShort
	default:
		return contracts.BiasWait
	}
}

// classifyRegime reads the primary-timeframe rolling history
func classifyRegime(history []contracts.RollingBar) contracts.Regime {
	if len(history) < 10 {
		return contracts.Regime{Type: "UNKNOWN"}
	}

	first := history[0].Close
	last := history[len(history)-1].Close
	if first == 0 {
		return contracts.Regime{Type: "UNKNOWN"}
	}
	trendPct := (last - first) / first * 100

	// Average true-range proxy over the window
	var rangeSum float64
	for _, bar := range history {
		if bar.Close != 0 {
			rangeSum += (bar.High - bar.Low) / bar.Close * 100
		}
	}
	avgRangePct := rangeSum / float64(len(history))

	switch {
	case math.Abs(trendPct) >= 3.0:
		sub := "UP"
		if trendPct < 0 {
			sub = "DOWN"
		}
		return contracts.Regime{Type: "TREND", Subtype: sub}
	case avgRangePct < 0.8:
		return contracts.Regime{Type: "RANGE", Subtype: "COMPRESSED"}
	default:
		return contracts.Regime{Type: "RANGE", Subtype: "WIDE"}
	}
}

// scenarioFor names the playbook behind the call
func scenarioFor(bias contracts.Bias, regime contracts.Regime) string {
	switch {
	case bias == contracts.BiasWait:
		return "stand-aside"
	case regime.Type == "TREND":
		return "trend-continuation"
	case regime.Subtype == "COMPRESSED":
		return "compression-break"
	default:
		return "range-rotation"
	}
}

// clampConfidence maps a score margin onto the 0–10 scale
func clampConfidence(margin float64) float64 {
	c := margin * 2.0
	if c < 0 {
		return 0
	}
	if c > 10 {
		return 10
	}
	return c
}
