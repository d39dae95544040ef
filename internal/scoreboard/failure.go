package scoreboard

import (
	"math"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/internal/policy"
)

// Classify attributes a failure category to a reversed directional
// sample. Rules are evaluated in order; the first match wins.
// ⭐ SSOT: 실패 원인 분류 규칙은 여기서만 — 튜닝 루프의 "한 번에 하나만" 가이드
func Classify(state *contracts.ReplayState, pol *policy.Evaluation) contracts.FailureCategory {
	d := &state.Decision

	// 1. A trend read that reversed is first and foremost a regime
	//    misread: the directional conviction came from the regime call.
	if d.Regime.Type == "TREND" {
		return contracts.FailureRegimeMisread
	}

	// 2. The losing side scored within the contradiction margin of the
	//    winner — the signals disagreed and the tie-break went wrong.
	winner, loser := d.Scores.Long, d.Scores.Short
	if d.Bias == contracts.BiasShort {
		winner, loser = loser, winner
	}
	if math.Abs(winner-loser) <= pol.ScoreMarginContradiction {
		return contracts.FailureContradictingSignals
	}

	// 3. Timeframe views disagreed with the headline call
	if !d.Aligned() {
		return contracts.FailureHorizonConflict
	}

	return contracts.FailureUnknown
}
