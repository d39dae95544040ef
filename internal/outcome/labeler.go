package outcome

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wonny/argus/internal/contracts"
	"github.com/wonny/argus/internal/policy"
	"github.com/wonny/argus/pkg/logger"
	"github.com/wonny/argus/pkg/metrics"
)

// Labeler assigns ground-truth outcome labels to mature replay states.
// ⭐ SSOT: 결과 라벨링은 여기서만 — 라벨은 기록 후 불변
//
// Labeling reads forward data only (strictly after the as-of instant);
// the decision itself never sees it.
type Labeler struct {
	states  contracts.ReplayStateRepository
	candles contracts.CandleStore
	policy  *policy.Evaluation
	metrics *metrics.Recorder
	logger  *logger.Logger
	venue   string
	now     func() time.Time
}

// NewLabeler creates a new outcome labeler
func NewLabeler(
	states contracts.ReplayStateRepository,
	candles contracts.CandleStore,
	pol *policy.Evaluation,
	rec *metrics.Recorder,
	venue string,
	log *logger.Logger,
) *Labeler {
	return &Labeler{
		states:  states,
		candles: candles,
		policy:  pol,
		metrics: rec,
		logger:  log.WithField("module", "outcome_labeler"),
		venue:   venue,
		now:     time.Now,
	}
}

// LabelPending labels up to limit mature unlabeled states for a horizon.
// symbol이 비어 있으면 전체 심볼. Gap이 있어 forward 캔들이 모자란 상태는
// 건너뛰고 다음 패스에서 다시 시도한다.
func (l *Labeler) LabelPending(ctx context.Context, horizonName, symbol string, limit int) (contracts.LabelStats, error) {
	var stats contracts.LabelStats

	horizon, err := l.policy.Horizon(horizonName)
	if err != nil {
		return stats, err
	}
	if limit <= 0 {
		limit = 500
	}

	matureBefore := l.now().Add(-horizon.Maturation)
	states, err := l.states.ListUnlabeled(ctx, symbol, matureBefore, limit)
	if err != nil {
		return stats, fmt.Errorf("list unlabeled: %w", err)
	}

	for _, state := range states {
		outcome, err := l.label(ctx, state, horizon)
		if err != nil {
			stats.Failed++
			l.logger.WithError(err).WithFields(map[string]interface{}{
				"state_id": state.ID,
				"as_of":    state.AsOf.Format(time.RFC3339),
			}).Warn("Labeling failed")
			continue
		}
		if outcome == nil {
			stats.Skipped++
			continue
		}

		if err := l.states.SetOutcome(ctx, state.ID, *outcome); err != nil {
			if errors.Is(err, contracts.ErrOutcomeImmutable) {
				stats.Skipped++ // concurrent labeler won the race
				continue
			}
			stats.Failed++
			continue
		}
		stats.Labeled++
		l.metrics.RecordLabel(state.Symbol, string(outcome.Label))
	}

	l.logger.WithFields(map[string]interface{}{
		"horizon": horizonName,
		"symbol":  symbol,
		"labeled": stats.Labeled,
		"skipped": stats.Skipped,
		"failed":  stats.Failed,
	}).Info("Label pass completed")
	return stats, nil
}

// label computes the outcome for one state, or nil to skip (forward
// window not fully available yet).
func (l *Labeler) label(ctx context.Context, state *contracts.ReplayState, horizon contracts.Horizon) (*contracts.SampleOutcome, error) {
	if state.Price <= 0 {
		return nil, fmt.Errorf("%w: state %s has no entry price", contracts.ErrValidation, state.ID)
	}

	forward, err := l.candles.GetAfter(ctx, l.venue, state.Symbol, horizon.Resolution, state.AsOf, horizon.ForwardCandles)
	if err != nil {
		return nil, fmt.Errorf("forward candles: %w", err)
	}
	if len(forward) == 0 {
		return nil, nil // dataset edge; retry after the next sync
	}

	entry := state.Price
	last := forward[len(forward)-1]
	movePct := (last.Close - entry) / entry * 100

	mfe, mae := excursions(state.Decision.Bias, entry, forward)

	label, reason := classify(state.Decision.Bias, movePct, horizon.NoiseThresholdPct)

	return &contracts.SampleOutcome{
		Label:     label,
		Reason:    reason,
		Horizon:   horizon.Name,
		Price:     last.Close,
		MovePct:   movePct,
		MFEPct:    mfe,
		MAEPct:    mae,
		LabeledAt: l.now().UTC(),
	}, nil
}

// classify maps the realized move onto CONTINUATION/REVERSAL/NOISE.
// WAIT은 방향이 없으므로 순수하게 크기만 본다: 임계값 미만이면 NOISE,
// 넘으면 움직인 방향대로 라벨된다 (어느 쪽이든 WAIT 입장에선 miss).
func classify(bias contracts.Bias, movePct, noiseThresholdPct float64) (contracts.OutcomeLabel, string) {
	if math.Abs(movePct) < noiseThresholdPct {
		return contracts.LabelNoise, fmt.Sprintf("move %+.2f%% inside noise band ±%.2f%%", movePct, noiseThresholdPct)
	}

	direction := 1.0
	if bias == contracts.BiasShort {
		direction = -1.0
	}

	if movePct*direction > 0 {
		return contracts.LabelContinuation, fmt.Sprintf("move %+.2f%% with the call", movePct)
	}
	return contracts.LabelReversal, fmt.Sprintf("move %+.2f%% against the call", movePct)
}

// excursions computes max favorable / adverse excursion as positive
// percentages of entry, relative to the called direction. WAIT uses the
// long convention (favorable = up).
func excursions(bias contracts.Bias, entry float64, forward []contracts.Candle) (mfePct, maePct float64) {
	for _, c := range forward {
		up := (c.High - entry) / entry * 100
		down := (entry - c.Low) / entry * 100

		var favorable, adverse float64
		if bias == contracts.BiasShort {
			favorable, adverse = down, up
		} else {
			favorable, adverse = up, down
		}
		if favorable > mfePct {
			mfePct = favorable
		}
		if adverse > maePct {
			maePct = adverse
		}
	}
	return mfePct, maePct
}
