package interval

import (
	"fmt"
	"time"

	"github.com/wonny/argus/internal/contracts"
)

// AlignDown truncates an instant to the start of its candle interval (UTC)
func AlignDown(t time.Time, d time.Duration) time.Time {
	return t.UTC().Truncate(d)
}

// LastClosedOpen returns the open time of the last candle fully closed
// at the given instant.
// ⭐ SSOT: "마지막으로 닫힌 캔들" 경계 계산은 여기서만
//
// An instant exactly on a boundary belongs to the candle opening there,
// which is not yet closed, so both cases reduce to AlignDown minus one
// interval.
func LastClosedOpen(t time.Time, d time.Duration) time.Time {
	return AlignDown(t, d).Add(-d)
}

// ValidateStep checks a replay stepping interval
func ValidateStep(step time.Duration) error {
	if step <= 0 {
		return fmt.Errorf("%w: step must be positive, got %s", contracts.ErrValidation, step)
	}
	return nil
}

// Enumerate generates replay instants start, start+step, ... capped at
// end (inclusive) and at maxSamples when maxSamples > 0.
func Enumerate(start, end time.Time, step time.Duration, maxSamples int) ([]time.Time, error) {
	if err := ValidateStep(step); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", contracts.ErrValidation, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	var instants []time.Time
	for t := start; !t.After(end); t = t.Add(step) {
		instants = append(instants, t)
		if maxSamples > 0 && len(instants) >= maxSamples {
			break
		}
	}
	return instants, nil
}
