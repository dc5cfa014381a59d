package strategy

import (
	"context"

	"github.com/cinar/indicator"
)

// Compile-time interface check.
var _ Strategy = (*Momentum)(nil)

// Momentum ranks instruments by the distance of the latest close above its
// simple moving average over the lookback window, and allocates weight
// proportionally to that score. Instruments trading below their moving
// average, or without enough history, receive no allocation.
type Momentum struct {
	lookback int
	limits   Limits
}

// NewMomentum creates a Momentum strategy with the given SMA lookback in
// trading days.
func NewMomentum(lookback int, limits Limits) *Momentum {
	if lookback <= 0 {
		lookback = 126
	}
	return &Momentum{lookback: lookback, limits: limits}
}

// Name returns "momentum".
func (s *Momentum) Name() string { return "momentum" }

// TargetWeights scores each instrument as close/SMA - 1 and converts the
// positive scores into clamped proportional weights.
func (s *Momentum) TargetWeights(_ context.Context, snap Snapshot) (map[string]float64, error) {
	scores := make(map[string]float64, len(snap.Instruments))
	for _, inst := range snap.Instruments {
		if len(inst.Closes) < s.lookback {
			continue
		}
		sma := indicator.Sma(s.lookback, inst.Closes)
		mean := sma[len(sma)-1]
		if mean <= 0 {
			continue
		}
		last := inst.Closes[len(inst.Closes)-1]
		scores[inst.Symbol] = last/mean - 1
	}
	return proportionalWeights(scores, s.limits.MaxPositions, s.limits.MinWeight, s.limits.MaxWeight), nil
}
