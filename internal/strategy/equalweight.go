package strategy

import (
	"context"
	"math"
	"sort"
)

// Compile-time interface check.
var _ Strategy = (*EqualWeight)(nil)

// EqualWeight is the baseline strategy: it holds up to MaxPositions
// instruments from the universe at identical weights. Instruments are chosen
// alphabetically so that two runs over the same universe are identical.
type EqualWeight struct {
	limits Limits
}

// NewEqualWeight creates an EqualWeight strategy bounded by the given limits.
func NewEqualWeight(limits Limits) *EqualWeight {
	return &EqualWeight{limits: limits}
}

// Name returns "equal-weight".
func (s *EqualWeight) Name() string { return "equal-weight" }

// TargetWeights assigns 1/n to each selected instrument, capped at the
// maximum position size.
func (s *EqualWeight) TargetWeights(_ context.Context, snap Snapshot) (map[string]float64, error) {
	symbols := make([]string, 0, len(snap.Instruments))
	for _, inst := range snap.Instruments {
		symbols = append(symbols, inst.Symbol)
	}
	sort.Strings(symbols)
	if s.limits.MaxPositions > 0 && len(symbols) > s.limits.MaxPositions {
		symbols = symbols[:s.limits.MaxPositions]
	}
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	w := 1.0 / float64(len(symbols))
	if s.limits.MaxWeight > 0 {
		w = math.Min(w, s.limits.MaxWeight)
	}
	if w < s.limits.MinWeight {
		return map[string]float64{}, nil
	}

	weights := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		weights[sym] = w
	}
	return weights, nil
}
