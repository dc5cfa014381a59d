package strategy

import "context"

// Compile-time interface check.
var _ Strategy = (*ScoreWeight)(nil)

// ScoreWeight allocates weight proportionally to an externally supplied
// per-instrument score, such as the output of a composite quality/value
// model or an ML ranker. How the score was produced is opaque here; the
// engine injects it into the snapshot from its configured score source.
// Instruments without a score, or with a non-positive one, are skipped.
//
// Score-proportional sizing with min/max clamps is the single documented
// weighting rule: tiered or rank-bucketed splits are expressible by the
// score source itself emitting tiered scores.
type ScoreWeight struct {
	limits Limits
}

// NewScoreWeight creates a ScoreWeight strategy bounded by the given limits.
func NewScoreWeight(limits Limits) *ScoreWeight {
	return &ScoreWeight{limits: limits}
}

// Name returns "score-weight".
func (s *ScoreWeight) Name() string { return "score-weight" }

// TargetWeights converts the snapshot's scores into clamped proportional
// weights.
func (s *ScoreWeight) TargetWeights(_ context.Context, snap Snapshot) (map[string]float64, error) {
	scores := make(map[string]float64, len(snap.Instruments))
	for _, inst := range snap.Instruments {
		if inst.HasScore {
			scores[inst.Symbol] = inst.Score
		}
	}
	return proportionalWeights(scores, s.limits.MaxPositions, s.limits.MinWeight, s.limits.MaxWeight), nil
}
