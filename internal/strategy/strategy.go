// Package strategy defines the screening strategy contract that converts a
// point-in-time universe snapshot into target portfolio weights, and provides
// a Registry plus built-in implementations.
package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// InstrumentData is everything a strategy may observe about one instrument
// on a rebalance date. It is assembled by the engine exclusively from data
// available on or before the snapshot date.
type InstrumentData struct {
	Symbol string
	Sector string

	// Price is the close as of the snapshot date.
	Price float64

	// Closes holds trailing daily closes ending at the snapshot date,
	// oldest first.
	Closes []float64

	// Fundamentals holds the most recently published fundamental fields,
	// if any.
	Fundamentals map[string]float64

	// Score is an opaque per-instrument score supplied by an external
	// scoring collaborator. HasScore reports whether one was supplied.
	Score    float64
	HasScore bool
}

// Snapshot is the full input to one rebalance decision.
type Snapshot struct {
	Date        time.Time
	Instruments []InstrumentData
}

// Strategy converts a snapshot into target weights: a map from symbol to a
// fraction in [0,1], summing to at most 1, with the residual held as cash.
// Implementations must be pure functions of the snapshot: no mutation of
// inputs, no reads beyond what the snapshot carries. This keeps rebalance
// decisions testable and point-in-time correct by construction.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// TargetWeights returns the desired portfolio weights for the snapshot.
	TargetWeights(ctx context.Context, snap Snapshot) (map[string]float64, error)
}

// Limits bounds how a strategy sizes positions.
type Limits struct {
	MaxPositions int
	MinWeight    float64
	MaxWeight    float64
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs a built-in strategy by name with the given opaque parameters.
func New(name string, params map[string]float64, limits Limits) (Strategy, error) {
	switch name {
	case "equal-weight":
		return NewEqualWeight(limits), nil
	case "momentum":
		lookback := 126
		if v, ok := params["lookback"]; ok {
			lookback = int(v)
		}
		return NewMomentum(lookback, limits), nil
	case "score-weight":
		return NewScoreWeight(limits), nil
	}
	return nil, fmt.Errorf("unknown strategy %q", name)
}

// Names returns the built-in strategy names, sorted.
func Names() []string {
	return []string{"equal-weight", "momentum", "score-weight"}
}

// ---------------------------------------------------------------------------
// Weighting
// ---------------------------------------------------------------------------

// proportionalWeights converts positive scores into weights proportional to
// score, clamped into [minW, maxW]. At most maxN instruments are selected
// (highest scores first; ties broken by symbol for determinism). Weight
// capped at maxW is redistributed to uncapped instruments; weights that end
// below minW are dropped, their allocation left in cash. The returned
// weights always sum to at most 1.
func proportionalWeights(scores map[string]float64, maxN int, minW, maxW float64) map[string]float64 {
	type scored struct {
		symbol string
		score  float64
	}
	ranked := make([]scored, 0, len(scores))
	for sym, s := range scores {
		if s > 0 {
			ranked = append(ranked, scored{sym, s})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].symbol < ranked[j].symbol
	})
	if maxN > 0 && len(ranked) > maxN {
		ranked = ranked[:maxN]
	}
	if len(ranked) == 0 {
		return map[string]float64{}
	}
	if maxW <= 0 {
		maxW = 1
	}

	total := 0.0
	for _, r := range ranked {
		total += r.score
	}
	weights := make(map[string]float64, len(ranked))
	for _, r := range ranked {
		weights[r.symbol] = r.score / total
	}

	// Cap at maxW and redistribute the excess among uncapped instruments,
	// proportionally to score. A few passes suffice since each pass caps at
	// least one more instrument.
	for range ranked {
		excess := 0.0
		uncappedTotal := 0.0
		for _, r := range ranked {
			if weights[r.symbol] > maxW {
				excess += weights[r.symbol] - maxW
				weights[r.symbol] = maxW
			} else if weights[r.symbol] < maxW {
				uncappedTotal += r.score
			}
		}
		if excess < 1e-12 || uncappedTotal == 0 {
			break
		}
		for _, r := range ranked {
			if weights[r.symbol] < maxW {
				w := weights[r.symbol] + excess*r.score/uncappedTotal
				weights[r.symbol] = math.Min(w, maxW)
			}
		}
	}

	for sym, w := range weights {
		if w < minW {
			delete(weights, sym)
		}
	}
	return weights
}
