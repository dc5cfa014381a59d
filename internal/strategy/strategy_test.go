package strategy

import (
	"context"
	"math"
	"testing"
	"time"
)

func snapshotOf(symbols ...string) Snapshot {
	snap := Snapshot{Date: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)}
	for _, sym := range symbols {
		snap.Instruments = append(snap.Instruments, InstrumentData{Symbol: sym, Price: 100})
	}
	return snap
}

func sumWeights(weights map[string]float64) float64 {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	return sum
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(NewEqualWeight(Limits{}))
	r.Register(NewMomentum(126, Limits{}))

	if _, ok := r.Get("equal-weight"); !ok {
		t.Error(`Get("equal-weight") not found`)
	}
	if _, ok := r.Get("nope"); ok {
		t.Error(`Get("nope") found, want miss`)
	}

	names := r.List()
	if len(names) != 2 || names[0] != "equal-weight" || names[1] != "momentum" {
		t.Errorf("List() = %v, want [equal-weight momentum]", names)
	}
}

func TestNewFactory(t *testing.T) {
	for _, name := range Names() {
		s, err := New(name, nil, Limits{})
		if err != nil {
			t.Fatalf("New(%q) error: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("New(%q).Name() = %q", name, s.Name())
		}
	}
	if _, err := New("bogus", nil, Limits{}); err == nil {
		t.Error(`New("bogus") succeeded, want error`)
	}
}

func TestEqualWeight(t *testing.T) {
	s := NewEqualWeight(Limits{MaxPositions: 3, MinWeight: 0.01, MaxWeight: 0.5})

	weights, err := s.TargetWeights(context.Background(), snapshotOf("D", "B", "A", "C", "E"))
	if err != nil {
		t.Fatalf("TargetWeights error: %v", err)
	}
	// Alphabetically first 3 symbols at 1/3 each.
	if len(weights) != 3 {
		t.Fatalf("got %d weights, want 3: %v", len(weights), weights)
	}
	for _, sym := range []string{"A", "B", "C"} {
		if math.Abs(weights[sym]-1.0/3) > 1e-12 {
			t.Errorf("weights[%s] = %v, want 1/3", sym, weights[sym])
		}
	}

	// Max weight caps the per-position allocation, leaving cash.
	capped := NewEqualWeight(Limits{MaxPositions: 2, MaxWeight: 0.2})
	weights, _ = capped.TargetWeights(context.Background(), snapshotOf("A", "B"))
	if weights["A"] != 0.2 || weights["B"] != 0.2 {
		t.Errorf("capped weights = %v, want 0.2 each", weights)
	}

	// Empty universe yields empty weights, not an error.
	weights, err = s.TargetWeights(context.Background(), Snapshot{})
	if err != nil || len(weights) != 0 {
		t.Errorf("empty snapshot = %v, %v, want empty map, nil", weights, err)
	}
}

func TestMomentum(t *testing.T) {
	up := make([]float64, 50)
	down := make([]float64, 50)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 150 - float64(i)
	}

	snap := Snapshot{
		Instruments: []InstrumentData{
			{Symbol: "UP", Price: up[len(up)-1], Closes: up},
			{Symbol: "DOWN", Price: down[len(down)-1], Closes: down},
			{Symbol: "SHORT", Price: 100, Closes: []float64{100, 101}},
		},
	}

	s := NewMomentum(20, Limits{MaxPositions: 10, MaxWeight: 1})
	weights, err := s.TargetWeights(context.Background(), snap)
	if err != nil {
		t.Fatalf("TargetWeights error: %v", err)
	}

	if weights["UP"] <= 0 {
		t.Errorf("uptrending instrument got weight %v, want > 0", weights["UP"])
	}
	if _, ok := weights["DOWN"]; ok {
		t.Errorf("downtrending instrument got weight %v, want none", weights["DOWN"])
	}
	if _, ok := weights["SHORT"]; ok {
		t.Error("instrument with insufficient history got a weight, want none")
	}
}

func TestScoreWeight(t *testing.T) {
	snap := Snapshot{
		Instruments: []InstrumentData{
			{Symbol: "A", Score: 3, HasScore: true},
			{Symbol: "B", Score: 1, HasScore: true},
			{Symbol: "C", Score: -2, HasScore: true},
			{Symbol: "D"}, // no score supplied
		},
	}

	s := NewScoreWeight(Limits{MaxPositions: 10, MaxWeight: 1})
	weights, err := s.TargetWeights(context.Background(), snap)
	if err != nil {
		t.Fatalf("TargetWeights error: %v", err)
	}

	if math.Abs(weights["A"]-0.75) > 1e-12 || math.Abs(weights["B"]-0.25) > 1e-12 {
		t.Errorf("weights = %v, want A=0.75 B=0.25", weights)
	}
	if _, ok := weights["C"]; ok {
		t.Error("negative score got a weight, want none")
	}
	if _, ok := weights["D"]; ok {
		t.Error("unscored instrument got a weight, want none")
	}
}

func TestProportionalWeights(t *testing.T) {
	t.Run("proportional to score", func(t *testing.T) {
		weights := proportionalWeights(map[string]float64{"A": 2, "B": 1, "C": 1}, 10, 0, 1)
		if math.Abs(weights["A"]-0.5) > 1e-12 {
			t.Errorf("weights[A] = %v, want 0.5", weights["A"])
		}
		if math.Abs(sumWeights(weights)-1) > 1e-9 {
			t.Errorf("sum = %v, want 1", sumWeights(weights))
		}
	})

	t.Run("top N by score with symbol tiebreak", func(t *testing.T) {
		weights := proportionalWeights(map[string]float64{"A": 1, "B": 3, "C": 1, "D": 2}, 2, 0, 1)
		if len(weights) != 2 {
			t.Fatalf("got %d weights, want 2: %v", len(weights), weights)
		}
		if _, ok := weights["B"]; !ok {
			t.Error("top score B not selected")
		}
		if _, ok := weights["D"]; !ok {
			t.Error("second score D not selected")
		}
	})

	t.Run("cap redistributes then leaves cash", func(t *testing.T) {
		// One dominant score: capped at 0.3, the rest split the remainder
		// proportionally until they hit the cap too.
		weights := proportionalWeights(map[string]float64{"A": 98, "B": 1, "C": 1}, 10, 0, 0.3)
		if weights["A"] > 0.3+1e-12 {
			t.Errorf("weights[A] = %v, want <= 0.3", weights["A"])
		}
		if sum := sumWeights(weights); sum > 1+1e-9 {
			t.Errorf("sum = %v, want <= 1", sum)
		}
		for sym, w := range weights {
			if w > 0.3+1e-12 {
				t.Errorf("weights[%s] = %v exceeds cap", sym, w)
			}
		}
	})

	t.Run("below minimum dropped to cash", func(t *testing.T) {
		weights := proportionalWeights(map[string]float64{"A": 99, "B": 1}, 10, 0.05, 1)
		if _, ok := weights["B"]; ok {
			t.Errorf("weights[B] = %v, want dropped below minimum", weights["B"])
		}
	})

	t.Run("no positive scores", func(t *testing.T) {
		weights := proportionalWeights(map[string]float64{"A": -1, "B": 0}, 10, 0, 1)
		if len(weights) != 0 {
			t.Errorf("weights = %v, want empty", weights)
		}
	})
}
