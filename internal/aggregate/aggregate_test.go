package aggregate

import (
	"errors"
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func sum(weights map[string]float64) float64 {
	var total float64
	for _, w := range weights {
		total += w
	}
	return total
}

func split(v float64) *float64 {
	return &v
}

func TestCombine_DeclaredSplits(t *testing.T) {
	vectors := []CampaignVector{
		{Scope: "x", Split: split(70), Weights: map[string]float64{"a": 0.6, "b": 0.4}},
		{Scope: "y", Split: split(30), Weights: map[string]float64{"a": 0.2, "c": 0.8}},
	}

	got, err := Combine(vectors, "owner")
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	want := map[string]float64{
		"a": 0.7*0.6 + 0.3*0.2,
		"b": 0.7 * 0.4,
		"c": 0.3 * 0.8,
	}
	for id, w := range want {
		if !approx(got[id], w) {
			t.Errorf("%s: got %v, want %v", id, got[id], w)
		}
	}
	if !approx(sum(got), 1.0) {
		t.Errorf("sum=%v, want 1.0", sum(got))
	}
}

func TestCombine_UndeclaredCampaignExcluded(t *testing.T) {
	vectors := []CampaignVector{
		{Scope: "x", Split: split(50), Weights: map[string]float64{"a": 1.0}},
		{Scope: "y", Weights: map[string]float64{"b": 1.0}},
	}

	got, err := Combine(vectors, "owner")
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	// The declared campaign's split renormalizes to 1; the undeclared one
	// contributes nothing.
	if !approx(got["a"], 1.0) {
		t.Errorf("a: got %v, want 1.0", got["a"])
	}
	if got["b"] != 0 {
		t.Errorf("b: got %v, want 0", got["b"])
	}
}

func TestCombine_UniformFallback(t *testing.T) {
	vectors := []CampaignVector{
		{Scope: "x", Weights: map[string]float64{"a": 1.0}},
		{Scope: "y", Weights: map[string]float64{"b": 1.0}},
	}

	got, err := Combine(vectors, "owner")
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if !approx(got["a"], 0.5) || !approx(got["b"], 0.5) {
		t.Errorf("got %v, want uniform 0.5/0.5", got)
	}
}

func TestCombine_AllZeroFallsBackToBeneficiary(t *testing.T) {
	vectors := []CampaignVector{
		{Scope: "x", Split: split(60), Weights: map[string]float64{"a": 0, "b": 0}},
		{Scope: "y", Split: split(40), Weights: map[string]float64{"c": 0}},
	}

	got, err := Combine(vectors, "owner")
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if !approx(got["owner"], 1.0) {
		t.Errorf("owner: got %v, want 1.0", got["owner"])
	}
	for _, id := range []string{"a", "b", "c"} {
		if got[id] != 0 {
			t.Errorf("%s: got %v, want 0", id, got[id])
		}
	}
}

func TestCombine_EmptyCampaignList(t *testing.T) {
	got, err := Combine(nil, "owner")
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if !approx(got["owner"], 1.0) || len(got) != 1 {
		t.Errorf("got %v, want owner-only vector", got)
	}
}

func TestCombine_AllZeroWithoutBeneficiary(t *testing.T) {
	_, err := Combine(nil, "")
	if !errors.Is(err, ErrNoBeneficiary) {
		t.Errorf("got %v, want ErrNoBeneficiary", err)
	}
}

func TestCombine_DriftCorrection(t *testing.T) {
	// Splits that do not divide evenly leave floating-point drift; the
	// result must still sum to exactly 1.
	vectors := []CampaignVector{
		{Scope: "x", Split: split(33.3), Weights: map[string]float64{"a": 1.0 / 3, "b": 2.0 / 3}},
		{Scope: "y", Split: split(66.7), Weights: map[string]float64{"b": 0.1, "c": 0.9}},
	}
	got, err := Combine(vectors, "owner")
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if s := sum(got); math.Abs(s-1.0) > 1e-12 {
		t.Errorf("sum=%v, want 1.0 after renormalization", s)
	}
}
