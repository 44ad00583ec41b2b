package emotion

import (
	"math"
	"testing"
)

func TestSmoother_FirstObservationPrimes(t *testing.T) {
	s := NewSmoother(DefaultSmootherConfig(), 1)

	obs := Vector{Positive: 0.8, Neutral: 0.1, Frustrated: 0.1}
	out := s.Advance(obs)

	if math.Abs(out.Positive-0.8) > tol {
		t.Errorf("first observation should pass through, got %+v", out)
	}
	if !s.Primed() {
		t.Error("smoother should be primed after first observation")
	}
}

func TestSmoother_AdvanceWeightsHistory(t *testing.T) {
	s := NewSmoother(SmootherConfig{Alpha: 0.7, Drift: 0.02}, 1)

	s.Advance(Vector{Positive: 1, Neutral: 0, Frustrated: 0})
	out := s.Advance(Vector{Positive: 0, Neutral: 1, Frustrated: 0})

	if math.Abs(out.Positive-0.7) > tol || math.Abs(out.Neutral-0.3) > tol {
		t.Errorf("got %+v, want {0.7 0.3 0}", out)
	}
}

func TestSmoother_DriftStaysBoundedAndNormalized(t *testing.T) {
	s := NewSmoother(SmootherConfig{Alpha: 0.7, Drift: 0.02}, 42)

	s.Advance(Vector{Positive: 0.5, Neutral: 0.3, Frustrated: 0.2})
	before := s.Current()

	for i := 0; i < 50; i++ {
		out := s.Drift()
		if math.Abs(out.Sum()-1.0) > tol {
			t.Fatalf("drift output not normalized: sum=%v", out.Sum())
		}
		if out.Positive < 0 || out.Neutral < 0 || out.Frustrated < 0 {
			t.Fatalf("drift produced negative component: %+v", out)
		}
	}

	after := s.Current()
	if before == after {
		t.Error("drift should perturb the vector")
	}
}

func TestSmoother_ZeroDriftIsNoop(t *testing.T) {
	s := NewSmoother(SmootherConfig{Alpha: 0.7, Drift: 0}, 1)

	s.Advance(Vector{Positive: 0.5, Neutral: 0.3, Frustrated: 0.2})
	before := s.Current()
	after := s.Drift()

	if before != after {
		t.Errorf("zero drift changed the vector: %+v -> %+v", before, after)
	}
}

func TestSmoother_Reset(t *testing.T) {
	s := NewSmoother(DefaultSmootherConfig(), 1)

	s.Advance(Vector{Positive: 0.9, Neutral: 0.05, Frustrated: 0.05})
	s.Reset()

	if s.Primed() {
		t.Error("reset should clear primed flag")
	}
	if s.Current() != Uniform() {
		t.Errorf("reset should restore uniform, got %+v", s.Current())
	}
}

func TestSmoother_InvalidAlphaFallsBackToDefault(t *testing.T) {
	s := NewSmoother(SmootherConfig{Alpha: 1.5, Drift: 0.02}, 1)

	s.Advance(Vector{Positive: 1, Neutral: 0, Frustrated: 0})
	out := s.Advance(Vector{Positive: 0, Neutral: 1, Frustrated: 0})

	// Default alpha 0.7 should apply
	if math.Abs(out.Positive-0.7) > tol {
		t.Errorf("expected default alpha behavior, got %+v", out)
	}
}
