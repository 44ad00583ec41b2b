package emotion

import (
	"math"
	"testing"
)

const tol = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tol
}

func TestNormalize_SumsToOne(t *testing.T) {
	tests := []struct {
		name string
		in   Vector
	}{
		{"already normalized", Vector{0.5, 0.3, 0.2}},
		{"unnormalized", Vector{2, 1, 1}},
		{"tiny components", Vector{1e-12, 3e-12, 2e-12}},
		{"clamped above one", Vector{5, 0.5, 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(tt.in)
			if out.Positive < 0 || out.Neutral < 0 || out.Frustrated < 0 {
				t.Errorf("negative component in %+v", out)
			}
			if !almostEqual(out.Sum(), 1.0) {
				t.Errorf("sum = %v, want 1.0", out.Sum())
			}
		})
	}
}

func TestNormalize_UniformFallback(t *testing.T) {
	tests := []struct {
		name string
		in   Vector
	}{
		{"all zero", Vector{}},
		{"all negative", Vector{-1, -2, -3}},
		{"all NaN", Vector{math.NaN(), math.NaN(), math.NaN()}},
		{"all Inf treated as zero after negative clamp", Vector{math.Inf(-1), -1, math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(tt.in)
			want := Uniform()
			if out != want {
				t.Errorf("got %+v, want uniform %+v", out, want)
			}
		})
	}
}

func TestNormalize_SanitizesNaNAndInf(t *testing.T) {
	out := Normalize(Vector{Positive: math.NaN(), Neutral: 0.5, Frustrated: math.Inf(1)})
	// NaN -> 0, +Inf -> 0 after sanitize clamps to [0,1]... Inf is mapped to 0,
	// so only neutral carries weight.
	if !almostEqual(out.Neutral, 1.0) {
		t.Errorf("neutral = %v, want 1.0", out.Neutral)
	}
	if out.Positive != 0 || out.Frustrated != 0 {
		t.Errorf("expected zeroed components, got %+v", out)
	}
}

func TestSoftmax_StableWithLargeLogits(t *testing.T) {
	out := Softmax([]float64{1000, 1001, 1002})

	var sum float64
	for _, p := range out {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Fatalf("softmax produced non-finite value: %v", out)
		}
		sum += p
	}
	if !almostEqual(sum, 1.0) {
		t.Errorf("softmax sum = %v, want 1.0", sum)
	}
	if !(out[2] > out[1] && out[1] > out[0]) {
		t.Errorf("softmax did not preserve ordering: %v", out)
	}
}

func TestSoftmax_Empty(t *testing.T) {
	if out := Softmax(nil); out != nil {
		t.Errorf("expected nil for empty logits, got %v", out)
	}
}

func TestMapSevenToThree(t *testing.T) {
	// [angry, disgust, fear, happy, sad, surprise, neutral]
	v7 := []float64{0.1, 0.05, 0.05, 0.3, 0.1, 0.1, 0.3}
	out, err := MapSevenToThree(v7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// positive = happy + surprise = 0.4
	// frustrated = sad + angry + fear + disgust = 0.3
	// neutral = 0.3
	if !almostEqual(out.Positive, 0.4) {
		t.Errorf("positive = %v, want 0.4", out.Positive)
	}
	if !almostEqual(out.Neutral, 0.3) {
		t.Errorf("neutral = %v, want 0.3", out.Neutral)
	}
	if !almostEqual(out.Frustrated, 0.3) {
		t.Errorf("frustrated = %v, want 0.3", out.Frustrated)
	}
}

func TestMapSevenToThree_WrongLength(t *testing.T) {
	if _, err := MapSevenToThree([]float64{0.5, 0.5}); err != ErrBadClassCount {
		t.Errorf("expected ErrBadClassCount, got %v", err)
	}
}

func TestEMA_FixedPoint(t *testing.T) {
	v := Vector{Positive: 0.6, Neutral: 0.25, Frustrated: 0.15}
	for _, alpha := range []float64{0, 0.3, 0.5, 0.7, 1} {
		out := EMA(v, v, alpha)
		if math.Abs(out.Positive-v.Positive) > tol ||
			math.Abs(out.Neutral-v.Neutral) > tol ||
			math.Abs(out.Frustrated-v.Frustrated) > tol {
			t.Errorf("alpha=%v: ema(v, v) = %+v, want %+v", alpha, out, v)
		}
	}
}

func TestEMA_BlendsTowardObservation(t *testing.T) {
	prev := Vector{Positive: 1, Neutral: 0, Frustrated: 0}
	obs := Vector{Positive: 0, Neutral: 0, Frustrated: 1}

	out := EMA(prev, obs, 0.7)
	if !almostEqual(out.Positive, 0.7) || !almostEqual(out.Frustrated, 0.3) {
		t.Errorf("got %+v, want 70%% history", out)
	}
}
