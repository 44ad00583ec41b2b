// Package emotion provides the canonical 3-class emotion vector and the
// conversions from raw classifier output.
package emotion

import (
	"errors"
	"math"
)

// Seven-class order emitted by the upstream classifiers.
// positive = happy + surprise; frustrated = sad + angry + fear + disgust.
const (
	classAngry = iota
	classDisgust
	classFear
	classHappy
	classSad
	classSurprise
	classNeutral
	numClasses
)

// ErrBadClassCount is returned when a classifier vector has the wrong length.
var ErrBadClassCount = errors.New("emotion: expected 7-class vector")

// Vector is the canonical emotion distribution. Components are non-negative
// and sum to 1 after every producing operation. Values are never mutated in
// place; operations return a new Vector.
type Vector struct {
	Positive   float64 `json:"positive"`
	Neutral    float64 `json:"neutral"`
	Frustrated float64 `json:"frustrated"`
}

// Uniform returns the maximum-entropy fallback vector.
func Uniform() Vector {
	return Vector{Positive: 1.0 / 3, Neutral: 1.0 / 3, Frustrated: 1.0 / 3}
}

// Sum returns the component sum.
func (v Vector) Sum() float64 {
	return v.Positive + v.Neutral + v.Frustrated
}

// sanitize maps NaN/Inf to 0 and clamps into [0,1].
func sanitize(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Normalize clamps each component to [0,1] (NaN/Inf become 0) and rescales so
// the components sum to 1. A non-positive sum yields the uniform vector.
func Normalize(v Vector) Vector {
	p := sanitize(v.Positive)
	n := sanitize(v.Neutral)
	f := sanitize(v.Frustrated)

	sum := p + n + f
	if sum <= 0 {
		return Uniform()
	}
	return Vector{Positive: p / sum, Neutral: n / sum, Frustrated: f / sum}
}

// Softmax converts logits into a probability distribution. The max logit is
// subtracted first for numerical stability.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}

	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// MapSevenToThree collapses a 7-class classifier distribution
// [angry, disgust, fear, happy, sad, surprise, neutral] into the canonical
// 3-class vector and normalizes the result.
func MapSevenToThree(v7 []float64) (Vector, error) {
	if len(v7) != numClasses {
		return Vector{}, ErrBadClassCount
	}
	v := Vector{
		Positive:   v7[classHappy] + v7[classSurprise],
		Neutral:    v7[classNeutral],
		Frustrated: v7[classSad] + v7[classAngry] + v7[classFear] + v7[classDisgust],
	}
	return Normalize(v), nil
}

// EMA blends a previous vector with a new observation
// (alpha on history, 1-alpha on the observation) and renormalizes.
func EMA(previous, current Vector, alpha float64) Vector {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	next := Vector{
		Positive:   alpha*previous.Positive + (1-alpha)*current.Positive,
		Neutral:    alpha*previous.Neutral + (1-alpha)*current.Neutral,
		Frustrated: alpha*previous.Frustrated + (1-alpha)*current.Frustrated,
	}
	return Normalize(next)
}
