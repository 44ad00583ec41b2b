// Package reward computes the scalar learning-adaptation signal from
// correctness, engagement, and mastery gain.
package reward

import (
	"errors"
	"sync"

	"github.com/normanking/tutorsense/internal/emotion"
)

// ErrNegativeWeight is returned when custom weights contain a negative value.
var ErrNegativeWeight = errors.New("reward weights must be non-negative")

// ErrUnknownPreset is returned for an unrecognized preset name.
var ErrUnknownPreset = errors.New("unknown reward preset")

// Weights are the reward coefficients. Read-only during a computation.
type Weights struct {
	Alpha float64 `json:"alpha"` // correctness
	Beta  float64 `json:"beta"`  // engagement
	Gamma float64 `json:"gamma"` // mastery gain
}

// Preset names
const (
	PresetBaseline     = "baseline"
	PresetAggressive   = "aggressive"
	PresetConservative = "conservative"
)

// PresetWeights returns the named preset.
func PresetWeights(name string) (Weights, error) {
	switch name {
	case PresetBaseline:
		return Weights{Alpha: 1.0, Beta: 0.3, Gamma: 0.5}, nil
	case PresetAggressive:
		// Leans harder on measurable progress than on affect.
		return Weights{Alpha: 1.2, Beta: 0.2, Gamma: 0.7}, nil
	case PresetConservative:
		// Weighs engagement up to avoid frustrating the learner.
		return Weights{Alpha: 0.8, Beta: 0.5, Gamma: 0.3}, nil
	default:
		return Weights{}, ErrUnknownPreset
	}
}

// Engagement derives the engagement signal from a fused emotion vector:
// positive minus frustrated, clamped to [-1, 1].
func Engagement(v emotion.Vector) float64 {
	e := v.Positive - v.Frustrated
	if e < -1 {
		return -1
	}
	if e > 1 {
		return 1
	}
	return e
}

// MasteryGain is the positive part of the mastery delta. Regression is
// floored to zero so the reward never penalizes through this term.
func MasteryGain(prevMastery, currentMastery float64) float64 {
	d := currentMastery - prevMastery
	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}

// Compute is the pure reward function:
// alpha*correct + beta*engagement + gamma*masteryGain.
func (w Weights) Compute(correct bool, engagement, masteryGain float64) float64 {
	c := 0.0
	if correct {
		c = 1.0
	}
	return w.Alpha*c + w.Beta*engagement + w.Gamma*masteryGain
}

// Engine holds the active weights, swappable at runtime via preset or custom
// values. Computation itself stays pure; the engine only owns the weights.
type Engine struct {
	mu      sync.RWMutex
	weights Weights
	preset  string
}

// NewEngine creates a reward engine with the baseline preset.
func NewEngine() *Engine {
	w, _ := PresetWeights(PresetBaseline)
	return &Engine{weights: w, preset: PresetBaseline}
}

// SetPreset swaps the active weights to a named preset.
func (e *Engine) SetPreset(name string) error {
	w, err := PresetWeights(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.weights = w
	e.preset = name
	return nil
}

// SetCustom swaps in explicit weights.
func (e *Engine) SetCustom(w Weights) error {
	if w.Alpha < 0 || w.Beta < 0 || w.Gamma < 0 {
		return ErrNegativeWeight
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.weights = w
	e.preset = "custom"
	return nil
}

// Weights returns the active weights.
func (e *Engine) Weights() Weights {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weights
}

// Preset returns the active preset name ("custom" for explicit weights).
func (e *Engine) Preset() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.preset
}

// Compute evaluates the reward under the active weights.
func (e *Engine) Compute(correct bool, fused emotion.Vector, prevMastery, currentMastery float64) float64 {
	return e.Weights().Compute(correct, Engagement(fused), MasteryGain(prevMastery, currentMastery))
}
