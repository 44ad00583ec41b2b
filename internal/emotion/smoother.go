package emotion

import (
	"math/rand"
	"sync"
)

// SmootherConfig configures a per-modality temporal smoother
type SmootherConfig struct {
	Alpha float64 `json:"alpha"` // weight on history, default 0.7
	Drift float64 `json:"drift"` // max random-walk step per axis on failure
}

// DefaultSmootherConfig returns sensible defaults
func DefaultSmootherConfig() SmootherConfig {
	return SmootherConfig{
		Alpha: 0.7,
		Drift: 0.02,
	}
}

// Smoother applies an exponential moving average to one modality's emotion
// vectors. On a failed inference cycle the caller invokes Drift instead of
// Advance, which perturbs the previous output with a bounded random walk so
// downstream consumers see continuity rather than a frozen value.
type Smoother struct {
	mu      sync.RWMutex
	config  SmootherConfig
	current Vector
	primed  bool
	rng     *rand.Rand
}

// NewSmoother creates a smoother with the given config. A non-zero seed makes
// drift deterministic for tests; 0 seeds from the global source.
func NewSmoother(config SmootherConfig, seed int64) *Smoother {
	if config.Alpha < 0 || config.Alpha > 1 {
		config.Alpha = DefaultSmootherConfig().Alpha
	}
	if config.Drift < 0 {
		config.Drift = 0
	}

	var rng *rand.Rand
	if seed != 0 {
		rng = rand.New(rand.NewSource(seed))
	} else {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	return &Smoother{
		config:  config,
		current: Uniform(),
		rng:     rng,
	}
}

// Advance feeds a new observation through the EMA and returns the smoothed
// vector. The first observation primes the smoother without blending.
func (s *Smoother) Advance(observation Vector) Vector {
	s.mu.Lock()
	defer s.mu.Unlock()

	obs := Normalize(observation)
	if !s.primed {
		s.current = obs
		s.primed = true
		return s.current
	}

	s.current = EMA(s.current, obs, s.config.Alpha)
	return s.current
}

// Drift applies a bounded random-walk step to the previous output without
// advancing the EMA. Used when a classifier cycle fails.
func (s *Smoother) Drift() Vector {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.config.Drift
	if d == 0 {
		return s.current
	}

	stepped := Vector{
		Positive:   s.current.Positive + (s.rng.Float64()*2-1)*d,
		Neutral:    s.current.Neutral + (s.rng.Float64()*2-1)*d,
		Frustrated: s.current.Frustrated + (s.rng.Float64()*2-1)*d,
	}
	s.current = Normalize(stepped)
	return s.current
}

// Current returns the latest smoothed vector without advancing state.
func (s *Smoother) Current() Vector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Primed reports whether the smoother has seen at least one observation.
func (s *Smoother) Primed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.primed
}

// Reset clears smoother state back to the uniform vector.
func (s *Smoother) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Uniform()
	s.primed = false
}
