// Package bandit implements the LinUCB contextual policy that picks the next
// difficulty adjustment from the session feature vector.
package bandit

import (
	"errors"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorsense/internal/bus"
)

// ErrUnknownArm is returned for an arm id outside the configured set.
var ErrUnknownArm = errors.New("unknown bandit arm")

// ErrDimensionMismatch is returned when a feature vector has the wrong length.
var ErrDimensionMismatch = errors.New("feature dimension mismatch")

// Config holds policy configuration
type Config struct {
	Exploration float64 `json:"exploration"` // UCB bonus multiplier (alpha)
	Ridge       float64 `json:"ridge"`       // initial diagonal of each design matrix
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Exploration: 1.0,
		Ridge:       1.0,
	}
}

// armState is the per-arm ridge regression state: A accumulates x·xᵀ over the
// arm's observed contexts, b accumulates reward-weighted contexts.
type armState struct {
	a     [][]float64
	b     []float64
	pulls uint64
}

// ArmSnapshot is a read-only view of one arm for inspectors.
type ArmSnapshot struct {
	ID    string    `json:"id"`
	Pulls uint64    `json:"pulls"`
	Theta []float64 `json:"theta"`
}

// Policy is a LinUCB contextual bandit over a fixed arm set. Arm state is
// allocated lazily on first touch; an arm never pulled costs nothing beyond
// its id.
type Policy struct {
	mu     sync.Mutex
	config *Config
	dim    int
	armIDs []string
	arms   map[string]*armState

	eventBus *bus.EventBus
	logger   zerolog.Logger
}

// NewPolicy creates a policy over the given arm ids with feature dimension dim.
func NewPolicy(config *Config, dim int, armIDs []string, eventBus *bus.EventBus, logger zerolog.Logger) (*Policy, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Exploration < 0 {
		config.Exploration = 0
	}
	if config.Ridge <= 0 {
		config.Ridge = 1.0
	}
	if dim < 1 {
		return nil, errors.New("feature dimension must be at least 1")
	}
	if len(armIDs) == 0 {
		return nil, errors.New("at least one arm is required")
	}

	ids := make([]string, len(armIDs))
	copy(ids, armIDs)

	return &Policy{
		config:   config,
		dim:      dim,
		armIDs:   ids,
		arms:     make(map[string]*armState),
		eventBus: eventBus,
		logger:   logger.With().Str("component", "bandit").Logger(),
	}, nil
}

// Arms returns the configured arm ids in selection order.
func (p *Policy) Arms() []string {
	out := make([]string, len(p.armIDs))
	copy(out, p.armIDs)
	return out
}

// armLocked returns the arm's state, allocating it on first touch.
func (p *Policy) armLocked(id string) (*armState, error) {
	if st, ok := p.arms[id]; ok {
		return st, nil
	}
	for _, known := range p.armIDs {
		if known == id {
			st := &armState{
				a: identity(p.dim, p.config.Ridge),
				b: make([]float64, p.dim),
			}
			p.arms[id] = st
			return st, nil
		}
	}
	return nil, ErrUnknownArm
}

// scoreLocked computes theta·x plus the exploration bonus for one arm. A
// singular design matrix falls back to the identity so the score stays finite.
func (p *Policy) scoreLocked(st *armState, features []float64) float64 {
	inv, ok := invert(st.a)
	if !ok {
		p.logger.Warn().Msg("Singular design matrix, using identity for this score")
	}
	theta := matVec(inv, st.b)
	exploit := dot(theta, features)
	bonus := p.config.Exploration * math.Sqrt(dot(features, matVec(inv, features)))
	return exploit + bonus
}

// Score returns the UCB score of a single arm for the given context.
func (p *Policy) Score(features []float64, arm string) (float64, error) {
	if len(features) != p.dim {
		return 0, ErrDimensionMismatch
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	st, err := p.armLocked(arm)
	if err != nil {
		return 0, err
	}
	return p.scoreLocked(st, features), nil
}

// Select scores every arm for the context and returns the winner. Ties go to
// the arm listed first, so selection is deterministic for identical state.
func (p *Policy) Select(features []float64) (string, float64, error) {
	if len(features) != p.dim {
		return "", 0, ErrDimensionMismatch
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	best := ""
	bestScore := math.Inf(-1)
	for _, id := range p.armIDs {
		st, err := p.armLocked(id)
		if err != nil {
			return "", 0, err
		}
		if s := p.scoreLocked(st, features); s > bestScore {
			best = id
			bestScore = s
		}
	}

	if p.eventBus != nil {
		p.eventBus.Publish(bus.Event{
			Type: bus.EventTypeActionChosen,
			Data: map[string]any{"arm": best, "score": bestScore},
		})
	}
	return best, bestScore, nil
}

// Update folds an observed (context, reward) pair into the chosen arm:
// A += x·xᵀ and b += reward·x.
func (p *Policy) Update(features []float64, reward float64, arm string) error {
	if len(features) != p.dim {
		return ErrDimensionMismatch
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	st, err := p.armLocked(arm)
	if err != nil {
		return err
	}
	addOuter(st.a, features)
	for i := range features {
		st.b[i] += reward * features[i]
	}
	st.pulls++

	p.logger.Debug().
		Str("arm", arm).
		Float64("reward", reward).
		Uint64("pulls", st.pulls).
		Msg("Policy updated")
	return nil
}

// Snapshot returns per-arm estimates for inspectors. Untouched arms report a
// zero theta and zero pulls.
func (p *Policy) Snapshot() []ArmSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ArmSnapshot, 0, len(p.armIDs))
	for _, id := range p.armIDs {
		snap := ArmSnapshot{ID: id, Theta: make([]float64, p.dim)}
		if st, ok := p.arms[id]; ok {
			snap.Pulls = st.pulls
			if inv, ok := invert(st.a); ok {
				snap.Theta = matVec(inv, st.b)
			}
		}
		out = append(out, snap)
	}
	return out
}

// Reset drops all learned arm state.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.arms = make(map[string]*armState)
}
