package bandit

import (
	"math/rand"

	"github.com/rs/zerolog"
)

// SelfCheckResult summarizes one synthetic policy run.
type SelfCheckResult struct {
	Rounds        int     `json:"rounds"`
	OptimalPicks  int     `json:"optimal_picks"`
	OptimalRate   float64 `json:"optimal_rate"`
	ConvergedRate float64 `json:"converged_rate"` // rate over the second half
}

// SelfCheck exercises the policy against a synthetic two-arm environment:
// the context is [1, u] with u uniform in [0, 1), arm "raise" pays 1 when
// u > 0.5 and arm "lower" pays 1 otherwise. With an intercept feature the
// boundary is exactly linear, so a healthy policy converges within a few
// dozen rounds. Used both by tests and the selfcheck command.
func SelfCheck(seed int64, rounds int, logger zerolog.Logger) (SelfCheckResult, error) {
	policy, err := NewPolicy(&Config{Exploration: 0.5, Ridge: 1.0}, 2, []string{"raise", "lower"}, nil, logger)
	if err != nil {
		return SelfCheckResult{}, err
	}

	rng := rand.New(rand.NewSource(seed))
	res := SelfCheckResult{Rounds: rounds}
	var secondHalfPicks, secondHalfRounds int

	for round := 0; round < rounds; round++ {
		u := rng.Float64()
		features := []float64{1, u}

		optimal := "lower"
		if u > 0.5 {
			optimal = "raise"
		}

		chosen, _, err := policy.Select(features)
		if err != nil {
			return SelfCheckResult{}, err
		}

		reward := 0.0
		if chosen == optimal {
			reward = 1.0
			res.OptimalPicks++
			if round >= rounds/2 {
				secondHalfPicks++
			}
		}
		if round >= rounds/2 {
			secondHalfRounds++
		}

		if err := policy.Update(features, reward, chosen); err != nil {
			return SelfCheckResult{}, err
		}
	}

	if rounds > 0 {
		res.OptimalRate = float64(res.OptimalPicks) / float64(rounds)
	}
	if secondHalfRounds > 0 {
		res.ConvergedRate = float64(secondHalfPicks) / float64(secondHalfRounds)
	}
	return res, nil
}
