package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/tutorsense/internal/bandit"
)

func newSelfcheckCmd() *cobra.Command {
	var (
		rounds int
		seed   int64
	)

	cmd := &cobra.Command{
		Use:   "selfcheck",
		Short: "Verify policy convergence on a synthetic environment",
		Long: `Runs the difficulty policy against a synthetic two-arm environment
with a known optimal arm and reports how often it was chosen. A healthy
build converges above 70% in the second half of the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})

			res, err := bandit.SelfCheck(seed, rounds, logger)
			if err != nil {
				return err
			}

			fmt.Printf("rounds:          %d\n", res.Rounds)
			fmt.Printf("optimal picks:   %d (%.1f%%)\n", res.OptimalPicks, res.OptimalRate*100)
			fmt.Printf("converged rate:  %.1f%%\n", res.ConvergedRate*100)

			if res.ConvergedRate <= 0.7 {
				return fmt.Errorf("policy failed to converge: %.1f%% optimal in second half", res.ConvergedRate*100)
			}
			fmt.Println("selfcheck passed")
			return nil
		},
	}

	cmd.Flags().IntVar(&rounds, "rounds", 200, "number of simulated rounds")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed for the environment")
	return cmd
}
