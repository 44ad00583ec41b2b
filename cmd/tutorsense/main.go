// TutorSense command line entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "tutorsense",
	Short: "Emotion-aware adaptive tutoring pipeline",
	Long: `TutorSense fuses face and voice emotion signals into a per-learner
affect estimate and adapts question difficulty with a contextual bandit.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tutorsense %s (%s)\n", version, commit)
	},
}

func main() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSelfcheckCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
