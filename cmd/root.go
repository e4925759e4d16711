// Package cmd is the CLI entrypoint, a cobra.Command tree grounded on the
// teacher's cmd/build.go (cobra.Command wiring, config/profile flags,
// signal-handling skeleton) — generalized here from a ports build to a
// single "run" subcommand driving the Work Loop.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "batchrun",
	Short: "batchrun drives a manifest of input files through an external binary under host resource limits",
}

// Execute runs the CLI and exits the process with the Work Loop's reported
// code, or 2 on a configuration/argument error encountered before the Work
// Loop ever starts.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
