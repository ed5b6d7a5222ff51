package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sernet",
		Short: "SER cellular automaton simulations on weighted connectomes",
		Long: `sernet runs the Susceptible-Excited-Refractory (SER) stochastic cellular
automaton on a weighted connectome and records which nodes are excited,
quiescent or refractory at every step.

Each run gets its own directory holding a copy of the connectome, the
effective configuration and the activation matrix. Runs are recorded in a
registry under <root>/.sernet.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory (holds the run registry)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, trace (default: from config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newRunsCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}
