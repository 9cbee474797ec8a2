package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nengo-mpi/nmpi/sim"
)

var (
	networkPath string         // Network description (YAML)
	configPath  string         // Run config (YAML); explicit flags win over it
	logLevel    string         // Log verbosity level
	components  int            // Requested number of components
	strategy    string         // Partition strategy name
	assignments map[string]int // Explicit entity → component placement
	mergeNodes  bool           // Fold pass-through source nodes into the clusters they feed
	dt          float64        // Timestep in seconds
	steps       int            // Number of steps to run
	duration    float64        // Simulated seconds to run; overrides steps
	saveFile    string         // Network file (SQLite) holding compiled programs
	runID       string         // Run to load from the network file; empty loads the latest
	traceLevel  string         // Partition decision trace level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "nmpi",
	Short: "Partitioned lock-step simulator for numeric dataflow networks",
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addPartitionFlags registers the flags shared by commands that build and
// partition a network.
func addPartitionFlags(c *cobra.Command) {
	c.Flags().StringVar(&networkPath, "network", "", "Path to the network description (YAML)")
	c.Flags().StringVar(&configPath, "config", "", "Path to a run config (YAML); explicit flags take precedence")
	c.Flags().IntVar(&components, "components", 1, "Number of components to partition the network into")
	c.Flags().StringVar(&strategy, "strategy", "", "Partition strategy (work-balanced, metis)")
	c.Flags().StringToIntVar(&assignments, "assignments", nil, "Explicit placement as entity=component pairs")
	c.Flags().BoolVar(&mergeNodes, "merge-nodes", true, "Replicate pass-through source nodes into the clusters they feed")
	c.Flags().Float64Var(&dt, "dt", sim.DefaultDT, "Simulation timestep in seconds")
	c.Flags().StringVar(&traceLevel, "trace", "none", "Partition trace level (none, decisions)")
}

func addStepFlags(c *cobra.Command) {
	c.Flags().IntVar(&steps, "steps", 1000, "Number of steps to simulate")
	c.Flags().Float64Var(&duration, "duration", 0, "Simulated seconds to run; overrides --steps")
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	addPartitionFlags(runCmd)
	addStepFlags(runCmd)
	runCmd.Flags().StringVar(&saveFile, "save-file", "", "Also save the compiled programs to this network file")

	addPartitionFlags(compileCmd)
	compileCmd.Flags().StringVar(&saveFile, "save-file", "", "Network file to write the compiled programs to")

	addStepFlags(loadCmd)
	loadCmd.Flags().StringVar(&saveFile, "save-file", "", "Network file to load")
	loadCmd.Flags().StringVar(&runID, "run-id", "", "Run to load; defaults to the latest")

	addPartitionFlags(partitionCmd)

	rootCmd.AddCommand(runCmd, compileCmd, loadCmd, partitionCmd)
}
