package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nengo-mpi/nmpi/sim"
	"github.com/nengo-mpi/nmpi/sim/distributed"
	"github.com/nengo-mpi/nmpi/sim/trace"
)

// runCmd builds, partitions, compiles and simulates a network, printing the
// probe data as JSON on stdout.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a network and print its probe data",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		o, err := resolveOptions(configPath, cmd.Flags().Changed)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		net := loadNetwork(o.Network)

		startTime := time.Now()
		if err := simulate(cmd.Context(), net, o, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %s.", time.Since(startTime))
	},
}

func loadNetwork(path string) *sim.Network {
	if path == "" {
		logrus.Fatalf("Network file not provided (--network).")
	}
	net, err := sim.LoadNetwork(path)
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	return net
}

// simulate runs net under o and writes the probe report to w.
func simulate(ctx context.Context, net *sim.Network, o options, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	plan, err := distributed.NewPlan(ctx, net, o.distributedConfig())
	if err != nil {
		return err
	}
	logTrace(plan.Trace)

	// Programs always pass through a store: the network file when one is
	// given, process memory otherwise.
	st, err := openStore(ctx, o.SaveFile)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	run, err := stageRun(ctx, st, net.Label, plan.Programs)
	if err != nil {
		return err
	}
	id := ""
	if o.SaveFile != "" {
		id = run.ID
		logrus.Infof("Saved run %s (%d components) to %s", run.ID, run.Components, o.SaveFile)
	}

	s, err := distributed.New(run.Programs)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			logrus.Warnf("closing simulator: %v", cerr)
		}
	}()
	n := o.stepCount(s.DT())
	logrus.Infof("Running %d steps on %d components", n, s.NComponents())
	if err := s.RunSteps(ctx, n); err != nil {
		return fmt.Errorf("running %q: %w", net.Label, err)
	}
	return writeProbes(w, id, s)
}

func logTrace(pt *trace.PartitionTrace) {
	if !pt.Enabled() {
		return
	}
	sum := trace.Summarize(pt)
	logrus.Infof("partition (%s): %d clusters on %d components, %d cut edges (weight %.0f), loads %v, imbalance %.3f",
		pt.Strategy, sum.TotalClusters, pt.Effective, sum.CutEdges, sum.TotalCutWeight, sum.ComponentLoads, sum.ImbalanceRatio)
	for _, c := range pt.Clusters {
		logrus.Infof("  cluster %d -> component %d: %v (folded %v, cost %.0f)", c.Cluster, c.Component, c.Entities, c.Folded, c.Cost)
	}
}
