package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nengo-mpi/nmpi/sim"
	"github.com/nengo-mpi/nmpi/sim/distributed"
	"github.com/nengo-mpi/nmpi/sim/trace"
)

// partitionCmd prints the cluster graph and component assignment of a
// network without compiling or running it.
var partitionCmd = &cobra.Command{
	Use:   "partition",
	Short: "Print the cluster graph and component assignment of a network",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		o, err := resolveOptions(configPath, cmd.Flags().Changed)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		net := loadNetwork(o.Network)
		if err := writePartition(cmd.Context(), net, o, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Partitioning failed: %v", err)
		}
	},
}

// PartitionReport is the JSON document printed by partition.
type PartitionReport struct {
	Strategy   string                `json:"strategy"`
	Requested  int                   `json:"requested"`
	Components int                   `json:"components"`
	Home       int                   `json:"home_cluster"`
	HomeNodes  []string              `json:"home_nodes,omitempty"`
	Clusters   []trace.ClusterRecord `json:"clusters"`
	Cuts       []trace.CutRecord     `json:"cuts"`
	Summary    *trace.TraceSummary   `json:"summary"`
}

func writePartition(ctx context.Context, net *sim.Network, o options, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := o.distributedConfig()
	cfg.TraceLevel = trace.TraceLevelDecisions
	plan, err := distributed.NewPlan(ctx, net, cfg)
	if err != nil {
		return err
	}
	report := PartitionReport{
		Strategy:   plan.Trace.Strategy,
		Requested:  o.Components,
		Components: plan.Components(),
		Home:       int(plan.Home.ID),
		HomeNodes:  plan.Home.Entities,
		Clusters:   plan.Trace.Clusters,
		Cuts:       plan.Trace.Cuts,
		Summary:    trace.Summarize(plan.Trace),
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding partition: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
