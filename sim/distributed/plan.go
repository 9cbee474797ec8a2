// Package distributed runs a network partitioned across components, one
// chunk per component, stepping in lock-step through an in-process
// step-boundary exchange.
package distributed

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nengo-mpi/nmpi/sim"
	"github.com/nengo-mpi/nmpi/sim/build"
	"github.com/nengo-mpi/nmpi/sim/partition"
	"github.com/nengo-mpi/nmpi/sim/schedule"
	"github.com/nengo-mpi/nmpi/sim/trace"
)

// Config selects how a network is partitioned and compiled.
type Config struct {
	// Components is the requested component count.
	Components int
	// Strategy names the partition strategy (see sim.ValidStrategies).
	Strategy string
	// Assignments, when non-nil, places entities explicitly and disables
	// node folding.
	Assignments map[string]int
	// MergeNodes folds pass-through source nodes into the clusters they feed.
	MergeNodes bool
	// DT is the timestep in seconds; zero selects sim.DefaultDT.
	DT float64
	// TraceLevel controls partition decision recording.
	TraceLevel trace.TraceLevel
}

// DefaultConfig returns a single-component configuration.
func DefaultConfig() Config {
	return Config{Components: 1, MergeNodes: true, DT: sim.DefaultDT, TraceLevel: trace.TraceLevelNone}
}

// Plan is the compiled form of a network: the cluster graph, the
// component assignment and one program per component.
type Plan struct {
	Model      *sim.Model
	Home       *partition.Cluster
	Graph      *partition.ClusterGraph
	Assignment *partition.Assignment
	Programs   []*schedule.Program
	Trace      *trace.PartitionTrace
}

// Components returns the effective component count.
func (p *Plan) Components() int { return len(p.Programs) }

// NewPlan builds, partitions and compiles net.
func NewPlan(ctx context.Context, net *sim.Network, cfg Config) (*Plan, error) {
	if !sim.ValidStrategies[cfg.Strategy] {
		return nil, fmt.Errorf("unknown partition strategy %q", cfg.Strategy)
	}
	dt := cfg.DT
	if dt == 0 {
		dt = sim.DefaultDT
	}

	model, err := build.Build(net, dt)
	if err != nil {
		return nil, fmt.Errorf("building %q: %w", net.Label, err)
	}
	logrus.Infof("built %q: %d signals, %d operators", net.Label, len(model.Signals), len(model.Operators))

	opts := partition.Options{MergeNodes: cfg.MergeNodes && cfg.Assignments == nil}
	home, g, err := partition.BuildClusterGraph(net, opts)
	if err != nil {
		return nil, err
	}
	logrus.Infof("cluster graph: %d clusters, %d edges", g.Len(), len(g.Edges()))

	pt := trace.NewPartitionTrace(cfg.TraceLevel)
	p := &partition.Partitioner{
		Components:  cfg.Components,
		Strategy:    partition.NewStrategy(cfg.Strategy),
		Assignments: cfg.Assignments,
		Trace:       pt,
	}
	a, err := p.Partition(ctx, g)
	if err != nil {
		return nil, err
	}

	progs, err := schedule.Compile(model, a, a.Components)
	if err != nil {
		return nil, err
	}
	logrus.Infof("compiled %d programs", len(progs))
	return &Plan{Model: model, Home: home, Graph: g, Assignment: a, Programs: progs, Trace: pt}, nil
}
