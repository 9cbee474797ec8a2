package partition

import (
	"context"
	"fmt"

	"github.com/nengo-mpi/nmpi/sim"
)

// Strategy assigns the clusters of a graph to k components. The returned
// vector is indexed by ClusterID and holds values in [0, k).
//
// Strategies see graphs whose co-location groups are already contracted, so
// any vector they return respects the hard constraints. The Partitioner
// still checks.
type Strategy interface {
	Name() string
	Partition(ctx context.Context, g *ClusterGraph, k int) ([]int, error)
}

// IsValidStrategy returns true if name is a recognized strategy.
func IsValidStrategy(name string) bool {
	return sim.ValidStrategies[name]
}

// NewStrategy creates a strategy by name. The empty name selects
// work-balanced. Panics on unrecognized names; validate with
// IsValidStrategy first.
func NewStrategy(name string) Strategy {
	if !IsValidStrategy(name) {
		panic(fmt.Sprintf("unknown partition strategy %q", name))
	}
	switch name {
	case "", "work-balanced":
		return &WorkBalanced{}
	case "metis":
		return &Metis{Binary: metisBinary}
	default:
		panic(fmt.Sprintf("unhandled partition strategy %q", name))
	}
}
