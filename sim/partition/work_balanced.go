package partition

import (
	"context"
	"sort"
)

// WorkBalanced greedily places clusters in decreasing order of cost, each on
// the currently least-loaded component. Communication cost is ignored.
// Cost ties are broken by cluster id. Load ties go to the component with
// fewer clusters, then to the lowest index, so zero-cost clusters still
// spread across components.
type WorkBalanced struct{}

// Name implements Strategy.
func (w *WorkBalanced) Name() string { return "work-balanced" }

// Partition implements Strategy for WorkBalanced.
func (w *WorkBalanced) Partition(ctx context.Context, g *ClusterGraph, k int) ([]int, error) {
	clusters := append([]*Cluster(nil), g.Clusters()...)
	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Cost != clusters[j].Cost {
			return clusters[i].Cost > clusters[j].Cost
		}
		return clusters[i].ID < clusters[j].ID
	})

	out := make([]int, g.Len())
	load := make([]float64, k)
	count := make([]int, k)
	for _, c := range clusters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best := 0
		for comp := 1; comp < k; comp++ {
			if load[comp] < load[best] || (load[comp] == load[best] && count[comp] < count[best]) {
				best = comp
			}
		}
		out[c.ID] = best
		load[best] += c.Cost
		count[best]++
	}
	return out, nil
}
