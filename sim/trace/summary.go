package trace

// TraceSummary aggregates statistics from a PartitionTrace.
type TraceSummary struct {
	TotalClusters  int       `json:"total_clusters"`
	CutEdges       int       `json:"cut_edges"`
	TotalCutWeight float64   `json:"total_cut_weight"`
	ComponentLoads []float64 `json:"component_loads"` // component id → summed cluster cost
	ComponentSizes []int     `json:"component_sizes"` // component id → number of clusters
	// ImbalanceRatio is max load over mean load; 1 is perfectly balanced.
	ImbalanceRatio float64 `json:"imbalance_ratio"`
}

// Summarize computes aggregate statistics from a PartitionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(pt *PartitionTrace) *TraceSummary {
	summary := &TraceSummary{}
	if pt == nil {
		return summary
	}

	summary.TotalClusters = len(pt.Clusters)
	n := pt.Effective
	for _, c := range pt.Clusters {
		if c.Component+1 > n {
			n = c.Component + 1
		}
	}
	summary.ComponentLoads = make([]float64, n)
	summary.ComponentSizes = make([]int, n)
	for _, c := range pt.Clusters {
		summary.ComponentLoads[c.Component] += c.Cost
		summary.ComponentSizes[c.Component]++
	}

	summary.CutEdges = len(pt.Cuts)
	for _, cut := range pt.Cuts {
		summary.TotalCutWeight += cut.Weight
	}

	if n > 0 {
		total, maxLoad := 0.0, 0.0
		for _, l := range summary.ComponentLoads {
			total += l
			if l > maxLoad {
				maxLoad = l
			}
		}
		if total > 0 {
			summary.ImbalanceRatio = maxLoad / (total / float64(n))
		}
	}

	return summary
}
