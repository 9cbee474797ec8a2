// Package trace provides decision-trace recording for partitioning analysis.
// This package has no dependencies on sim/ or sim/partition/; it stores pure data types.
package trace

// ClusterRecord captures where a single cluster was placed and why.
type ClusterRecord struct {
	Cluster   int      `json:"cluster"`
	Entities  []string `json:"entities"`
	Folded    []string `json:"folded,omitempty"` // pass-through nodes replicated into the cluster
	Cost      float64  `json:"cost"`
	Component int      `json:"component"`
	Reason    string   `json:"reason"`
}

// CutRecord captures an edge whose endpoints landed on different components.
// Every cut edge is exchanged once per step at runtime.
type CutRecord struct {
	From          int      `json:"from"`
	To            int      `json:"to"`
	FromComponent int      `json:"from_component"`
	ToComponent   int      `json:"to_component"`
	Weight        float64  `json:"weight"`
	Connections   []string `json:"connections"`
}
