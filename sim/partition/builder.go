package partition

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/nengo-mpi/nmpi/sim"
)

// Options controls cluster graph construction.
type Options struct {
	// MergeNodes folds pass-through source nodes into every cluster they
	// feed instead of giving each its own cluster.
	MergeNodes bool
}

// DefaultOptions returns the construction defaults (MergeNodes on).
func DefaultOptions() Options {
	return Options{MergeNodes: true}
}

// BuildClusterGraph groups the network's entities into clusters and joins
// them with communication edges.
//
// Every ensemble starts as its own cluster, as does every node that is not
// folded. Connections that are instantaneous, learn, or are probed unite
// their endpoints into one cluster; a learning connection joins that cluster
// as a stateful member. With MergeNodes, a node with outgoing connections and
// no incoming ones, no learning outputs and no probe is replicated into each
// cluster it feeds, and nodes with no connections at all join the home
// cluster.
//
// The home cluster is always returned. It becomes the graph's only cluster
// when the graph would otherwise be empty. Otherwise it stays outside the
// graph with ID -1, so it never counts towards the component clamp, and its
// members are pinned to component 0.
func BuildClusterGraph(net *sim.Network, opts Options) (*Cluster, *ClusterGraph, error) {
	if err := net.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid network: %w", err)
	}

	in := make(map[string]int)
	out := make(map[string]int)
	learns := make(map[string]bool)
	for _, c := range net.Connections {
		out[c.Pre]++
		in[c.Post]++
		if c.HasLearningRule() {
			learns[c.Pre] = true
		}
	}

	folded := make(map[string]bool)
	var units, home []string
	for _, e := range net.Ensembles {
		units = append(units, e.Label)
	}
	for _, n := range net.Nodes {
		label := n.Label
		switch {
		case opts.MergeNodes && in[label] == 0 && out[label] > 0 && !learns[label] && !net.IsProbed(label):
			folded[label] = true
		case opts.MergeNodes && in[label] == 0 && out[label] == 0:
			home = append(home, label)
		default:
			units = append(units, label)
		}
	}
	for _, c := range net.Connections {
		if c.HasLearningRule() {
			units = append(units, c.Label)
		}
	}

	// Same-step dependencies become edges of an undirected graph over units;
	// its connected components are the clusters.
	index := make(map[string]int64, len(units))
	ug := simple.NewUndirectedGraph()
	for i, u := range units {
		index[u] = int64(i)
		ug.AddNode(simple.Node(i))
	}
	join := func(a, b string) {
		ia, ib := index[a], index[b]
		if ia != ib {
			ug.SetEdge(simple.Edge{F: simple.Node(ia), T: simple.Node(ib)})
		}
	}
	for _, c := range net.Connections {
		if folded[c.Pre] {
			continue
		}
		if c.HasLearningRule() {
			join(c.Label, c.Pre)
		}
		if c.Instantaneous() || c.HasLearningRule() || net.IsProbed(c.Label) {
			join(c.Pre, c.Post)
		}
	}
	groupOf := make(map[int64]int)
	for gi, comp := range topo.ConnectedComponents(ug) {
		for _, n := range comp {
			groupOf[n.ID()] = gi
		}
	}
	members := make(map[int][]string)
	var order []int
	for i, u := range units {
		gi := groupOf[int64(i)]
		if _, seen := members[gi]; !seen {
			order = append(order, gi)
		}
		members[gi] = append(members[gi], u)
	}

	g := NewClusterGraph()
	clusterOf := make(map[string]ClusterID)
	for _, gi := range order {
		c := g.AddCluster(members[gi], cost(net, members[gi]))
		for _, u := range members[gi] {
			clusterOf[u] = c.ID
		}
	}
	var homeCluster *Cluster
	if g.Len() == 0 {
		homeCluster = g.AddCluster(home, cost(net, home))
		homeCluster.Home = true
	} else {
		homeCluster = g.SetHome(home, cost(net, home))
	}

	for _, c := range net.Connections {
		info := ConnectionInfo{
			Label:           c.Label,
			Pre:             c.Pre,
			Post:            c.Post,
			Volume:          float64(net.SizeIn(c.Post)),
			Delayed:         !c.Instantaneous(),
			HasLearningRule: c.HasLearningRule(),
			IsProbed:        net.IsProbed(c.Label),
			FoldedPre:       folded[c.Pre],
		}
		g.AddConnection(info)
		post := clusterOf[c.Post]
		if folded[c.Pre] {
			g.Fold(post, c.Pre, cost(net, []string{c.Pre}))
			g.Host(c.Label, post)
			continue
		}
		pre := clusterOf[c.Pre]
		g.Host(c.Label, pre)
		g.AddEdge(pre, post, info)
	}

	logrus.Debugf("cluster graph: %d clusters, %d edges, %d folded nodes, %d home entities, merge_nodes=%v",
		g.Len(), len(g.edges), len(folded), len(home), opts.MergeNodes)
	return homeCluster, g, nil
}

// cost estimates the per-step work of a set of entities as neurons plus
// dimensions. Connections contribute nothing.
func cost(net *sim.Network, entities []string) float64 {
	var total float64
	for _, label := range entities {
		if e := net.Ensemble(label); e != nil {
			total += float64(e.Neurons + e.Dimensions)
		} else if n := net.Node(label); n != nil {
			total += float64(n.SizeOut)
		}
	}
	return total
}
