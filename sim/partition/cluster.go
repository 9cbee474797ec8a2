// Package partition groups a network's structural entities into indivisible
// clusters, joins them with communication edges, and assigns clusters to
// components under the co-location constraints of same-step dependencies.
//
// Reading order: cluster.go (graph types), builder.go (network → graph),
// partitioner.go (graph → assignment), strategy.go and its implementations.
package partition

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/nengo-mpi/nmpi/sim"
)

// ClusterID is the dense index of a cluster within its graph.
type ClusterID int

// Cluster is an indivisible scheduling unit: everything in it runs on one
// component.
type Cluster struct {
	ID ClusterID
	// Entities are the labels of member ensembles, nodes and stateful
	// connections, in declaration order.
	Entities []string
	// Folded are pass-through nodes replicated into this cluster.
	Folded []string
	Cost   float64
	Home   bool
}

func (c *Cluster) String() string {
	return fmt.Sprintf("Cluster(%d, %v, folded=%v, cost=%g)", c.ID, c.Entities, c.Folded, c.Cost)
}

// Edge joins two distinct clusters communicating through one or more
// connections. From < To always holds.
type Edge struct {
	From, To        ClusterID
	Weight          float64
	Delayed         bool
	HasLearningRule bool
	IsProbed        bool
	Connections     []string
}

// Constrained reports whether the edge forces its endpoints onto one component.
func (e *Edge) Constrained() bool {
	return !e.Delayed || e.HasLearningRule || e.IsProbed
}

// ConnectionInfo describes one network connection in terms the partitioner
// needs to validate an explicit assignment.
type ConnectionInfo struct {
	Label           string
	Pre, Post       string
	Volume          float64
	Delayed         bool
	HasLearningRule bool
	IsProbed        bool
	// FoldedPre is set when the pre node is replicated into the post's cluster.
	FoldedPre bool
}

// Reason returns why the connection must stay inside one component, or "".
func (c ConnectionInfo) Reason() string {
	switch {
	case !c.Delayed:
		return sim.ReasonInstantaneous
	case c.HasLearningRule:
		return sim.ReasonLearningRule
	case c.IsProbed:
		return sim.ReasonProbed
	}
	return ""
}

// ClusterGraph is a weighted undirected graph of clusters. It is read-only
// once built.
//
// The home cluster set by SetHome is not a vertex: it holds unconnected
// nodes, is not counted by Len and always runs on component 0.
type ClusterGraph struct {
	clusters    []*Cluster
	edges       map[[2]ClusterID]*Edge
	entities    map[string][]ClusterID
	connections []ConnectionInfo
	home        *Cluster
	homed       map[string]bool
}

// NewClusterGraph returns an empty graph.
func NewClusterGraph() *ClusterGraph {
	return &ClusterGraph{
		edges:    make(map[[2]ClusterID]*Edge),
		entities: make(map[string][]ClusterID),
		homed:    make(map[string]bool),
	}
}

// SetHome records the home cluster outside the graph. Its ID is -1.
func (g *ClusterGraph) SetHome(entities []string, cost float64) *Cluster {
	g.home = &Cluster{ID: -1, Entities: append([]string(nil), entities...), Cost: cost, Home: true}
	for _, e := range entities {
		g.homed[e] = true
	}
	return g.home
}

// Home returns the home cluster set by SetHome, or nil.
func (g *ClusterGraph) Home() *Cluster { return g.home }

// IsHome reports whether entity lives in the home cluster outside the graph.
func (g *ClusterGraph) IsHome(entity string) bool { return g.homed[entity] }

// AddCluster appends a cluster holding the given entities.
func (g *ClusterGraph) AddCluster(entities []string, cost float64) *Cluster {
	c := &Cluster{ID: ClusterID(len(g.clusters)), Entities: append([]string(nil), entities...), Cost: cost}
	g.clusters = append(g.clusters, c)
	for _, e := range entities {
		g.entities[e] = appendUnique(g.entities[e], c.ID)
	}
	return c
}

// Fold replicates a pass-through entity into cluster id, adding its cost.
func (g *ClusterGraph) Fold(id ClusterID, entity string, cost float64) {
	c := g.clusters[id]
	for _, f := range c.Folded {
		if f == entity {
			return
		}
	}
	c.Folded = append(c.Folded, entity)
	c.Cost += cost
	g.entities[entity] = appendUnique(g.entities[entity], id)
}

// Host records that entity's state lives in cluster id without making it a
// member for cost or display purposes.
func (g *ClusterGraph) Host(entity string, id ClusterID) {
	g.entities[entity] = appendUnique(g.entities[entity], id)
}

// AddEdge merges one connection into the edge between a and b. Weights sum;
// the edge stays delayed only while every connection on it is delayed.
// Self-edges are ignored.
func (g *ClusterGraph) AddEdge(a, b ClusterID, info ConnectionInfo) {
	if a == b {
		return
	}
	if a > b {
		a, b = b, a
	}
	key := [2]ClusterID{a, b}
	e, ok := g.edges[key]
	if !ok {
		e = &Edge{From: a, To: b, Delayed: true}
		g.edges[key] = e
	}
	e.Weight += info.Volume
	e.Delayed = e.Delayed && info.Delayed
	e.HasLearningRule = e.HasLearningRule || info.HasLearningRule
	e.IsProbed = e.IsProbed || info.IsProbed
	if info.Label != "" {
		e.Connections = append(e.Connections, info.Label)
	}
}

// AddConnection records a connection for assignment validation.
func (g *ClusterGraph) AddConnection(info ConnectionInfo) {
	g.connections = append(g.connections, info)
}

// Len returns the number of clusters.
func (g *ClusterGraph) Len() int { return len(g.clusters) }

// Clusters returns the clusters in id order.
func (g *ClusterGraph) Clusters() []*Cluster { return g.clusters }

// Cluster returns the cluster with the given id.
func (g *ClusterGraph) Cluster(id ClusterID) *Cluster { return g.clusters[id] }

// Edges returns all edges sorted by (From, To).
func (g *ClusterGraph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Edge returns the edge between a and b, or nil.
func (g *ClusterGraph) Edge(a, b ClusterID) *Edge {
	if a > b {
		a, b = b, a
	}
	return g.edges[[2]ClusterID{a, b}]
}

// Connections returns every recorded connection in declaration order.
func (g *ClusterGraph) Connections() []ConnectionInfo { return g.connections }

// ClustersOf returns the clusters holding entity, ascending. Folded nodes
// may live in several clusters.
func (g *ClusterGraph) ClustersOf(entity string) []ClusterID {
	return g.entities[entity]
}

// HasEntity reports whether entity is known to the graph, home cluster included.
func (g *ClusterGraph) HasEntity(entity string) bool {
	_, ok := g.entities[entity]
	return ok || g.homed[entity]
}

// IsFolded reports whether entity is a replicated pass-through node.
func (g *ClusterGraph) IsFolded(entity string) bool {
	for _, id := range g.entities[entity] {
		for _, f := range g.clusters[id].Folded {
			if f == entity {
				return true
			}
		}
	}
	return false
}

// TotalCost sums the cost of every cluster in the graph.
func (g *ClusterGraph) TotalCost() float64 {
	var total float64
	for _, c := range g.clusters {
		total += c.Cost
	}
	return total
}

// Weighted returns a gonum view of the graph with node ids equal to
// cluster ids and edge weights equal to communication volume.
func (g *ClusterGraph) Weighted() *simple.WeightedUndirectedGraph {
	wg := simple.NewWeightedUndirectedGraph(0, 0)
	for _, c := range g.clusters {
		wg.AddNode(simple.Node(c.ID))
	}
	for _, e := range g.Edges() {
		wg.SetWeightedEdge(wg.NewWeightedEdge(simple.Node(e.From), simple.Node(e.To), e.Weight))
	}
	return wg
}

// ConstraintGroups partitions the clusters into groups joined by
// constrained edges. Groups are sorted by their lowest cluster id and each
// group is ascending. A graph built by BuildClusterGraph has no constrained
// edges, so every cluster is its own group.
func (g *ClusterGraph) ConstraintGroups() [][]ClusterID {
	ug := simple.NewUndirectedGraph()
	for _, c := range g.clusters {
		ug.AddNode(simple.Node(c.ID))
	}
	for _, e := range g.edges {
		if e.Constrained() {
			ug.SetEdge(simple.Edge{F: simple.Node(e.From), T: simple.Node(e.To)})
		}
	}
	var groups [][]ClusterID
	for _, comp := range topo.ConnectedComponents(ug) {
		group := make([]ClusterID, len(comp))
		for i, n := range comp {
			group[i] = ClusterID(n.ID())
		}
		sort.Slice(group, func(i, j int) bool { return group[i] < group[j] })
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

func appendUnique(ids []ClusterID, id ClusterID) []ClusterID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	ids = append(ids, id)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
