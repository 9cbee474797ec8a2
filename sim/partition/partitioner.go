package partition

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/nengo-mpi/nmpi/sim"
	"github.com/nengo-mpi/nmpi/sim/trace"
)

// Assignment maps every cluster of a graph to a component.
type Assignment struct {
	// Components is the effective component count. Ids run from 0 to
	// Components-1.
	Components int
	// ByCluster is indexed by ClusterID.
	ByCluster []int

	graph *ClusterGraph
}

// Graph returns the cluster graph the assignment was computed for.
func (a *Assignment) Graph() *ClusterGraph { return a.graph }

// ComponentsOf returns the components hosting entity, ascending. Folded
// nodes may be hosted by several; home cluster members by component 0;
// unknown entities by none.
func (a *Assignment) ComponentsOf(entity string) []int {
	if a.graph.IsHome(entity) {
		return []int{0}
	}
	var out []int
	for _, id := range a.graph.ClustersOf(entity) {
		out = appendComp(out, a.ByCluster[id])
	}
	return out
}

// ClustersOn returns the clusters placed on component comp.
func (a *Assignment) ClustersOn(comp int) []ClusterID {
	var out []ClusterID
	for id, c := range a.ByCluster {
		if c == comp {
			out = append(out, ClusterID(id))
		}
	}
	return out
}

// Partitioner assigns clusters to components.
type Partitioner struct {
	// Components is the requested count. Values ≤ 1 place everything on
	// component 0.
	Components int
	// Strategy places clusters when more than one component is effective.
	// Nil selects work-balanced.
	Strategy Strategy
	// Assignments, when non-nil, maps entity labels to components and
	// replaces the strategy. Unlisted entities go to component 0.
	Assignments map[string]int
	// Trace, when enabled, receives every placement and cut edge.
	Trace *trace.PartitionTrace
}

// Partition assigns every cluster of g to a component.
//
// With explicit assignments the map is only validated: a same-step
// connection spanning components is a *sim.PartitionError. Otherwise the
// requested count is clamped to the number of co-location groups, and a
// strategy result that breaks a constraint is sim.ErrStrategyViolation.
func (p *Partitioner) Partition(ctx context.Context, g *ClusterGraph) (*Assignment, error) {
	if p.Assignments != nil {
		return p.explicit(g)
	}

	strategy := p.Strategy
	if strategy == nil {
		strategy = &WorkBalanced{}
	}

	groups := g.ConstraintGroups()
	k := p.Components
	if k > len(groups) {
		logrus.Warnf("requested %d components but the graph has only %d indivisible groups; using %d",
			k, len(groups), len(groups))
		k = len(groups)
	}
	if k <= 1 {
		a := &Assignment{Components: 1, ByCluster: make([]int, g.Len()), graph: g}
		p.record(a, strategy.Name(), "single component")
		return a, nil
	}

	contracted, groupOf := contract(g, groups)
	vec, err := strategy.Partition(ctx, contracted, k)
	if err != nil {
		return nil, fmt.Errorf("%s strategy: %w", strategy.Name(), err)
	}
	if len(vec) != contracted.Len() {
		return nil, fmt.Errorf("%w: %s returned %d entries for %d groups",
			sim.ErrStrategyViolation, strategy.Name(), len(vec), contracted.Len())
	}
	byCluster := make([]int, g.Len())
	for id := range byCluster {
		comp := vec[groupOf[id]]
		if comp < 0 || comp >= k {
			return nil, fmt.Errorf("%w: %s placed cluster %d on component %d, want [0, %d)",
				sim.ErrStrategyViolation, strategy.Name(), id, comp, k)
		}
		byCluster[id] = comp
	}
	for _, e := range g.Edges() {
		if e.Constrained() && byCluster[e.From] != byCluster[e.To] {
			return nil, fmt.Errorf("%w: %s split constrained edge %d-%d (%v) across components %d and %d",
				sim.ErrStrategyViolation, strategy.Name(), e.From, e.To, e.Connections, byCluster[e.From], byCluster[e.To])
		}
	}

	a := &Assignment{ByCluster: compact(byCluster), graph: g}
	for _, c := range a.ByCluster {
		if c+1 > a.Components {
			a.Components = c + 1
		}
	}
	if a.Components < k {
		logrus.Warnf("%s strategy left %d of %d components empty; using %d", strategy.Name(), k-a.Components, k, a.Components)
	}
	logrus.Infof("partitioned %d clusters onto %d components with %s", g.Len(), a.Components, strategy.Name())
	p.record(a, strategy.Name(), strategy.Name())
	return a, nil
}

func (p *Partitioner) explicit(g *ClusterGraph) (*Assignment, error) {
	labels := make([]string, 0, len(p.Assignments))
	for label := range p.Assignments {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	k := 1
	for _, label := range labels {
		comp := p.Assignments[label]
		if !g.HasEntity(label) {
			return nil, fmt.Errorf("explicit assignment names unknown entity %q", label)
		}
		if !isComponentEntity(g, label) {
			return nil, fmt.Errorf("explicit assignment names connection %q; assign its endpoints instead", label)
		}
		if comp < 0 {
			return nil, fmt.Errorf("explicit assignment for %q must be >= 0, got %d", label, comp)
		}
		if g.IsFolded(label) {
			logrus.Warnf("explicit assignment for %q ignored: node is replicated into the clusters it feeds", label)
			continue
		}
		if g.IsHome(label) {
			if comp != 0 {
				logrus.Warnf("explicit assignment for %q ignored: unconnected nodes run on component 0", label)
			}
			continue
		}
		if comp+1 > k {
			k = comp + 1
		}
	}

	for _, c := range g.Connections() {
		if c.FoldedPre {
			continue
		}
		reason := c.Reason()
		if reason == "" {
			continue
		}
		pre, post := p.Assignments[c.Pre], p.Assignments[c.Post]
		if pre != post {
			return nil, &sim.PartitionError{
				Pre: c.Pre, Post: c.Post, Connection: c.Label,
				Reason: reason, PreComp: pre, PostComp: post,
			}
		}
	}

	byCluster := make([]int, g.Len())
	for _, c := range g.Clusters() {
		first := ""
		for _, e := range c.Entities {
			if !isComponentEntity(g, e) {
				continue
			}
			comp := p.Assignments[e]
			if first == "" {
				first = e
				byCluster[c.ID] = comp
				continue
			}
			if comp != byCluster[c.ID] {
				return nil, fmt.Errorf("%w: %q (component %d) and %q (component %d) share cluster %d",
					sim.ErrPartition, first, byCluster[c.ID], e, comp, c.ID)
			}
		}
	}

	a := &Assignment{Components: k, ByCluster: byCluster, graph: g}
	for comp := 0; comp < k; comp++ {
		if len(a.ClustersOn(comp)) == 0 {
			logrus.Warnf("explicit assignment leaves component %d empty", comp)
		}
	}
	p.record(a, "explicit", "explicit")
	return a, nil
}

// isComponentEntity reports whether an explicit assignment applies to entity.
// Learning connections are cluster members but follow their pre entity.
func isComponentEntity(g *ClusterGraph, entity string) bool {
	for _, c := range g.Connections() {
		if c.Label == entity {
			return false
		}
	}
	return true
}

func (p *Partitioner) record(a *Assignment, strategy, reason string) {
	if !p.Trace.Enabled() {
		return
	}
	p.Trace.Strategy = strategy
	p.Trace.Requested = p.Components
	p.Trace.Effective = a.Components
	p.Trace.Explicit = p.Assignments != nil
	g := a.graph
	for _, c := range g.Clusters() {
		p.Trace.RecordCluster(trace.ClusterRecord{
			Cluster:   int(c.ID),
			Entities:  c.Entities,
			Folded:    c.Folded,
			Cost:      c.Cost,
			Component: a.ByCluster[c.ID],
			Reason:    reason,
		})
	}
	for _, e := range g.Edges() {
		from, to := a.ByCluster[e.From], a.ByCluster[e.To]
		if from == to {
			continue
		}
		p.Trace.RecordCut(trace.CutRecord{
			From: int(e.From), To: int(e.To),
			FromComponent: from, ToComponent: to,
			Weight: e.Weight, Connections: e.Connections,
		})
	}
}

// contract merges each co-location group into one cluster. groupOf maps an
// original ClusterID to its contracted id.
func contract(g *ClusterGraph, groups [][]ClusterID) (*ClusterGraph, []int) {
	groupOf := make([]int, g.Len())
	out := NewClusterGraph()
	for gi, group := range groups {
		var entities []string
		var cost float64
		for _, id := range group {
			groupOf[id] = gi
			c := g.Cluster(id)
			entities = append(entities, c.Entities...)
			cost += c.Cost
		}
		out.AddCluster(entities, cost)
	}
	for _, e := range g.Edges() {
		out.AddEdge(ClusterID(groupOf[e.From]), ClusterID(groupOf[e.To]), ConnectionInfo{
			Volume:          e.Weight,
			Delayed:         e.Delayed,
			HasLearningRule: e.HasLearningRule,
			IsProbed:        e.IsProbed,
		})
	}
	return out, groupOf
}

// compact renumbers component ids so that the used ids are dense, keeping
// their relative order.
func compact(byCluster []int) []int {
	used := make(map[int]bool)
	for _, c := range byCluster {
		used[c] = true
	}
	ids := make([]int, 0, len(used))
	for c := range used {
		ids = append(ids, c)
	}
	sort.Ints(ids)
	remap := make(map[int]int, len(ids))
	for i, c := range ids {
		remap[c] = i
	}
	out := make([]int, len(byCluster))
	for i, c := range byCluster {
		out[i] = remap[c]
	}
	return out
}

func appendComp(comps []int, c int) []int {
	for _, x := range comps {
		if x == c {
			return comps
		}
	}
	comps = append(comps, c)
	sort.Ints(comps)
	return comps
}
