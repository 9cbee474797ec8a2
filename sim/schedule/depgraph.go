package schedule

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/nengo-mpi/nmpi/sim"
)

// DependencyGraph is the DAG over every operator of a model. Node ids are
// operator declaration indices.
//
// For each signal: setters run before incrementers, setters and
// incrementers before readers, and readers before updaters. Setters and
// incrementers also precede updaters. A signal has at most one setter and
// at most one updater.
type DependencyGraph struct {
	ops []*sim.Operator
	g   *simple.DirectedGraph
}

type signalUsers struct {
	sets, incs, reads, updates []int
}

// NewDependencyGraph derives the dependency edges of ops.
func NewDependencyGraph(ops []*sim.Operator) (*DependencyGraph, error) {
	g := simple.NewDirectedGraph()
	for i := range ops {
		g.AddNode(simple.Node(i))
	}

	users := make(map[sim.SignalKey]*signalUsers)
	use := func(key sim.SignalKey) *signalUsers {
		u, ok := users[key]
		if !ok {
			u = &signalUsers{}
			users[key] = u
		}
		return u
	}
	for i, op := range ops {
		acc := op.Access()
		for _, k := range acc.Sets {
			use(k).sets = append(use(k).sets, i)
		}
		for _, k := range acc.Incs {
			use(k).incs = append(use(k).incs, i)
		}
		for _, k := range acc.Reads {
			use(k).reads = append(use(k).reads, i)
		}
		for _, k := range acc.Updates {
			use(k).updates = append(use(k).updates, i)
		}
	}

	keys := make([]sim.SignalKey, 0, len(users))
	for k := range users {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	edge := func(from, to int) {
		if from != to {
			g.SetEdge(g.NewEdge(simple.Node(from), simple.Node(to)))
		}
	}
	for _, k := range keys {
		u := users[k]
		if len(u.sets) > 1 {
			return nil, fmt.Errorf("%w: signal %d set by %s", sim.ErrConflictingWrites, k, describe(ops, u.sets))
		}
		if len(u.updates) > 1 {
			return nil, fmt.Errorf("%w: signal %d updated by %s", sim.ErrConflictingWrites, k, describe(ops, u.updates))
		}
		for _, s := range u.sets {
			for _, x := range u.incs {
				edge(s, x)
			}
			for _, x := range u.reads {
				edge(s, x)
			}
			for _, x := range u.updates {
				edge(s, x)
			}
		}
		for _, i := range u.incs {
			for _, x := range u.reads {
				edge(i, x)
			}
			for _, x := range u.updates {
				edge(i, x)
			}
		}
		for _, r := range u.reads {
			for _, x := range u.updates {
				edge(r, x)
			}
		}
	}
	return &DependencyGraph{ops: ops, g: g}, nil
}

// Len returns the number of operators.
func (d *DependencyGraph) Len() int { return len(d.ops) }

// HasEdge reports whether operator i must run before operator j directly.
func (d *DependencyGraph) HasEdge(i, j int) bool {
	return d.g.HasEdgeFromTo(int64(i), int64(j))
}

// Order returns a topological order of operator indices. Among operators
// that are ready at the same time the lowest declaration index runs first,
// so the order is reproducible. A cycle is sim.ErrCyclicDependency naming
// the operators involved.
func (d *DependencyGraph) Order() ([]int, error) {
	n := len(d.ops)
	indeg := make([]int, n)
	for i := 0; i < n; i++ {
		to := d.g.From(int64(i))
		for to.Next() {
			indeg[to.Node().ID()]++
		}
	}

	ready := &indexHeap{}
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}
	order := make([]int, 0, n)
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, i)
		to := d.g.From(int64(i))
		var next []int
		for to.Next() {
			next = append(next, int(to.Node().ID()))
		}
		for _, j := range next {
			indeg[j]--
			if indeg[j] == 0 {
				heap.Push(ready, j)
			}
		}
	}
	if len(order) == n {
		return order, nil
	}

	_, err := topo.Sort(d.g)
	var cycles []string
	if unorderable, ok := err.(topo.Unorderable); ok {
		for _, scc := range unorderable {
			idx := make([]int, len(scc))
			for i, node := range scc {
				idx[i] = int(node.ID())
			}
			sort.Ints(idx)
			cycles = append(cycles, describe(d.ops, idx))
		}
	}
	return nil, fmt.Errorf("%w: %s", sim.ErrCyclicDependency, strings.Join(cycles, "; "))
}

func describe(ops []*sim.Operator, idx []int) string {
	parts := make([]string, len(idx))
	for i, j := range idx {
		parts[i] = fmt.Sprintf("#%d %s", j, ops[j])
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// indexHeap is a min-heap of operator indices.
type indexHeap []int

// Len implements heap.Interface
func (h indexHeap) Len() int { return len(h) }

// Less implements heap.Interface
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }

// Swap implements heap.Interface
func (h indexHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push implements heap.Interface
func (h *indexHeap) Push(x interface{}) { *h = append(*h, x.(int)) }

// Pop implements heap.Interface
func (h *indexHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
