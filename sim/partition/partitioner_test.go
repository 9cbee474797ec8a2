package partition

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nengo-mpi/nmpi/sim"
	"github.com/nengo-mpi/nmpi/sim/internal/testutil"
	"github.com/nengo-mpi/nmpi/sim/trace"
)

// spyStrategy records calls and returns a fixed vector (or error).
type spyStrategy struct {
	calls int
	k     int
	vec   []int
	err   error
}

func (s *spyStrategy) Name() string { return "spy" }

func (s *spyStrategy) Partition(_ context.Context, g *ClusterGraph, k int) ([]int, error) {
	s.calls++
	s.k = k
	if s.err != nil {
		return nil, s.err
	}
	if s.vec != nil {
		return s.vec, nil
	}
	out := make([]int, g.Len())
	for i := range out {
		out[i] = i % k
	}
	return out, nil
}

// lineGraph returns n clusters of unit cost joined in a line by delayed edges.
func lineGraph(n int) *ClusterGraph {
	g := NewClusterGraph()
	for i := 0; i < n; i++ {
		g.AddCluster([]string{string(rune('a' + i))}, 1)
	}
	for i := 1; i < n; i++ {
		g.AddEdge(ClusterID(i-1), ClusterID(i), ConnectionInfo{Volume: 1, Delayed: true})
	}
	return g
}

func TestPartition_SingleComponent_AllZeroWithoutStrategy(t *testing.T) {
	for _, n := range []int{-1, 0, 1} {
		// GIVEN a graph with several clusters
		g := lineGraph(4)
		spy := &spyStrategy{}

		// WHEN partitioned into at most one component
		a, err := (&Partitioner{Components: n, Strategy: spy}).Partition(context.Background(), g)

		// THEN every cluster is on component 0 and the strategy is never asked
		require.NoError(t, err)
		assert.Equal(t, 1, a.Components)
		assert.Equal(t, []int{0, 0, 0, 0}, a.ByCluster)
		assert.Equal(t, 0, spy.calls, "n=%d", n)
	}
}

func TestPartition_ClampsToClusterCount(t *testing.T) {
	// GIVEN three clusters
	net := testutil.FanNetwork(3)
	_, g := mustBuild(t, net, true)
	require.Equal(t, 3, g.Len())

	// WHEN ten components are requested
	a, err := (&Partitioner{Components: 10}).Partition(context.Background(), g)

	// THEN the effective count equals the cluster count
	require.NoError(t, err)
	assert.Equal(t, 3, a.Components)
	assert.ElementsMatch(t, []int{0, 1, 2}, a.ByCluster)
}

func TestPartition_ConstrainedEdgesStayTogether(t *testing.T) {
	// GIVEN a 0-1 instantaneous edge and a 1-2 delayed edge
	g := NewClusterGraph()
	g.AddCluster([]string{"a"}, 1)
	g.AddCluster([]string{"b"}, 1)
	g.AddCluster([]string{"c"}, 1)
	g.AddEdge(0, 1, ConnectionInfo{Label: "ab", Volume: 1, Delayed: false})
	g.AddEdge(1, 2, ConnectionInfo{Label: "bc", Volume: 1, Delayed: true})
	spy := &spyStrategy{}

	// WHEN three components are requested
	a, err := (&Partitioner{Components: 3, Strategy: spy}).Partition(context.Background(), g)

	// THEN the request clamps to the two co-location groups and a, b stay together
	require.NoError(t, err)
	assert.Equal(t, 2, spy.k)
	assert.Equal(t, 2, a.Components)
	assert.Equal(t, a.ByCluster[0], a.ByCluster[1])
	assert.NotEqual(t, a.ByCluster[1], a.ByCluster[2])
}

func TestPartition_StrategyViolation(t *testing.T) {
	tests := []struct {
		name string
		vec  []int
	}{
		{"wrong length", []int{0, 1}},
		{"out of range", []int{0, 1, 5}},
		{"negative", []int{0, -1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := lineGraph(3)
			spy := &spyStrategy{vec: tt.vec}

			_, err := (&Partitioner{Components: 3, Strategy: spy}).Partition(context.Background(), g)

			require.Error(t, err)
			assert.True(t, errors.Is(err, sim.ErrStrategyViolation))
			assert.False(t, errors.Is(err, sim.ErrPartition), "internal violation is not a user partition error")
		})
	}
}

func TestPartition_StrategyErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	spy := &spyStrategy{err: boom}

	_, err := (&Partitioner{Components: 2, Strategy: spy}).Partition(context.Background(), lineGraph(2))

	assert.ErrorIs(t, err, boom)
}

func TestPartition_CompactsUnusedComponents(t *testing.T) {
	// GIVEN a strategy that skips component 1
	spy := &spyStrategy{vec: []int{2, 2, 0}}

	a, err := (&Partitioner{Components: 3, Strategy: spy}).Partition(context.Background(), lineGraph(3))

	// THEN ids are renumbered densely in order
	require.NoError(t, err)
	assert.Equal(t, 2, a.Components)
	assert.Equal(t, []int{1, 1, 0}, a.ByCluster)
}

func TestPartition_Explicit_SpanningConnectionRaisesPartitionError(t *testing.T) {
	learning := testutil.LoadNetworkFixture(t, "learning")
	probed := testutil.ChainNetwork(nil)
	probed.Probes = append(probed.Probes, &sim.Probe{Label: "p_conn", Target: "A->B"})

	tests := []struct {
		name       string
		net        *sim.Network
		assign     map[string]int
		connection string
		reason     string
	}{
		{
			name:       "instantaneous",
			net:        testutil.ChainNetwork(sim.Float64Ptr(0)),
			assign:     map[string]int{"A": 0, "B": 1},
			connection: "A->B",
			reason:     sim.ReasonInstantaneous,
		},
		{
			name:       "learning rule",
			net:        learning,
			assign:     map[string]int{"pre": 0, "post": 1},
			connection: "learned",
			reason:     sim.ReasonLearningRule,
		},
		{
			name:       "probed connection",
			net:        probed,
			assign:     map[string]int{"A": 1, "B": 0},
			connection: "A->B",
			reason:     sim.ReasonProbed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, g := mustBuild(t, tt.net, false)
			spy := &spyStrategy{}

			_, err := (&Partitioner{Components: 2, Strategy: spy, Assignments: tt.assign}).Partition(context.Background(), g)

			require.Error(t, err)
			var pe *sim.PartitionError
			require.True(t, errors.As(err, &pe), "want *sim.PartitionError, got %v", err)
			assert.True(t, errors.Is(err, sim.ErrPartition))
			assert.Equal(t, tt.connection, pe.Connection)
			assert.Equal(t, tt.reason, pe.Reason)
			assert.NotEqual(t, pe.PreComp, pe.PostComp)
			assert.Equal(t, 0, spy.calls)
		})
	}
}

func TestPartition_Explicit_Valid(t *testing.T) {
	// GIVEN a delayed chain and an explicit split of A and B
	net := testutil.ChainNetwork(nil)
	_, g := mustBuild(t, net, false)

	a, err := (&Partitioner{Components: 5, Assignments: map[string]int{"A": 0, "B": 1}}).Partition(context.Background(), g)

	// THEN the map is used as given, unlisted entities go to 0
	require.NoError(t, err)
	assert.Equal(t, 2, a.Components)
	assert.Equal(t, []int{0}, a.ComponentsOf("A"))
	assert.Equal(t, []int{1}, a.ComponentsOf("B"))
	assert.Equal(t, []int{0}, a.ComponentsOf("stim"))
	assert.Equal(t, []int{0}, a.ComponentsOf("A->B"), "connection state follows its pre")
}

func TestPartition_Explicit_BadInput(t *testing.T) {
	net := testutil.ChainNetwork(nil)
	_, g := mustBuild(t, net, false)

	tests := []struct {
		name   string
		assign map[string]int
	}{
		{"unknown entity", map[string]int{"nope": 1}},
		{"negative component", map[string]int{"A": -1}},
		{"connection label", map[string]int{"A->B": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Partitioner{Assignments: tt.assign}).Partition(context.Background(), g)
			assert.Error(t, err)
		})
	}
}

func TestPartition_Explicit_FoldedNodeFollowsHosts(t *testing.T) {
	net := testutil.FanNetwork(2)
	_, g := mustBuild(t, net, true)

	a, err := (&Partitioner{Assignments: map[string]int{"E0": 0, "E1": 1, "src": 1}}).Partition(context.Background(), g)

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, a.ComponentsOf("src"))
}

func TestPartition_EndToEndChain_TwoComponents(t *testing.T) {
	// GIVEN stim → A → B and the default strategy
	net := testutil.ChainNetwork(nil)
	_, g := mustBuild(t, net, true)

	a, err := (&Partitioner{Components: 2, Strategy: NewStrategy("")}).Partition(context.Background(), g)

	// THEN exactly two components are used, one per ensemble
	require.NoError(t, err)
	assert.Equal(t, 2, a.Components)
	assert.NotEqual(t, a.ComponentsOf("A"), a.ComponentsOf("B"))
	assert.Equal(t, a.ComponentsOf("A"), a.ComponentsOf("stim"))
}

func TestPartition_RecordsTrace(t *testing.T) {
	net := testutil.ChainNetwork(nil)
	_, g := mustBuild(t, net, false)
	pt := trace.NewPartitionTrace(trace.TraceLevelDecisions)

	a, err := (&Partitioner{Components: 2, Trace: pt}).Partition(context.Background(), g)

	require.NoError(t, err)
	assert.Equal(t, "work-balanced", pt.Strategy)
	assert.Equal(t, 2, pt.Requested)
	assert.Equal(t, a.Components, pt.Effective)
	assert.Len(t, pt.Clusters, 3)
	for _, cut := range pt.Cuts {
		assert.NotEqual(t, cut.FromComponent, cut.ToComponent)
	}
	summary := trace.Summarize(pt)
	assert.Equal(t, g.TotalCost(), summary.ComponentLoads[0]+summary.ComponentLoads[1])
}

func TestAssignment_ClustersOn(t *testing.T) {
	spy := &spyStrategy{vec: []int{0, 1, 0}}
	a, err := (&Partitioner{Components: 2, Strategy: spy}).Partition(context.Background(), lineGraph(3))
	require.NoError(t, err)

	assert.Equal(t, []ClusterID{0, 2}, a.ClustersOn(0))
	assert.Equal(t, []ClusterID{1}, a.ClustersOn(1))
	assert.Nil(t, a.ComponentsOf("missing"))
}
