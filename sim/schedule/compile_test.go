package schedule

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nengo-mpi/nmpi/sim"
	"github.com/nengo-mpi/nmpi/sim/build"
	"github.com/nengo-mpi/nmpi/sim/internal/testutil"
)

// owners maps entity labels to components; unlisted entities are on 0.
type owners map[string][]int

func (o owners) ComponentsOf(entity string) []int {
	if c, ok := o[entity]; ok {
		return c
	}
	return []int{0}
}

func TestDispatch_DotIncForms(t *testing.T) {
	tests := []struct {
		name     string
		a, x     sim.Shape
		wantKind InstrKind
		swapped  bool
	}{
		{"scalar A, vector X", sim.Shape{1}, sim.Shape{50}, InstrDotIncVV, false},
		{"vector A, scalar X", sim.Shape{50}, sim.Shape{1}, InstrDotIncVV, true},
		{"0-d A, vector X", sim.Shape{}, sim.Shape{50}, InstrDotIncVV, false},
		{"vector A, 0-d X", sim.Shape{50}, sim.Shape{}, InstrDotIncVV, true},
		{"both scalar", sim.Shape{1}, sim.Shape{1}, InstrDotIncVV, false},
		{"both vectors", sim.Shape{50}, sim.Shape{50}, InstrDotIncVV, false},
		{"matrix A", sim.Shape{3, 50}, sim.Shape{50}, InstrDotIncMV, false},
		{"row matrix is a vector", sim.Shape{1, 50}, sim.Shape{50}, InstrDotIncVV, false},
		{"column matrix with scalar X", sim.Shape{50, 1}, sim.Shape{1}, InstrDotIncVV, true},
		{"(1,1) is not a scalar", sim.Shape{1, 1}, sim.Shape{50}, InstrDotIncVV, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN DotInc(A, X, Y)
			m := newModel(tt.a, tt.x, sim.Shape{50})
			op := sim.NewDotInc(0, 1, 2)

			// WHEN dispatched
			ins, err := Dispatch(m, op)

			// THEN the primitive and operand order follow the shape rule
			require.NoError(t, err)
			require.Len(t, ins, 1)
			assert.Equal(t, tt.wantKind, ins[0].Kind)
			want := []sim.SignalKey{0, 1, 2}
			if tt.swapped {
				want = []sim.SignalKey{1, 0, 2}
			}
			assert.Equal(t, want, ins[0].Keys)
		})
	}
}

func TestDispatch_ScalarNormalizedRegardlessOfPosition(t *testing.T) {
	// A (1,) with X (50,), and the same operands the other way round,
	// both compile to DotIncVV with the scalar as coefficient.
	m := newModel(sim.Shape{1}, sim.Shape{50}, sim.Shape{50})

	first, err := Dispatch(m, sim.NewDotInc(0, 1, 2))
	require.NoError(t, err)
	second, err := Dispatch(m, sim.NewDotInc(1, 0, 2))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, sim.SignalKey(0), first[0].Keys[0])
}

func TestDispatch_ProdUpdateThenDotInc(t *testing.T) {
	m := newModel(sim.Shape{1}, sim.Shape{4}, sim.Shape{1}, sim.Shape{4})

	ins, err := Dispatch(m, sim.NewProdUpdate(0, 1, 2, 3))

	require.NoError(t, err)
	require.Len(t, ins, 2)
	assert.Equal(t, InstrProdUpdate, ins[0].Kind)
	assert.Equal(t, []sim.SignalKey{2, 3}, ins[0].Keys)
	assert.Equal(t, InstrDotIncVV, ins[1].Kind)
	assert.Equal(t, []sim.SignalKey{0, 1, 3}, ins[1].Keys)
}

func TestDispatch_NeuronKinds(t *testing.T) {
	m := newModel(sim.Shape{8}, sim.Shape{8}, sim.Shape{8}, sim.Shape{8})

	lif := sim.NewNeuronUpdate(sim.NeuronLIF, 0, 1, 0.02, 0.002)
	lif.Voltage, lif.RefractoryTime = 2, 3
	ins, err := Dispatch(m, lif)
	require.NoError(t, err)
	assert.Equal(t, InstrLIF, ins[0].Kind)
	assert.Equal(t, 8, ins[0].N)
	assert.Equal(t, 0.001, ins[0].DT)
	assert.Equal(t, []sim.SignalKey{0, 1, 2, 3}, ins[0].Keys)

	ins, err = Dispatch(m, sim.NewNeuronUpdate(sim.NeuronLIFRate, 0, 1, 0.02, 0.002))
	require.NoError(t, err)
	assert.Equal(t, InstrLIFRate, ins[0].Kind)

	_, err = Dispatch(m, sim.NewNeuronUpdate(sim.NeuronLIF, 0, 1, 0.02, 0.002))
	assert.Error(t, err, "LIF without state signals")

	_, err = Dispatch(m, sim.NewNeuronUpdate("Izhikevich", 0, 1, 0.02, 0.002))
	assert.True(t, errors.Is(err, sim.ErrUnsupportedOperator))
}

func TestProbePeriod(t *testing.T) {
	tests := []struct {
		name        string
		period      int
		sampleEvery float64
		want        int
	}{
		{"explicit period", 3, 0.5, 3},
		{"every step by default", 0, 0, 1},
		{"sample_every divided by dt", 0, 0.01, 10},
		{"rounded to nearest", 0, 0.0026, 3},
		{"never below one", 0, 0.0004, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := sim.NewProbe("p", 0, tt.period, tt.sampleEvery)
			assert.Equal(t, tt.want, ProbePeriod(op, 0.001))
		})
	}
}

func TestCompile_UnsupportedOperator(t *testing.T) {
	m := newModel(sim.Shape{1})
	m.AddOperator(&sim.Operator{Kind: "Convolve", Dst: 0}, "")

	_, err := Compile(m, owners{}, 1)

	assert.True(t, errors.Is(err, sim.ErrUnsupportedOperator))
}

func TestCompile_UnknownSignal(t *testing.T) {
	m := newModel(sim.Shape{1})
	m.AddOperator(sim.NewCopy(0, 42), "")

	_, err := Compile(m, owners{}, 1)

	assert.True(t, errors.Is(err, sim.ErrUnknownSignal))
}

func TestCompile_SingleComponentMatchesGlobalOrder(t *testing.T) {
	m, err := build.Build(testutil.ChainNetwork(nil), 0.001)
	require.NoError(t, err)

	progs, err := Compile(m, owners{}, 1)
	require.NoError(t, err)
	require.Len(t, progs, 1)

	p := progs[0]
	assert.Equal(t, len(m.Signals), p.Count(InstrAddSignal))
	assert.Equal(t, []string{"probe_B"}, p.Probes())
	assert.Zero(t, p.Count(InstrSend))
	assert.Zero(t, p.Count(InstrRecv))

	// the first operator instruction follows every signal registration
	seenOp := false
	for _, in := range p.Instructions {
		if in.Kind != InstrAddSignal {
			seenOp = true
		} else {
			assert.False(t, seenOp, "AddSignal after an operator")
		}
	}
}

func TestCompile_Idempotent(t *testing.T) {
	// GIVEN the same build artifact and assignment
	net := testutil.LoadNetworkFixture(t, "learning")
	m, err := build.Build(net, 0.001)
	require.NoError(t, err)
	own := owners{"error": {1}, "post->error": {0}, "bias": {1}, "bias->error": {1}}

	// WHEN compiled twice
	first, err := Compile(m, own, 2)
	require.NoError(t, err)
	second, err := Compile(m, own, 2)
	require.NoError(t, err)

	// THEN the programs are identical
	assert.Equal(t, first, second)
}

func TestCompile_DelayedCrossReadBecomesExchange(t *testing.T) {
	// GIVEN stim → A → B with A→B filtered, A on 0 and B on 1
	m, err := build.Build(testutil.ChainNetwork(nil), 0.001)
	require.NoError(t, err)
	own := owners{"B": {1}}

	progs, err := Compile(m, own, 2)
	require.NoError(t, err)

	// THEN the filtered value flows 0 → 1 and the unit constant is replicated
	filtered := m.Lookup("A->B.filtered").Key
	unit := m.Lookup("A->B.unit").Key
	assert.Contains(t, progs[0].Instructions, Instruction{Kind: InstrSend, Keys: []sim.SignalKey{filtered}, Peer: 1})
	assert.Contains(t, progs[1].Instructions, Instruction{Kind: InstrRecv, Keys: []sim.SignalKey{filtered}, Peer: 0})
	assert.Equal(t, 1, progs[0].Count(InstrSend))
	assert.Equal(t, 1, progs[1].Count(InstrRecv))

	registered := func(p *Program, key sim.SignalKey) bool {
		for _, in := range p.Instructions {
			if in.Kind == InstrAddSignal && in.Keys[0] == key {
				return true
			}
		}
		return false
	}
	assert.True(t, registered(progs[1], unit))
	assert.True(t, registered(progs[1], filtered))
	assert.False(t, registered(progs[1], m.Lookup("A.decoded").Key))

	// AND the probe runs where B lives
	assert.Empty(t, progs[0].Probes())
	assert.Equal(t, []string{"probe_B"}, progs[1].Probes())
}

func TestCompile_SameStepCrossReadIsPartitionError(t *testing.T) {
	// GIVEN an instantaneous A→B forced apart
	m, err := build.Build(testutil.ChainNetwork(sim.Float64Ptr(0)), 0.001)
	require.NoError(t, err)

	_, err = Compile(m, owners{"B": {1}}, 2)

	// THEN compilation stops with a partition error on the weighted signal
	var pe *sim.PartitionError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "A->B.weighted", pe.Signal)
	assert.Equal(t, 0, pe.PreComp)
	assert.Equal(t, 1, pe.PostComp)
}

func TestCompile_ReplicatedOwnerRunsEverywhere(t *testing.T) {
	// GIVEN a source node hosted by both components
	m, err := build.Build(testutil.FanNetwork(2), 0.001)
	require.NoError(t, err)
	own := owners{"src": {0, 1}, "E1": {1}, "src->E1": {1}}

	progs, err := Compile(m, own, 2)
	require.NoError(t, err)

	// THEN both programs hold the node's output and neither exchanges anything
	out := m.Lookup("src.output").Key
	for _, p := range progs {
		found := false
		for _, in := range p.Instructions {
			if in.Kind == InstrAddSignal && in.Keys[0] == out {
				found = true
			}
		}
		assert.True(t, found, "component %d lacks src.output", p.Component)
		assert.Zero(t, p.Count(InstrRecv))
	}
}

func TestCompile_OwnerOutOfRange(t *testing.T) {
	m := newModel(sim.Shape{1})
	m.AddOperator(sim.NewReset(0, 0), "")

	_, err := Compile(m, owners{"e": {3}}, 2)

	assert.Error(t, err)
}
