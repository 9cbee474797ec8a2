// Package testutil provides shared test infrastructure for the nmpi packages.
// It consolidates network fixtures and assertion helpers used across
// sim/ subpackage tests.
package testutil

import (
	"math"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/nengo-mpi/nmpi/sim"
)

// LoadNetworkFixture loads testdata/networks/<name>.yaml.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadNetworkFixture(t *testing.T, name string) *sim.Network {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "networks", name+".yaml")
	net, err := sim.LoadNetwork(path)
	if err != nil {
		t.Fatalf("Failed to load network fixture %s: %v", name, err)
	}
	return net
}

// ChainNetwork returns stim → A → B with filtered connections. synapseAB
// sets the A→B synapse; pass nil for the default and 0 for instantaneous.
func ChainNetwork(synapseAB *float64) *sim.Network {
	net := &sim.Network{
		Label: "chain",
		Seed:  1,
		Ensembles: []*sim.Ensemble{
			{Label: "A", Neurons: 20, Dimensions: 1},
			{Label: "B", Neurons: 20, Dimensions: 1},
		},
		Nodes: []*sim.Node{
			{Label: "stim", Function: "sin"},
		},
		Connections: []*sim.Connection{
			{Pre: "stim", Post: "A"},
			{Pre: "A", Post: "B", Synapse: synapseAB},
		},
		Probes: []*sim.Probe{
			{Label: "probe_B", Target: "B"},
		},
	}
	if err := net.Normalize(); err != nil {
		panic(err)
	}
	return net
}

// FanNetwork returns one constant source node feeding n ensembles
// E0..En-1 through filtered connections, each ensemble probed.
func FanNetwork(n int) *sim.Network {
	net := &sim.Network{Label: "fan", Seed: 3, Nodes: []*sim.Node{{Label: "src", Output: []float64{0.5}}}}
	for i := 0; i < n; i++ {
		label := "E" + string(rune('0'+i))
		net.Ensembles = append(net.Ensembles, &sim.Ensemble{Label: label, Neurons: 10 + i, Dimensions: 1})
		net.Connections = append(net.Connections, &sim.Connection{Pre: "src", Post: label})
		net.Probes = append(net.Probes, &sim.Probe{Label: "p_" + label, Target: label})
	}
	if err := net.Normalize(); err != nil {
		panic(err)
	}
	return net
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
