package sim

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadNetwork_NormalizesDefaults(t *testing.T) {
	// GIVEN a minimal network file
	path := writeFile(t, "net.yaml", `
label: tiny
ensembles:
  - label: A
    neurons: 10
nodes:
  - label: in
    output: [0.5]
connections:
  - pre: in
    post: A
  - pre: in
    post: A
    synapse: 0
    transform: 2
probes:
  - label: pA
    target: A
`)

	// WHEN loaded
	net, err := LoadNetwork(path)

	// THEN defaults are filled in and anonymous connections are named
	require.NoError(t, err)
	a := net.Ensemble("A")
	require.NotNil(t, a)
	assert.Equal(t, NeuronLIF, a.NeuronType)
	assert.Equal(t, 1, a.Dimensions)
	assert.Equal(t, DefaultTauRC, a.TauRC)
	assert.Equal(t, DefaultTauRef, a.TauRef)
	assert.Equal(t, []float64{DefaultMaxRateLo, DefaultMaxRateHi}, a.MaxRates)
	assert.Equal(t, 1, net.Node("in").SizeOut)
	assert.Equal(t, "in->A", net.Connections[0].Label)
	assert.Equal(t, "in->A#1", net.Connections[1].Label)
	assert.Equal(t, 2.0, net.Connections[1].Transform.Scalar)

	// AND connection helpers report synapse semantics
	assert.False(t, net.Connections[0].Instantaneous())
	assert.Equal(t, DefaultSynapse, net.Connections[0].Tau())
	assert.True(t, net.Connections[1].Instantaneous())
	assert.True(t, net.IsProbed("A"))
	assert.False(t, net.IsProbed("in"))
}

func TestLoadNetwork_MatrixTransform(t *testing.T) {
	path := writeFile(t, "net.yaml", `
ensembles:
  - {label: A, neurons: 5, dimensions: 2}
  - {label: B, neurons: 5, dimensions: 3}
connections:
  - pre: A
    post: B
    transform: [[1, 0], [0, 1], [1, 1]]
`)

	net, err := LoadNetwork(path)

	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}, {1, 1}}, net.Connections[0].Transform.Matrix)
}

func TestLoadNetwork_UnknownKey(t *testing.T) {
	_, err := LoadNetwork(writeFile(t, "net.yaml", "ensembels: []\n"))

	assert.Error(t, err)
}

func TestNetwork_Validate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "duplicate label across kinds",
			yaml:    "ensembles: [{label: X, neurons: 1}]\nnodes: [{label: X, output: [1]}]\n",
			wantErr: "duplicate label",
		},
		{
			name:    "unknown pre",
			yaml:    "ensembles: [{label: A, neurons: 1}]\nconnections: [{pre: Z, post: A}]\n",
			wantErr: "unknown pre",
		},
		{
			name:    "transform size mismatch",
			yaml:    "ensembles: [{label: A, neurons: 1, dimensions: 2}, {label: B, neurons: 1}]\nconnections: [{pre: A, post: B}]\n",
			wantErr: "scalar transform",
		},
		{
			name:    "negative synapse",
			yaml:    "ensembles: [{label: A, neurons: 1}, {label: B, neurons: 1}]\nconnections: [{pre: A, post: B, synapse: -1}]\n",
			wantErr: "synapse",
		},
		{
			name:    "unknown learning rule",
			yaml:    "ensembles: [{label: A, neurons: 1}, {label: B, neurons: 1}]\nconnections: [{pre: A, post: B, learning_rule: bcm}]\n",
			wantErr: "learning rule",
		},
		{
			name:    "post takes no input",
			yaml:    "ensembles: [{label: A, neurons: 1}]\nnodes: [{label: n, output: [1]}]\nconnections: [{pre: A, post: n}]\n",
			wantErr: "takes no input",
		},
		{
			name:    "unknown function",
			yaml:    "nodes: [{label: n, function: sawtooth}]\n",
			wantErr: "unknown function",
		},
		{
			name:    "probe of unknown target",
			yaml:    "probes: [{label: p, target: nowhere}]\n",
			wantErr: "unknown target",
		},
		{
			name:    "unsupported neuron type",
			yaml:    "ensembles: [{label: A, neurons: 1, neuron_type: Izhikevich}]\n",
			wantErr: "unsupported operator",
		},
		{
			name:    "zero neurons",
			yaml:    "ensembles: [{label: A, neurons: 0}]\n",
			wantErr: "neurons",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadNetwork(writeFile(t, "net.yaml", tt.yaml))

			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "got %v", err)
		})
	}
}

func TestNetwork_Sizes(t *testing.T) {
	net := &Network{
		Ensembles: []*Ensemble{{Label: "E", Neurons: 3, Dimensions: 4}},
		Nodes:     []*Node{{Label: "f", Function: "square", SizeIn: 2, SizeOut: 2}},
	}

	assert.Equal(t, 4, net.SizeIn("E"))
	assert.Equal(t, 4, net.SizeOut("E"))
	assert.Equal(t, 2, net.SizeIn("f"))
	assert.Equal(t, 0, net.SizeIn("missing"))
	assert.Nil(t, net.Connection("missing"))
}
