package sim

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default entity parameters, applied by Network.Normalize.
const (
	DefaultSynapse    = 0.005
	DefaultTauRC      = 0.02
	DefaultTauRef     = 0.002
	DefaultMaxRateLo  = 200.0
	DefaultMaxRateHi  = 400.0
	DefaultInterceptL = -1.0
	DefaultInterceptH = 0.9
)

// Network is the structural description of a model: populations, nodes,
// the connections between them and the probes on them. Labels identify
// entities and must be unique across all entity kinds.
type Network struct {
	Label       string        `yaml:"label"`
	Seed        int64         `yaml:"seed"`
	Ensembles   []*Ensemble   `yaml:"ensembles"`
	Nodes       []*Node       `yaml:"nodes"`
	Connections []*Connection `yaml:"connections"`
	Probes      []*Probe      `yaml:"probes"`
}

// Ensemble is a population of neurons representing a vector.
type Ensemble struct {
	Label      string     `yaml:"label"`
	Neurons    int        `yaml:"neurons"`
	Dimensions int        `yaml:"dimensions"`
	NeuronType NeuronKind `yaml:"neuron_type"`
	TauRC      float64    `yaml:"tau_rc"`
	TauRef     float64    `yaml:"tau_ref"`
	MaxRates   []float64  `yaml:"max_rates"`
	Intercepts []float64  `yaml:"intercepts"`
}

// Node injects values into the network, either a constant output or the
// output of a registered function (see RegisterFunc).
type Node struct {
	Label    string    `yaml:"label"`
	Output   []float64 `yaml:"output,omitempty"`
	Function string    `yaml:"function,omitempty"`
	SizeIn   int       `yaml:"size_in,omitempty"`
	SizeOut  int       `yaml:"size_out,omitempty"`
}

// Connection moves a transformed copy of Pre's output into Post's input.
// A nil Synapse takes DefaultSynapse; a zero Synapse makes the connection
// instantaneous.
type Connection struct {
	Label        string     `yaml:"label"`
	Pre          string     `yaml:"pre"`
	Post         string     `yaml:"post"`
	Transform    *Transform `yaml:"transform,omitempty"`
	Synapse      *float64   `yaml:"synapse,omitempty"`
	LearningRule string     `yaml:"learning_rule,omitempty"`
	LearningRate float64    `yaml:"learning_rate,omitempty"`
}

// Probe records the output of an ensemble, node or connection.
type Probe struct {
	Label       string  `yaml:"label"`
	Target      string  `yaml:"target"`
	SampleEvery float64 `yaml:"sample_every,omitempty"`
}

// Transform is a scalar gain or a (post size_in × pre size_out) matrix.
type Transform struct {
	Scalar float64
	Matrix [][]float64
}

// UnmarshalYAML accepts either a number or a list of rows.
func (t *Transform) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&t.Scalar)
	}
	return value.Decode(&t.Matrix)
}

// MarshalYAML writes the scalar or matrix form back out.
func (t Transform) MarshalYAML() (interface{}, error) {
	if t.Matrix != nil {
		return t.Matrix, nil
	}
	return t.Scalar, nil
}

// ValidLearningRules is the set of recognized learning rule names.
var ValidLearningRules = map[string]bool{"": true, "trace": true}

// Instantaneous reports whether the connection applies no synapse.
func (c *Connection) Instantaneous() bool {
	return c.Synapse != nil && *c.Synapse == 0
}

// Tau returns the synapse time constant, or 0 for an instantaneous connection.
func (c *Connection) Tau() float64 {
	if c.Synapse == nil {
		return DefaultSynapse
	}
	return *c.Synapse
}

// HasLearningRule reports whether the connection learns online.
func (c *Connection) HasLearningRule() bool {
	return c.LearningRule != ""
}

// LoadNetwork reads a YAML network description. Unknown keys are errors.
func LoadNetwork(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading network %s: %w", path, err)
	}
	var net Network
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&net); err != nil {
		return nil, fmt.Errorf("parsing network %s: %w", path, err)
	}
	if err := net.Normalize(); err != nil {
		return nil, fmt.Errorf("network %s: %w", path, err)
	}
	return &net, nil
}

// Normalize fills defaults, names anonymous connections and validates the
// network. Safe to call more than once.
func (n *Network) Normalize() error {
	for _, e := range n.Ensembles {
		if e.NeuronType == "" {
			e.NeuronType = NeuronLIF
		}
		if e.Dimensions == 0 {
			e.Dimensions = 1
		}
		if e.TauRC == 0 {
			e.TauRC = DefaultTauRC
		}
		if e.TauRef == 0 {
			e.TauRef = DefaultTauRef
		}
		if len(e.MaxRates) == 0 {
			e.MaxRates = []float64{DefaultMaxRateLo, DefaultMaxRateHi}
		}
		if len(e.Intercepts) == 0 {
			e.Intercepts = []float64{DefaultInterceptL, DefaultInterceptH}
		}
	}
	for _, nd := range n.Nodes {
		if nd.SizeOut == 0 {
			if len(nd.Output) > 0 {
				nd.SizeOut = len(nd.Output)
			} else {
				nd.SizeOut = 1
			}
		}
	}
	seen := make(map[string]int)
	for _, c := range n.Connections {
		if c.Label == "" {
			base := fmt.Sprintf("%s->%s", c.Pre, c.Post)
			c.Label = base
			if k := seen[base]; k > 0 {
				c.Label = fmt.Sprintf("%s#%d", base, k)
			}
			seen[base]++
		}
	}
	return n.Validate()
}

// Validate checks labels, references and parameter ranges.
func (n *Network) Validate() error {
	labels := make(map[string]string)
	claim := func(label, kind string) error {
		if label == "" {
			return fmt.Errorf("%s with empty label", kind)
		}
		if prev, ok := labels[label]; ok {
			return fmt.Errorf("duplicate label %q (%s and %s)", label, prev, kind)
		}
		labels[label] = kind
		return nil
	}
	for _, e := range n.Ensembles {
		if err := claim(e.Label, "ensemble"); err != nil {
			return err
		}
		if e.Neurons < 1 {
			return fmt.Errorf("ensemble %q: neurons must be >= 1, got %d", e.Label, e.Neurons)
		}
		if e.Dimensions < 1 {
			return fmt.Errorf("ensemble %q: dimensions must be >= 1, got %d", e.Label, e.Dimensions)
		}
		if !ValidNeuronKinds[e.NeuronType] {
			return fmt.Errorf("ensemble %q: %w: neuron type %q", e.Label, ErrUnsupportedOperator, e.NeuronType)
		}
		if len(e.MaxRates) != 2 || len(e.Intercepts) != 2 {
			return fmt.Errorf("ensemble %q: max_rates and intercepts must be [low, high] pairs", e.Label)
		}
	}
	for _, nd := range n.Nodes {
		if err := claim(nd.Label, "node"); err != nil {
			return err
		}
		if nd.Function == "" && len(nd.Output) == 0 {
			return fmt.Errorf("node %q: needs an output or a function", nd.Label)
		}
		if nd.Function != "" && len(nd.Output) > 0 {
			return fmt.Errorf("node %q: output and function are mutually exclusive", nd.Label)
		}
		if nd.Function != "" {
			if _, ok := LookupFunc(nd.Function); !ok {
				return fmt.Errorf("node %q: unknown function %q", nd.Label, nd.Function)
			}
		}
		if nd.SizeIn > 0 && nd.Function == "" {
			return fmt.Errorf("node %q: size_in requires a function", nd.Label)
		}
	}
	for _, c := range n.Connections {
		if err := claim(c.Label, "connection"); err != nil {
			return err
		}
		if _, ok := labels[c.Pre]; !ok || labels[c.Pre] == "connection" {
			return fmt.Errorf("connection %q: unknown pre %q", c.Label, c.Pre)
		}
		if _, ok := labels[c.Post]; !ok || labels[c.Post] == "connection" {
			return fmt.Errorf("connection %q: unknown post %q", c.Label, c.Post)
		}
		if n.SizeIn(c.Post) == 0 {
			return fmt.Errorf("connection %q: post %q takes no input", c.Label, c.Post)
		}
		if c.Synapse != nil && *c.Synapse < 0 {
			return fmt.Errorf("connection %q: synapse must be >= 0, got %f", c.Label, *c.Synapse)
		}
		if !ValidLearningRules[c.LearningRule] {
			return fmt.Errorf("connection %q: unknown learning rule %q", c.Label, c.LearningRule)
		}
		if err := n.checkTransform(c); err != nil {
			return err
		}
	}
	for _, p := range n.Probes {
		if err := claim(p.Label, "probe"); err != nil {
			return err
		}
		kind, ok := labels[p.Target]
		if !ok || kind == "probe" {
			return fmt.Errorf("probe %q: unknown target %q", p.Label, p.Target)
		}
		if p.SampleEvery < 0 {
			return fmt.Errorf("probe %q: sample_every must be >= 0", p.Label)
		}
	}
	return nil
}

func (n *Network) checkTransform(c *Connection) error {
	in, out := n.SizeIn(c.Post), n.SizeOut(c.Pre)
	if c.Transform == nil || c.Transform.Matrix == nil {
		if in != out {
			return fmt.Errorf("connection %q: scalar transform needs matching sizes, pre %d != post %d", c.Label, out, in)
		}
		return nil
	}
	m := c.Transform.Matrix
	if len(m) != in {
		return fmt.Errorf("connection %q: transform has %d rows, post takes %d", c.Label, len(m), in)
	}
	for i, row := range m {
		if len(row) != out {
			return fmt.Errorf("connection %q: transform row %d has %d columns, pre gives %d", c.Label, i, len(row), out)
		}
	}
	return nil
}

// Ensemble returns the ensemble with the given label, or nil.
func (n *Network) Ensemble(label string) *Ensemble {
	for _, e := range n.Ensembles {
		if e.Label == label {
			return e
		}
	}
	return nil
}

// Node returns the node with the given label, or nil.
func (n *Network) Node(label string) *Node {
	for _, nd := range n.Nodes {
		if nd.Label == label {
			return nd
		}
	}
	return nil
}

// Connection returns the connection with the given label, or nil.
func (n *Network) Connection(label string) *Connection {
	for _, c := range n.Connections {
		if c.Label == label {
			return c
		}
	}
	return nil
}

// SizeIn is the input width of an ensemble or node.
func (n *Network) SizeIn(label string) int {
	if e := n.Ensemble(label); e != nil {
		return e.Dimensions
	}
	if nd := n.Node(label); nd != nil {
		return nd.SizeIn
	}
	return 0
}

// SizeOut is the output width of an ensemble or node.
func (n *Network) SizeOut(label string) int {
	if e := n.Ensemble(label); e != nil {
		return e.Dimensions
	}
	if nd := n.Node(label); nd != nil {
		return nd.SizeOut
	}
	return 0
}

// IsProbed reports whether any probe targets the labelled entity.
func (n *Network) IsProbed(label string) bool {
	for _, p := range n.Probes {
		if p.Target == label {
			return true
		}
	}
	return false
}

// Float64Ptr is a convenience for building connections in code.
func Float64Ptr(v float64) *float64 { return &v }
