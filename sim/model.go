package sim

import "fmt"

// Model is the build artifact: an arena of signals and the ordered list of
// operators that read and write them. Signal keys are indices into Signals.
// Structure is fixed once built; only runtime copies of the signal contents
// change while stepping.
type Model struct {
	Label     string
	DT        float64
	Signals   []*Signal
	Operators []*Operator
}

// NewModel creates an empty model for the given timestep.
func NewModel(label string, dt float64) *Model {
	return &Model{Label: label, DT: dt}
}

// AddSignal appends a signal to the arena and returns its key. initial may
// be nil for a zero-filled buffer; otherwise it must match the shape size.
func (m *Model) AddSignal(label, owner string, shape Shape, initial []float64) SignalKey {
	size := shape.Size()
	data := make([]float64, size)
	if initial != nil {
		if len(initial) != size {
			panic(fmt.Sprintf("Model.AddSignal(%q): %d initial values for shape %s", label, len(initial), shape))
		}
		copy(data, initial)
	}
	key := SignalKey(len(m.Signals))
	m.Signals = append(m.Signals, &Signal{
		Key:     key,
		Label:   label,
		Shape:   append(Shape(nil), shape...),
		Initial: data,
		Owner:   owner,
	})
	return key
}

// AddOperator appends an operator, tagging it for debug output.
func (m *Model) AddOperator(op *Operator, tag string) {
	op.Tag = tag
	m.Operators = append(m.Operators, op)
}

// Signal returns the signal with the given key, or nil when out of range.
func (m *Model) Signal(key SignalKey) *Signal {
	if key < 0 || int(key) >= len(m.Signals) {
		return nil
	}
	return m.Signals[key]
}

// Lookup returns the first signal with the given label, or nil.
func (m *Model) Lookup(label string) *Signal {
	for _, s := range m.Signals {
		if s.Label == label {
			return s
		}
	}
	return nil
}

// Probes returns the probe operators in declaration order.
func (m *Model) Probes() []*Operator {
	var out []*Operator
	for _, op := range m.Operators {
		if op.Kind == OpProbe {
			out = append(out, op)
		}
	}
	return out
}
