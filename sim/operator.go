package sim

import (
	"fmt"
	"strings"
)

// OpKind tags the closed set of operator variants.
type OpKind string

const (
	OpReset        OpKind = "Reset"
	OpCopy         OpKind = "Copy"
	OpDotInc       OpKind = "DotInc"
	OpProdUpdate   OpKind = "ProdUpdate"
	OpFilter       OpKind = "Filter"
	OpNeuronUpdate OpKind = "NeuronUpdate"
	OpPyFunc       OpKind = "PyFunc"
	OpProbe        OpKind = "Probe"
)

// NeuronKind selects the neuron model of a NeuronUpdate operator.
type NeuronKind string

const (
	NeuronLIF     NeuronKind = "LIF"
	NeuronLIFRate NeuronKind = "LIFRate"
)

// ValidNeuronKinds is the set of neuron models the runtime can execute.
var ValidNeuronKinds = map[NeuronKind]bool{NeuronLIF: true, NeuronLIFRate: true}

// NoSignal marks an unused optional signal slot.
const NoSignal SignalKey = -1

// Operator is one computation unit of the build artifact. Kind selects which
// of the fields are meaningful:
//
//	Reset:        Dst, Value
//	Copy:         Dst, Src
//	DotInc:       A, X, Y            (Y += A·X)
//	ProdUpdate:   A, X, B, Y         (Y = Y*B + A·X)
//	Filter:       Input, Output, Num, Den
//	NeuronUpdate: Neuron, J, Output, TauRC, TauRef, Voltage, RefractoryTime
//	PyFunc:       Output, Func, TimeDependent, Input
//	Probe:        Target, Period | SampleEvery, ProbeLabel
type Operator struct {
	Kind OpKind
	Tag  string

	Dst   SignalKey
	Src   SignalKey
	Value float64

	A SignalKey
	X SignalKey
	B SignalKey
	Y SignalKey

	Input  SignalKey
	Output SignalKey
	Num    []float64
	Den    []float64

	Neuron         NeuronKind
	J              SignalKey
	TauRC          float64
	TauRef         float64
	Voltage        SignalKey
	RefractoryTime SignalKey

	Func          string
	TimeDependent bool

	Target      SignalKey
	Period      int
	SampleEvery float64
	ProbeLabel  string
}

// Access lists the signals an operator touches, split by how it touches them.
// Sets overwrite, Incs accumulate, Reads consume and Updates write after every
// reader of the same step has run.
type Access struct {
	Sets    []SignalKey
	Incs    []SignalKey
	Reads   []SignalKey
	Updates []SignalKey
}

// Writes returns the write-set: sets, incs and updates in that order.
func (a Access) Writes() []SignalKey {
	out := make([]SignalKey, 0, len(a.Sets)+len(a.Incs)+len(a.Updates))
	out = append(out, a.Sets...)
	out = append(out, a.Incs...)
	return append(out, a.Updates...)
}

// Access returns the signal accesses declared by the operator.
// Unknown kinds return an empty Access; the compiler rejects them.
func (op *Operator) Access() Access {
	switch op.Kind {
	case OpReset:
		return Access{Sets: []SignalKey{op.Dst}}
	case OpCopy:
		return Access{Sets: []SignalKey{op.Dst}, Reads: []SignalKey{op.Src}}
	case OpDotInc:
		return Access{Incs: []SignalKey{op.Y}, Reads: []SignalKey{op.A, op.X}}
	case OpProdUpdate:
		return Access{Updates: []SignalKey{op.Y}, Reads: []SignalKey{op.A, op.X, op.B}}
	case OpFilter:
		return Access{Updates: []SignalKey{op.Output}, Reads: []SignalKey{op.Input}}
	case OpNeuronUpdate:
		upd := []SignalKey{op.Output}
		if op.Voltage != NoSignal {
			upd = append(upd, op.Voltage)
		}
		if op.RefractoryTime != NoSignal {
			upd = append(upd, op.RefractoryTime)
		}
		return Access{Updates: upd, Reads: []SignalKey{op.J}}
	case OpPyFunc:
		a := Access{Sets: []SignalKey{op.Output}}
		if op.Input != NoSignal {
			a.Reads = []SignalKey{op.Input}
		}
		return a
	case OpProbe:
		return Access{Reads: []SignalKey{op.Target}}
	}
	return Access{}
}

// PrimaryWrite returns the signal whose owner decides which component runs
// the operator. Probes have no write-set and report their target.
func (op *Operator) PrimaryWrite() SignalKey {
	if op.Kind == OpProbe {
		return op.Target
	}
	w := op.Access().Writes()
	if len(w) == 0 {
		return NoSignal
	}
	return w[0]
}

func (op *Operator) String() string {
	var b strings.Builder
	b.WriteString(string(op.Kind))
	a := op.Access()
	fmt.Fprintf(&b, "{writes=%v reads=%v", a.Writes(), a.Reads)
	if op.Tag != "" {
		fmt.Fprintf(&b, " tag=%q", op.Tag)
	}
	b.WriteString("}")
	return b.String()
}

// NewReset returns Reset(dst, value).
func NewReset(dst SignalKey, value float64) *Operator {
	return &Operator{Kind: OpReset, Dst: dst, Value: value}
}

// NewCopy returns Copy(dst, src).
func NewCopy(dst, src SignalKey) *Operator {
	return &Operator{Kind: OpCopy, Dst: dst, Src: src}
}

// NewDotInc returns DotInc(A, X, Y).
func NewDotInc(a, x, y SignalKey) *Operator {
	return &Operator{Kind: OpDotInc, A: a, X: x, Y: y}
}

// NewProdUpdate returns ProdUpdate(A, X, B, Y).
func NewProdUpdate(a, x, b, y SignalKey) *Operator {
	return &Operator{Kind: OpProdUpdate, A: a, X: x, B: b, Y: y}
}

// NewFilter returns an IIR Filter(input, output, num, den).
func NewFilter(input, output SignalKey, num, den []float64) *Operator {
	return &Operator{Kind: OpFilter, Input: input, Output: output, Num: num, Den: den}
}

// NewNeuronUpdate returns a NeuronUpdate without state signals; set Voltage
// and RefractoryTime on the result for LIF.
func NewNeuronUpdate(kind NeuronKind, j, output SignalKey, tauRC, tauRef float64) *Operator {
	return &Operator{
		Kind: OpNeuronUpdate, Neuron: kind, J: j, Output: output,
		TauRC: tauRC, TauRef: tauRef, Voltage: NoSignal, RefractoryTime: NoSignal,
	}
}

// NewPyFunc returns PyFunc(output, fn, timeDependent, input). Pass NoSignal
// for a function without input.
func NewPyFunc(output SignalKey, fn string, timeDependent bool, input SignalKey) *Operator {
	return &Operator{Kind: OpPyFunc, Output: output, Func: fn, TimeDependent: timeDependent, Input: input}
}

// NewProbe returns a Probe sampling target. A positive period wins over
// sampleEvery; with neither set the signal is sampled every step.
func NewProbe(label string, target SignalKey, period int, sampleEvery float64) *Operator {
	return &Operator{Kind: OpProbe, ProbeLabel: label, Target: target, Period: period, SampleEvery: sampleEvery}
}
