package schedule

import (
	"fmt"

	"github.com/nengo-mpi/nmpi/sim"
)

// InstrKind tags the closed set of runtime instructions.
type InstrKind string

const (
	InstrAddSignal  InstrKind = "AddSignal"
	InstrReset      InstrKind = "Reset"
	InstrCopy       InstrKind = "Copy"
	InstrDotIncMV   InstrKind = "DotIncMV"
	InstrDotIncVV   InstrKind = "DotIncVV"
	InstrProdUpdate InstrKind = "ProdUpdate"
	InstrFilter     InstrKind = "Filter"
	InstrLIF        InstrKind = "LIF"
	InstrLIFRate    InstrKind = "LIFRate"
	InstrPyFunc     InstrKind = "PyFunc"
	InstrProbe      InstrKind = "Probe"
	InstrSend       InstrKind = "Send"
	InstrRecv       InstrKind = "Recv"
)

// Instruction is one call of the Target protocol, stored as plain data.
// Keys holds the signal arguments in the order the matching Target method
// takes them:
//
//	AddSignal:  key                     (Label, Shape, Data)
//	Reset:      dst                     (Value)
//	Copy:       dst, src
//	DotIncMV:   A, X, Y
//	DotIncVV:   A, X, Y
//	ProdUpdate: B, Y
//	Filter:     input, output           (Num, Den)
//	LIF:        J, output, voltage, ref (N, TauRC, TauRef, DT)
//	LIFRate:    J, output               (N, TauRC, TauRef)
//	PyFunc:     output, input           (Func, TimeDependent)
//	Probe:      signal                  (Label, Period)
//	Send, Recv: signal                  (Peer)
type Instruction struct {
	Kind          InstrKind       `json:"kind"`
	Keys          []sim.SignalKey `json:"keys"`
	Label         string          `json:"label,omitempty"`
	Shape         sim.Shape       `json:"shape,omitempty"`
	Data          []float64       `json:"data,omitempty"`
	Value         float64         `json:"value,omitempty"`
	Num           []float64       `json:"num,omitempty"`
	Den           []float64       `json:"den,omitempty"`
	N             int             `json:"n,omitempty"`
	TauRC         float64         `json:"tau_rc,omitempty"`
	TauRef        float64         `json:"tau_ref,omitempty"`
	DT            float64         `json:"dt,omitempty"`
	Func          string          `json:"func,omitempty"`
	TimeDependent bool            `json:"time_dependent,omitempty"`
	Period        int             `json:"period,omitempty"`
	Peer          int             `json:"peer,omitempty"`
}

// Program is the ordered instruction stream of one component: signal
// registrations, then operators in global topological order, then probes
// and the step-boundary exchange lists.
type Program struct {
	Component    int           `json:"component"`
	DT           float64       `json:"dt"`
	Instructions []Instruction `json:"instructions"`
}

// Probes returns the labels of the probes registered by the program.
func (p *Program) Probes() []string {
	var out []string
	for _, in := range p.Instructions {
		if in.Kind == InstrProbe {
			out = append(out, in.Label)
		}
	}
	return out
}

// Count returns how many instructions of the given kind the program holds.
func (p *Program) Count(kind InstrKind) int {
	n := 0
	for _, in := range p.Instructions {
		if in.Kind == kind {
			n++
		}
	}
	return n
}

// Load replays the program against t in order. The first failing call
// aborts the load.
func (p *Program) Load(t Target) error {
	for i, in := range p.Instructions {
		if err := apply(t, in); err != nil {
			return fmt.Errorf("component %d instruction %d (%s): %w", p.Component, i, in.Kind, err)
		}
	}
	return nil
}

func apply(t Target, in Instruction) error {
	k := in.Keys
	need := func(n int) error {
		if len(k) != n {
			return fmt.Errorf("%s takes %d signals, got %d", in.Kind, n, len(k))
		}
		return nil
	}
	switch in.Kind {
	case InstrAddSignal:
		if err := need(1); err != nil {
			return err
		}
		return t.AddSignal(k[0], in.Label, in.Shape, in.Data)
	case InstrReset:
		if err := need(1); err != nil {
			return err
		}
		return t.CreateReset(k[0], in.Value)
	case InstrCopy:
		if err := need(2); err != nil {
			return err
		}
		return t.CreateCopy(k[0], k[1])
	case InstrDotIncMV:
		if err := need(3); err != nil {
			return err
		}
		return t.CreateDotIncMV(k[0], k[1], k[2])
	case InstrDotIncVV:
		if err := need(3); err != nil {
			return err
		}
		return t.CreateDotIncVV(k[0], k[1], k[2])
	case InstrProdUpdate:
		if err := need(2); err != nil {
			return err
		}
		return t.CreateProdUpdate(k[0], k[1])
	case InstrFilter:
		if err := need(2); err != nil {
			return err
		}
		return t.CreateFilter(k[0], k[1], in.Num, in.Den)
	case InstrLIF:
		if err := need(4); err != nil {
			return err
		}
		return t.CreateLIF(in.N, in.TauRC, in.TauRef, in.DT, k[0], k[1], k[2], k[3])
	case InstrLIFRate:
		if err := need(2); err != nil {
			return err
		}
		return t.CreateLIFRate(in.N, in.TauRC, in.TauRef, k[0], k[1])
	case InstrPyFunc:
		if err := need(2); err != nil {
			return err
		}
		return t.CreatePyFunc(k[0], in.Func, in.TimeDependent, k[1])
	case InstrProbe:
		if err := need(1); err != nil {
			return err
		}
		return t.AddProbe(in.Label, k[0], in.Period)
	case InstrSend:
		if err := need(1); err != nil {
			return err
		}
		return t.AddSend(k[0], in.Peer)
	case InstrRecv:
		if err := need(1); err != nil {
			return err
		}
		return t.AddRecv(k[0], in.Peer)
	default:
		return fmt.Errorf("%w: instruction %q", sim.ErrUnsupportedOperator, in.Kind)
	}
}
