// Package schedule orders a model's operators by their signal dependencies
// and compiles them into one Program per component.
//
// The dependency graph spans every operator of the model, so cross-component
// dependencies are visible before the order is split. A component runs the
// operators whose primary write signal it owns, in global order.
package schedule

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/nengo-mpi/nmpi/sim"
)

// Ownership maps an entity label to the components hosting it. Entities
// replicated into several clusters are hosted by several components.
type Ownership interface {
	ComponentsOf(entity string) []int
}

// Compile builds one program per component for the operators of m.
//
// A signal read on a component that does not own it is legal only when it
// is written solely by update operators, whose values are one step stale
// by construction; such signals are exchanged at every step boundary.
// Signals no operator writes are replicated. Any other remote read is a
// *sim.PartitionError.
func Compile(m *sim.Model, owners Ownership, components int) ([]*Program, error) {
	if components < 1 {
		return nil, fmt.Errorf("components must be >= 1, got %d", components)
	}
	if err := check(m); err != nil {
		return nil, err
	}
	dg, err := NewDependencyGraph(m.Operators)
	if err != nil {
		return nil, err
	}
	order, err := dg.Order()
	if err != nil {
		return nil, err
	}

	hosts := make([][]int, len(m.Signals))
	for _, s := range m.Signals {
		comps := owners.ComponentsOf(s.Owner)
		if len(comps) == 0 {
			return nil, fmt.Errorf("signal %s: owner %q is not assigned to any component", s.Label, s.Owner)
		}
		for _, c := range comps {
			if c < 0 || c >= components {
				return nil, fmt.Errorf("signal %s: owner %q assigned to component %d, want [0, %d)", s.Label, s.Owner, c, components)
			}
		}
		hosts[s.Key] = comps
	}
	sameStep := make([]bool, len(m.Signals))
	updated := make([]bool, len(m.Signals))
	for _, op := range m.Operators {
		acc := op.Access()
		for _, k := range acc.Sets {
			sameStep[k] = true
		}
		for _, k := range acc.Incs {
			sameStep[k] = true
		}
		for _, k := range acc.Updates {
			updated[k] = true
		}
	}

	c := &compiler{
		model:      m,
		hosts:      hosts,
		ops:        make([][]*sim.Operator, components),
		signals:    make([]map[sim.SignalKey]bool, components),
		recvs:      make([]map[sim.SignalKey]int, components),
		sends:      make([]map[[2]int]bool, components),
		components: components,
	}
	for i := range c.signals {
		c.signals[i] = make(map[sim.SignalKey]bool)
		c.recvs[i] = make(map[sim.SignalKey]int)
		c.sends[i] = make(map[[2]int]bool)
	}
	for _, s := range m.Signals {
		for _, comp := range hosts[s.Key] {
			c.signals[comp][s.Key] = true
		}
	}

	for _, i := range order {
		op := m.Operators[i]
		primary := op.PrimaryWrite()
		comps := hosts[primary]
		if op.Kind == sim.OpProbe {
			comps = comps[:1]
		}
		for _, comp := range comps {
			c.ops[comp] = append(c.ops[comp], op)
			acc := op.Access()
			for _, k := range acc.Writes() {
				if !c.hosted(k, comp) {
					return nil, fmt.Errorf("%w: operator %s writes %s, owned by %q on components %v, from component %d",
						sim.ErrPartition, op, m.Signals[k].Label, m.Signals[k].Owner, hosts[k], comp)
				}
			}
			for _, k := range acc.Reads {
				if c.hosted(k, comp) || c.signals[comp][k] {
					continue
				}
				s := m.Signals[k]
				switch {
				case sameStep[k]:
					return nil, &sim.PartitionError{
						Pre: s.Owner, Post: m.Signals[primary].Owner, Signal: s.Label,
						Reason: sim.ReasonSameStepRead, PreComp: hosts[k][0], PostComp: comp,
					}
				case updated[k]:
					src := hosts[k][0]
					c.recvs[comp][k] = src
					c.sends[src][[2]int{int(k), comp}] = true
				}
				c.signals[comp][k] = true
			}
		}
	}

	progs := make([]*Program, components)
	for comp := range progs {
		p, err := c.program(comp)
		if err != nil {
			return nil, err
		}
		progs[comp] = p
		logrus.Debugf("component %d: %d signals, %d operators, %d sends, %d recvs",
			comp, len(c.signals[comp]), len(c.ops[comp]), len(c.sends[comp]), len(c.recvs[comp]))
	}
	return progs, nil
}

// check rejects operators outside the closed set and unknown signal keys.
func check(m *sim.Model) error {
	for i, op := range m.Operators {
		switch op.Kind {
		case sim.OpReset, sim.OpCopy, sim.OpDotInc, sim.OpProdUpdate, sim.OpFilter, sim.OpPyFunc, sim.OpProbe:
		case sim.OpNeuronUpdate:
			if !sim.ValidNeuronKinds[op.Neuron] {
				return fmt.Errorf("%w: operator #%d has neuron kind %q", sim.ErrUnsupportedOperator, i, op.Neuron)
			}
		default:
			return fmt.Errorf("%w: operator #%d has kind %q", sim.ErrUnsupportedOperator, i, op.Kind)
		}
		acc := op.Access()
		for _, keys := range [][]sim.SignalKey{acc.Sets, acc.Incs, acc.Reads, acc.Updates} {
			for _, k := range keys {
				if m.Signal(k) == nil {
					return fmt.Errorf("%w: operator #%d %s references signal %d", sim.ErrUnknownSignal, i, op, k)
				}
			}
		}
	}
	return nil
}

type compiler struct {
	model      *sim.Model
	hosts      [][]int
	ops        [][]*sim.Operator
	signals    []map[sim.SignalKey]bool // component → signals it holds
	recvs      []map[sim.SignalKey]int  // component → received signal → source component
	sends      []map[[2]int]bool        // component → {signal, destination}
	components int
}

func (c *compiler) hosted(k sim.SignalKey, comp int) bool {
	for _, h := range c.hosts[k] {
		if h == comp {
			return true
		}
	}
	return false
}

func (c *compiler) program(comp int) (*Program, error) {
	p := &Program{Component: comp, DT: c.model.DT}

	keys := make([]sim.SignalKey, 0, len(c.signals[comp]))
	for k := range c.signals[comp] {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		s := c.model.Signals[k]
		p.Instructions = append(p.Instructions, Instruction{
			Kind:  InstrAddSignal,
			Keys:  []sim.SignalKey{k},
			Label: s.Label,
			Shape: s.Shape,
			Data:  append([]float64(nil), s.Initial...),
		})
	}

	var probes []Instruction
	for _, op := range c.ops[comp] {
		ins, err := Dispatch(c.model, op)
		if err != nil {
			return nil, err
		}
		if op.Kind == sim.OpProbe {
			probes = append(probes, ins...)
			continue
		}
		p.Instructions = append(p.Instructions, ins...)
	}
	p.Instructions = append(p.Instructions, probes...)

	sends := make([][2]int, 0, len(c.sends[comp]))
	for s := range c.sends[comp] {
		sends = append(sends, s)
	}
	sort.Slice(sends, func(i, j int) bool {
		if sends[i][1] != sends[j][1] {
			return sends[i][1] < sends[j][1]
		}
		return sends[i][0] < sends[j][0]
	})
	for _, s := range sends {
		p.Instructions = append(p.Instructions, Instruction{Kind: InstrSend, Keys: []sim.SignalKey{sim.SignalKey(s[0])}, Peer: s[1]})
	}

	recvs := make([]sim.SignalKey, 0, len(c.recvs[comp]))
	for k := range c.recvs[comp] {
		recvs = append(recvs, k)
	}
	sort.Slice(recvs, func(i, j int) bool {
		si, sj := c.recvs[comp][recvs[i]], c.recvs[comp][recvs[j]]
		if si != sj {
			return si < sj
		}
		return recvs[i] < recvs[j]
	})
	for _, k := range recvs {
		p.Instructions = append(p.Instructions, Instruction{Kind: InstrRecv, Keys: []sim.SignalKey{k}, Peer: c.recvs[comp][k]})
	}
	return p, nil
}

// Dispatch translates one operator into runtime instructions.
//
// DotInc becomes DotIncMV when A is a matrix (two or more dimensions, both
// greater than 1) and DotIncVV otherwise; when exactly one operand is a
// scalar it is passed as A. ProdUpdate becomes ProdUpdate(B, Y) followed by
// the DotInc dispatch on Y.
func Dispatch(m *sim.Model, op *sim.Operator) ([]Instruction, error) {
	switch op.Kind {
	case sim.OpReset:
		logrus.Debugf("Creating Reset, dst:%d, value:%g", op.Dst, op.Value)
		return []Instruction{{Kind: InstrReset, Keys: []sim.SignalKey{op.Dst}, Value: op.Value}}, nil
	case sim.OpCopy:
		logrus.Debugf("Creating Copy, dst:%d, src:%d", op.Dst, op.Src)
		return []Instruction{{Kind: InstrCopy, Keys: []sim.SignalKey{op.Dst, op.Src}}}, nil
	case sim.OpDotInc:
		return []Instruction{dotInc(m, op.A, op.X, op.Y)}, nil
	case sim.OpProdUpdate:
		logrus.Debugf("Creating ProdUpdate, B:%d, Y:%d", op.B, op.Y)
		return []Instruction{
			{Kind: InstrProdUpdate, Keys: []sim.SignalKey{op.B, op.Y}},
			dotInc(m, op.A, op.X, op.Y),
		}, nil
	case sim.OpFilter:
		logrus.Debugf("Creating Filter, input:%d, output:%d, num:%v, den:%v", op.Input, op.Output, op.Num, op.Den)
		return []Instruction{{
			Kind: InstrFilter, Keys: []sim.SignalKey{op.Input, op.Output},
			Num: append([]float64(nil), op.Num...), Den: append([]float64(nil), op.Den...),
		}}, nil
	case sim.OpNeuronUpdate:
		n := m.Signals[op.J].Shape.Size()
		switch op.Neuron {
		case sim.NeuronLIF:
			if op.Voltage == sim.NoSignal || op.RefractoryTime == sim.NoSignal {
				return nil, fmt.Errorf("LIF operator %s needs voltage and refractory_time signals", op)
			}
			logrus.Debugf("Creating LIF, N: %d, J:%d, output:%d", n, op.J, op.Output)
			return []Instruction{{
				Kind: InstrLIF, Keys: []sim.SignalKey{op.J, op.Output, op.Voltage, op.RefractoryTime},
				N: n, TauRC: op.TauRC, TauRef: op.TauRef, DT: m.DT,
			}}, nil
		case sim.NeuronLIFRate:
			logrus.Debugf("Creating LIFRate, N: %d, J:%d, output:%d", n, op.J, op.Output)
			return []Instruction{{
				Kind: InstrLIFRate, Keys: []sim.SignalKey{op.J, op.Output},
				N: n, TauRC: op.TauRC, TauRef: op.TauRef,
			}}, nil
		default:
			return nil, fmt.Errorf("%w: neuron kind %q", sim.ErrUnsupportedOperator, op.Neuron)
		}
	case sim.OpPyFunc:
		logrus.Debugf("Creating PyFunc %q, output:%d, input:%d", op.Func, op.Output, op.Input)
		return []Instruction{{
			Kind: InstrPyFunc, Keys: []sim.SignalKey{op.Output, op.Input},
			Func: op.Func, TimeDependent: op.TimeDependent,
		}}, nil
	case sim.OpProbe:
		period := ProbePeriod(op, m.DT)
		logrus.Debugf("Creating Probe %q, signal:%d, period:%d", op.ProbeLabel, op.Target, period)
		return []Instruction{{Kind: InstrProbe, Keys: []sim.SignalKey{op.Target}, Label: op.ProbeLabel, Period: period}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", sim.ErrUnsupportedOperator, op.Kind)
	}
}

func dotInc(m *sim.Model, a, x, y sim.SignalKey) Instruction {
	as, xs := m.Signals[a].Shape, m.Signals[x].Shape
	switch {
	case as.IsMatrix():
		logrus.Debugf("Creating DotIncMV, A:%d, X:%d, Y:%d", a, x, y)
		return Instruction{Kind: InstrDotIncMV, Keys: []sim.SignalKey{a, x, y}}
	case xs.IsScalar() && !as.IsScalar():
		logrus.Debugf("Creating DotIncVV(inv), A:%d, X:%d, Y:%d", x, a, y)
		return Instruction{Kind: InstrDotIncVV, Keys: []sim.SignalKey{x, a, y}}
	default:
		logrus.Debugf("Creating DotIncVV, A:%d, X:%d, Y:%d", a, x, y)
		return Instruction{Kind: InstrDotIncVV, Keys: []sim.SignalKey{a, x, y}}
	}
}

// ProbePeriod returns the sampling period in steps: the explicit period
// when set, otherwise sample_every/dt rounded to the nearest step, and at
// least 1.
func ProbePeriod(op *sim.Operator, dt float64) int {
	if op.Period > 0 {
		return op.Period
	}
	if op.SampleEvery <= 0 || dt <= 0 {
		return 1
	}
	period := int(math.Round(op.SampleEvery / dt))
	if period < 1 {
		return 1
	}
	return period
}
