// Package build turns a structural network description into the build
// artifact consumed by the partitioning pipeline: an arena of signals and
// the operators reading and writing them.
//
// Signals are labelled "<entity>.<name>" and owned by the entity that
// created them. Connection signals are owned by the connection; the cluster
// graph decides which side of the connection hosts them.
package build

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/nengo-mpi/nmpi/sim"
)

// evalPoints is the number of points sampled per ensemble when solving for decoders.
const evalPoints = 300

// DefaultLearningRate applies to learning connections that do not set one.
const DefaultLearningRate = 1e-4

// Build produces the model for net with timestep dt. net must be normalized.
func Build(net *sim.Network, dt float64) (*sim.Model, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("dt must be positive, got %f", dt)
	}
	if err := net.Validate(); err != nil {
		return nil, fmt.Errorf("invalid network: %w", err)
	}
	b := &builder{
		net:    net,
		dt:     dt,
		model:  sim.NewModel(fmt.Sprintf("%s, dt=%f", net.Label, dt), dt),
		rng:    sim.NewPartitionedRNG(sim.NewSimulationKey(net.Seed)),
		input:  make(map[string]sim.SignalKey),
		output: make(map[string]sim.SignalKey),
		probe:  make(map[string]sim.SignalKey),
	}
	for _, e := range net.Ensembles {
		if err := b.ensemble(e); err != nil {
			return nil, err
		}
	}
	for _, n := range net.Nodes {
		b.node(n)
	}
	for _, c := range net.Connections {
		b.connection(c)
	}
	for _, p := range net.Probes {
		target, ok := b.probe[p.Target]
		if !ok {
			target = b.output[p.Target]
		}
		b.model.AddOperator(sim.NewProbe(p.Label, target, 0, p.SampleEvery), p.Label)
	}
	logrus.Debugf("built %q: %d signals, %d operators", net.Label, len(b.model.Signals), len(b.model.Operators))
	return b.model, nil
}

type builder struct {
	net   *sim.Network
	dt    float64
	model *sim.Model
	rng   *sim.PartitionedRNG

	input  map[string]sim.SignalKey // entity -> input signal
	output map[string]sim.SignalKey // entity -> output signal
	probe  map[string]sim.SignalKey // connection -> probeable signal
}

func (b *builder) signal(owner, name string, shape sim.Shape, initial []float64) sim.SignalKey {
	return b.model.AddSignal(owner+"."+name, owner, shape, initial)
}

func (b *builder) ensemble(e *sim.Ensemble) error {
	n, d := e.Neurons, e.Dimensions
	rng := b.rng.ForSubsystem(sim.SubsystemEnsemble(e.Label))

	gain := make([]float64, n)
	bias := make([]float64, n)
	for i := 0; i < n; i++ {
		maxRate := e.MaxRates[0] + rng.Float64()*(e.MaxRates[1]-e.MaxRates[0])
		intercept := e.Intercepts[0] + rng.Float64()*(e.Intercepts[1]-e.Intercepts[0])
		if maxRate*e.TauRef >= 1 {
			return fmt.Errorf("ensemble %q: max rate %.1f unreachable with tau_ref %g", e.Label, maxRate, e.TauRef)
		}
		z := 1 / (1 - math.Exp((e.TauRef-1/maxRate)/e.TauRC))
		gain[i] = (1 - z) / (intercept - 1)
		bias[i] = 1 - gain[i]*intercept
	}

	encoders := make([]float64, n*d)
	for i := 0; i < n; i++ {
		row := encoders[i*d : (i+1)*d]
		var norm float64
		for norm == 0 {
			norm = 0
			for j := range row {
				row[j] = rng.NormFloat64()
				norm += row[j] * row[j]
			}
		}
		norm = math.Sqrt(norm)
		for j := range row {
			row[j] /= norm
		}
	}

	decoders, err := solveDecoders(e, encoders, gain, bias, rng.Float64)
	if err != nil {
		return fmt.Errorf("ensemble %q: %w", e.Label, err)
	}

	scaled := make([]float64, n*d)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			scaled[i*d+j] = encoders[i*d+j] * gain[i]
		}
	}

	label := e.Label
	in := b.signal(label, "input", sim.Shape{d}, nil)
	enc := b.signal(label, "encoders", sim.Shape{n, d}, scaled)
	bs := b.signal(label, "bias", sim.Shape{n}, bias)
	j := b.signal(label, "J", sim.Shape{n}, nil)
	act := b.signal(label, "activities", sim.Shape{n}, nil)
	dec := b.signal(label, "decoders", sim.Shape{d, n}, decoders)
	out := b.signal(label, "decoded", sim.Shape{d}, nil)

	b.model.AddOperator(sim.NewReset(in, 0), label+" input reset")
	b.model.AddOperator(sim.NewCopy(j, bs), label+" bias")
	b.model.AddOperator(sim.NewDotInc(enc, in, j), label+" encode")
	nu := sim.NewNeuronUpdate(e.NeuronType, j, act, e.TauRC, e.TauRef)
	if e.NeuronType == sim.NeuronLIF {
		nu.Voltage = b.signal(label, "voltage", sim.Shape{n}, nil)
		nu.RefractoryTime = b.signal(label, "refractory_time", sim.Shape{n}, nil)
	}
	b.model.AddOperator(nu, label+" neurons")
	b.model.AddOperator(sim.NewReset(out, 0), label+" decoded reset")
	b.model.AddOperator(sim.NewDotInc(dec, act, out), label+" decode")

	b.input[label] = in
	b.output[label] = out
	return nil
}

// solveDecoders fits linear decoders (d × n, row-major) from the ensemble's
// steady-state rates with L2 regularization.
func solveDecoders(e *sim.Ensemble, encoders, gain, bias []float64, uniform func() float64) ([]float64, error) {
	n, d := e.Neurons, e.Dimensions
	acts := mat.NewDense(evalPoints, n, nil)
	targets := mat.NewDense(evalPoints, d, nil)
	maxAct := 0.0
	for p := 0; p < evalPoints; p++ {
		x := make([]float64, d)
		for k := range x {
			x[k] = 2*uniform() - 1
			targets.Set(p, k, x[k])
		}
		for i := 0; i < n; i++ {
			var dot float64
			for k := 0; k < d; k++ {
				dot += encoders[i*d+k] * x[k]
			}
			r := lifRate(gain[i]*dot+bias[i], e.TauRC, e.TauRef)
			acts.Set(p, i, r)
			maxAct = math.Max(maxAct, r)
		}
	}
	reg := 0.1 * maxAct
	lambda := reg * reg * evalPoints
	if lambda == 0 {
		lambda = 1
	}

	var gram mat.Dense
	gram.Mul(acts.T(), acts)
	for i := 0; i < n; i++ {
		gram.Set(i, i, gram.At(i, i)+lambda)
	}
	var rhs mat.Dense
	rhs.Mul(acts.T(), targets)
	var sol mat.Dense
	if err := sol.Solve(&gram, &rhs); err != nil {
		return nil, fmt.Errorf("solving decoders: %w", err)
	}

	out := make([]float64, d*n)
	for k := 0; k < d; k++ {
		for i := 0; i < n; i++ {
			out[k*n+i] = sol.At(i, k)
		}
	}
	return out, nil
}

func lifRate(j, tauRC, tauRef float64) float64 {
	if j <= 1 {
		return 0
	}
	return 1 / (tauRef + tauRC*math.Log1p(1/(j-1)))
}

func (b *builder) node(n *sim.Node) {
	label := n.Label
	if n.Function == "" {
		b.output[label] = b.signal(label, "output", sim.Shape{n.SizeOut}, n.Output)
		return
	}
	in := sim.NoSignal
	if n.SizeIn > 0 {
		in = b.signal(label, "input", sim.Shape{n.SizeIn}, nil)
		b.model.AddOperator(sim.NewReset(in, 0), label+" input reset")
		b.input[label] = in
	}
	out := b.signal(label, "output", sim.Shape{n.SizeOut}, nil)
	b.model.AddOperator(sim.NewPyFunc(out, n.Function, true, in), label+" function")
	b.output[label] = out
}

func (b *builder) connection(c *sim.Connection) {
	label := c.Label
	src, dst := b.output[c.Pre], b.input[c.Post]
	size := b.net.SizeIn(c.Post)

	var transform sim.SignalKey
	switch {
	case c.Transform == nil:
		transform = b.signal(label, "transform", sim.Shape{1}, []float64{1})
	case c.Transform.Matrix == nil:
		transform = b.signal(label, "transform", sim.Shape{1}, []float64{c.Transform.Scalar})
	default:
		rows, cols := len(c.Transform.Matrix), len(c.Transform.Matrix[0])
		flat := make([]float64, 0, rows*cols)
		for _, row := range c.Transform.Matrix {
			flat = append(flat, row...)
		}
		transform = b.signal(label, "transform", sim.Shape{rows, cols}, flat)
	}

	weighted := b.signal(label, "weighted", sim.Shape{size}, nil)
	b.model.AddOperator(sim.NewReset(weighted, 0), label+" reset")
	b.model.AddOperator(sim.NewDotInc(transform, src, weighted), label+" transform")

	carried := weighted
	if !c.Instantaneous() {
		a := math.Exp(-b.dt / c.Tau())
		filtered := b.signal(label, "filtered", sim.Shape{size}, nil)
		b.model.AddOperator(sim.NewFilter(weighted, filtered, []float64{1 - a}, []float64{-a}), label+" synapse")
		carried = filtered
	}
	b.probe[label] = carried

	if c.HasLearningRule() {
		rate := c.LearningRate
		if rate == 0 {
			rate = DefaultLearningRate
		}
		preSize := b.net.SizeOut(c.Pre)
		trace := b.signal(label, "trace", sim.Shape{preSize}, nil)
		lr := b.signal(label, "learning_rate", sim.Shape{1}, []float64{rate})
		decay := b.signal(label, "decay", sim.Shape{1}, []float64{1 - rate})
		b.model.AddOperator(sim.NewProdUpdate(lr, src, decay, trace), label+" "+c.LearningRule)
	}

	unit := b.signal(label, "unit", sim.Shape{1}, []float64{1})
	b.model.AddOperator(sim.NewDotInc(unit, carried, dst), label+" deliver")
}
