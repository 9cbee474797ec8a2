package chunk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nengo-mpi/nmpi/sim"
)

// minVoltage is the floor of LIF membrane voltages.
const minVoltage = 0.0

type reset struct {
	dst   []float64
	value float64
}

func (k *reset) step(float64) error {
	for i := range k.dst {
		k.dst[i] = k.value
	}
	return nil
}

type copyOp struct {
	dst, src []float64
}

func (k *copyOp) step(float64) error {
	copy(k.dst, k.src)
	return nil
}

// dotIncMV computes Y += A·X with A viewed as a row-major matrix over the
// signal's own storage.
type dotIncMV struct {
	a       *mat.Dense
	x       *mat.VecDense
	y       []float64
	scratch *mat.VecDense
	// scale is set when X is a scalar and Y has the shape of A.
	scale  bool
	flatA  []float64
	scalar []float64
}

func newDotIncMV(a, x, y *buffer) (*dotIncMV, error) {
	if len(a.shape) < 2 {
		return nil, fmt.Errorf("DotIncMV: A %s has shape %s, want a matrix", a.label, a.shape)
	}
	rows, cols := a.shape[0], a.shape.Size()/a.shape[0]
	if len(x.data) == 1 && len(y.data) == len(a.data) {
		return &dotIncMV{scale: true, flatA: a.data, scalar: x.data, y: y.data}, nil
	}
	if len(x.data) != cols || len(y.data) != rows {
		return nil, fmt.Errorf("DotIncMV: mismatching shapes A %s, X %s, Y %s", a.shape, x.shape, y.shape)
	}
	return &dotIncMV{
		a:       mat.NewDense(rows, cols, a.data),
		x:       mat.NewVecDense(cols, x.data),
		y:       y.data,
		scratch: mat.NewVecDense(rows, nil),
	}, nil
}

func (k *dotIncMV) step(float64) error {
	if k.scale {
		floats.AddScaled(k.y, k.scalar[0], k.flatA)
		return nil
	}
	k.scratch.MulVec(k.a, k.x)
	floats.Add(k.y, k.scratch.RawVector().Data)
	return nil
}

// dotIncVV computes Y += a·X for a length-1 A, and Y += A·X (inner
// product) for equal-length vectors with a length-1 Y.
type dotIncVV struct {
	a, x, y []float64
	inner   bool
}

func newDotIncVV(a, x, y *buffer) (*dotIncVV, error) {
	switch {
	case len(a.data) == 1 && len(x.data) == len(y.data):
		return &dotIncVV{a: a.data, x: x.data, y: y.data}, nil
	case len(a.data) == len(x.data) && len(y.data) == 1:
		return &dotIncVV{a: a.data, x: x.data, y: y.data, inner: true}, nil
	default:
		return nil, fmt.Errorf("DotIncVV: mismatching shapes A %s, X %s, Y %s", a.shape, x.shape, y.shape)
	}
}

func (k *dotIncVV) step(float64) error {
	if k.inner {
		k.y[0] += floats.Dot(k.a, k.x)
		return nil
	}
	floats.AddScaled(k.y, k.a[0], k.x)
	return nil
}

// prodUpdate computes Y *= B, elementwise or by a scalar B.
type prodUpdate struct {
	b, y []float64
}

func (k *prodUpdate) step(float64) error {
	if len(k.b) == 1 {
		floats.Scale(k.b[0], k.y)
		return nil
	}
	floats.Mul(k.y, k.b)
	return nil
}

// filter is a direct-form linear filter applied independently to every
// element:
//
//	y[n] = sum_j num[j]·x[n-j] - sum_j den[j]·y[n-1-j]
//
// Histories start at zero.
type filter struct {
	input, output []float64
	num, den      []float64
	x, y          [][]float64 // per element, most recent first
}

func newFilter(input, output, num, den []float64) *filter {
	f := &filter{
		input:  input,
		output: output,
		num:    append([]float64(nil), num...),
		den:    append([]float64(nil), den...),
		x:      make([][]float64, len(input)),
		y:      make([][]float64, len(input)),
	}
	for i := range input {
		f.x[i] = make([]float64, len(num))
		f.y[i] = make([]float64, len(den))
	}
	return f
}

func pushFront(h []float64, v float64) {
	if len(h) == 0 {
		return
	}
	copy(h[1:], h[:len(h)-1])
	h[0] = v
}

func (k *filter) step(float64) error {
	for i, in := range k.input {
		xh, yh := k.x[i], k.y[i]
		pushFront(xh, in)
		out := floats.Dot(k.num, xh) - floats.Dot(k.den, yh)
		pushFront(yh, out)
		k.output[i] = out
	}
	return nil
}

// lif integrates leaky integrate-and-fire membranes by one step. Spiking
// neurons output 1/dt; the overshoot past threshold shortens the
// refractory period by the fraction of the step already elapsed.
type lif struct {
	tauRC, tauRef, dt              float64
	j, output, voltage, refractory []float64
}

func (k *lif) step(float64) error {
	decay := -math.Expm1(-k.dt / k.tauRC)
	for i := range k.j {
		dV := decay * (k.j[i] - k.voltage[i])
		v := k.voltage[i] + dV
		if v < minVoltage {
			v = minVoltage
		}
		k.refractory[i] -= k.dt
		mult := 1 - k.refractory[i]/k.dt
		if mult > 1 {
			mult = 1
		} else if mult < 0 {
			mult = 0
		}
		v *= mult
		if v > 1 {
			k.output[i] = 1 / k.dt
			overshoot := (v - 1) / dV
			k.refractory[i] = k.tauRef + k.dt*(1-overshoot)
			v = 0
		} else {
			k.output[i] = 0
		}
		k.voltage[i] = v
	}
	return nil
}

// lifRate sets each output to the steady-state LIF firing rate for its
// input current.
type lifRate struct {
	tauRC, tauRef float64
	j, output     []float64
}

func (k *lifRate) step(float64) error {
	for i, j := range k.j {
		if j > 1 {
			k.output[i] = 1 / (k.tauRef + k.tauRC*math.Log1p(1/(j-1)))
		} else {
			k.output[i] = 0
		}
	}
	return nil
}

// pyFunc calls a registered function. A single returned value is broadcast
// to every output element.
type pyFunc struct {
	name          string
	fn            sim.Func
	timeDependent bool
	input         []float64
	output        []float64
}

func (k *pyFunc) step(t float64) error {
	if !k.timeDependent {
		t = 0
	}
	var x []float64
	if k.input != nil {
		x = append([]float64(nil), k.input...)
	}
	res := k.fn(t, x)
	switch len(res) {
	case len(k.output):
		copy(k.output, res)
	case 1:
		for i := range k.output {
			k.output[i] = res[0]
		}
	default:
		return fmt.Errorf("function %q returned %d values for an output of size %d", k.name, len(res), len(k.output))
	}
	return nil
}
