// Package chunk is the runtime that executes one component's program: it
// owns the component's signal buffers, the operator kernels built over
// them, the probes, and the step-boundary exchange with peer components.
package chunk

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/nengo-mpi/nmpi/sim"
)

// State is the lifecycle state of a Chunk.
type State int

const (
	Created State = iota
	Populated
	Stepping
	Finalized
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Populated:
		return "populated"
	case Stepping:
		return "stepping"
	case Finalized:
		return "finalized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// buffer is the runtime copy of one signal.
type buffer struct {
	label string
	shape sim.Shape
	data  []float64
}

// kernel is one operator bound to its buffers.
type kernel interface {
	step(t float64) error
}

// Chunk executes the program of a single component. It implements
// schedule.Target. A Chunk is not safe for concurrent use.
type Chunk struct {
	id        int
	dt        float64
	transport Transport
	state     State

	signals map[sim.SignalKey]*buffer
	kernels []kernel
	probes  map[string]*probe
	order   []string // probe labels in registration order

	sends map[int][]sim.SignalKey // destination → keys, in registration order
	recvs map[int][]sim.SignalKey // source → keys, in registration order

	steps int
	time  float64
}

// New returns an empty chunk for component id. transport may be nil when
// the chunk never exchanges signals.
func New(id int, dt float64, transport Transport) *Chunk {
	return &Chunk{
		id:        id,
		dt:        dt,
		transport: transport,
		signals:   make(map[sim.SignalKey]*buffer),
		probes:    make(map[string]*probe),
		sends:     make(map[int][]sim.SignalKey),
		recvs:     make(map[int][]sim.SignalKey),
	}
}

// ID returns the component index of the chunk.
func (c *Chunk) ID() int { return c.id }

// State returns the lifecycle state.
func (c *Chunk) State() State { return c.state }

// Time returns the simulated time in seconds.
func (c *Chunk) Time() float64 { return c.time }

// Steps returns the number of steps run so far.
func (c *Chunk) Steps() int { return c.steps }

// populating guards every creation call.
func (c *Chunk) populating(what string) error {
	if c.state != Created && c.state != Populated {
		return fmt.Errorf("%w: %s on chunk %d in state %s", sim.ErrInvalidState, what, c.id, c.state)
	}
	c.state = Populated
	return nil
}

func (c *Chunk) lookup(key sim.SignalKey) (*buffer, error) {
	b, ok := c.signals[key]
	if !ok {
		return nil, fmt.Errorf("%w: key %d on chunk %d", sim.ErrUnknownSignal, key, c.id)
	}
	return b, nil
}

func (c *Chunk) lookupAll(keys ...sim.SignalKey) ([]*buffer, error) {
	out := make([]*buffer, len(keys))
	for i, k := range keys {
		b, err := c.lookup(k)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// AddSignal registers a buffer under key. data may be nil for a zero buffer.
func (c *Chunk) AddSignal(key sim.SignalKey, label string, shape sim.Shape, data []float64) error {
	if err := c.populating("AddSignal"); err != nil {
		return err
	}
	if _, ok := c.signals[key]; ok {
		return fmt.Errorf("chunk %d: signal key %d (%s) already registered", c.id, key, label)
	}
	size := shape.Size()
	buf := make([]float64, size)
	if data != nil {
		if len(data) != size {
			return fmt.Errorf("chunk %d: signal %s has %d values for shape %s", c.id, label, len(data), shape)
		}
		copy(buf, data)
	}
	c.signals[key] = &buffer{label: label, shape: append(sim.Shape(nil), shape...), data: buf}
	return nil
}

func (c *Chunk) add(what string, k kernel) error {
	c.kernels = append(c.kernels, k)
	logrus.Debugf("chunk %d: added %s", c.id, what)
	return nil
}

// CreateReset implements schedule.Target.
func (c *Chunk) CreateReset(dst sim.SignalKey, value float64) error {
	if err := c.populating("CreateReset"); err != nil {
		return err
	}
	b, err := c.lookup(dst)
	if err != nil {
		return err
	}
	return c.add("Reset", &reset{dst: b.data, value: value})
}

// CreateCopy implements schedule.Target.
func (c *Chunk) CreateCopy(dst, src sim.SignalKey) error {
	if err := c.populating("CreateCopy"); err != nil {
		return err
	}
	bs, err := c.lookupAll(dst, src)
	if err != nil {
		return err
	}
	if len(bs[0].data) != len(bs[1].data) {
		return fmt.Errorf("Copy: %s has size %d, %s has size %d", bs[0].label, len(bs[0].data), bs[1].label, len(bs[1].data))
	}
	return c.add("Copy", &copyOp{dst: bs[0].data, src: bs[1].data})
}

// CreateDotIncMV implements schedule.Target.
func (c *Chunk) CreateDotIncMV(a, x, y sim.SignalKey) error {
	if err := c.populating("CreateDotIncMV"); err != nil {
		return err
	}
	bs, err := c.lookupAll(a, x, y)
	if err != nil {
		return err
	}
	k, err := newDotIncMV(bs[0], bs[1], bs[2])
	if err != nil {
		return err
	}
	return c.add("DotIncMV", k)
}

// CreateDotIncVV implements schedule.Target.
func (c *Chunk) CreateDotIncVV(a, x, y sim.SignalKey) error {
	if err := c.populating("CreateDotIncVV"); err != nil {
		return err
	}
	bs, err := c.lookupAll(a, x, y)
	if err != nil {
		return err
	}
	k, err := newDotIncVV(bs[0], bs[1], bs[2])
	if err != nil {
		return err
	}
	return c.add("DotIncVV", k)
}

// CreateProdUpdate implements schedule.Target.
func (c *Chunk) CreateProdUpdate(b, y sim.SignalKey) error {
	if err := c.populating("CreateProdUpdate"); err != nil {
		return err
	}
	bs, err := c.lookupAll(b, y)
	if err != nil {
		return err
	}
	if len(bs[0].data) != 1 && len(bs[0].data) != len(bs[1].data) {
		return fmt.Errorf("ProdUpdate: B %s has size %d, Y %s has size %d", bs[0].label, len(bs[0].data), bs[1].label, len(bs[1].data))
	}
	return c.add("ProdUpdate", &prodUpdate{b: bs[0].data, y: bs[1].data})
}

// CreateFilter implements schedule.Target.
func (c *Chunk) CreateFilter(input, output sim.SignalKey, num, den []float64) error {
	if err := c.populating("CreateFilter"); err != nil {
		return err
	}
	bs, err := c.lookupAll(input, output)
	if err != nil {
		return err
	}
	if len(bs[0].data) != len(bs[1].data) {
		return fmt.Errorf("Filter: input %s has size %d, output %s has size %d", bs[0].label, len(bs[0].data), bs[1].label, len(bs[1].data))
	}
	return c.add("Filter", newFilter(bs[0].data, bs[1].data, num, den))
}

// CreateLIF implements schedule.Target.
func (c *Chunk) CreateLIF(n int, tauRC, tauRef, dt float64, j, output, voltage, refractory sim.SignalKey) error {
	if err := c.populating("CreateLIF"); err != nil {
		return err
	}
	bs, err := c.lookupAll(j, output, voltage, refractory)
	if err != nil {
		return err
	}
	for _, b := range bs {
		if len(b.data) != n {
			return fmt.Errorf("LIF: signal %s has size %d, want %d", b.label, len(b.data), n)
		}
	}
	return c.add("LIF", &lif{
		tauRC: tauRC, tauRef: tauRef, dt: dt,
		j: bs[0].data, output: bs[1].data, voltage: bs[2].data, refractory: bs[3].data,
	})
}

// CreateLIFRate implements schedule.Target.
func (c *Chunk) CreateLIFRate(n int, tauRC, tauRef float64, j, output sim.SignalKey) error {
	if err := c.populating("CreateLIFRate"); err != nil {
		return err
	}
	bs, err := c.lookupAll(j, output)
	if err != nil {
		return err
	}
	for _, b := range bs {
		if len(b.data) != n {
			return fmt.Errorf("LIFRate: signal %s has size %d, want %d", b.label, len(b.data), n)
		}
	}
	return c.add("LIFRate", &lifRate{tauRC: tauRC, tauRef: tauRef, j: bs[0].data, output: bs[1].data})
}

// CreatePyFunc implements schedule.Target.
func (c *Chunk) CreatePyFunc(output sim.SignalKey, fn string, timeDependent bool, input sim.SignalKey) error {
	if err := c.populating("CreatePyFunc"); err != nil {
		return err
	}
	f, ok := sim.LookupFunc(fn)
	if !ok {
		return fmt.Errorf("%w: function %q is not registered", sim.ErrUnsupportedOperator, fn)
	}
	out, err := c.lookup(output)
	if err != nil {
		return err
	}
	k := &pyFunc{name: fn, fn: f, timeDependent: timeDependent, output: out.data}
	if input != sim.NoSignal {
		in, err := c.lookup(input)
		if err != nil {
			return err
		}
		k.input = in.data
	}
	return c.add("PyFunc "+fn, k)
}

// AddProbe registers a probe sampling signal every period steps.
func (c *Chunk) AddProbe(label string, signal sim.SignalKey, period int) error {
	if err := c.populating("AddProbe"); err != nil {
		return err
	}
	if period < 1 {
		return fmt.Errorf("probe %q: period must be >= 1, got %d", label, period)
	}
	if _, ok := c.probes[label]; ok {
		return fmt.Errorf("chunk %d: probe %q already registered", c.id, label)
	}
	b, err := c.lookup(signal)
	if err != nil {
		return err
	}
	c.probes[label] = &probe{signal: b.data, period: period}
	c.order = append(c.order, label)
	return nil
}

// AddSend registers key to be sent to component dst after every step.
func (c *Chunk) AddSend(key sim.SignalKey, dst int) error {
	if err := c.populating("AddSend"); err != nil {
		return err
	}
	if _, err := c.lookup(key); err != nil {
		return err
	}
	if dst == c.id {
		return fmt.Errorf("chunk %d: send of key %d to itself", c.id, key)
	}
	c.sends[dst] = append(c.sends[dst], key)
	return nil
}

// AddRecv registers key to be received from component src after every step.
func (c *Chunk) AddRecv(key sim.SignalKey, src int) error {
	if err := c.populating("AddRecv"); err != nil {
		return err
	}
	if _, err := c.lookup(key); err != nil {
		return err
	}
	if src == c.id {
		return fmt.Errorf("chunk %d: recv of key %d from itself", c.id, key)
	}
	c.recvs[src] = append(c.recvs[src], key)
	return nil
}

// RunSteps advances the chunk n steps. Each step runs the operators in
// program order, samples the probes whose period divides the step index,
// advances time and then exchanges boundary signals with peers.
func (c *Chunk) RunSteps(ctx context.Context, n int) error {
	switch c.state {
	case Created:
		if len(c.signals) > 0 {
			return fmt.Errorf("%w: RunSteps on chunk %d in state %s", sim.ErrInvalidState, c.id, c.state)
		}
	case Populated, Stepping:
	default:
		return fmt.Errorf("%w: RunSteps on chunk %d in state %s", sim.ErrInvalidState, c.id, c.state)
	}
	if n < 0 {
		return fmt.Errorf("steps must be non-negative, got %d", n)
	}
	if (len(c.sends) > 0 || len(c.recvs) > 0) && c.transport == nil {
		return fmt.Errorf("chunk %d exchanges signals but has no transport", c.id)
	}
	c.state = Stepping

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, k := range c.kernels {
			if err := k.step(c.time); err != nil {
				return fmt.Errorf("chunk %d step %d: %w", c.id, c.steps, err)
			}
		}
		for _, label := range c.order {
			c.probes[label].gather(c.steps)
		}
		c.time += c.dt
		c.steps++
		if err := c.exchange(ctx); err != nil {
			return fmt.Errorf("chunk %d step %d: %w", c.id, c.steps-1, err)
		}
	}
	return nil
}

// exchange sends to every destination, then receives from every source,
// both in ascending peer order.
func (c *Chunk) exchange(ctx context.Context) error {
	for _, dst := range sortedPeers(c.sends) {
		var payload []float64
		for _, k := range c.sends[dst] {
			payload = append(payload, c.signals[k].data...)
		}
		if err := c.transport.Send(ctx, c.id, dst, payload); err != nil {
			return fmt.Errorf("send to %d: %w", dst, err)
		}
	}
	for _, src := range sortedPeers(c.recvs) {
		payload, err := c.transport.Recv(ctx, src, c.id)
		if err != nil {
			return fmt.Errorf("recv from %d: %w", src, err)
		}
		off := 0
		for _, k := range c.recvs[src] {
			data := c.signals[k].data
			if off+len(data) > len(payload) {
				return fmt.Errorf("recv from %d: payload of %d values is short for %s", src, len(payload), c.signals[k].label)
			}
			copy(data, payload[off:off+len(data)])
			off += len(data)
		}
		if off != len(payload) {
			return fmt.Errorf("recv from %d: %d values left over", src, len(payload)-off)
		}
	}
	return nil
}

func sortedPeers(m map[int][]sim.SignalKey) []int {
	peers := make([]int, 0, len(m))
	for p := range m {
		peers = append(peers, p)
	}
	sort.Ints(peers)
	return peers
}

// Probes returns the probe labels in registration order.
func (c *Chunk) Probes() []string {
	return append([]string(nil), c.order...)
}

// ProbeData returns the samples gathered by the probe since the previous
// call and clears them.
func (c *Chunk) ProbeData(label string) ([][]float64, error) {
	p, ok := c.probes[label]
	if !ok {
		return nil, fmt.Errorf("chunk %d: no probe %q", c.id, label)
	}
	return p.drain(), nil
}

// Signal returns a copy of the current contents of key.
func (c *Chunk) Signal(key sim.SignalKey) ([]float64, error) {
	b, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), b.data...), nil
}

// Finalize releases the chunk. Every later call fails with sim.ErrInvalidState.
func (c *Chunk) Finalize() error {
	if c.state == Finalized {
		return fmt.Errorf("%w: Finalize on chunk %d twice", sim.ErrInvalidState, c.id)
	}
	c.state = Finalized
	c.kernels = nil
	c.signals = nil
	logrus.Debugf("chunk %d finalized after %d steps", c.id, c.steps)
	return nil
}
