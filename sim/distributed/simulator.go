package distributed

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nengo-mpi/nmpi/sim/chunk"
	"github.com/nengo-mpi/nmpi/sim/schedule"
)

// Simulator steps one chunk per component in lock-step. Each RunSteps call
// runs every chunk in its own goroutine; the first error cancels the rest.
type Simulator struct {
	dt     float64
	chunks []*chunk.Chunk
	owner  map[string]int // probe label → component
	probes map[string][][]float64
	steps  int
	closed bool
}

// New loads programs into fresh chunks connected by a channel transport.
func New(programs []*schedule.Program) (*Simulator, error) {
	if len(programs) == 0 {
		return nil, fmt.Errorf("no programs to run")
	}
	dt := programs[0].DT
	tr := chunk.NewChannelTransport(len(programs))
	s := &Simulator{
		dt:     dt,
		chunks: make([]*chunk.Chunk, len(programs)),
		owner:  make(map[string]int),
		probes: make(map[string][][]float64),
	}
	for i, p := range programs {
		if p.Component != i {
			return nil, fmt.Errorf("program %d is for component %d", i, p.Component)
		}
		if p.DT != dt {
			return nil, fmt.Errorf("program %d has dt %g, program 0 has %g", i, p.DT, dt)
		}
		c := chunk.New(i, dt, tr)
		if err := p.Load(c); err != nil {
			return nil, fmt.Errorf("loading component %d: %w", i, err)
		}
		for _, label := range c.Probes() {
			if prev, ok := s.owner[label]; ok {
				return nil, fmt.Errorf("probe %q runs on components %d and %d", label, prev, i)
			}
			s.owner[label] = i
			s.probes[label] = [][]float64{}
		}
		s.chunks[i] = c
	}
	logrus.Infof("simulator ready: %d components, %d probes, dt=%g", len(s.chunks), len(s.owner), dt)
	return s, nil
}

// NComponents returns the number of chunks.
func (s *Simulator) NComponents() int { return len(s.chunks) }

// DT returns the timestep in seconds.
func (s *Simulator) DT() float64 { return s.dt }

// Steps returns the number of steps run so far.
func (s *Simulator) Steps() int { return s.steps }

// RunSteps advances every component n steps.
func (s *Simulator) RunSteps(ctx context.Context, n int) error {
	if s.closed {
		return fmt.Errorf("simulator is closed")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.chunks {
		c := c
		g.Go(func() error { return c.RunSteps(gctx, n) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.steps += n
	for label, comp := range s.owner {
		data, err := s.chunks[comp].ProbeData(label)
		if err != nil {
			return err
		}
		s.probes[label] = append(s.probes[label], data...)
	}
	logrus.Debugf("ran %d steps (total %d)", n, s.steps)
	return nil
}

// Run advances the simulation by seconds, rounded to whole steps.
func (s *Simulator) Run(ctx context.Context, seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("duration must be non-negative, got %g", seconds)
	}
	return s.RunSteps(ctx, int(math.Round(seconds/s.dt)))
}

// ProbeLabels returns the probe labels in sorted order.
func (s *Simulator) ProbeLabels() []string {
	labels := make([]string, 0, len(s.owner))
	for label := range s.owner {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// ProbeData returns every sample the probe has gathered since the start.
func (s *Simulator) ProbeData(label string) ([][]float64, error) {
	data, ok := s.probes[label]
	if !ok {
		return nil, fmt.Errorf("no probe %q", label)
	}
	return data, nil
}

// Trange returns the time of every step run so far.
func (s *Simulator) Trange() []float64 {
	t := make([]float64, s.steps)
	for i := range t {
		t[i] = float64(i) * s.dt
	}
	return t
}

// Close finalizes every chunk.
func (s *Simulator) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for _, c := range s.chunks {
		if err := c.Finalize(); err != nil {
			return err
		}
	}
	return nil
}
