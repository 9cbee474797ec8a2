// Package store persists compiled runs: the per-component programs of a
// partitioned network together with the metadata needed to load and run
// them again.
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/nengo-mpi/nmpi/sim/schedule"
)

// Run is one saved compilation of a network.
type Run struct {
	ID         string
	Label      string
	DT         float64
	Components int
	// Probes maps every probe label to the component that gathers it.
	Probes   map[string]int
	Programs []*schedule.Program
}

// NewRun returns a Run with a fresh id for programs.
func NewRun(label string, programs []*schedule.Program) (Run, error) {
	if len(programs) == 0 {
		return Run{}, fmt.Errorf("run %q has no programs", label)
	}
	r := Run{
		ID:         uuid.NewString(),
		Label:      label,
		DT:         programs[0].DT,
		Components: len(programs),
		Probes:     make(map[string]int),
		Programs:   programs,
	}
	for _, p := range programs {
		for _, probe := range p.Probes() {
			r.Probes[probe] = p.Component
		}
	}
	return r, nil
}

// ProbeLabels returns the probe labels in sorted order.
func (r Run) ProbeLabels() []string {
	labels := make([]string, 0, len(r.Probes))
	for label := range r.Probes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Verify checks that the run's metadata agrees with its programs: one
// program per component in component order, a shared dt, and every probe
// gathered on the component the probe table records.
func (r Run) Verify() error {
	if len(r.Programs) != r.Components {
		return fmt.Errorf("run %s: %d programs for %d components", r.ID, len(r.Programs), r.Components)
	}
	seen := make(map[string]bool, len(r.Probes))
	for i, p := range r.Programs {
		if p.Component != i {
			return fmt.Errorf("run %s: program %d is for component %d", r.ID, i, p.Component)
		}
		if p.DT != r.DT {
			return fmt.Errorf("run %s: program %d has dt %g, run has %g", r.ID, i, p.DT, r.DT)
		}
		for _, label := range p.Probes() {
			comp, ok := r.Probes[label]
			if !ok {
				return fmt.Errorf("run %s: probe %q on component %d is not in the probe table", r.ID, label, i)
			}
			if comp != i {
				return fmt.Errorf("run %s: probe %q runs on component %d, probe table says %d", r.ID, label, i, comp)
			}
			seen[label] = true
		}
	}
	for _, label := range r.ProbeLabels() {
		if !seen[label] {
			return fmt.Errorf("run %s: probe %q (component %d) has no program", r.ID, label, r.Probes[label])
		}
	}
	return nil
}

// Store saves and loads runs.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, bool, error)
	// LatestRun returns the most recently saved run.
	LatestRun(ctx context.Context) (Run, bool, error)
	Close() error
}
