package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/nengo-mpi/nmpi/sim/distributed"
)

// ProbeReport is the JSON document printed by run and load.
type ProbeReport struct {
	RunID      string                 `json:"run_id,omitempty"`
	DT         float64                `json:"dt"`
	Steps      int                    `json:"steps"`
	Components int                    `json:"components"`
	Probes     map[string][][]float64 `json:"probes"`
}

func writeProbes(w io.Writer, runID string, s *distributed.Simulator) error {
	report := ProbeReport{
		RunID:      runID,
		DT:         s.DT(),
		Steps:      s.Steps(),
		Components: s.NComponents(),
		Probes:     make(map[string][][]float64),
	}
	for _, label := range s.ProbeLabels() {
		data, err := s.ProbeData(label)
		if err != nil {
			return err
		}
		report.Probes[label] = data
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding probe data: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
