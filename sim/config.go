package sim

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultDT is the simulation timestep in seconds when none is configured.
const DefaultDT = 0.001

// RunConfig holds partitioning and run settings, loadable from a YAML file.
// Nil pointer fields mean "not set in YAML"; they do not override CLI defaults.
// String fields use empty string for "not set".
type RunConfig struct {
	Components  *int           `yaml:"components"`
	Strategy    string         `yaml:"strategy"`
	MergeNodes  *bool          `yaml:"merge_nodes"`
	DT          *float64       `yaml:"dt"`
	Steps       *int           `yaml:"steps"`
	Duration    *float64       `yaml:"duration"`
	Assignments map[string]int `yaml:"assignments"`
	SaveFile    string         `yaml:"save_file"`
}

// LoadRunConfig reads and parses a YAML run configuration file.
// Unknown keys are errors so that typos never silently fall back to defaults.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run config: %w", err)
	}
	var cfg RunConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing run config: %w", err)
	}
	return &cfg, nil
}

// ValidStrategies is the set of recognized partition strategy names.
// Shared by Validate() and partition.NewStrategy() to avoid duplication.
var ValidStrategies = map[string]bool{"": true, "work-balanced": true, "metis": true}

// Validate checks that names and parameter ranges in the config are valid.
func (c *RunConfig) Validate() error {
	if !ValidStrategies[c.Strategy] {
		return fmt.Errorf("unknown partition strategy %q", c.Strategy)
	}
	if c.Components != nil && *c.Components < 1 {
		return fmt.Errorf("components must be >= 1, got %d", *c.Components)
	}
	if c.DT != nil && *c.DT <= 0 {
		return fmt.Errorf("dt must be positive, got %f", *c.DT)
	}
	if c.Steps != nil && *c.Steps < 0 {
		return fmt.Errorf("steps must be non-negative, got %d", *c.Steps)
	}
	if c.Duration != nil && *c.Duration < 0 {
		return fmt.Errorf("duration must be non-negative, got %f", *c.Duration)
	}
	if c.Steps != nil && c.Duration != nil {
		return fmt.Errorf("steps and duration are mutually exclusive")
	}
	for label, comp := range c.Assignments {
		if comp < 0 {
			return fmt.Errorf("assignment for %q must be >= 0, got %d", label, comp)
		}
	}
	return nil
}
