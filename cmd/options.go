package cmd

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/nengo-mpi/nmpi/sim"
	"github.com/nengo-mpi/nmpi/sim/distributed"
	"github.com/nengo-mpi/nmpi/sim/trace"
)

// options is the resolved configuration of one command invocation.
type options struct {
	Network     string
	Components  int
	Strategy    string
	Assignments map[string]int
	MergeNodes  bool
	DT          float64
	Steps       int
	Duration    *float64
	SaveFile    string
	Trace       string
}

// flagValues returns the options as given on the command line.
func flagValues(changed func(name string) bool) options {
	o := options{
		Network:     networkPath,
		Components:  components,
		Strategy:    strategy,
		Assignments: assignments,
		MergeNodes:  mergeNodes,
		DT:          dt,
		Steps:       steps,
		SaveFile:    saveFile,
		Trace:       traceLevel,
	}
	if len(o.Assignments) == 0 {
		o.Assignments = nil
	}
	if changed("duration") {
		d := duration
		o.Duration = &d
	}
	return o
}

// applyRunConfig fills the options from a YAML run config. Fields given
// explicitly on the command line (changed reports them) win over the file.
func applyRunConfig(o options, cfg *sim.RunConfig, changed func(name string) bool) (options, error) {
	if err := cfg.Validate(); err != nil {
		return o, fmt.Errorf("invalid run config: %w", err)
	}
	if cfg.Components != nil && !changed("components") {
		o.Components = *cfg.Components
	}
	if cfg.Strategy != "" && !changed("strategy") {
		o.Strategy = cfg.Strategy
	}
	if cfg.MergeNodes != nil && !changed("merge-nodes") {
		o.MergeNodes = *cfg.MergeNodes
	}
	if cfg.DT != nil && !changed("dt") {
		o.DT = *cfg.DT
	}
	if !changed("steps") && !changed("duration") {
		if cfg.Steps != nil {
			o.Steps = *cfg.Steps
			o.Duration = nil
		}
		if cfg.Duration != nil {
			d := *cfg.Duration
			o.Duration = &d
		}
	}
	if len(cfg.Assignments) > 0 && !changed("assignments") {
		o.Assignments = cfg.Assignments
	}
	if cfg.SaveFile != "" && !changed("save-file") {
		o.SaveFile = cfg.SaveFile
	}
	return o, nil
}

// resolveOptions merges the command line with the optional run config file.
func resolveOptions(configPath string, changed func(name string) bool) (options, error) {
	o := flagValues(changed)
	if configPath != "" {
		cfg, err := sim.LoadRunConfig(configPath)
		if err != nil {
			return o, err
		}
		if o, err = applyRunConfig(o, cfg, changed); err != nil {
			return o, err
		}
	}
	return o, o.validate()
}

func (o options) validate() error {
	if o.Components < 1 {
		return fmt.Errorf("components must be >= 1, got %d", o.Components)
	}
	if !sim.ValidStrategies[o.Strategy] {
		return fmt.Errorf("unknown partition strategy %q", o.Strategy)
	}
	if o.DT <= 0 {
		return fmt.Errorf("dt must be positive, got %f", o.DT)
	}
	if o.Steps < 0 {
		return fmt.Errorf("steps must be non-negative, got %d", o.Steps)
	}
	if o.Duration != nil && *o.Duration < 0 {
		return fmt.Errorf("duration must be non-negative, got %f", *o.Duration)
	}
	if !trace.IsValidTraceLevel(o.Trace) {
		return fmt.Errorf("unknown trace level %q", o.Trace)
	}
	for label, comp := range o.Assignments {
		if comp < 0 {
			return fmt.Errorf("assignment for %q must be >= 0, got %d", label, comp)
		}
	}
	return nil
}

// stepCount returns the number of steps to run: the duration in whole
// steps when one is set, otherwise Steps.
func (o options) stepCount(dt float64) int {
	if o.Duration != nil {
		return int(math.Round(*o.Duration / dt))
	}
	return o.Steps
}

func (o options) distributedConfig() distributed.Config {
	level := trace.TraceLevel(o.Trace)
	if level == "" {
		level = trace.TraceLevelNone
	}
	return distributed.Config{
		Components:  o.Components,
		Strategy:    o.Strategy,
		Assignments: o.Assignments,
		MergeNodes:  o.MergeNodes,
		DT:          o.DT,
		TraceLevel:  level,
	}
}

// setLogLevel applies the --log flag.
func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}
