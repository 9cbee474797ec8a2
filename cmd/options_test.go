package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nengo-mpi/nmpi/sim"
)

func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }

// none reports no flag as explicitly set.
func none(string) bool { return false }

// only reports the named flags as explicitly set.
func only(names ...string) func(string) bool {
	return func(name string) bool {
		for _, n := range names {
			if n == name {
				return true
			}
		}
		return false
	}
}

func baseOptions() options {
	return options{Components: 1, MergeNodes: true, DT: sim.DefaultDT, Steps: 1000, Trace: "none"}
}

func TestApplyRunConfig(t *testing.T) {
	cfg := &sim.RunConfig{
		Components:  intPtr(4),
		Strategy:    "metis",
		MergeNodes:  boolPtr(false),
		DT:          floatPtr(0.002),
		Duration:    floatPtr(0.5),
		Assignments: map[string]int{"B": 1},
		SaveFile:    "net.db",
	}

	t.Run("file fills unset flags", func(t *testing.T) {
		o, err := applyRunConfig(baseOptions(), cfg, none)

		require.NoError(t, err)
		assert.Equal(t, 4, o.Components)
		assert.Equal(t, "metis", o.Strategy)
		assert.False(t, o.MergeNodes)
		assert.Equal(t, 0.002, o.DT)
		require.NotNil(t, o.Duration)
		assert.Equal(t, 0.5, *o.Duration)
		assert.Equal(t, map[string]int{"B": 1}, o.Assignments)
		assert.Equal(t, "net.db", o.SaveFile)
	})

	t.Run("explicit flags win", func(t *testing.T) {
		base := baseOptions()
		base.Components = 2
		base.Steps = 7

		o, err := applyRunConfig(base, cfg, only("components", "steps"))

		require.NoError(t, err)
		assert.Equal(t, 2, o.Components)
		assert.Equal(t, 7, o.Steps)
		assert.Nil(t, o.Duration, "an explicit --steps keeps the file's duration out")
		assert.Equal(t, "metis", o.Strategy)
	})

	t.Run("invalid file is rejected", func(t *testing.T) {
		_, err := applyRunConfig(baseOptions(), &sim.RunConfig{Strategy: "round-robin"}, none)

		assert.Error(t, err)
	})
}

func TestResolveOptions_ReadsConfigFile(t *testing.T) {
	// GIVEN a YAML run config
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("components: 3\nsteps: 50\n"), 0o644))

	o, err := resolveOptions(path, none)

	require.NoError(t, err)
	assert.Equal(t, 3, o.Components)
	assert.Equal(t, 50, o.Steps)

	// AND unknown keys are errors
	require.NoError(t, os.WriteFile(path, []byte("componentz: 3\n"), 0o644))
	_, err = resolveOptions(path, none)
	assert.Error(t, err)
}

func TestResolveOptions_EmptyAssignmentsKeepStrategy(t *testing.T) {
	// GIVEN a run config with an empty assignments map
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("components: 3\nassignments: {}\n"), 0o644))

	// WHEN resolved
	o, err := resolveOptions(path, none)

	// THEN the map is dropped, so the requested count reaches the strategy
	require.NoError(t, err)
	assert.Nil(t, o.Assignments)
	cfg := o.distributedConfig()
	assert.Nil(t, cfg.Assignments)
	assert.Equal(t, 3, cfg.Components)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *options)
	}{
		{"zero components", func(o *options) { o.Components = 0 }},
		{"unknown strategy", func(o *options) { o.Strategy = "random" }},
		{"zero dt", func(o *options) { o.DT = 0 }},
		{"negative steps", func(o *options) { o.Steps = -1 }},
		{"negative duration", func(o *options) { o.Duration = floatPtr(-1) }},
		{"unknown trace level", func(o *options) { o.Trace = "verbose" }},
		{"negative assignment", func(o *options) { o.Assignments = map[string]int{"A": -1} }},
	}
	require.NoError(t, baseOptions().validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := baseOptions()
			tt.mutate(&o)
			assert.Error(t, o.validate())
		})
	}
}

func TestOptions_StepCount(t *testing.T) {
	o := baseOptions()
	assert.Equal(t, 1000, o.stepCount(0.001))

	o.Duration = floatPtr(0.25)
	assert.Equal(t, 250, o.stepCount(0.001))
	assert.Equal(t, 125, o.stepCount(0.002))
}
