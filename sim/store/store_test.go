package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nengo-mpi/nmpi/sim/distributed"
	"github.com/nengo-mpi/nmpi/sim/internal/testutil"
)

// stores returns one initialized instance of every Store implementation.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	out := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(filepath.Join(t.TempDir(), "network.db")),
	}
	for name, s := range out {
		require.NoError(t, s.Init(ctx), name)
		s := s
		t.Cleanup(func() { _ = s.Close() })
	}
	return out
}

func compiledRun(t *testing.T) Run {
	t.Helper()
	plan, err := distributed.NewPlan(context.Background(), testutil.ChainNetwork(nil),
		distributed.Config{Components: 2, Assignments: map[string]int{"B": 1}})
	require.NoError(t, err)
	run, err := NewRun("chain", plan.Programs)
	require.NoError(t, err)
	return run
}

func TestNewRun(t *testing.T) {
	run := compiledRun(t)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 2, run.Components)
	assert.Equal(t, 0.001, run.DT)
	assert.Equal(t, map[string]int{"probe_B": 1}, run.Probes)
	assert.Equal(t, []string{"probe_B"}, run.ProbeLabels())

	other := compiledRun(t)
	assert.NotEqual(t, run.ID, other.ID, "each run gets a fresh id")

	_, err := NewRun("empty", nil)
	assert.Error(t, err)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN a saved run
			run := compiledRun(t)
			require.NoError(t, s.SaveRun(ctx, run))

			// WHEN loaded back by id
			got, ok, err := s.GetRun(ctx, run.ID)

			// THEN it is identical
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, run, got)
		})
	}
}

func TestStore_LatestRun(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.LatestRun(ctx)
			require.NoError(t, err)
			assert.False(t, ok, "empty store")

			first, second := compiledRun(t), compiledRun(t)
			require.NoError(t, s.SaveRun(ctx, first))
			require.NoError(t, s.SaveRun(ctx, second))

			got, ok, err := s.LatestRun(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, second.ID, got.ID)

			_, ok, err = s.GetRun(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_LoadedRunReproducesProbes(t *testing.T) {
	ctx := context.Background()
	s := NewSQLiteStore(filepath.Join(t.TempDir(), "network.db"))
	require.NoError(t, s.Init(ctx))
	defer func() { _ = s.Close() }()

	// GIVEN a run saved to a network file and reloaded
	run := compiledRun(t)
	require.NoError(t, s.SaveRun(ctx, run))
	loaded, ok, err := s.LatestRun(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// WHEN both are simulated
	probe := func(r Run) [][]float64 {
		sim, err := distributed.New(r.Programs)
		require.NoError(t, err)
		defer func() { _ = sim.Close() }()
		require.NoError(t, sim.RunSteps(ctx, 50))
		data, err := sim.ProbeData("probe_B")
		require.NoError(t, err)
		return data
	}

	// THEN they record the same data
	assert.Equal(t, probe(run), probe(loaded))
}

func TestSQLiteStore_RequiresInit(t *testing.T) {
	s := NewSQLiteStore(filepath.Join(t.TempDir(), "network.db"))

	err := s.SaveRun(context.Background(), Run{ID: "x"})

	assert.Error(t, err)
	assert.Error(t, NewSQLiteStore("").Init(context.Background()))
}

func TestRun_Verify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Run)
		wantErr string
	}{
		{name: "consistent run", mutate: func(*Run) {}},
		{name: "missing program", mutate: func(r *Run) { r.Programs = r.Programs[:1] }, wantErr: "1 programs for 2 components"},
		{name: "probe moved", mutate: func(r *Run) { r.Probes["probe_B"] = 0 }, wantErr: "probe table says 0"},
		{name: "probe not recorded", mutate: func(r *Run) { delete(r.Probes, "probe_B") }, wantErr: "not in the probe table"},
		{name: "recorded probe without program", mutate: func(r *Run) { r.Probes["probe_X"] = 1 }, wantErr: `"probe_X"`},
		{name: "dt mismatch", mutate: func(r *Run) { r.DT = 0.002 }, wantErr: "dt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := compiledRun(t)
			tt.mutate(&run)

			err := run.Verify()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
