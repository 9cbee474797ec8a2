package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nengo-mpi/nmpi/sim/distributed"
	"github.com/nengo-mpi/nmpi/sim/schedule"
	"github.com/nengo-mpi/nmpi/sim/store"
)

// compileCmd partitions and compiles a network into a network file without
// running it.
var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a network into a network file",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		o, err := resolveOptions(configPath, cmd.Flags().Changed)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if o.SaveFile == "" {
			logrus.Fatalf("Network file not provided (--save-file).")
		}
		net := loadNetwork(o.Network)

		plan, err := distributed.NewPlan(cmd.Context(), net, o.distributedConfig())
		if err != nil {
			logrus.Fatalf("Compilation failed: %v", err)
		}
		logTrace(plan.Trace)
		id, err := saveRun(cmd.Context(), o.SaveFile, net.Label, plan.Programs)
		if err != nil {
			logrus.Fatalf("Saving %s failed: %v", o.SaveFile, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
	},
}

// loadCmd runs the programs of a network file.
var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Run a compiled network file and print its probe data",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		if saveFile == "" {
			logrus.Fatalf("Network file not provided (--save-file).")
		}
		o := options{Steps: steps}
		if cmd.Flags().Changed("duration") {
			d := duration
			o.Duration = &d
		}
		if err := runSaved(cmd.Context(), saveFile, runID, o, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// openStore opens the network file at path, or a process-memory store when
// path is empty.
func openStore(ctx context.Context, path string) (store.Store, error) {
	kind := "sqlite"
	if path == "" {
		kind = "memory"
	}
	st, err := store.NewStore(kind, path)
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// stageRun saves programs to st and loads them back, so the caller runs
// exactly what a later load of the same run would.
func stageRun(ctx context.Context, st store.Store, label string, programs []*schedule.Program) (store.Run, error) {
	run, err := store.NewRun(label, programs)
	if err != nil {
		return store.Run{}, err
	}
	if err := st.SaveRun(ctx, run); err != nil {
		return store.Run{}, err
	}
	loaded, ok, err := st.GetRun(ctx, run.ID)
	if err != nil {
		return store.Run{}, err
	}
	if !ok {
		return store.Run{}, fmt.Errorf("run %s vanished after saving", run.ID)
	}
	return loaded, loaded.Verify()
}

// saveRun writes programs to the network file at path and returns the run id.
func saveRun(ctx context.Context, path, label string, programs []*schedule.Program) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if path == "" {
		return "", fmt.Errorf("network file not provided")
	}
	st, err := openStore(ctx, path)
	if err != nil {
		return "", err
	}
	defer func() { _ = st.Close() }()
	run, err := stageRun(ctx, st, label, programs)
	if err != nil {
		return "", err
	}
	logrus.Infof("Saved run %s (%d components) to %s", run.ID, run.Components, path)
	return run.ID, nil
}

// runSaved loads a run from the network file at path, simulates it and
// writes the probe report to w. An empty id loads the latest run.
func runSaved(ctx context.Context, path, id string, o options, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if path == "" {
		return fmt.Errorf("network file not provided")
	}
	st, err := openStore(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	var (
		run store.Run
		ok  bool
	)
	if id == "" {
		run, ok, err = st.LatestRun(ctx)
	} else {
		run, ok, err = st.GetRun(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("no run %q in %s", id, path)
	}
	if err := run.Verify(); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	s, err := distributed.New(run.Programs)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := s.RunSteps(ctx, o.stepCount(s.DT())); err != nil {
		return err
	}
	return writeProbes(w, run.ID, s)
}
