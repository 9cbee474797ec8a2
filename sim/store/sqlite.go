package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/nengo-mpi/nmpi/sim/schedule"
)

// SQLiteStore keeps runs in a single SQLite file, the network file of a
// compiled simulation.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM programs WHERE run_id = ?`, run.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM probes WHERE run_id = ?`, run.ID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, label, dt, components, schema_version, codec_version)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Label, run.DT, run.Components, CurrentSchemaVersion, CurrentCodecVersion)
	if err != nil {
		return err
	}
	for _, p := range run.Programs {
		payload, err := EncodeProgram(p)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO programs (run_id, component, payload) VALUES (?, ?, ?)
		`, run.ID, p.Component, payload); err != nil {
			return err
		}
	}
	for label, comp := range run.Probes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO probes (run_id, label, component) VALUES (?, ?, ?)
		`, run.ID, label, comp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Run{}, false, err
	}

	run := Run{ID: id}
	var schema, codec int
	err = db.QueryRowContext(ctx, `
		SELECT label, dt, components, schema_version, codec_version FROM runs WHERE id = ?
	`, id).Scan(&run.Label, &run.DT, &run.Components, &schema, &codec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}
	if err := checkVersion(schema, codec); err != nil {
		return Run{}, false, fmt.Errorf("run %s: %w", id, err)
	}

	if run.Programs, err = s.programs(ctx, db, id); err != nil {
		return Run{}, false, err
	}
	if len(run.Programs) != run.Components {
		return Run{}, false, fmt.Errorf("run %s: %d programs for %d components", id, len(run.Programs), run.Components)
	}
	if run.Probes, err = s.probes(ctx, db, id); err != nil {
		return Run{}, false, err
	}
	return run, true, nil
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (Run, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Run{}, false, err
	}

	var id string
	err = db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY rowid DESC LIMIT 1`).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}
	return s.GetRun(ctx, id)
}

func (s *SQLiteStore) programs(ctx context.Context, db *sql.DB, id string) (_ []*schedule.Program, err error) {
	rows, err := db.QueryContext(ctx, `SELECT payload FROM programs WHERE run_id = ? ORDER BY component`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); err == nil {
			err = cerr
		}
	}()

	var out []*schedule.Program
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		p, err := DecodeProgram(payload)
		if err != nil {
			return nil, fmt.Errorf("decode program of run %s: %w", id, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) probes(ctx context.Context, db *sql.DB, id string) (_ map[string]int, err error) {
	rows, err := db.QueryContext(ctx, `SELECT label, component FROM probes WHERE run_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); err == nil {
			err = cerr
		}
	}()

	out := make(map[string]int)
	for rows.Next() {
		var label string
		var comp int
		if err := rows.Scan(&label, &comp); err != nil {
			return nil, err
		}
		out[label] = comp
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			dt REAL NOT NULL,
			components INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS programs (
			run_id TEXT NOT NULL,
			component INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, component)
		);
		CREATE TABLE IF NOT EXISTS probes (
			run_id TEXT NOT NULL,
			label TEXT NOT NULL,
			component INTEGER NOT NULL,
			PRIMARY KEY (run_id, label)
		);
	`)
	return err
}
