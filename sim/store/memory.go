package store

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore keeps runs in process memory. Programs are stored encoded so
// that a loaded run never aliases the saved one.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]Run
	payloads    map[string][][]byte
	order       []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]Run)
	s.payloads = make(map[string][][]byte)
	s.order = nil
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	payloads := make([][]byte, len(run.Programs))
	for i, p := range run.Programs {
		data, err := EncodeProgram(p)
		if err != nil {
			return err
		}
		payloads[i] = data
	}
	meta := run
	meta.Programs = nil
	meta.Probes = make(map[string]int, len(run.Probes))
	for k, v := range run.Probes {
		meta.Probes[k] = v
	}
	if _, ok := s.runs[run.ID]; !ok {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = meta
	s.payloads[run.ID] = payloads
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.get(id)
}

func (s *MemoryStore) LatestRun(_ context.Context) (Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return Run{}, false, nil
	}
	return s.get(s.order[len(s.order)-1])
}

func (s *MemoryStore) get(id string) (Run, bool, error) {
	meta, ok := s.runs[id]
	if !ok {
		return Run{}, false, nil
	}
	run := meta
	run.Probes = make(map[string]int, len(meta.Probes))
	for k, v := range meta.Probes {
		run.Probes[k] = v
	}
	for _, data := range s.payloads[id] {
		p, err := DecodeProgram(data)
		if err != nil {
			return Run{}, false, err
		}
		run.Programs = append(run.Programs, p)
	}
	return run, true, nil
}

func (s *MemoryStore) Close() error { return nil }
