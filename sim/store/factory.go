package store

import "fmt"

// ValidBackends is the set of recognized store backend names.
var ValidBackends = map[string]bool{"": true, "sqlite": true, "memory": true}

// NewStore returns an uninitialized store for kind. The empty kind selects
// SQLite, which needs a path; memory ignores path.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite store needs a path")
		}
		return NewSQLiteStore(path), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
