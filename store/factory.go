package store

import (
	"fmt"
	"path/filepath"
)

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"   - JSON files in dataDir (default)
//	"sqlite" - SQLite database at dataDir/collections.db
//	"memory" - In-memory (ephemeral, for testing)
func New(backend, dataDir string, opts ...Option) (Store, error) {
	switch backend {
	case "json", "":
		s, err := NewJsonFileStore(dataDir, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSqliteStore(filepath.Join(dataDir, "collections.db"), opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(opts...), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, memory)", backend)
	}
}
