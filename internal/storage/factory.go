package storage

import "fmt"

// Store backend kinds accepted by NewStore. The empty kind falls back to
// KindMemory.
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

// NewStore selects a run-history backend by kind. The sqlitePath is only
// consulted for KindSQLite.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown store kind %q, want %s or %s", kind, KindMemory, KindSQLite)
	}
}

// CloseIfSupported closes backends that hold external resources; the
// in-memory store has none and passes through.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
