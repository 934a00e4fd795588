package storage

import (
	"errors"
	"fmt"
	"strings"
)

const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

var ErrUnsupportedStore = errors.New("unsupported store backend")

// NormalizeStoreKind maps accepted spellings onto KindMemory/KindSQLite.
// Unknown names are returned unchanged.
func NormalizeStoreKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "mem", KindMemory:
		return KindMemory
	case KindSQLite, "sqlite3":
		return KindSQLite
	default:
		return kind
	}
}

// NewStore opens the named backend. sqlitePath is ignored by the memory store.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch NormalizeStoreKind(kind) {
	case KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStore, kind)
	}
}

// Persistent reports whether runs saved to kind outlive the process.
func Persistent(kind string) bool {
	return NormalizeStoreKind(kind) == KindSQLite
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
