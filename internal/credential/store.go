package credential

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Store is a string key/value backend for session credentials.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	// Delete removes keys; missing keys are ignored.
	Delete(keys ...string) error
	Close() error
}

// StoreError describes a failed store operation.
type StoreError struct {
	Op  string // "get", "set", "delete", "open"
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("credential store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("credential store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// OpenStore opens the store at path. Files ending in .db, .sqlite or
// .sqlite3 use SQLite; anything else is a YAML file.
func OpenStore(path string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLiteStore(path)
	default:
		return NewFileStore(path), nil
	}
}

// MemoryStore keeps credentials for the life of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
