package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store is a dot-path key-value store backed by a YAML file. It implements
// the collaborator contract consumed by the plugin host and by plugins
// themselves: Get(path, default), Set(path, value), Save().
//
// Paths address nested maps: "plugins.disabled" reads/writes
// data["plugins"]["disabled"]. Intermediate maps are created on Set.
type Store struct {
	mu   sync.RWMutex
	path string
	data map[string]any
}

// NewStore opens the store at path, loading existing contents if the file
// exists. A missing file yields an empty store; the file is created on the
// first Save.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path: path,
		data: make(map[string]any),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
		if s.data == nil {
			s.data = make(map[string]any)
		}
	}
	return s, nil
}

// NewMemoryStore returns a store with no backing file; Save is a no-op.
// Intended for tests and for running without persistence.
func NewMemoryStore() *Store {
	return &Store{data: make(map[string]any)}
}

// Get returns the value at the dot path, or def when the path is absent.
func (s *Store) Get(path string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node := any(s.data)
	for _, seg := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return def
		}
		node, ok = m[seg]
		if !ok {
			return def
		}
	}
	return node
}

// Set writes the value at the dot path, creating intermediate maps as
// needed. A non-map intermediate value is overwritten.
func (s *Store) Set(path string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	segs := strings.Split(path, ".")
	node := s.data
	for _, seg := range segs[:len(segs)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[seg] = next
		}
		node = next
	}
	node[segs[len(segs)-1]] = value
}

// Save persists the store to its backing file via a temp-file rename.
// A store without a backing file saves nothing and returns nil.
func (s *Store) Save() error {
	s.mu.RLock()
	path := s.path
	raw, err := yaml.Marshal(s.data)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	if path == "" {
		return nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace store: %w", err)
	}
	return nil
}
