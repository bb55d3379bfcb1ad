package persistence

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrNotFound indicates the key has no value.
var ErrNotFound = errors.New("key not found")

// KV is an opaque key-value store. Values are raw bytes; callers choose the
// encoding. Implementations must be safe for concurrent use.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error

	// Keys returns all keys with the given prefix, sorted.
	Keys(prefix string) ([]string, error)
}

// fileState is the on-disk layout of a FileKV.
type fileState struct {
	Version int                        `json:"version"`
	SavedAt time.Time                  `json:"saved_at"`
	Entries map[string]json.RawMessage `json:"entries,omitempty"`
}

// FileKV keeps the whole store in one JSON file, rewritten on every change.
// Values must be valid JSON.
type FileKV struct {
	mu      sync.Mutex
	path    string
	entries map[string]json.RawMessage
	loaded  bool
}

// NewFileKV creates a store backed by path. The file is read lazily.
func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

// Path returns the backing file path.
func (s *FileKV) Path() string {
	return s.path
}

// load reads the file once. A missing file is an empty store.
func (s *FileKV) load() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.entries = make(map[string]json.RawMessage)
		s.loaded = true
		return nil
	}
	if err != nil {
		return err
	}

	state := &fileState{}
	if err := json.Unmarshal(data, state); err != nil {
		return err
	}
	s.entries = state.Entries
	if s.entries == nil {
		s.entries = make(map[string]json.RawMessage)
	}
	s.loaded = true
	return nil
}

func (s *FileKV) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(fileState{
		Version: StateVersion,
		SavedAt: time.Now(),
		Entries: s.entries,
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Get returns the value for key or ErrNotFound.
func (s *FileKV) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return nil, err
	}
	v, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores value under key and persists the file.
func (s *FileKV) Set(key string, value []byte) error {
	if !json.Valid(value) {
		return errors.New("persistence: value is not valid JSON")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}
	s.entries[key] = append(json.RawMessage(nil), value...)
	return s.save()
}

// Delete removes key. Deleting an absent key is not an error.
func (s *FileKV) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.save()
}

// Keys returns all keys with prefix, sorted.
func (s *FileKV) Keys(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return nil, err
	}
	return sortedKeys(s.entries, prefix), nil
}

// Clear removes the backing file.
func (s *FileKV) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]json.RawMessage)
	s.loaded = true

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// MemoryKV is a KV held in memory.
type MemoryKV struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string][]byte)}
}

// Get returns the value for key or ErrNotFound.
func (s *MemoryKV) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value under key.
func (s *MemoryKV) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key.
func (s *MemoryKV) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Keys returns all keys with prefix, sorted.
func (s *MemoryKV) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.entries, prefix), nil
}

func sortedKeys[V any](m map[string]V, prefix string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Compile-time interface satisfaction checks.
var (
	_ KV = (*FileKV)(nil)
	_ KV = (*MemoryKV)(nil)
)
