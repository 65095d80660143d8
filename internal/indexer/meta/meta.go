// Package meta persists the small set of counters describing an index
// generation as a YAML document.
package meta

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the metadata file inside an index directory.
const FileName = "metadata"

// Well-known keys.
const (
	TotalDocumentCount = "total_document_count"
	TotalTermCount     = "total_term_count"
	Generation         = "generation"
)

const builtAtKey = "built_at"

// Store is a concurrency-safe key/value set of integer counters plus the
// build timestamp.
type Store struct {
	mu      sync.RWMutex
	path    string
	values  map[string]int64
	builtAt time.Time
	logger  *slog.Logger
}

// New returns an empty store bound to path. Nothing is read until Reload.
func New(path string) *Store {
	return &Store{
		path: path,
		values: map[string]int64{
			TotalDocumentCount: 0,
			TotalTermCount:     0,
		},
		logger: slog.Default().With("component", "meta"),
	}
}

func (s *Store) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

func (s *Store) SetPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
}

// Get returns the value of key, or 0 when it was never set.
func (s *Store) Get(key string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Increment adds one to key and returns the new value.
func (s *Store) Increment(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key]++
	return s.values[key]
}

func (s *Store) Set(key string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *Store) BuiltAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.builtAt
}

func (s *Store) SetBuiltAt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builtAt = t
}

// Persist writes the store to a temporary file and renames it over path.
func (s *Store) Persist() error {
	s.mu.RLock()
	doc := make(map[string]any, len(s.values)+1)
	for k, v := range s.values {
		doc[k] = v
	}
	if !s.builtAt.IsZero() {
		doc[builtAtKey] = s.builtAt.UTC().Format(time.RFC3339Nano)
	}
	path := s.path
	s.mu.RUnlock()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".metadata-*")
	if err != nil {
		return fmt.Errorf("creating metadata temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing metadata: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing metadata: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming metadata: %w", err)
	}
	s.logger.Debug("metadata persisted", "path", path)
	return nil
}

// Reload replaces the in-memory values with the contents of path.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading metadata: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing metadata: %w", err)
	}
	values := make(map[string]int64, len(doc))
	var builtAt time.Time
	for k, raw := range doc {
		if k == builtAtKey {
			str, ok := raw.(string)
			if !ok {
				return fmt.Errorf("metadata %s: unexpected type %T", k, raw)
			}
			if builtAt, err = time.Parse(time.RFC3339Nano, str); err != nil {
				return fmt.Errorf("metadata %s: %w", k, err)
			}
			continue
		}
		switch v := raw.(type) {
		case int:
			values[k] = int64(v)
		case int64:
			values[k] = v
		case uint64:
			values[k] = int64(v)
		default:
			return fmt.Errorf("metadata %s: unexpected type %T", k, raw)
		}
	}
	s.values = values
	s.builtAt = builtAt
	return nil
}
