package fingerprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a requested record doesn't exist
var ErrNotFound = errors.New("not found")

// FileRecord captures the last successfully indexed state of one file.
// ChunkIDs preserves chunk order so stale trailing chunks of a shrunk file
// can be identified and deleted.
type FileRecord struct {
	Path         string    `json:"path"`
	ContentHash  string    `json:"content_hash"`
	ChunkIDs     []string  `json:"chunk_ids"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// Store is a durable map from repository-relative path to FileRecord,
// persisted as a single JSON file. Every mutation rewrites the file
// atomically (temp file, fsync, rename) before returning, so a record is
// never observed half-written. A record existing here means the index writes
// for that file completed; the reverse direction is re-derived from hashes
// after a crash.
type Store struct {
	mu      sync.Mutex
	path    string
	records map[string]FileRecord
}

// Open loads the fingerprint file at path, creating an empty store if the
// file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: make(map[string]FileRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fingerprint file: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.records); err != nil {
			return nil, fmt.Errorf("failed to parse fingerprint file: %w", err)
		}
	}
	return s, nil
}

// Get returns the record for path, if any.
func (s *Store) Get(path string) (FileRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[path]
	return rec, ok
}

// Put stores a record and persists the store before returning.
func (s *Store) Put(rec FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Path] = rec
	return s.persist()
}

// Remove deletes a record and persists the store. Removing an absent path is
// a no-op.
func (s *Store) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[path]; !ok {
		return nil
	}
	delete(s.records, path)
	return s.persist()
}

// Paths returns all tracked paths in sorted order.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.records))
	for p := range s.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Hashes returns a copy of the path -> content hash map.
func (s *Store) Hashes() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	hashes := make(map[string]string, len(s.records))
	for p, rec := range s.records {
		hashes[p] = rec.ContentHash
	}
	return hashes
}

// Len returns the number of tracked files.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// persist writes the records map to disk atomically. Caller holds s.mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal fingerprints: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create fingerprint dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".fingerprints-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write fingerprints: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync fingerprints: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace fingerprint file: %w", err)
	}
	return nil
}
