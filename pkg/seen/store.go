// Package seen keeps the durable set of message ids that already reached a
// final disposition, so replayed gateway fetches are never handled twice.
//
// The store is owned by a single goroutine and does no locking.
package seen

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tinyland-inc/zumo/pkg/fileutil"
)

var (
	ErrDecodeFailed  = errors.New("seen: decode failed")
	ErrPersistFailed = errors.New("seen: persist failed")
)

type Store struct {
	path         string
	persistEvery int
	ids          map[string]struct{}
	order        []string
	pending      int // additions since the last successful persist
}

func NewStore(path string, persistEvery int) *Store {
	if persistEvery <= 0 {
		persistEvery = 1
	}
	return &Store{
		path:         path,
		persistEvery: persistEvery,
		ids:          make(map[string]struct{}),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory set with the file contents. A missing or empty
// file yields an empty set. A corrupt file also yields an empty set, and the
// decode error is returned so the caller can report it; the store stays usable.
func (s *Store) Load() error {
	s.ids = make(map[string]struct{})
	s.order = nil
	s.pending = 0

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("seen: read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	ids, err := decode(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecodeFailed, s.path, err)
	}
	for _, id := range ids {
		s.insert(id)
	}
	return nil
}

// decode accepts the plain array form and an object carrying an "ids" array;
// other top-level fields are ignored.
func decode(data []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		return ids, nil
	}
	var wrapped struct {
		IDs []string `json:"ids"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.IDs, nil
}

func (s *Store) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add records id and reports whether it was new. Empty ids are ignored.
func (s *Store) Add(id string) bool {
	if id == "" || s.Contains(id) {
		return false
	}
	s.insert(id)
	s.pending++
	return true
}

func (s *Store) insert(id string) {
	if id == "" {
		return
	}
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s *Store) Len() int {
	return len(s.order)
}

// IDs returns the ids in the order they were first recorded.
func (s *Store) IDs() []string {
	return append([]string(nil), s.order...)
}

// Pending is the number of additions not yet written to disk.
func (s *Store) Pending() int {
	return s.pending
}

func (s *Store) ShouldPersist() bool {
	return s.pending >= s.persistEvery
}

// Persist atomically writes the whole set as a JSON array. On failure the
// in-memory set is unchanged and remains authoritative.
func (s *Store) Persist() error {
	ids := s.order
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersistFailed, err)
	}
	if err := fileutil.WriteFileAtomic(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	s.pending = 0
	return nil
}

// Reset drops every recorded id. The change reaches disk on the next Persist.
func (s *Store) Reset() {
	s.ids = make(map[string]struct{})
	s.order = nil
	s.pending = 0
}
