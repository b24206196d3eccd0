// Package memory provides a process-local KeyValueStore used by tests and by
// the "memory" store driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/lab-reservations/internal/persistence"
)

// Storage keeps documents in a mutex guarded map.
type Storage struct {
	mu      sync.RWMutex
	now     func() time.Time
	records map[string]persistence.Record
}

// Open returns an empty Storage.
func Open() *Storage {
	return &Storage{now: time.Now, records: make(map[string]persistence.Record)}
}

// Close is a no-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// Get returns a copy of the stored record.
func (s *Storage) Get(ctx context.Context, key string) (persistence.Record, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key]
	if !ok {
		return persistence.Record{}, persistence.ErrNotFound
	}
	return cloneRecord(record), nil
}

// Put stores payload when the current revision matches expectedRevision.
func (s *Storage) Put(ctx context.Context, key string, expectedRevision int64, payload []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.records[key]
	switch {
	case !exists && expectedRevision != 0:
		return 0, fmt.Errorf("%w: %s does not exist", persistence.ErrRevisionConflict, key)
	case exists && current.Revision != expectedRevision:
		return 0, fmt.Errorf("%w: %s is at revision %d, expected %d", persistence.ErrRevisionConflict, key, current.Revision, expectedRevision)
	}

	next := persistence.Record{
		Key:       key,
		Revision:  expectedRevision + 1,
		Payload:   append([]byte(nil), payload...),
		UpdatedAt: s.now().UTC(),
	}
	s.records[key] = next
	return next.Revision, nil
}

// Keys lists stored keys in lexical order.
func (s *Storage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Overwrite replaces a record unconditionally. It exists so tests can plant
// hand-written or damaged documents.
func (s *Storage) Overwrite(key string, payload []byte) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	revision := s.records[key].Revision + 1
	s.records[key] = persistence.Record{
		Key:       key,
		Revision:  revision,
		Payload:   append([]byte(nil), payload...),
		UpdatedAt: s.now().UTC(),
	}
	return revision
}

func cloneRecord(record persistence.Record) persistence.Record {
	record.Payload = append([]byte(nil), record.Payload...)
	return record
}
