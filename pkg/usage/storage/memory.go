package storage

import (
	"context"
	"sync"
	"time"

	"mercator-hq/saturn/pkg/usage"
)

// DefaultMemoryCapacity is the record cap used when NewMemoryStore is
// given a non-positive capacity.
const DefaultMemoryCapacity = 10000

// MemoryStore implements the usage.Store interface with a bounded
// in-memory buffer. When the capacity is reached the oldest records are
// evicted, so it can serve as the backend for setups that do not want a
// database on disk, as well as for tests.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []usage.Record // insertion order, oldest first
	capacity int
}

// NewMemoryStore creates an in-memory storage backend holding at most
// capacity records.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		records:  make([]usage.Record, 0),
		capacity: capacity,
	}
}

// Insert stores a record, evicting the oldest when the store is full.
func (s *MemoryStore) Insert(ctx context.Context, rec usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	if len(s.records) > s.capacity {
		excess := len(s.records) - s.capacity
		s.records = append(s.records[:0:0], s.records[excess:]...)
	}

	return nil
}

// Recent returns up to limit records, newest first.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]usage.Record, error) {
	return s.Query(ctx, usage.Query{Limit: limit})
}

// Query returns records matching the filters, newest first.
func (s *MemoryStore) Query(ctx context.Context, q usage.Query) ([]usage.Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []usage.Record{}
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if q.Matches(s.records[i]) {
			out = append(out, s.records[i])
		}
	}

	return out, nil
}

// Count returns the total number of stored records.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.records)), nil
}

// DeleteBefore removes records older than cutoff.
func (s *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0:0]
	for _, rec := range s.records {
		if !rec.Time.Before(cutoff) {
			kept = append(kept, rec)
		}
	}

	deleted := int64(len(s.records) - len(kept))
	s.records = kept

	return deleted, nil
}

// DeleteOldest removes the n oldest records.
func (s *MemoryStore) DeleteOldest(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n > int64(len(s.records)) {
		n = int64(len(s.records))
	}

	s.records = append(s.records[:0:0], s.records[n:]...)

	return n, nil
}

// Close releases the stored records.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	return nil
}
