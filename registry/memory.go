package registry

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// MemoryStore is an in-memory implementation of Store that keeps records in
// enrollment order. Suitable for a single daemon; records are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records *linkedhashmap.Map
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: linkedhashmap.New(),
	}
}

// Put saves a record. Re-enrolling a PUID moves it to the end of the order.
func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	if rec.PUID == "" {
		return ErrNoPUID
	}
	if rec.EnrolledAt.IsZero() {
		rec.EnrolledAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records.Remove(rec.PUID)
	s.records.Put(rec.PUID, rec)
	return nil
}

// Get retrieves a record by PUID.
func (s *MemoryStore) Get(ctx context.Context, puid string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, found := s.records.Get(puid)
	if !found {
		return nil, ErrNotFound
	}

	rec := v.(Record)
	return &rec, nil
}

// Delete removes a record by PUID.
func (s *MemoryStore) Delete(ctx context.Context, puid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.records.Get(puid); !found {
		return ErrNotFound
	}

	s.records.Remove(puid)
	return nil
}

// List returns all records in enrollment order.
func (s *MemoryStore) List(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, s.records.Size())
	for _, v := range s.records.Values() {
		out = append(out, v.(Record))
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
