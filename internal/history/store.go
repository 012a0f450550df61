// Package history keeps the bounded, write-through log of recent searches.
//
// The in-memory sequence is the source of truth for reads; every Append
// rewrites the whole sequence through a Persister before returning.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// DefaultCapacity is the maximum number of records kept.
const DefaultCapacity = 30

// Persister is the durable side of a Store. Save always receives the full sequence.
type Persister interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
	Close() error
}

// Store is a bounded FIFO of search records mirrored to a Persister.
// A single mutex covers both the sequence and the persist call.
type Store struct {
	mu       sync.Mutex
	records  []Record
	capacity int
	p        Persister
}

// NewStore creates an empty store. A nil persister keeps history in memory only;
// capacity <= 0 means DefaultCapacity.
func NewStore(p Persister, capacity int) *Store {
	if p == nil {
		p = NewMemory()
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{p: p, capacity: capacity}
}

// Open creates a store and loads it from p.
func Open(ctx context.Context, p Persister, capacity int) *Store {
	s := NewStore(p, capacity)
	s.Load(ctx)
	return s
}

// Load replaces the in-memory sequence with the persisted one.
// Missing or unreadable storage yields an empty history; it never fails.
func (s *Store) Load(ctx context.Context) []Record {
	recs, err := s.p.Load(ctx)
	if err != nil {
		slog.Warn("history: load failed, starting empty", slog.Any("error", err))
		recs = nil
	}
	if len(recs) > s.capacity {
		recs = recs[len(recs)-s.capacity:]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = slices.Clone(recs)
	return slices.Clone(s.records)
}

// Append adds r as the newest record, evicting the oldest one when the
// capacity is exceeded, then persists the whole sequence.
// A persist error is returned but the in-memory append stands.
func (s *Store) Append(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, r)
	if len(s.records) > s.capacity {
		copy(s.records, s.records[1:])
		s.records[len(s.records)-1] = Record{}
		s.records = s.records[:len(s.records)-1]
	}

	if err := s.p.Save(ctx, slices.Clone(s.records)); err != nil {
		return fmt.Errorf("history: persist: %w", err)
	}
	return nil
}

// MostRecent returns the newest record, or false when the history is empty.
func (s *Store) MostRecent() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return Record{}, false
	}
	return s.records[len(s.records)-1], true
}

// RecentN returns up to the last n records, oldest first.
func (s *Store) RecentN(n int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return []Record{}
	}
	start := max(len(s.records)-n, 0)
	out := make([]Record, len(s.records)-start)
	copy(out, s.records[start:])
	return out
}

// All returns a copy of the whole history, oldest first.
func (s *Store) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Capacity reports the eviction bound.
func (s *Store) Capacity() int { return s.capacity }

// Close releases the persister.
func (s *Store) Close() error {
	return s.p.Close()
}
