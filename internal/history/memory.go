package history

import (
	"context"
	"slices"
	"sync"
)

// Memory is a Persister that keeps the last saved sequence in process memory.
// It backs the store when no durable backend could be opened.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records), nil
}

func (m *Memory) Save(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = slices.Clone(records)
	return nil
}

func (m *Memory) Close() error { return nil }
