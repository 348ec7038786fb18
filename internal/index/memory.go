package index

import (
	"context"
	"slices"
	"sync"
)

// MemoryIndex keeps records in process. It backs tests and local runs.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]Record)}
}

func (m *MemoryIndex) Put(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record.Metadata = slices.Clone(record.Metadata)
	m.records[record.ID] = record
	return nil
}

func (m *MemoryIndex) Scan(_ context.Context, filter Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, r := range m.records {
		if filter.matches(r) {
			out = append(out, r)
		}
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
