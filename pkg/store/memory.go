package store

import (
	"context"
	"sync"

	"github.com/cachemir/cacheaside/pkg/cacheerr"
	"github.com/cachemir/cacheaside/pkg/record"
)

// Memory is a mutable in-process store.
type Memory struct {
	data map[int]record.Record
	mu   sync.RWMutex
}

var _ Mutable = (*Memory)(nil)

// NewMemory returns a store holding recs.
func NewMemory(recs ...record.Record) *Memory {
	m := &Memory{data: make(map[int]record.Record, len(recs))}
	for _, rec := range recs {
		m.data[rec.ID] = rec
	}
	return m
}

func (m *Memory) Lookup(_ context.Context, id int) (record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[id]
	if !ok {
		return record.Record{}, cacheerr.NotFound("id %d is not stored", id)
	}
	return rec, nil
}

func (m *Memory) Size(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data), nil
}

func (m *Memory) Save(_ context.Context, rec record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[rec.ID] = rec
	return nil
}

func (m *Memory) Delete(_ context.Context, id int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.data[id]
	delete(m.data, id)
	return ok, nil
}
