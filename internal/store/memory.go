package store

import (
	"context"
	"sync"
	"time"

	"portfolio-backtest/internal/model"
)

// Memory is a process-local Store.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	entries  []Entry // newest first
	now      func() time.Time
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{capacity: capacity, now: time.Now}
}

func (m *Memory) Save(_ context.Context, e Entry) (Entry, error) {
	e, err := stamp(e, m.now())
	if err != nil {
		return Entry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]Entry{clone(e)}, m.entries...)
	if len(m.entries) > m.capacity {
		m.entries = m.entries[:m.capacity]
	}
	return e, nil
}

func (m *Memory) Recent(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = clone(e)
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, id string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.ID == id {
			return clone(e), nil
		}
	}
	return Entry{}, ErrNotFound
}

func (m *Memory) Close() error { return nil }

func clone(e Entry) Entry {
	e.Portfolio = model.Portfolio{Holdings: append([]model.Holding(nil), e.Portfolio.Holdings...)}
	return e
}
