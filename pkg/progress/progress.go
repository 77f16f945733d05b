// Package progress persists the resume index of a tour so it survives
// restarts.
package progress

import (
	"context"
	"sync"
)

// Key identifies the single persisted record.
const Key = "waypoint_index"

// Store is a durable key-value record for the absolute waypoint index to
// resume from. A missing record reads as 0.
type Store interface {
	SaveResumeIndex(ctx context.Context, index int) error
	LoadResumeIndex(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Memory is a process-local Store.
type Memory struct {
	mu    sync.Mutex
	index int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SaveResumeIndex(_ context.Context, index int) error {
	m.mu.Lock()
	m.index = index
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadResumeIndex(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index, nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.index = 0
	m.mu.Unlock()
	return nil
}
