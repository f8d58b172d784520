package cache

import (
	"context"
	"sync"

	"github.com/chazu/stackflow/wire"
)

// Memory is an in-process Store. Summaries are held encoded, so callers
// cannot alias what the store keeps.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key][]byte
	closed  bool
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[Key][]byte)}
}

func (m *Memory) Get(_ context.Context, k Key) (*wire.Summary, bool, error) {
	m.mu.RLock()
	data, ok := m.entries[k]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, false, ErrClosed
	}
	if !ok {
		return nil, false, nil
	}
	s, err := wire.UnmarshalSummary(data)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (m *Memory) Put(_ context.Context, k Key, s *wire.Summary) error {
	data, err := wire.MarshalSummary(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries[k] = data
	return nil
}

// Len returns the number of stored summaries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.entries = nil
	m.mu.Unlock()
	return nil
}
