package kv

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It backs tests and the --ephemeral mode
// of the CLI, where nothing should touch disk.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, keys []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, ok := m.entries[key]; ok {
			out[key] = append([]byte(nil), value...)
		}
	}
	return out, nil
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, value := range entries {
		m.entries[key] = append([]byte(nil), value...)
	}
	return nil
}

// Remove implements Store.
func (m *Memory) Remove(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

// Clear implements Store.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string][]byte)
	return nil
}

// Keys implements Store.
func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	return keys, nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}
