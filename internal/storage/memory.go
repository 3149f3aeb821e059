package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps everything in process memory. It backs ephemeral
// sessions and lets tests inject write failures.
type MemoryBackend struct {
	mu       sync.Mutex
	data     map[string][]byte
	failNext int
	failErr  error
	writeErr error
	writes   int
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryBackend) SetMany(ctx context.Context, entries map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext > 0 {
		m.failNext--
		return m.failErr
	}
	if m.writeErr != nil {
		return m.writeErr
	}

	for k, v := range entries {
		m.data[k] = append([]byte(nil), v...)
	}
	m.writes++
	return nil
}

func (m *MemoryBackend) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// FailNextWrites makes the next n SetMany calls return err.
func (m *MemoryBackend) FailNextWrites(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
	m.failErr = err
}

// SetWriteError makes every SetMany fail with err until cleared with nil.
func (m *MemoryBackend) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Writes returns the number of successful SetMany calls.
func (m *MemoryBackend) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Put stores a raw value directly, bypassing failure injection.
func (m *MemoryBackend) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
}

// Raw returns the stored bytes for key, or nil.
func (m *MemoryBackend) Raw(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return append([]byte(nil), v...)
	}
	return nil
}
