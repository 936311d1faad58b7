package store

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by a Medium when a key has never been saved.
var ErrNotFound = errors.New("store: key not found")

// UpdateFunc computes a key's new value from its current one. current is nil when the key
// does not exist. Returning a nil value leaves the key unchanged. A Medium may call it more
// than once when a concurrent writer interferes.
type UpdateFunc func(current []byte) ([]byte, error)

// Medium is the durable key-value layer beneath the Store. Values are JSON documents.
// Update is atomic with respect to every other writer of the same medium, including
// writers in other processes.
type Medium interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// MemoryMedium keeps documents in process memory. Used for tests and throwaway runs.
type MemoryMedium struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryMedium creates an empty in-memory medium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{data: make(map[string][]byte)}
}

func (m *MemoryMedium) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryMedium) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryMedium) Update(_ context.Context, key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current []byte
	if v, ok := m.data[key]; ok {
		current = append([]byte(nil), v...)
	}
	next, err := fn(current)
	if err != nil || next == nil {
		return err
	}
	m.data[key] = append([]byte(nil), next...)
	return nil
}

func (m *MemoryMedium) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryMedium) Ping(context.Context) error { return nil }

func (m *MemoryMedium) Close() error { return nil }
