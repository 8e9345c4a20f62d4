package memory

import (
	"context"
	"sync"
)

// Mirror is a process-local key/value blob store.
type Mirror struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMirror() *Mirror {
	return &Mirror{blobs: make(map[string][]byte)}
}

func (m *Mirror) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Mirror) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), value...)
	return nil
}

func (m *Mirror) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}
