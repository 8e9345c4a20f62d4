package cache

import (
	"context"
	"sync"
	"time"
)

// Entry is a cached value with its write time and time-to-live.
type Entry[T any] struct {
	Value    T             `json:"value"`
	StoredAt time.Time     `json:"storedAt"`
	TTL      time.Duration `json:"ttl"`
}

// Valid reports whether the entry is still live at now.
func (e Entry[T]) Valid(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// Store persists cache entries under encoded keys.
type Store[T any] interface {
	Get(ctx context.Context, key string) (Entry[T], bool, error)
	Set(ctx context.Context, key string, entry Entry[T]) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Clear(ctx context.Context) error
}

// MemoryStore is a bounded in-process Store.
type MemoryStore[T any] struct {
	maxEntries int
	clock      func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry[T]
}

// NewMemoryStore creates a store holding at most maxEntries entries (0 = unbounded).
func NewMemoryStore[T any](maxEntries int) *MemoryStore[T] {
	return &MemoryStore[T]{
		maxEntries: maxEntries,
		clock:      time.Now,
		entries:    make(map[string]Entry[T]),
	}
}

func (s *MemoryStore[T]) Get(_ context.Context, key string) (Entry[T], bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok, nil
}

func (s *MemoryStore[T]) Set(_ context.Context, key string, entry Entry[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictLocked()
	}
	s.entries[key] = entry
	return nil
}

// evictLocked drops expired entries, then the oldest one if still full.
func (s *MemoryStore[T]) evictLocked() {
	now := s.clock()
	for k, e := range s.entries {
		if !e.Valid(now) {
			delete(s.entries, k)
		}
	}
	if len(s.entries) < s.maxEntries {
		return
	}
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range s.entries {
		if first || e.StoredAt.Before(oldest) {
			oldestKey, oldest, first = k, e.StoredAt, false
		}
	}
	delete(s.entries, oldestKey)
}

func (s *MemoryStore[T]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore[T]) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if matchesPrefix(k, prefix) {
			delete(s.entries, k)
		}
	}
	return nil
}

func (s *MemoryStore[T]) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry[T])
	return nil
}

// Len returns the number of physically present entries.
func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
