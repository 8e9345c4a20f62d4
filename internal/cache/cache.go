package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"trivia-service/internal/logging"
	"trivia-service/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the authoritative value for a key.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Options configures a Cache.
type Options struct {
	TTL    time.Duration
	Clock  func() time.Time
	Logger *zap.Logger
}

// flight is the in-flight request for one key. It is removed from the cache's
// map when it settles or when its key is invalidated; a stale flight never
// writes its result back.
type flight struct {
	id string

	mu    sync.Mutex
	stale bool
}

// Cache is a TTL cache with same-key in-flight de-duplication.
type Cache[T any] struct {
	name  string
	store Store[T]
	ttl   time.Duration
	clock func() time.Time
	log   *zap.Logger
	sf    singleflight.Group

	mu       sync.Mutex
	seq      uint64
	inflight map[string]*flight
	closed   bool
}

// New creates a cache named name on top of store.
func New[T any](name string, store Store[T], opts Options) *Cache[T] {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Cache[T]{
		name:     name,
		store:    store,
		ttl:      opts.TTL,
		clock:    clock,
		log:      logging.OrNop(opts.Logger),
		inflight: make(map[string]*flight),
	}
}

// Name identifies the cache in logs and metrics.
func (c *Cache[T]) Name() string {
	return c.name
}

// Get returns the live entry for key or runs fetch. Concurrent callers for the
// same key share one fetch. A caller whose ctx ends stops waiting without
// cancelling the shared fetch.
func (c *Cache[T]) Get(ctx context.Context, key Key, fetch FetchFunc[T]) (T, error) {
	var zero T
	k := key.String()

	entry, ok, err := c.store.Get(ctx, k)
	if err != nil {
		c.log.Warn("cache read failed", zap.String("cache", c.name), zap.String("key", k), zap.Error(err))
	} else if ok && entry.Valid(c.clock()) {
		metrics.CacheRequests.WithLabelValues(c.name, "hit").Inc()
		return entry.Value, nil
	}

	ch, shared := c.join(k, func(f *flight) func() (interface{}, error) {
		return func() (interface{}, error) {
			defer c.settle(k, f)
			v, err := fetch(context.WithoutCancel(ctx))
			if err != nil {
				return nil, err
			}
			c.writeBack(k, f, v)
			return v, nil
		}
	})
	if shared {
		metrics.CacheRequests.WithLabelValues(c.name, "shared").Inc()
	} else {
		metrics.CacheRequests.WithLabelValues(c.name, "miss").Inc()
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			metrics.CacheRequests.WithLabelValues(c.name, "error").Inc()
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// join subscribes to the key's outstanding flight, starting one with run if
// none exists. The subscription happens under c.mu: a flight still in the map
// has not settled, so singleflight still holds its id.
func (c *Cache[T]) join(k string, run func(*flight) func() (interface{}, error)) (<-chan singleflight.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.inflight[k]; ok {
		return c.sf.DoChan(f.id, run(f)), true
	}
	c.seq++
	f := &flight{id: k + "#" + strconv.FormatUint(c.seq, 10), stale: c.closed}
	c.inflight[k] = f
	return c.sf.DoChan(f.id, run(f)), false
}

func (c *Cache[T]) settle(k string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[k] == f {
		delete(c.inflight, k)
	}
}

func (c *Cache[T]) writeBack(k string, f *flight, v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stale {
		return
	}
	entry := Entry[T]{Value: v, StoredAt: c.clock(), TTL: c.ttl}
	if err := c.store.Set(context.Background(), k, entry); err != nil {
		c.log.Warn("cache write failed", zap.String("cache", c.name), zap.String("key", k), zap.Error(err))
	}
}

// detach removes and marks stale every in-flight request matching prefix.
func (c *Cache[T]) detach(prefix string) {
	c.mu.Lock()
	var detached []*flight
	for k, f := range c.inflight {
		if matchesPrefix(k, prefix) {
			detached = append(detached, f)
			delete(c.inflight, k)
		}
	}
	c.mu.Unlock()

	for _, f := range detached {
		f.mu.Lock()
		f.stale = true
		f.mu.Unlock()
	}
}

// Invalidate drops the entry and any in-flight request for key; the next Get
// performs a fresh fetch.
func (c *Cache[T]) Invalidate(ctx context.Context, key Key) error {
	k := key.String()
	c.mu.Lock()
	f, ok := c.inflight[k]
	if ok {
		delete(c.inflight, k)
	}
	c.mu.Unlock()
	if ok {
		f.mu.Lock()
		f.stale = true
		f.mu.Unlock()
	}
	metrics.CacheInvalidations.WithLabelValues(c.name, "key").Inc()
	return c.store.Delete(ctx, k)
}

// InvalidatePrefix drops every entry whose key starts with prefix.
func (c *Cache[T]) InvalidatePrefix(ctx context.Context, prefix Key) error {
	p := prefix.String()
	c.detach(p)
	metrics.CacheInvalidations.WithLabelValues(c.name, "prefix").Inc()
	return c.store.DeletePrefix(ctx, p)
}

// InvalidateAll drops every entry and in-flight request.
func (c *Cache[T]) InvalidateAll(ctx context.Context) error {
	c.detach("")
	metrics.CacheInvalidations.WithLabelValues(c.name, "all").Inc()
	return c.store.Clear(ctx)
}

// Close clears the cache; later Gets pass straight through to their fetch.
func (c *Cache[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.InvalidateAll(ctx)
}
