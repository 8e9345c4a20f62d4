package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/singleflight"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(clock *fakeClock) *Cache[string] {
	return New[string]("test", NewMemoryStore[string](0), Options{TTL: 5 * time.Minute, Clock: clock.Now})
}

func TestCacheServesLiveEntry(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	var calls int32
	fetch := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.Get(context.Background(), NewKey("stats", "user-42"), fetch)
		if err != nil || v != "v" {
			t.Fatalf("get: %q %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}

	clock.Advance(5*time.Minute - time.Second)
	_, _ = c.Get(context.Background(), NewKey("stats", "user-42"), fetch)
	if calls != 1 {
		t.Fatalf("expected entry live inside ttl, fetches=%d", calls)
	}

	clock.Advance(time.Second)
	_, _ = c.Get(context.Background(), NewKey("stats", "user-42"), fetch)
	if calls != 2 {
		t.Fatalf("expected refetch once ttl elapsed, fetches=%d", calls)
	}
}

func TestCacheDeduplicatesConcurrentGets(t *testing.T) {
	c := newTestCache(newFakeClock())
	release := make(chan struct{})
	var calls int32
	fetch := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	const callers = 20
	results := make(chan string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background(), NewKey("stats", "user-42"), fetch)
			if err != nil {
				t.Errorf("get: %v", err)
			}
			results <- v
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	if calls != 1 {
		t.Fatalf("expected exactly one fetch, got %d", calls)
	}
	for v := range results {
		if v != "shared" {
			t.Fatalf("expected shared value, got %q", v)
		}
	}
}

func TestInvalidateForcesFreshFetch(t *testing.T) {
	c := newTestCache(newFakeClock())
	ctx := context.Background()
	var calls int32
	fetch := func(context.Context) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return "before", nil
		}
		return "after", nil
	}

	v, _ := c.Get(ctx, NewKey("stats", "user-42"), fetch)
	if v != "before" {
		t.Fatalf("expected first value, got %q", v)
	}
	if err := c.Invalidate(ctx, NewKey("stats", "user-42")); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	v, _ = c.Get(ctx, NewKey("stats", "user-42"), fetch)
	if v != "after" || calls != 2 {
		t.Fatalf("expected fresh fetch after invalidation, got %q (fetches=%d)", v, calls)
	}
}

func TestFailedFetchDoesNotPoison(t *testing.T) {
	c := newTestCache(newFakeClock())
	ctx := context.Background()
	boom := errors.New("boom")
	var calls int32
	fetch := func(context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "", boom
		}
		return "ok", nil
	}

	if _, err := c.Get(ctx, NewKey("role", "u1"), fetch); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if n := c.store.(*MemoryStore[string]).Len(); n != 0 {
		t.Fatalf("expected no entry after failure, got %d", n)
	}
	c.mu.Lock()
	pending := len(c.inflight)
	c.mu.Unlock()
	if pending != 0 {
		t.Fatalf("expected no in-flight request after failure, got %d", pending)
	}

	v, err := c.Get(ctx, NewKey("role", "u1"), fetch)
	if err != nil || v != "ok" {
		t.Fatalf("expected retry to succeed, got %q %v", v, err)
	}
	if calls != 2 {
		t.Fatalf("expected retry to fetch again, got %d fetches", calls)
	}
}

func TestInvalidatedFlightDoesNotWriteBack(t *testing.T) {
	c := newTestCache(newFakeClock())
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	fetch := func(context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
			return "old", nil
		}
		return "new", nil
	}

	done := make(chan string)
	go func() {
		v, _ := c.Get(ctx, NewKey("stats", "u1"), fetch)
		done <- v
	}()
	<-started
	if err := c.Invalidate(ctx, NewKey("stats", "u1")); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	close(release)
	if v := <-done; v != "old" {
		t.Fatalf("expected the original caller to get its result, got %q", v)
	}

	v, _ := c.Get(ctx, NewKey("stats", "u1"), fetch)
	if v != "new" || calls != 2 {
		t.Fatalf("expected stale result not cached, got %q (fetches=%d)", v, calls)
	}
}

func TestCallerContextDoesNotCancelSharedFetch(t *testing.T) {
	c := newTestCache(newFakeClock())
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	fetch := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "v", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		_, err := c.Get(ctx, NewKey("stats", "u1"), fetch)
		errCh <- err
	}()
	<-started
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected caller cancellation, got %v", err)
	}
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for c.store.(*MemoryStore[string]).Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected shared fetch to finish and populate the cache")
		}
		time.Sleep(5 * time.Millisecond)
	}
	v, err := c.Get(context.Background(), NewKey("stats", "u1"), fetch)
	if err != nil || v != "v" || calls != 1 {
		t.Fatalf("expected cached value from the abandoned fetch, got %q %v (fetches=%d)", v, err, calls)
	}
}

func TestInvalidatePrefixAndAll(t *testing.T) {
	c := newTestCache(newFakeClock())
	ctx := context.Background()
	store := c.store.(*MemoryStore[string])
	fetch := func(context.Context) (string, error) { return "v", nil }

	for _, k := range []Key{
		NewKey("user", "42", "stats"),
		NewKey("user", "42", "role"),
		NewKey("user", "420", "stats"),
		NewKey("leaderboard", "10"),
	} {
		if _, err := c.Get(ctx, k, fetch); err != nil {
			t.Fatalf("get %v: %v", k, err)
		}
	}

	if err := c.InvalidatePrefix(ctx, NewKey("user", "42")); err != nil {
		t.Fatalf("invalidate prefix: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected user/420 and leaderboard to survive, got %d entries", store.Len())
	}
	if _, ok, _ := store.Get(ctx, NewKey("user", "420", "stats").String()); !ok {
		t.Fatalf("prefix must respect part boundaries")
	}

	if err := c.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}

func TestCloseStopsCaching(t *testing.T) {
	c := newTestCache(newFakeClock())
	ctx := context.Background()
	var calls int32
	fetch := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}
	_, _ = c.Get(ctx, NewKey("k"), fetch)
	if err := c.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, _ = c.Get(ctx, NewKey("k"), fetch)
	_, _ = c.Get(ctx, NewKey("k"), fetch)
	if calls != 3 {
		t.Fatalf("expected pass-through after close, got %d fetches", calls)
	}
}

func TestMemoryStoreEvictsExpiredThenOldest(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore[int](2)
	store.clock = clock.Now
	ctx := context.Background()

	_ = store.Set(ctx, "a", Entry[int]{Value: 1, StoredAt: clock.Now(), TTL: time.Minute})
	clock.Advance(time.Second)
	_ = store.Set(ctx, "b", Entry[int]{Value: 2, StoredAt: clock.Now(), TTL: time.Hour})
	clock.Advance(time.Second)
	_ = store.Set(ctx, "c", Entry[int]{Value: 3, StoredAt: clock.Now(), TTL: time.Hour})
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Fatalf("expected oldest entry evicted")
	}

	clock.Advance(2 * time.Hour)
	_ = store.Set(ctx, "d", Entry[int]{Value: 4, StoredAt: clock.Now(), TTL: time.Hour})
	if store.Len() != 1 {
		t.Fatalf("expected expired entries purged, got %d", store.Len())
	}
}

func TestKeyEncoding(t *testing.T) {
	k := NewKey("user", "a:b", "stats")
	if k.String() != "user:a%3Ab:stats" {
		t.Fatalf("unexpected encoding %q", k.String())
	}
	if !matchesPrefix(k.String(), NewKey("user", "a:b").String()) || matchesPrefix(k.String(), NewKey("user", "a").String()) {
		t.Fatalf("unexpected prefix semantics")
	}
}

func TestClientMutateInvalidatesOnSuccessOnly(t *testing.T) {
	ctx := context.Background()
	roles := New[string]("roles", NewMemoryStore[string](0), Options{TTL: time.Minute})
	stats := New[int]("stats", NewMemoryStore[int](0), Options{TTL: time.Minute})
	client := NewClient(nil)
	client.Register(roles, stats)

	_, _ = roles.Get(ctx, NewKey("user", "42", "role"), func(context.Context) (string, error) { return "user", nil })
	_, _ = stats.Get(ctx, NewKey("user", "42", "stats"), func(context.Context) (int, error) { return 7, nil })

	failing := errors.New("write failed")
	if err := client.Mutate(ctx, func(context.Context) error { return failing }, NewKey("user", "42")); !errors.Is(err, failing) {
		t.Fatalf("expected mutation error, got %v", err)
	}
	if roles.store.(*MemoryStore[string]).Len() != 1 {
		t.Fatalf("failed mutation must not invalidate")
	}

	if err := client.Mutate(ctx, func(context.Context) error { return nil }, NewKey("user", "42")); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if roles.store.(*MemoryStore[string]).Len() != 0 || stats.store.(*MemoryStore[int]).Len() != 0 {
		t.Fatalf("expected both caches invalidated")
	}
}

func TestJoinedCallerReceivesSettlingFlight(t *testing.T) {
	c := newTestCache(newFakeClock())
	gate := make(chan struct{})
	var calls int32
	run := func(f *flight) func() (interface{}, error) {
		return func() (interface{}, error) {
			defer c.settle("k", f)
			atomic.AddInt32(&calls, 1)
			<-gate
			return "first", nil
		}
	}

	first, shared := c.join("k", run)
	if shared {
		t.Fatalf("expected a new flight")
	}
	second, shared := c.join("k", run)
	if !shared {
		t.Fatalf("expected the outstanding flight to be shared")
	}
	close(gate)

	for _, ch := range []<-chan singleflight.Result{first, second} {
		res := <-ch
		if res.Err != nil || res.Val.(string) != "first" {
			t.Fatalf("unexpected result %+v", res)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected one fetch, got %d", n)
	}
	c.mu.Lock()
	left := len(c.inflight)
	c.mu.Unlock()
	if left != 0 {
		t.Fatalf("expected settled flight removed, %d left", left)
	}
}
