package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"trivia-service/internal/logging"

	"go.uber.org/zap"
)

// Invalidator is implemented by every Cache regardless of its value type.
type Invalidator interface {
	Name() string
	InvalidatePrefix(ctx context.Context, prefix Key) error
	InvalidateAll(ctx context.Context) error
}

// Client ties the caches of a process together so that a write invalidates
// every query under the affected keys in one step.
type Client struct {
	log *zap.Logger

	mu     sync.RWMutex
	caches []Invalidator
}

func NewClient(log *zap.Logger) *Client {
	return &Client{log: logging.OrNop(log)}
}

// Register adds caches to the invalidation set.
func (c *Client) Register(caches ...Invalidator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caches = append(c.caches, caches...)
}

// Invalidate drops every query prefixed by any of keys in all registered caches.
func (c *Client) Invalidate(ctx context.Context, keys ...Key) error {
	c.mu.RLock()
	caches := append([]Invalidator(nil), c.caches...)
	c.mu.RUnlock()

	var errs []error
	for _, cache := range caches {
		for _, key := range keys {
			if err := cache.InvalidatePrefix(ctx, key); err != nil {
				c.log.Warn("invalidate failed", zap.String("cache", cache.Name()), zap.String("key", key.String()), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", cache.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Mutate runs a write and, only if it succeeds, invalidates keys.
func (c *Client) Mutate(ctx context.Context, run func(ctx context.Context) error, keys ...Key) error {
	if err := run(ctx); err != nil {
		return err
	}
	return c.Invalidate(ctx, keys...)
}

// Reset clears every registered cache.
func (c *Client) Reset(ctx context.Context) error {
	c.mu.RLock()
	caches := append([]Invalidator(nil), c.caches...)
	c.mu.RUnlock()

	var errs []error
	for _, cache := range caches {
		if err := cache.InvalidateAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cache.Name(), err))
		}
	}
	return errors.Join(errs...)
}
