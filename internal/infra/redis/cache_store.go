package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"trivia-service/internal/cache"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// CacheStore is a cache.Store kept in Redis as JSON strings. Entries carry a
// native expiry matching their TTL, so Redis reclaims them on its own.
type CacheStore[T any] struct {
	client    *redis.Client
	namespace string
}

// NewCacheStore stores entries under "<namespace>:<key>".
func NewCacheStore[T any](client *redis.Client, namespace string) *CacheStore[T] {
	return &CacheStore[T]{client: client, namespace: namespace}
}

func (s *CacheStore[T]) key(k string) string {
	return s.namespace + ":" + k
}

func (s *CacheStore[T]) Get(ctx context.Context, key string) (cache.Entry[T], bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cache.Entry[T]{}, false, nil
	}
	if err != nil {
		return cache.Entry[T]{}, false, err
	}
	var entry cache.Entry[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		// unreadable entries are treated as misses and overwritten
		return cache.Entry[T]{}, false, nil
	}
	return entry, true, nil
}

func (s *CacheStore[T]) Set(ctx context.Context, key string, entry cache.Entry[T]) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), raw, entry.TTL).Err()
}

func (s *CacheStore[T]) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// DeletePrefix removes the key equal to prefix and every key below it.
func (s *CacheStore[T]) DeletePrefix(ctx context.Context, prefix string) error {
	if err := s.client.Del(ctx, s.key(prefix)).Err(); err != nil {
		return err
	}
	return s.deleteMatching(ctx, escapeGlob(s.key(prefix))+":*")
}

func (s *CacheStore[T]) Clear(ctx context.Context) error {
	return s.deleteMatching(ctx, escapeGlob(s.namespace)+":*")
}

func (s *CacheStore[T]) deleteMatching(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
