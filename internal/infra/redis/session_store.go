package redis

import (
	"context"
	"sync"
	"time"

	"trivia-service/internal/engine"

	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Engines own timers and live in process memory; Redis holds a liveness
// marker per session so other instances can count and locate live play.
type SessionStore struct {
	client    *redis.Client
	ttl       time.Duration
	namespace string

	mu       sync.RWMutex
	sessions map[string]*engine.Engine
}

func NewSessionStore(client *redis.Client, namespace string, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:    client,
		ttl:       ttl,
		namespace: namespace,
		sessions:  make(map[string]*engine.Engine),
	}
}

func (s *SessionStore) Put(ctx context.Context, session *engine.Engine) error {
	s.mu.Lock()
	s.sessions[session.SessionID()] = session
	s.mu.Unlock()
	// best-effort liveness marker; play does not depend on Redis
	_ = s.client.Set(ctx, s.key(session.SessionID()), session.UserID(), s.ttl).Err()
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*engine.Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	// best-effort; the marker expires on its own
	_ = s.client.Del(ctx, s.key(sessionID)).Err()
}

// live reports whether any instance holds the session.
func (s *SessionStore) live(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(sessionID)).Result()
	return n > 0, err
}

func (s *SessionStore) key(sessionID string) string {
	return s.namespace + ":session:" + sessionID
}
