package memory

import (
	"context"
	"sync"

	"trivia-service/internal/engine"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*engine.Engine
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*engine.Engine),
	}
}

func (s *SessionStore) Put(_ context.Context, session *engine.Engine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID()] = session
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*engine.Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len reports how many sessions are registered.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
