package memory

import (
	"context"
	"sort"
	"sync"

	"trivia-service/internal/domain"
)

// Store keeps everything the recorder writes in process memory and derives
// roles, statistics and the leaderboard from it.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.SessionRecord
	attempts []domain.AttemptRecord
	counters map[string]*domain.AnswerStats
	roles    map[string]domain.Role
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*domain.SessionRecord),
		counters: make(map[string]*domain.AnswerStats),
		roles:    make(map[string]domain.Role),
	}
}

func (s *Store) StartSession(_ context.Context, rec domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[rec.ID]; ok {
		return nil
	}
	r := rec
	s.sessions[rec.ID] = &r
	return nil
}

func (s *Store) CompleteSession(_ context.Context, summary domain.SessionSummary) (domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[summary.SessionID]
	if !ok {
		return domain.SessionRecord{}, domain.ErrSessionNotFound
	}
	ended := summary.EndedAt
	rec.EndedAt = &ended
	rec.Score = summary.Score
	rec.CorrectAnswers = summary.CorrectAnswers
	rec.TotalQuestions = summary.TotalQuestions
	rec.BestStreak = summary.BestStreak
	rec.Completed = true
	return *rec, nil
}

func (s *Store) RecordAttempt(_ context.Context, rec domain.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, rec)
	c, ok := s.counters[rec.QuestionID]
	if !ok {
		c = &domain.AnswerStats{OptionCounts: make([]int, domain.OptionCount)}
		s.counters[rec.QuestionID] = c
	}
	c.TimesAnswered++
	if rec.SelectedIndex >= 0 && rec.SelectedIndex < len(c.OptionCounts) {
		c.OptionCounts[rec.SelectedIndex]++
	}
	return nil
}

// AnswerStats returns a copy of the counters for a question, or nil.
func (s *Store) AnswerStats(questionID string) *domain.AnswerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[questionID]
	if !ok {
		return nil
	}
	return &domain.AnswerStats{
		TimesAnswered: c.TimesAnswered,
		OptionCounts:  append([]int(nil), c.OptionCounts...),
	}
}

func (s *Store) GetRole(_ context.Context, userID string) (domain.Role, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[userID]
	return role, ok, nil
}

func (s *Store) CreateDefaultRole(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[userID]; !ok {
		s.roles[userID] = domain.RoleUser
	}
	return nil
}

func (s *Store) SetRole(_ context.Context, userID string, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = role
	return nil
}

// UserStats aggregates completed sessions and every recorded attempt.
func (s *Store) UserStats(_ context.Context, userID string) (domain.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.UserStats{Version: domain.StatsVersion, UserID: userID}
	for _, rec := range s.sessions {
		if rec.UserID != userID || !rec.Completed {
			continue
		}
		stats.TotalQuizzes++
		stats.TotalPoints += rec.Score
		if rec.BestStreak > stats.BestStreak {
			stats.BestStreak = rec.BestStreak
		}
	}

	byCategory := make(map[string]*domain.CategoryStats)
	var order []string
	var samples []int64
	for _, a := range s.attempts {
		if a.UserID != userID {
			continue
		}
		stats.TotalQuestions++
		samples = append(samples, a.ResponseMs)
		if a.IsCorrect {
			stats.CorrectAnswers++
		}
		if stats.LastPlayedAt == nil || a.AnsweredAt.After(*stats.LastPlayedAt) {
			at := a.AnsweredAt
			stats.LastPlayedAt = &at
		}
		c, ok := byCategory[a.Category]
		if !ok {
			c = &domain.CategoryStats{Category: a.Category}
			byCategory[a.Category] = c
			order = append(order, a.Category)
		}
		c.Answered++
		if a.IsCorrect {
			c.Correct++
		}
	}
	stats.AverageResponseMs = domain.AverageMs(samples)
	sort.Strings(order)
	for _, name := range order {
		stats.Categories = append(stats.Categories, *byCategory[name])
	}
	return stats.Normalize(), nil
}

// Top ranks users by the points of their completed sessions.
func (s *Store) Top(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	totals := make(map[string]*domain.LeaderboardEntry)
	for _, rec := range s.sessions {
		if !rec.Completed {
			continue
		}
		e, ok := totals[rec.UserID]
		if !ok {
			e = &domain.LeaderboardEntry{UserID: rec.UserID}
			totals[rec.UserID] = e
		}
		e.Points += rec.Score
		if rec.BestStreak > e.BestStreak {
			e.BestStreak = rec.BestStreak
		}
	}
	s.mu.RUnlock()

	entries := make([]domain.LeaderboardEntry, 0, len(totals))
	for _, e := range totals {
		entries = append(entries, *e)
	}
	return domain.RankEntries(entries, limit), nil
}

// AddResult is a no-op: the ranking is derived from completed sessions.
func (s *Store) AddResult(context.Context, domain.SessionSummary) error {
	return nil
}
