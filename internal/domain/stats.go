package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role is the authorization role of a user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole normalizes a role name.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	}
	return "", ErrInvalidRole
}

// StatsVersion is the aggregate payload schema this build understands.
const StatsVersion = 1

// CategoryStats is the per-category breakdown of a user's answers.
type CategoryStats struct {
	Category string `json:"category"`
	Answered int    `json:"answered"`
	Correct  int    `json:"correct"`
	Accuracy int    `json:"accuracy"`
}

// UserStats is the aggregate statistics payload for one user.
type UserStats struct {
	Version           int             `json:"version"`
	UserID            string          `json:"userId"`
	TotalQuizzes      int             `json:"totalQuizzes"`
	TotalQuestions    int             `json:"totalQuestions"`
	CorrectAnswers    int             `json:"correctAnswers"`
	Accuracy          int             `json:"accuracy"`
	TotalPoints       int             `json:"totalPoints"`
	BestStreak        int             `json:"bestStreak"`
	AverageResponseMs int64           `json:"averageResponseMs"`
	LastPlayedAt      *time.Time      `json:"lastPlayedAt,omitempty"`
	Categories        []CategoryStats `json:"categories"`
	Level             LevelInfo       `json:"level"`
}

// EmptyStats is the zeroed shape served when nothing is known about a user.
func EmptyStats(userID string) UserStats {
	return UserStats{UserID: userID}.Normalize()
}

// Normalize applies the defaulting rules for every optional field.
func (s UserStats) Normalize() UserStats {
	if s.Version == 0 {
		s.Version = StatsVersion
	}
	if s.Categories == nil {
		s.Categories = []CategoryStats{}
	}
	if s.CorrectAnswers > s.TotalQuestions {
		s.CorrectAnswers = s.TotalQuestions
	}
	if s.Accuracy == 0 {
		s.Accuracy = Accuracy(s.CorrectAnswers, s.TotalQuestions)
	}
	for i := range s.Categories {
		c := &s.Categories[i]
		if c.Category == "" {
			c.Category = "Uncategorized"
		}
		if c.Accuracy == 0 {
			c.Accuracy = Accuracy(c.Correct, c.Answered)
		}
	}
	s.Level = LevelFor(s.TotalPoints)
	return s
}

// DecodeStats parses a raw aggregate payload at the storage boundary.
func DecodeStats(raw []byte) (UserStats, error) {
	var stats UserStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return UserStats{}, fmt.Errorf("decode stats: %w", err)
	}
	if stats.Version > StatsVersion {
		return UserStats{}, fmt.Errorf("%w: %d", ErrUnsupportedStatsVersion, stats.Version)
	}
	return stats.Normalize(), nil
}
