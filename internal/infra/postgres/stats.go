package postgres

import (
	"context"
	"errors"
	"fmt"

	"trivia-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// RoleSource keeps roles in user_roles.
type RoleSource struct {
	pool *pgxpool.Pool
}

func NewRoleSource(pool *pgxpool.Pool) *RoleSource {
	return &RoleSource{pool: pool}
}

func (s *RoleSource) GetRole(ctx context.Context, userID string) (domain.Role, bool, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select role: %w", err)
	}
	role, err := domain.ParseRole(raw)
	if err != nil {
		return domain.RoleUser, true, nil
	}
	return role, true, nil
}

func (s *RoleSource) CreateDefaultRole(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO user_roles (user_id, role) VALUES ($1, 'user')
ON CONFLICT (user_id) DO NOTHING`, userID)
	return err
}

func (s *RoleSource) SetRole(ctx context.Context, userID string, role domain.Role) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()`, userID, string(role))
	return err
}

// StatsSource reads the versioned aggregate produced by user_quiz_stats().
type StatsSource struct {
	pool *pgxpool.Pool
}

func NewStatsSource(pool *pgxpool.Pool) *StatsSource {
	return &StatsSource{pool: pool}
}

func (s *StatsSource) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	var raw []byte
	if err := s.pool.QueryRow(ctx, `SELECT user_quiz_stats($1)`, userID).Scan(&raw); err != nil {
		return domain.UserStats{}, fmt.Errorf("user_quiz_stats: %w", err)
	}
	return domain.DecodeStats(raw)
}

// Leaderboard ranks users straight from completed sessions.
type Leaderboard struct {
	pool *pgxpool.Pool
}

func NewLeaderboard(pool *pgxpool.Pool) *Leaderboard {
	return &Leaderboard{pool: pool}
}

func (l *Leaderboard) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := l.pool.Query(ctx, `
SELECT user_id, sum(score)::INT AS points, max(best_streak) AS best_streak
FROM quiz_sessions
WHERE completed
GROUP BY user_id
ORDER BY points DESC, best_streak DESC, user_id
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []domain.LeaderboardEntry{}
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Points, &e.BestStreak); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.RankEntries(entries, limit), nil
}

// AddResult is a no-op: completed sessions are the ranking's source of truth.
func (l *Leaderboard) AddResult(context.Context, domain.SessionSummary) error {
	return nil
}
