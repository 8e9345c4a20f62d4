package postgres

import (
	"context"
	"errors"
	"fmt"

	"trivia-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Recorder writes sessions and attempts. Every write is idempotent so the
// background queue can retry freely.
type Recorder struct {
	pool *pgxpool.Pool
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

func (r *Recorder) StartSession(ctx context.Context, rec domain.SessionRecord) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO quiz_sessions (id, user_id, started_at, total_questions)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`, rec.ID, rec.UserID, rec.StartedAt, rec.TotalQuestions)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// RecordAttempt stores the attempt and bumps the question's answer counters
// in one transaction. A replayed attempt changes nothing.
func (r *Recorder) RecordAttempt(ctx context.Context, rec domain.AttemptRecord) error {
	return r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
INSERT INTO question_attempts
    (session_id, user_id, question_id, category, difficulty, selected_index, is_correct, response_ms, answered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (session_id, question_id) DO NOTHING`,
			rec.SessionID, rec.UserID, rec.QuestionID, rec.Category, rec.Difficulty,
			rec.SelectedIndex, rec.IsCorrect, rec.ResponseMs, rec.AnsweredAt)
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if rec.SelectedIndex < 0 {
			_, err = tx.Exec(ctx, `UPDATE questions SET times_answered = times_answered + 1 WHERE id = $1`, rec.QuestionID)
		} else {
			_, err = tx.Exec(ctx, `
UPDATE questions
SET times_answered = times_answered + 1,
    option_counts[$2::INT + 1] = option_counts[$2::INT + 1] + 1
WHERE id = $1`, rec.QuestionID, rec.SelectedIndex)
		}
		if err != nil {
			return fmt.Errorf("update answer counters: %w", err)
		}
		return nil
	})
}

func (r *Recorder) CompleteSession(ctx context.Context, summary domain.SessionSummary) (domain.SessionRecord, error) {
	var rec domain.SessionRecord
	err := r.pool.QueryRow(ctx, `
UPDATE quiz_sessions
SET ended_at = $2, score = $3, correct_answers = $4, total_questions = $5,
    best_streak = $6, duration_ms = $7, average_response_ms = $8, completed = TRUE
WHERE id = $1
RETURNING id, user_id, started_at, ended_at, score, correct_answers, total_questions, best_streak, completed`,
		summary.SessionID, summary.EndedAt, summary.Score, summary.CorrectAnswers, summary.TotalQuestions,
		summary.BestStreak, summary.DurationMs, summary.AverageResponseMs,
	).Scan(&rec.ID, &rec.UserID, &rec.StartedAt, &rec.EndedAt, &rec.Score, &rec.CorrectAnswers,
		&rec.TotalQuestions, &rec.BestStreak, &rec.Completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SessionRecord{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("complete session: %w", err)
	}
	return rec, nil
}
