package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"trivia-service/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionSource draws random questions from the questions table together
// with their answer counters.
type QuestionSource struct {
	pool *pgxpool.Pool
}

func NewQuestionSource(pool *pgxpool.Pool) *QuestionSource {
	return &QuestionSource{pool: pool}
}

func (s *QuestionSource) FetchQuestions(ctx context.Context, count int) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, category, subcategory, difficulty, question, options, correct_index,
       explanation, remark, times_answered, option_counts
FROM questions
ORDER BY random()
LIMIT $1`, count)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var (
			q       domain.Question
			options []byte
			times   int
			counts  []int32
		)
		if err := rows.Scan(&q.ID, &q.Category, &q.Subcategory, &q.Difficulty, &q.Text, &options,
			&q.CorrectIndex, &q.Explanation, &q.Remark, &times, &counts); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options for %s: %w", q.ID, err)
		}
		if times > 0 {
			stats := &domain.AnswerStats{TimesAnswered: times, OptionCounts: make([]int, len(counts))}
			for i, c := range counts {
				stats.OptionCounts[i] = int(c)
			}
			q.Stats = stats
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
