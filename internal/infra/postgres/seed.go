package postgres

import (
	"context"
	"fmt"

	"trivia-service/internal/domain"

	"github.com/uptrace/bun"
)

type questionModel struct {
	bun.BaseModel `bun:"table:questions"`

	ID           string   `bun:"id,pk"`
	Category     string   `bun:"category"`
	Subcategory  string   `bun:"subcategory"`
	Difficulty   int      `bun:"difficulty"`
	Question     string   `bun:"question"`
	Options      []string `bun:"options,type:jsonb"`
	CorrectIndex int      `bun:"correct_index"`
	Explanation  string   `bun:"explanation"`
	Remark       string   `bun:"remark"`
}

// SeedQuestions upserts questions by id and returns how many were written.
// Answer counters of existing rows are left alone.
func SeedQuestions(ctx context.Context, db *bun.DB, questions []domain.Question) (int, error) {
	rows := make([]questionModel, 0, len(questions))
	for _, q := range questions {
		if !q.Valid() {
			return 0, fmt.Errorf("question %q needs an id, %d options and a correct index in range", q.ID, domain.OptionCount)
		}
		rows = append(rows, questionModel{
			ID:           q.ID,
			Category:     q.Category,
			Subcategory:  q.Subcategory,
			Difficulty:   q.Difficulty,
			Question:     q.Text,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
			Explanation:  q.Explanation,
			Remark:       q.Remark,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("category = EXCLUDED.category").
		Set("subcategory = EXCLUDED.subcategory").
		Set("difficulty = EXCLUDED.difficulty").
		Set("question = EXCLUDED.question").
		Set("options = EXCLUDED.options").
		Set("correct_index = EXCLUDED.correct_index").
		Set("explanation = EXCLUDED.explanation").
		Set("remark = EXCLUDED.remark").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed questions: %w", err)
	}
	return len(rows), nil
}
