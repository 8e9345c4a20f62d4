package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"trivia-service/internal/domain"
)

// AnswerCounter exposes per-question answer counters.
type AnswerCounter interface {
	AnswerStats(questionID string) *domain.AnswerStats
}

// QuestionBank serves random batches from a fixed set of questions.
type QuestionBank struct {
	questions []domain.Question
	counters  AnswerCounter

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewQuestionBank copies questions. counters may be nil.
func NewQuestionBank(questions []domain.Question, counters AnswerCounter) *QuestionBank {
	return &QuestionBank{
		questions: append([]domain.Question(nil), questions...),
		counters:  counters,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSeed makes the shuffle deterministic.
func (b *QuestionBank) WithSeed(seed int64) *QuestionBank {
	b.mu.Lock()
	b.rnd = rand.New(rand.NewSource(seed))
	b.mu.Unlock()
	return b
}

func (b *QuestionBank) FetchQuestions(ctx context.Context, count int) ([]domain.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	order := b.rnd.Perm(len(b.questions))
	b.mu.Unlock()

	if count <= 0 || count > len(order) {
		count = len(order)
	}
	out := make([]domain.Question, 0, count)
	for _, i := range order[:count] {
		q := b.questions[i]
		q.Options = append([]string(nil), q.Options...)
		if b.counters != nil {
			q.Stats = b.counters.AnswerStats(q.ID)
		}
		out = append(out, q)
	}
	return out, nil
}

// Len reports how many questions the bank holds.
func (b *QuestionBank) Len() int {
	return len(b.questions)
}
