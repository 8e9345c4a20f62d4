package domain

import (
	"math"
	"sort"
	"time"
)

// NoAnswer is the selection recorded when the countdown expires.
const NoAnswer = -1

// OptionCount is the number of answer options every question carries.
const OptionCount = 4

// AnswerStats holds aggregate counters maintained by the backing store.
type AnswerStats struct {
	TimesAnswered int   `json:"timesAnswered"`
	OptionCounts  []int `json:"optionCounts"`
}

// Question models a multiple choice trivia question.
type Question struct {
	ID           string       `json:"id" yaml:"id"`
	Category     string       `json:"category" yaml:"category"`
	Subcategory  string       `json:"subcategory" yaml:"subcategory"`
	Difficulty   int          `json:"difficulty" yaml:"difficulty"`
	Text         string       `json:"question" yaml:"question"`
	Options      []string     `json:"options" yaml:"options"`
	CorrectIndex int          `json:"correctIndex" yaml:"correct_index"`
	Explanation  string       `json:"explanation" yaml:"explanation"`
	Remark       string       `json:"remark" yaml:"remark"`
	Stats        *AnswerStats `json:"stats,omitempty" yaml:"-"`
}

// Points awarded for a correct answer; difficulty is clamped to 1..5.
func (q Question) Points() int {
	d := q.Difficulty
	if d < 1 {
		d = 1
	}
	if d > 5 {
		d = 5
	}
	return d * 10
}

// Valid reports whether the question can be presented.
func (q Question) Valid() bool {
	return q.ID != "" && len(q.Options) == OptionCount && q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options)
}

// PublicQuestion is what players see while the countdown runs.
type PublicQuestion struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory,omitempty"`
	Difficulty  int      `json:"difficulty"`
	Text        string   `json:"question"`
	Options     []string `json:"options"`
}

// Public strips the answer key.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:          q.ID,
		Category:    q.Category,
		Subcategory: q.Subcategory,
		Difficulty:  q.Difficulty,
		Text:        q.Text,
		Options:     append([]string(nil), q.Options...),
	}
}

// Distribution returns the share of answers per option in percent, or nil when
// the question carries no aggregate counters.
func (q Question) Distribution() []int {
	if q.Stats == nil || q.Stats.TimesAnswered <= 0 {
		return nil
	}
	out := make([]int, len(q.Options))
	for i := range out {
		if i < len(q.Stats.OptionCounts) {
			out[i] = int(math.Round(float64(q.Stats.OptionCounts[i]) / float64(q.Stats.TimesAnswered) * 100))
		}
	}
	return out
}

// QuestionAttempt is one answer (or timeout) to one question within a session.
type QuestionAttempt struct {
	QuestionID    string    `json:"questionId"`
	Category      string    `json:"category"`
	Difficulty    int       `json:"difficulty"`
	SelectedIndex int       `json:"selectedIndex"`
	IsCorrect     bool      `json:"isCorrect"`
	ResponseMs    int64     `json:"responseMs"`
	AnsweredAt    time.Time `json:"answeredAt"`
}

// AttemptRecord is the payload handed to the attempt recorder.
type AttemptRecord struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	QuestionAttempt
}

// QuizSession is one timed play-through.
type QuizSession struct {
	ID                string            `json:"id"`
	UserID            string            `json:"userId,omitempty"`
	TotalQuestions    int               `json:"totalQuestions"`
	Attempts          []QuestionAttempt `json:"attempts"`
	Score             int               `json:"score"`
	CorrectCount      int               `json:"correctCount"`
	CurrentStreak     int               `json:"currentStreak"`
	BestStreak        int               `json:"bestStreak"`
	StartedAt         time.Time         `json:"startedAt"`
	EndedAt           *time.Time        `json:"endedAt,omitempty"`
	DurationMs        int64             `json:"durationMs"`
	AverageResponseMs int64             `json:"averageResponseMs"`
	Completed         bool              `json:"completed"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s QuizSession) Clone() QuizSession {
	out := s
	out.Attempts = append([]QuestionAttempt(nil), s.Attempts...)
	if s.EndedAt != nil {
		ended := *s.EndedAt
		out.EndedAt = &ended
	}
	return out
}

// Summary builds the completion payload for the session recorder.
func (s QuizSession) Summary() SessionSummary {
	sum := SessionSummary{
		SessionID:         s.ID,
		UserID:            s.UserID,
		Score:             s.Score,
		CorrectAnswers:    s.CorrectCount,
		TotalQuestions:    s.TotalQuestions,
		StartedAt:         s.StartedAt,
		DurationMs:        s.DurationMs,
		BestStreak:        s.BestStreak,
		AverageResponseMs: s.AverageResponseMs,
		Accuracy:          Accuracy(s.CorrectCount, s.TotalQuestions),
	}
	if s.EndedAt != nil {
		sum.EndedAt = *s.EndedAt
	}
	return sum
}

// SessionSummary is submitted once when a session completes.
type SessionSummary struct {
	SessionID         string    `json:"sessionId"`
	UserID            string    `json:"userId"`
	Score             int       `json:"score"`
	CorrectAnswers    int       `json:"correctAnswers"`
	TotalQuestions    int       `json:"totalQuestions"`
	StartedAt         time.Time `json:"startedAt"`
	EndedAt           time.Time `json:"endedAt"`
	DurationMs        int64     `json:"durationMs"`
	BestStreak        int       `json:"bestStreak"`
	AverageResponseMs int64     `json:"averageResponseMs"`
	Accuracy          int       `json:"accuracy"`
}

// SessionRecord is a session row as stored by the session recorder.
type SessionRecord struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	StartedAt      time.Time  `json:"startedAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	Score          int        `json:"score"`
	CorrectAnswers int        `json:"correctAnswers"`
	TotalQuestions int        `json:"totalQuestions"`
	BestStreak     int        `json:"bestStreak"`
	Completed      bool       `json:"completed"`
}

// LeaderboardEntry is one ranked player.
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	UserID     string `json:"userId"`
	Points     int    `json:"points"`
	BestStreak int    `json:"bestStreak"`
}

// Accuracy returns round(correct / total * 100), or 0 without answers.
func Accuracy(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// AverageMs returns the rounded arithmetic mean of the samples.
func AverageMs(samples []int64) int64 {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, v := range samples {
		sum += v
	}
	return int64(math.Round(float64(sum) / float64(len(samples))))
}

// RankEntries orders by points, then best streak, then user id, assigns
// 1-based ranks and truncates to limit.
func RankEntries(entries []LeaderboardEntry, limit int) []LeaderboardEntry {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		if entries[i].BestStreak != entries[j].BestStreak {
			return entries[i].BestStreak > entries[j].BestStreak
		}
		return entries[i].UserID < entries[j].UserID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
