package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trivia-service/internal/domain"
	"trivia-service/internal/logging"

	"go.uber.org/zap"
)

const (
	DefaultQuestionTime  = 10 * time.Second
	DefaultFeedbackPause = 2 * time.Second
	DefaultQuestionCount = 10
)

// ErrAlreadyLoaded is returned by Load once questions are being or have been played.
var ErrAlreadyLoaded = errors.New("session already loaded")

// QuestionSource supplies a pre-randomized batch of questions.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, count int) ([]domain.Question, error)
}

// AttemptSink receives attempt records. Implementations must not block.
type AttemptSink interface {
	RecordAttempt(rec domain.AttemptRecord)
}

// State of a session.
type State int

const (
	StateLoading State = iota
	StateInProgress
	StateAwaitingNext
	StateCompleted
	StateErrored
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateInProgress:
		return "in_progress"
	case StateAwaitingNext:
		return "awaiting_next"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// EventType names what happened in a session.
type EventType string

const (
	EventQuestion  EventType = "question"
	EventFeedback  EventType = "feedback"
	EventCompleted EventType = "completed"
	EventCancelled EventType = "cancelled"
	EventError     EventType = "error"
)

// Feedback is shown between questions.
type Feedback struct {
	Attempt       domain.QuestionAttempt `json:"attempt"`
	CorrectIndex  int                    `json:"correctIndex"`
	Explanation   string                 `json:"explanation,omitempty"`
	Remark        string                 `json:"remark,omitempty"`
	Distribution  []int                  `json:"distribution,omitempty"`
	TimedOut      bool                   `json:"timedOut"`
	Awarded       int                    `json:"awarded"`
	Score         int                    `json:"score"`
	CurrentStreak int                    `json:"currentStreak"`
	BestStreak    int                    `json:"bestStreak"`
	Last          bool                   `json:"last"`
}

// Event is emitted on every state transition.
type Event struct {
	Type      EventType              `json:"type"`
	SessionID string                 `json:"sessionId"`
	Index     int                    `json:"index"`
	Total     int                    `json:"total"`
	Question  *domain.PublicQuestion `json:"question,omitempty"`
	Deadline  *time.Time             `json:"deadline,omitempty"`
	StartedAt *time.Time             `json:"startedAt,omitempty"`
	Feedback  *Feedback              `json:"feedback,omitempty"`
	Session   *domain.QuizSession    `json:"session,omitempty"`
	Err       error                  `json:"-"`
}

// Options configures one Engine.
type Options struct {
	SessionID     string
	UserID        string
	Source        QuestionSource
	Count         int
	QuestionTime  time.Duration
	FeedbackPause time.Duration
	Clock         Clock
	Attempts      AttemptSink
	// OnEvent is called in transition order. It must not block or call back
	// into the engine synchronously.
	OnEvent func(Event)
	// OnComplete receives the finished session exactly once.
	OnComplete func(domain.QuizSession)
	Logger     *zap.Logger
}

// Engine runs one timed quiz from a fixed question list to completion.
type Engine struct {
	id            string
	userID        string
	source        QuestionSource
	count         int
	questionTime  time.Duration
	feedbackPause time.Duration
	clock         Clock
	attempts      AttemptSink
	onEvent       func(Event)
	onComplete    func(domain.QuizSession)
	log           *zap.Logger

	// emitMu keeps event delivery in transition order.
	emitMu sync.Mutex

	mu          sync.Mutex
	state       State
	loading     bool
	questions   []domain.Question
	current     int
	presentedAt time.Time
	session     domain.QuizSession
	timer       Timer
	gen         uint64
}

// batch collects the side effects of one transition; they run after the
// state lock is released.
type batch struct {
	events    []Event
	record    *domain.AttemptRecord
	completed *domain.QuizSession
}

func New(opts Options) *Engine {
	e := &Engine{
		id:            opts.SessionID,
		userID:        opts.UserID,
		source:        opts.Source,
		count:         opts.Count,
		questionTime:  opts.QuestionTime,
		feedbackPause: opts.FeedbackPause,
		clock:         opts.Clock,
		attempts:      opts.Attempts,
		onEvent:       opts.OnEvent,
		onComplete:    opts.OnComplete,
		log:           logging.OrNop(opts.Logger),
		state:         StateLoading,
	}
	if e.count <= 0 {
		e.count = DefaultQuestionCount
	}
	if e.questionTime <= 0 {
		e.questionTime = DefaultQuestionTime
	}
	if e.feedbackPause <= 0 {
		e.feedbackPause = DefaultFeedbackPause
	}
	if e.clock == nil {
		e.clock = RealClock()
	}
	return e
}

func (e *Engine) SessionID() string { return e.id }

func (e *Engine) UserID() string { return e.userID }

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns a copy of the session so far.
func (e *Engine) Snapshot() domain.QuizSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// Load fetches the question list and presents the first question. On failure
// the engine is Errored and Load may be called again.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	switch {
	case e.state == StateCancelled || e.state == StateCompleted:
		e.mu.Unlock()
		return domain.ErrSessionClosed
	case e.loading || (e.state != StateLoading && e.state != StateErrored):
		e.mu.Unlock()
		return ErrAlreadyLoaded
	}
	e.loading = true
	e.state = StateLoading
	e.mu.Unlock()

	fetched, err := e.source.FetchQuestions(ctx, e.count)

	e.mu.Lock()
	e.loading = false
	if e.state == StateCancelled {
		e.mu.Unlock()
		return domain.ErrSessionClosed
	}

	var b batch
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrQuestionsUnavailable, err)
		e.log.Warn("question fetch failed", zap.String("op", "fetch_questions"), zap.String("session", e.id), zap.Error(err))
		e.state = StateErrored
		b.events = append(b.events, Event{Type: EventError, SessionID: e.id, Err: err})
		e.finish(b)
		return err
	}

	questions := make([]domain.Question, 0, len(fetched))
	for _, q := range fetched {
		if q.Valid() {
			questions = append(questions, q)
		}
	}
	if len(questions) > e.count {
		questions = questions[:e.count]
	}
	if len(questions) == 0 {
		e.state = StateErrored
		b.events = append(b.events, Event{Type: EventError, SessionID: e.id, Err: domain.ErrNoQuestions})
		e.finish(b)
		return domain.ErrNoQuestions
	}

	e.questions = questions
	e.session = domain.QuizSession{
		ID:             e.id,
		UserID:         e.userID,
		TotalQuestions: len(questions),
		Attempts:       make([]domain.QuestionAttempt, 0, len(questions)),
		StartedAt:      e.clock.Now(),
	}
	e.presentLocked(0, &b)
	e.finish(b)
	return nil
}

// Answer resolves the current question with the selected option.
func (e *Engine) Answer(questionIndex, option int) error {
	e.mu.Lock()
	switch e.state {
	case StateInProgress:
	case StateCancelled, StateCompleted:
		e.mu.Unlock()
		return domain.ErrSessionClosed
	default:
		e.mu.Unlock()
		return domain.ErrNotAwaitingAnswer
	}
	if questionIndex != e.current {
		e.mu.Unlock()
		return domain.ErrStaleQuestion
	}
	if option < 0 || option >= len(e.questions[e.current].Options) {
		e.mu.Unlock()
		return domain.ErrInvalidOption
	}

	var b batch
	e.resolveLocked(option, false, &b)
	e.finish(b)
	return nil
}

// Close tears the session down: pending timers are cancelled and no further
// transitions happen. Closing a finished session is a no-op.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.state == StateCompleted || e.state == StateCancelled {
		e.mu.Unlock()
		return
	}
	e.state = StateCancelled
	e.stopTimerLocked()
	b := batch{events: []Event{{Type: EventCancelled, SessionID: e.id, Index: e.current, Total: len(e.questions)}}}
	e.finish(b)
}

func (e *Engine) presentLocked(i int, b *batch) {
	e.state = StateInProgress
	e.current = i
	e.presentedAt = e.clock.Now()
	deadline := e.presentedAt.Add(e.questionTime)
	e.scheduleLocked(e.questionTime, e.expire)

	q := e.questions[i].Public()
	started := e.session.StartedAt
	b.events = append(b.events, Event{
		Type:      EventQuestion,
		SessionID: e.id,
		Index:     i,
		Total:     len(e.questions),
		Question:  &q,
		Deadline:  &deadline,
		StartedAt: &started,
	})
}

// scheduleLocked replaces the pending timer. The callback receives the
// generation it was scheduled under so it can detect that the state moved on.
func (e *Engine) scheduleLocked(d time.Duration, fn func(token uint64)) {
	e.stopTimerLocked()
	token := e.gen
	e.timer = e.clock.AfterFunc(d, func() { fn(token) })
}

// stopTimerLocked cancels the pending timer and invalidates its token.
func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

func (e *Engine) expire(token uint64) {
	e.mu.Lock()
	if e.state != StateInProgress || e.gen != token {
		e.mu.Unlock()
		return
	}
	var b batch
	e.resolveLocked(domain.NoAnswer, true, &b)
	e.finish(b)
}

func (e *Engine) advance(token uint64) {
	e.mu.Lock()
	if e.state != StateAwaitingNext || e.gen != token {
		e.mu.Unlock()
		return
	}
	var b batch
	e.presentLocked(e.current+1, &b)
	e.finish(b)
}

// resolveLocked is the single answer-resolution path for selections and timeouts.
func (e *Engine) resolveLocked(selected int, timedOut bool, b *batch) {
	e.stopTimerLocked()

	q := e.questions[e.current]
	now := e.clock.Now()
	elapsed := now.Sub(e.presentedAt)
	if elapsed > e.questionTime || timedOut {
		elapsed = e.questionTime
	}

	attempt := domain.QuestionAttempt{
		QuestionID:    q.ID,
		Category:      q.Category,
		Difficulty:    q.Difficulty,
		SelectedIndex: selected,
		IsCorrect:     selected == q.CorrectIndex,
		ResponseMs:    elapsed.Milliseconds(),
		AnsweredAt:    now,
	}
	s := &e.session
	s.Attempts = append(s.Attempts, attempt)

	awarded := 0
	if attempt.IsCorrect {
		awarded = q.Points()
		s.Score += awarded
		s.CorrectCount++
		s.CurrentStreak++
		if s.CurrentStreak > s.BestStreak {
			s.BestStreak = s.CurrentStreak
		}
	} else {
		s.CurrentStreak = 0
	}

	if e.userID != "" && e.attempts != nil {
		b.record = &domain.AttemptRecord{SessionID: e.id, UserID: e.userID, QuestionAttempt: attempt}
	}

	last := e.current == len(e.questions)-1
	b.events = append(b.events, Event{
		Type:      EventFeedback,
		SessionID: e.id,
		Index:     e.current,
		Total:     len(e.questions),
		Feedback: &Feedback{
			Attempt:       attempt,
			CorrectIndex:  q.CorrectIndex,
			Explanation:   q.Explanation,
			Remark:        q.Remark,
			Distribution:  q.Distribution(),
			TimedOut:      timedOut,
			Awarded:       awarded,
			Score:         s.Score,
			CurrentStreak: s.CurrentStreak,
			BestStreak:    s.BestStreak,
			Last:          last,
		},
	})

	if last {
		e.completeLocked(now, b)
		return
	}
	e.state = StateAwaitingNext
	e.scheduleLocked(e.feedbackPause, e.advance)
}

func (e *Engine) completeLocked(now time.Time, b *batch) {
	e.state = StateCompleted
	s := &e.session
	ended := now
	s.EndedAt = &ended
	s.DurationMs = now.Sub(s.StartedAt).Milliseconds()
	samples := make([]int64, len(s.Attempts))
	for i, a := range s.Attempts {
		samples[i] = a.ResponseMs
	}
	s.AverageResponseMs = domain.AverageMs(samples)
	s.Completed = true

	final := s.Clone()
	b.completed = &final
	b.events = append(b.events, Event{
		Type:      EventCompleted,
		SessionID: e.id,
		Index:     e.current,
		Total:     len(e.questions),
		Session:   &final,
	})
}

// finish releases the state lock and runs the batch's side effects in order.
func (e *Engine) finish(b batch) {
	e.emitMu.Lock()
	e.mu.Unlock()
	defer e.emitMu.Unlock()

	if b.record != nil {
		e.attempts.RecordAttempt(*b.record)
	}
	if e.onEvent != nil {
		for _, ev := range b.events {
			e.onEvent(ev)
		}
	}
	if b.completed != nil && e.onComplete != nil {
		e.onComplete(*b.completed)
	}
}
