package app

import (
	"context"
	"time"

	"trivia-service/internal/domain"
	"trivia-service/internal/engine"
	"trivia-service/internal/logging"
	"trivia-service/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionRepository abstracts where live quiz sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	Put(ctx context.Context, session *engine.Engine) error
	Get(ctx context.Context, sessionID string) (*engine.Engine, bool)
	Delete(ctx context.Context, sessionID string)
}

// Recorder takes progress records off the play path.
type Recorder interface {
	engine.AttemptSink
	StartSession(rec domain.SessionRecord)
	CompleteSession(session domain.QuizSession)
}

type QuizOptions struct {
	QuestionCount int
	QuestionTime  time.Duration
	FeedbackPause time.Duration
	Clock         engine.Clock
	Logger        *zap.Logger
}

// QuizService contains the quiz play use cases.
type QuizService struct {
	sessions SessionRepository
	source   engine.QuestionSource
	recorder Recorder
	opts     QuizOptions
	log      *zap.Logger
}

func NewQuizService(sessions SessionRepository, source engine.QuestionSource, recorder Recorder, opts QuizOptions) *QuizService {
	if opts.Clock == nil {
		opts.Clock = engine.RealClock()
	}
	return &QuizService{
		sessions: sessions,
		source:   source,
		recorder: recorder,
		opts:     opts,
		log:      logging.OrNop(opts.Logger),
	}
}

// Start creates a session for userID (empty for anonymous play) and loads its
// questions. The session stays registered when loading fails so it can be
// retried; the returned engine is non-nil whenever it was registered.
func (s *QuizService) Start(ctx context.Context, userID string, onEvent func(engine.Event)) (*engine.Engine, error) {
	id := uuid.NewString()
	log := s.log.With(zap.String("session", id))

	e := engine.New(engine.Options{
		SessionID:     id,
		UserID:        userID,
		Source:        s.source,
		Count:         s.opts.QuestionCount,
		QuestionTime:  s.opts.QuestionTime,
		FeedbackPause: s.opts.FeedbackPause,
		Clock:         s.opts.Clock,
		Attempts:      s.recorder,
		OnEvent:       s.eventHook(id, userID, onEvent),
		OnComplete:    s.complete,
		Logger:        log,
	})
	if err := s.sessions.Put(ctx, e); err != nil {
		return nil, err
	}
	metrics.ActiveSessions.Inc()

	if err := e.Load(ctx); err != nil {
		return e, err
	}
	log.Debug("session started", zap.String("user", userID))
	return e, nil
}

// eventHook records the session start before the first question reaches the
// player, so nothing the player does can be written ahead of it.
func (s *QuizService) eventHook(id, userID string, forward func(engine.Event)) func(engine.Event) {
	return func(ev engine.Event) {
		if ev.Type == engine.EventQuestion && ev.Index == 0 && userID != "" && s.recorder != nil {
			started := s.opts.Clock.Now()
			if ev.StartedAt != nil {
				started = *ev.StartedAt
			}
			s.recorder.StartSession(domain.SessionRecord{
				ID:             id,
				UserID:         userID,
				StartedAt:      started,
				TotalQuestions: ev.Total,
			})
		}
		if forward != nil {
			forward(ev)
		}
	}
}

func (s *QuizService) complete(session domain.QuizSession) {
	metrics.SessionsCompleted.Inc()
	if s.recorder != nil {
		s.recorder.CompleteSession(session)
	}
}

// Retry reloads questions for a session whose load failed.
func (s *QuizService) Retry(ctx context.Context, sessionID string) error {
	e, ok := s.sessions.Get(ctx, sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return e.Load(ctx)
}

// Answer submits a selection for the current question.
func (s *QuizService) Answer(ctx context.Context, sessionID string, questionIndex, option int) error {
	e, ok := s.sessions.Get(ctx, sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return e.Answer(questionIndex, option)
}

// Snapshot returns the session's progress so far.
func (s *QuizService) Snapshot(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	e, ok := s.sessions.Get(ctx, sessionID)
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return e.Snapshot(), nil
}

// Cancel tears the session down and unregisters it.
func (s *QuizService) Cancel(ctx context.Context, sessionID string) {
	e, ok := s.sessions.Get(ctx, sessionID)
	if !ok {
		return
	}
	e.Close()
	s.sessions.Delete(ctx, sessionID)
	metrics.ActiveSessions.Dec()
}
