// Package recorder persists quiz progress in the background. Callers hand off
// records and return immediately; delivery is retried with backoff and
// failures end up in the log, never in the caller's control flow.
package recorder

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"trivia-service/internal/domain"
	"trivia-service/internal/logging"
	"trivia-service/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	OpStartSession    = "start_session"
	OpRecordAttempt   = "record_attempt"
	OpCompleteSession = "complete_session"
	OpLeaderboard     = "update_leaderboard"
	OpPublish         = "publish_completed"
)

// ErrClosed is reported for records handed in after Close.
var ErrClosed = errors.New("recorder closed")

type AttemptWriter interface {
	RecordAttempt(ctx context.Context, rec domain.AttemptRecord) error
}

type SessionWriter interface {
	StartSession(ctx context.Context, rec domain.SessionRecord) error
	CompleteSession(ctx context.Context, summary domain.SessionSummary) (domain.SessionRecord, error)
}

// LeaderboardWriter folds a finished session into the ranking.
type LeaderboardWriter interface {
	AddResult(ctx context.Context, summary domain.SessionSummary) error
}

// Publisher announces finished sessions to other services.
type Publisher interface {
	PublishCompleted(ctx context.Context, summary domain.SessionSummary) error
}

// Invalidator drops cached reads made stale by a successful write.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
	InvalidateLeaderboard(ctx context.Context) error
}

// Deps are the sinks a Queue writes to. Only Attempts and Sessions are required.
type Deps struct {
	Attempts    AttemptWriter
	Sessions    SessionWriter
	Leaderboard LeaderboardWriter
	Publisher   Publisher
	Invalidator Invalidator
}

type Options struct {
	Shards         int
	QueueSize      int
	MaxAttempts    uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JobTimeout     time.Duration
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Shards <= 0 {
		o.Shards = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 5
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 200 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Second
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 5 * time.Second
	}
	return o
}

type job struct {
	op     string
	key    string
	userID string
	run    func(ctx context.Context) error
	// after runs once run has succeeded.
	after func(ctx context.Context)
}

// Queue fans records out to sharded workers. All records of one session land
// on the same shard, so they are written in the order they were handed in.
type Queue struct {
	deps Deps
	opts Options
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	shards []chan job
	wg     sync.WaitGroup
}

// New starts the workers.
func New(deps Deps, opts Options) *Queue {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		deps:   deps,
		opts:   opts,
		log:    logging.OrNop(opts.Logger).With(zap.String("component", "recorder")),
		ctx:    ctx,
		cancel: cancel,
		shards: make([]chan job, opts.Shards),
	}
	for i := range q.shards {
		ch := make(chan job, opts.QueueSize)
		q.shards[i] = ch
		q.wg.Add(1)
		go q.work(ch)
	}
	return q
}

// StartSession records a newly started session.
func (q *Queue) StartSession(rec domain.SessionRecord) {
	if rec.UserID == "" {
		return
	}
	q.enqueue(job{
		op:     OpStartSession,
		key:    rec.ID,
		userID: rec.UserID,
		run:    func(ctx context.Context) error { return q.deps.Sessions.StartSession(ctx, rec) },
	})
}

// RecordAttempt records one answered or expired question.
func (q *Queue) RecordAttempt(rec domain.AttemptRecord) {
	if rec.UserID == "" {
		return
	}
	q.enqueue(job{
		op:     OpRecordAttempt,
		key:    rec.SessionID,
		userID: rec.UserID,
		run:    func(ctx context.Context) error { return q.deps.Attempts.RecordAttempt(ctx, rec) },
		after: func(ctx context.Context) {
			q.invalidateUser(ctx, rec.UserID)
		},
	})
}

// CompleteSession records the final totals, then updates the leaderboard and
// announces the result.
func (q *Queue) CompleteSession(session domain.QuizSession) {
	if session.UserID == "" {
		return
	}
	summary := session.Summary()
	q.enqueue(job{
		op:     OpCompleteSession,
		key:    summary.SessionID,
		userID: summary.UserID,
		run: func(ctx context.Context) error {
			_, err := q.deps.Sessions.CompleteSession(ctx, summary)
			if errors.Is(err, domain.ErrSessionNotFound) {
				return backoff.Permanent(err)
			}
			return err
		},
		after: func(ctx context.Context) {
			if q.deps.Leaderboard != nil {
				err := q.retry(ctx, OpLeaderboard, summary.SessionID, func(ctx context.Context) error {
					return q.deps.Leaderboard.AddResult(ctx, summary)
				})
				if err != nil {
					q.log.Warn("leaderboard update failed", zap.String("op", OpLeaderboard), zap.String("key", summary.SessionID), zap.Error(err))
				}
			}
			q.invalidateUser(ctx, summary.UserID)
			if q.deps.Invalidator != nil {
				if err := q.deps.Invalidator.InvalidateLeaderboard(ctx); err != nil {
					q.log.Warn("leaderboard invalidation failed", zap.Error(err))
				}
			}
			if q.deps.Publisher != nil {
				err := q.retry(ctx, OpPublish, summary.SessionID, func(ctx context.Context) error {
					return q.deps.Publisher.PublishCompleted(ctx, summary)
				})
				if err != nil {
					q.log.Warn("publish failed", zap.String("op", OpPublish), zap.String("key", summary.SessionID), zap.Error(err))
				}
			}
		},
	})
}

func (q *Queue) invalidateUser(ctx context.Context, userID string) {
	if q.deps.Invalidator == nil {
		return
	}
	if err := q.deps.Invalidator.InvalidateUser(ctx, userID); err != nil {
		q.log.Warn("user invalidation failed", zap.String("key", userID), zap.Error(err))
	}
}

func (q *Queue) enqueue(j job) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.RecorderJobs.WithLabelValues(j.op, "dropped").Inc()
		q.log.Warn("record dropped", zap.String("op", j.op), zap.String("key", j.key), zap.Error(ErrClosed))
		return
	}
	select {
	case q.shards[shardFor(j.key, len(q.shards))] <- j:
	default:
		metrics.RecorderJobs.WithLabelValues(j.op, "dropped").Inc()
		q.log.Warn("record dropped, queue full", zap.String("op", j.op), zap.String("key", j.key))
	}
}

func shardFor(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func (q *Queue) work(ch <-chan job) {
	defer q.wg.Done()
	for j := range ch {
		q.process(j)
	}
}

func (q *Queue) process(j job) {
	err := q.retry(q.ctx, j.op, j.key, j.run)
	if err != nil {
		metrics.RecorderJobs.WithLabelValues(j.op, "failed").Inc()
		q.log.Error("record failed", zap.String("op", j.op), zap.String("key", j.key), zap.String("user", j.userID), zap.Error(err))
		return
	}
	metrics.RecorderJobs.WithLabelValues(j.op, "ok").Inc()
	if j.after != nil {
		ctx, cancel := context.WithTimeout(q.ctx, q.opts.JobTimeout)
		defer cancel()
		j.after(ctx)
	}
}

// retry runs fn with exponential backoff, each attempt bounded by JobTimeout.
func (q *Queue) retry(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = q.opts.InitialBackoff
	eb.MaxInterval = q.opts.MaxBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, q.opts.MaxAttempts-1), ctx)

	attempt := func() error {
		actx, cancel := context.WithTimeout(ctx, q.opts.JobTimeout)
		defer cancel()
		return fn(actx)
	}
	notify := func(err error, wait time.Duration) {
		q.log.Debug("retrying", zap.String("op", op), zap.String("key", key), zap.Duration("wait", wait), zap.Error(err))
	}
	return backoff.RetryNotify(attempt, policy, notify)
}

// Close stops accepting records and waits for queued ones to be written. If
// ctx expires first, in-flight retries are abandoned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for _, ch := range q.shards {
		close(ch)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
