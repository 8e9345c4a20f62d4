package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/config"
	"trivia-service/internal/domain"
	"trivia-service/internal/engine"
	"trivia-service/internal/infra/amqp"
	"trivia-service/internal/infra/memory"
	"trivia-service/internal/infra/opentdb"
	"trivia-service/internal/infra/postgres"
	infraredis "trivia-service/internal/infra/redis"
	"trivia-service/internal/recorder"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// backend holds the adapters selected by configuration.
type backend struct {
	pool      *pgxpool.Pool
	redis     *redis.Client
	publisher *amqp.Publisher
	memStore  *memory.Store

	source      engine.QuestionSource
	attempts    recorder.AttemptWriter
	sessions    recorder.SessionWriter
	roles       app.RoleSource
	stats       app.StatsSource
	leaderboard app.Leaderboard
	cacheStores app.StatsStores
	liveStore   app.SessionRepository
}

func connectBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{memStore: memory.NewStore()}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.pool = pool
	}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}
	if cfg.Events.AMQPURL != "" {
		pub, err := amqp.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			// Events are optional; play and stats work without them.
			log.Warn("event publisher disabled", zap.String("op", "amqp.dial"), zap.Error(err))
		} else {
			b.publisher = pub
		}
	}

	source, err := questionSource(cfg, b.pool, b.memStore)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.source = source

	if b.pool != nil {
		rec := postgres.NewRecorder(b.pool)
		b.attempts, b.sessions = rec, rec
		b.roles = postgres.NewRoleSource(b.pool)
		b.stats = postgres.NewStatsSource(b.pool)
		b.leaderboard = postgres.NewLeaderboard(b.pool)
	} else {
		b.attempts, b.sessions = b.memStore, b.memStore
		b.roles, b.stats, b.leaderboard = b.memStore, b.memStore, b.memStore
	}

	b.liveStore = memory.NewSessionStore()
	if b.redis != nil {
		ns := cfg.Redis.Namespace
		b.leaderboard = infraredis.NewLeaderboard(b.redis, ns)
		b.liveStore = infraredis.NewSessionStore(b.redis, ns, config.TTLDuration(cfg.Redis.TTL, 30*time.Minute))
		if cfg.Cache.Backend == "redis" {
			b.cacheStores = app.StatsStores{
				Roles:       infraredis.NewCacheStore[domain.Role](b.redis, ns+":cache:roles"),
				Stats:       infraredis.NewCacheStore[domain.UserStats](b.redis, ns+":cache:stats"),
				Leaderboard: infraredis.NewCacheStore[[]domain.LeaderboardEntry](b.redis, ns+":cache:leaderboard"),
			}
		}
	}
	if cfg.Cache.Backend == "redis" && b.redis == nil {
		log.Warn("cache backend redis requested without redis.addr; using memory")
	}
	return b, nil
}

// questionSource picks the question provider. counters feeds per-option
// answer counts into the built-in bank.
func questionSource(cfg config.Config, pool *pgxpool.Pool, counters memory.AnswerCounter) (engine.QuestionSource, error) {
	switch cfg.Quiz.Source {
	case "", "memory":
		return memory.NewQuestionBank(memory.SampleQuestions(), counters), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("quiz source postgres needs postgres.url")
		}
		return postgres.NewQuestionSource(pool), nil
	case "opentdb":
		return opentdb.NewClient(&http.Client{Timeout: 10 * time.Second}, cfg.Quiz.OpenTDBURL), nil
	default:
		return nil, fmt.Errorf("unknown quiz source %q", cfg.Quiz.Source)
	}
}

func (b *backend) recorderDeps(invalidator recorder.Invalidator) recorder.Deps {
	deps := recorder.Deps{
		Attempts:    b.attempts,
		Sessions:    b.sessions,
		Leaderboard: b.leaderboard,
		Invalidator: invalidator,
	}
	if b.publisher != nil {
		deps.Publisher = b.publisher
	}
	return deps
}

func (b *backend) Close() {
	if b.publisher != nil {
		b.publisher.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

func recorderOptions(cfg config.Config, log *zap.Logger) recorder.Options {
	rc := cfg.Recorder
	return recorder.Options{
		Shards:         rc.Shards,
		QueueSize:      rc.QueueSize,
		MaxAttempts:    rc.MaxAttempts,
		InitialBackoff: config.TTLDuration(rc.InitialBackoff, 200*time.Millisecond),
		MaxBackoff:     config.TTLDuration(rc.MaxBackoff, 5*time.Second),
		JobTimeout:     config.TTLDuration(rc.JobTimeout, 5*time.Second),
		Logger:         log,
	}
}

func quizOptions(cfg config.Config, log *zap.Logger) app.QuizOptions {
	return app.QuizOptions{
		QuestionCount: cfg.Quiz.QuestionCount,
		QuestionTime:  config.TTLDuration(cfg.Quiz.QuestionTime, engine.DefaultQuestionTime),
		FeedbackPause: config.TTLDuration(cfg.Quiz.FeedbackPause, engine.DefaultFeedbackPause),
		Logger:        log,
	}
}

func statsOptions(cfg config.Config, log *zap.Logger) app.StatsOptions {
	return app.StatsOptions{
		RoleTTL:        config.TTLDuration(cfg.Cache.RoleTTL, 5*time.Minute),
		StatsTTL:       config.TTLDuration(cfg.Cache.StatsTTL, 5*time.Minute),
		LeaderboardTTL: config.TTLDuration(cfg.Cache.LeaderboardTTL, time.Minute),
		MaxEntries:     cfg.Cache.MaxEntries,
		Logger:         log,
	}
}
