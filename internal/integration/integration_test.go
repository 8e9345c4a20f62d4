package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
	"trivia-service/internal/engine"
	"trivia-service/internal/infra/memory"
	"trivia-service/internal/infra/postgres"
	pgmigrations "trivia-service/internal/infra/postgres/migrations"
	infraredis "trivia-service/internal/infra/redis"
	"trivia-service/internal/recorder"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestCompletedSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	bank := memory.SampleQuestions()[:3]
	seedQuestions(t, ctx, pgURL, bank)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	rec := postgres.NewRecorder(pool)
	board := infraredis.NewLeaderboard(redisClient, "it")
	stats := app.NewStatsService(postgres.NewRoleSource(pool), postgres.NewStatsSource(pool), board, app.StatsStores{
		Roles:       infraredis.NewCacheStore[domain.Role](redisClient, "it:cache:roles"),
		Stats:       infraredis.NewCacheStore[domain.UserStats](redisClient, "it:cache:stats"),
		Leaderboard: infraredis.NewCacheStore[[]domain.LeaderboardEntry](redisClient, "it:cache:leaderboard"),
	}, app.StatsOptions{})
	queue := recorder.New(recorder.Deps{
		Attempts:    rec,
		Sessions:    rec,
		Leaderboard: board,
		Invalidator: stats,
	}, recorder.Options{InitialBackoff: 10 * time.Millisecond})

	clock := engine.NewManualClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	quiz := app.NewQuizService(infraredis.NewSessionStore(redisClient, "it", time.Minute), postgres.NewQuestionSource(pool), queue, app.QuizOptions{
		QuestionCount: 3,
		Clock:         clock,
	})

	before, err := stats.Stats(ctx, "u1")
	if err != nil || before.TotalQuizzes != 0 {
		t.Fatalf("expected empty stats before playing, got %+v %v", before, err)
	}

	var (
		mu        sync.Mutex
		questions []*domain.PublicQuestion
	)
	session, err := quiz.Start(ctx, "u1", func(ev engine.Event) {
		if ev.Type == engine.EventQuestion {
			mu.Lock()
			questions = append(questions, ev.Question)
			mu.Unlock()
		}
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	key := make(map[string]int)
	for _, q := range bank {
		key[q.ID] = q.CorrectIndex
	}
	for i := 0; i < 3; i++ {
		mu.Lock()
		q := questions[i]
		mu.Unlock()
		if err := quiz.Answer(ctx, session.SessionID(), i, key[q.ID]); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		clock.Advance(engine.DefaultFeedbackPause)
	}
	snap, err := quiz.Snapshot(ctx, session.SessionID())
	if err != nil || !snap.Completed {
		t.Fatalf("expected completed session, got %+v %v", snap, err)
	}
	if err := queue.Close(ctx); err != nil {
		t.Fatalf("drain recorder: %v", err)
	}

	after, err := stats.Stats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if after.TotalQuizzes != 1 || after.TotalQuestions != 3 || after.CorrectAnswers != 3 || after.TotalPoints != snap.Score {
		t.Fatalf("expected stats to reflect the finished session, got %+v", after)
	}

	top, err := stats.Leaderboard(ctx, 10)
	if err != nil || len(top) != 1 || top[0].UserID != "u1" || top[0].Points != snap.Score || top[0].BestStreak != 3 {
		t.Fatalf("unexpected leaderboard %+v %v", top, err)
	}

	again, err := postgres.NewQuestionSource(pool).FetchQuestions(ctx, 3)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for _, q := range again {
		if q.Stats == nil || q.Stats.TimesAnswered != 1 || q.Stats.OptionCounts[q.CorrectIndex] != 1 {
			t.Fatalf("expected answer counters for %s, got %+v", q.ID, q.Stats)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuestions(t *testing.T, ctx context.Context, dsn string, questions []domain.Question) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if n, err := postgres.SeedQuestions(ctx, db, questions); err != nil || n != len(questions) {
		t.Fatalf("seed: %d %v", n, err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
