package cli

import (
	"context"
	"testing"

	"trivia-service/internal/app"
	"trivia-service/internal/config"
	"trivia-service/internal/domain"
	"trivia-service/internal/infra/memory"
	"trivia-service/internal/infra/opentdb"
	infraredis "trivia-service/internal/infra/redis"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
)

func TestQuestionSourceSelection(t *testing.T) {
	cfg := config.Default()
	if _, ok := mustSource(t, cfg).(*memory.QuestionBank); !ok {
		t.Fatalf("expected built-in bank by default")
	}
	cfg.Quiz.Source = "opentdb"
	if _, ok := mustSource(t, cfg).(*opentdb.Client); !ok {
		t.Fatalf("expected opentdb client")
	}
	cfg.Quiz.Source = "postgres"
	if _, err := questionSource(cfg, nil, nil); err == nil {
		t.Fatalf("expected error for postgres source without a pool")
	}
	cfg.Quiz.Source = "carrier-pigeon"
	if _, err := questionSource(cfg, nil, nil); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}

func mustSource(t *testing.T, cfg config.Config) any {
	t.Helper()
	src, err := questionSource(cfg, nil, nil)
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	return src
}

func TestConnectBackendInMemory(t *testing.T) {
	b, err := connectBackend(context.Background(), config.Default(), zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.Close()
	if b.roles != b.memStore || b.cacheStores.Stats != nil {
		t.Fatalf("expected memory stores without redis or postgres")
	}
	if deps := b.recorderDeps(nil); deps.Publisher != nil {
		t.Fatalf("expected no publisher without amqp")
	}
}

func TestConnectBackendWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.Addr = mr.Addr()
	cfg.Cache.Backend = "redis"

	ctx := context.Background()
	b, err := connectBackend(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.Close()
	if _, ok := b.leaderboard.(*infraredis.Leaderboard); !ok {
		t.Fatalf("expected redis leaderboard")
	}
	if _, ok := b.liveStore.(*infraredis.SessionStore); !ok {
		t.Fatalf("expected redis session markers")
	}

	stats := app.NewStatsService(b.roles, b.stats, b.leaderboard, b.cacheStores, statsOptions(cfg, zap.NewNop()))
	if _, err := stats.Stats(ctx, "u1"); err != nil {
		t.Fatalf("stats: %v", err)
	}
	const statsKey = "trivia:cache:stats:user:u1:stats"
	if !mr.Exists(statsKey) {
		t.Fatalf("expected cached stats written to redis, have %v", mr.Keys())
	}
	if err := stats.InvalidateUser(ctx, "u1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists(statsKey) {
		t.Fatalf("expected cached stats removed")
	}
	if role, _ := stats.Role(ctx, "u1"); role != domain.RoleUser {
		t.Fatalf("expected default role, got %q", role)
	}
}
