package redis

import (
	"context"

	"trivia-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Leaderboard keeps running totals in two sorted sets: accumulated points and
// best streak per user. A set of applied session ids makes each result count
// once, however often it is retried.
type Leaderboard struct {
	client     *redis.Client
	pointsKey  string
	streakKey  string
	appliedKey string
}

func NewLeaderboard(client *redis.Client, namespace string) *Leaderboard {
	return &Leaderboard{
		client:     client,
		pointsKey:  namespace + ":leaderboard:points",
		streakKey:  namespace + ":leaderboard:streak",
		appliedKey: namespace + ":leaderboard:applied",
	}
}

// KEYS: points, streak, applied. ARGV: session id, score, user id, best streak.
var addResultScript = redis.NewScript(`
if ARGV[1] ~= "" and redis.call("SADD", KEYS[3], ARGV[1]) == 0 then
	return 0
end
redis.call("ZINCRBY", KEYS[1], ARGV[2], ARGV[3])
redis.call("ZADD", KEYS[2], "GT", ARGV[4], ARGV[3])
return 1
`)

// AddResult adds the session score to the user's total and raises the best
// streak if the session beat it. A session already applied is skipped.
func (l *Leaderboard) AddResult(ctx context.Context, summary domain.SessionSummary) error {
	if summary.UserID == "" {
		return nil
	}
	keys := []string{l.pointsKey, l.streakKey, l.appliedKey}
	return addResultScript.Run(ctx, l.client, keys,
		summary.SessionID, summary.Score, summary.UserID, summary.BestStreak).Err()
}

func (l *Leaderboard) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	ranked, err := l.client.ZRevRangeWithScores(ctx, l.pointsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return []domain.LeaderboardEntry{}, nil
	}

	members := make([]string, len(ranked))
	for i, z := range ranked {
		members[i] = z.Member.(string)
	}
	streaks, err := l.client.ZMScore(ctx, l.streakKey, members...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]domain.LeaderboardEntry, len(ranked))
	for i, z := range ranked {
		entries[i] = domain.LeaderboardEntry{
			UserID: members[i],
			Points: int(z.Score),
		}
		if i < len(streaks) {
			entries[i].BestStreak = int(streaks[i])
		}
	}
	return domain.RankEntries(entries, limit), nil
}
