package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trivia-service/internal/cache"
	"trivia-service/internal/domain"
	"trivia-service/internal/logging"

	"go.uber.org/zap"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// RoleSource reads and writes user roles in the backing store.
type RoleSource interface {
	// GetRole reports found=false when the user has no role row yet.
	GetRole(ctx context.Context, userID string) (role domain.Role, found bool, err error)
	CreateDefaultRole(ctx context.Context, userID string) error
	SetRole(ctx context.Context, userID string, role domain.Role) error
}

// StatsSource computes the aggregate statistics for a user.
type StatsSource interface {
	UserStats(ctx context.Context, userID string) (domain.UserStats, error)
}

// Leaderboard ranks users by accumulated points.
type Leaderboard interface {
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	AddResult(ctx context.Context, summary domain.SessionSummary) error
}

// StatsStores are the backing stores of the read caches. Nil stores fall back
// to bounded in-memory ones.
type StatsStores struct {
	Roles       cache.Store[domain.Role]
	Stats       cache.Store[domain.UserStats]
	Leaderboard cache.Store[[]domain.LeaderboardEntry]
}

type StatsOptions struct {
	RoleTTL        time.Duration
	StatsTTL       time.Duration
	LeaderboardTTL time.Duration
	MaxEntries     int
	Clock          func() time.Time
	Logger         *zap.Logger
}

// StatsService serves cached reads of roles, statistics and the leaderboard
// and keeps them coherent with writes.
type StatsService struct {
	roleSrc  RoleSource
	statsSrc StatsSource
	board    Leaderboard
	log      *zap.Logger

	client *cache.Client
	roles  *cache.Cache[domain.Role]
	stats  *cache.Cache[domain.UserStats]
	top    *cache.Cache[[]domain.LeaderboardEntry]
	feed   *leaderboardFeed
}

func NewStatsService(roles RoleSource, stats StatsSource, board Leaderboard, stores StatsStores, opts StatsOptions) *StatsService {
	log := logging.OrNop(opts.Logger)
	if opts.RoleTTL <= 0 {
		opts.RoleTTL = 5 * time.Minute
	}
	if opts.StatsTTL <= 0 {
		opts.StatsTTL = 5 * time.Minute
	}
	if opts.LeaderboardTTL <= 0 {
		opts.LeaderboardTTL = time.Minute
	}
	if stores.Roles == nil {
		stores.Roles = cache.NewMemoryStore[domain.Role](opts.MaxEntries)
	}
	if stores.Stats == nil {
		stores.Stats = cache.NewMemoryStore[domain.UserStats](opts.MaxEntries)
	}
	if stores.Leaderboard == nil {
		stores.Leaderboard = cache.NewMemoryStore[[]domain.LeaderboardEntry](opts.MaxEntries)
	}

	s := &StatsService{
		roleSrc:  roles,
		statsSrc: stats,
		board:    board,
		log:      log,
		client:   cache.NewClient(log),
		roles:    cache.New("roles", stores.Roles, cache.Options{TTL: opts.RoleTTL, Clock: opts.Clock, Logger: log}),
		stats:    cache.New("stats", stores.Stats, cache.Options{TTL: opts.StatsTTL, Clock: opts.Clock, Logger: log}),
		top:      cache.New("leaderboard", stores.Leaderboard, cache.Options{TTL: opts.LeaderboardTTL, Clock: opts.Clock, Logger: log}),
		feed:     newLeaderboardFeed(),
	}
	s.client.Register(s.roles, s.stats, s.top)
	return s
}

func roleKey(userID string) cache.Key  { return cache.NewKey("user", userID, "role") }
func statsKey(userID string) cache.Key { return cache.NewKey("user", userID, "stats") }
func userPrefix(userID string) cache.Key {
	return cache.NewKey("user", userID)
}
func leaderboardKey(limit int) cache.Key {
	return cache.NewKey("leaderboard", strconv.Itoa(limit))
}

// Role returns the user's role. Unknown users get a default role row. Callers
// always get a usable role; a non-nil error means it is the fallback.
func (s *StatsService) Role(ctx context.Context, userID string) (domain.Role, error) {
	if userID == "" {
		return domain.RoleUser, nil
	}
	role, err := s.roles.Get(ctx, roleKey(userID), func(ctx context.Context) (domain.Role, error) {
		role, found, err := s.roleSrc.GetRole(ctx, userID)
		if err != nil {
			return "", err
		}
		if found {
			return role, nil
		}
		if err := s.roleSrc.CreateDefaultRole(ctx, userID); err != nil {
			s.log.Warn("create default role failed", zap.String("op", "create_default_role"), zap.String("key", userID), zap.Error(err))
		}
		return domain.RoleUser, nil
	})
	if err != nil {
		s.log.Warn("role lookup failed", zap.String("op", "get_role"), zap.String("key", userID), zap.Error(err))
		return domain.RoleUser, fmt.Errorf("load role: %w", err)
	}
	return role, nil
}

// SetRole changes a user's role on behalf of actorID, who must be an admin.
func (s *StatsService) SetRole(ctx context.Context, actorID, userID string, role domain.Role) error {
	if userID == "" {
		return domain.ErrMissingUser
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return err
	}
	actorRole, err := s.Role(ctx, actorID)
	if err != nil {
		return err
	}
	if actorID == "" || actorRole != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	return s.client.Mutate(ctx, func(ctx context.Context) error {
		return s.roleSrc.SetRole(ctx, userID, role)
	}, userPrefix(userID))
}

// Stats returns the user's aggregate statistics. On failure the zeroed shape
// is returned together with the error so callers can still render.
func (s *StatsService) Stats(ctx context.Context, userID string) (domain.UserStats, error) {
	if userID == "" {
		return domain.EmptyStats(""), nil
	}
	stats, err := s.stats.Get(ctx, statsKey(userID), func(ctx context.Context) (domain.UserStats, error) {
		st, err := s.statsSrc.UserStats(ctx, userID)
		if err != nil {
			return domain.UserStats{}, err
		}
		if st.UserID == "" {
			st.UserID = userID
		}
		return st.Normalize(), nil
	})
	if err != nil {
		s.log.Warn("stats lookup failed", zap.String("op", "get_stats"), zap.String("key", userID), zap.Error(err))
		return domain.EmptyStats(userID), fmt.Errorf("load stats: %w", err)
	}
	return stats, nil
}

// Leaderboard returns the top entries.
func (s *StatsService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit == 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit < 0 || limit > MaxLeaderboardLimit {
		return nil, domain.ErrInvalidLimit
	}
	entries, err := s.top.Get(ctx, leaderboardKey(limit), func(ctx context.Context) ([]domain.LeaderboardEntry, error) {
		return s.board.Top(ctx, limit)
	})
	if err != nil {
		s.log.Warn("leaderboard lookup failed", zap.String("op", "get_leaderboard"), zap.Int("limit", limit), zap.Error(err))
		return []domain.LeaderboardEntry{}, fmt.Errorf("load leaderboard: %w", err)
	}
	out := make([]domain.LeaderboardEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// SearchLeaderboard filters the ranked users by a case-insensitive id prefix.
// Ranks are those of the full board.
func (s *StatsService) SearchLeaderboard(ctx context.Context, prefix string, limit int) ([]domain.LeaderboardEntry, error) {
	if limit == 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit < 0 || limit > MaxLeaderboardLimit {
		return nil, domain.ErrInvalidLimit
	}
	all, err := s.Leaderboard(ctx, MaxLeaderboardLimit)
	if err != nil {
		return all, err
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	out := make([]domain.LeaderboardEntry, 0, limit)
	for _, e := range all {
		if len(out) == limit {
			break
		}
		if strings.HasPrefix(strings.ToLower(e.UserID), prefix) {
			out = append(out, e)
		}
	}
	return out, nil
}

// InvalidateUser drops every cached read for the user.
func (s *StatsService) InvalidateUser(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return s.client.Invalidate(ctx, userPrefix(userID))
}

// InvalidateLeaderboard drops every cached leaderboard page and pushes the
// refreshed first page to subscribers.
func (s *StatsService) InvalidateLeaderboard(ctx context.Context) error {
	if err := s.client.Invalidate(ctx, cache.NewKey("leaderboard")); err != nil {
		return err
	}
	if s.feed.empty() {
		return nil
	}
	entries, err := s.Leaderboard(ctx, DefaultLeaderboardLimit)
	if err != nil {
		return err
	}
	s.feed.broadcast(entries)
	return nil
}

// SubscribeLeaderboard delivers the first leaderboard page whenever it
// changes. The caller must invoke cancel to avoid leaks.
func (s *StatsService) SubscribeLeaderboard() (<-chan []domain.LeaderboardEntry, func()) {
	return s.feed.subscribe()
}

// Reset clears all cached reads, e.g. after an account switch or an admin reset.
func (s *StatsService) Reset(ctx context.Context) error {
	return s.client.Reset(ctx)
}

// Close releases the caches. Later reads go straight to the sources.
func (s *StatsService) Close(ctx context.Context) error {
	for _, c := range []interface{ Close(context.Context) error }{s.roles, s.stats, s.top} {
		if err := c.Close(ctx); err != nil {
			return err
		}
	}
	return nil
}
