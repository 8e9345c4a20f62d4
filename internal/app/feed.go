package app

import (
	"sync"

	"trivia-service/internal/domain"
)

// leaderboardFeed pushes fresh leaderboard pages to live subscribers.
type leaderboardFeed struct {
	mu          sync.Mutex
	subscribers map[chan []domain.LeaderboardEntry]struct{}
}

func newLeaderboardFeed() *leaderboardFeed {
	return &leaderboardFeed{subscribers: make(map[chan []domain.LeaderboardEntry]struct{})}
}

func (f *leaderboardFeed) subscribe() (<-chan []domain.LeaderboardEntry, func()) {
	ch := make(chan []domain.LeaderboardEntry, 1)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

func (f *leaderboardFeed) empty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers) == 0
}

// broadcast replaces any undelivered page so slow subscribers only ever see
// the latest one.
func (f *leaderboardFeed) broadcast(entries []domain.LeaderboardEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- entries:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- entries
		}
	}
}
