package redis

import (
	"context"
	"testing"

	"trivia-service/internal/domain"
)

func TestLeaderboardAccumulatesPointsAndBestStreak(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	board := NewLeaderboard(client, "trivia")

	results := []domain.SessionSummary{
		{SessionID: "s1", UserID: "alice", Score: 40, BestStreak: 4},
		{SessionID: "s2", UserID: "bob", Score: 90, BestStreak: 2},
		{SessionID: "s3", UserID: "alice", Score: 60, BestStreak: 1},
		{SessionID: "s4", UserID: "", Score: 500},
	}
	for _, r := range results {
		if err := board.AddResult(ctx, r); err != nil {
			t.Fatalf("add result: %v", err)
		}
	}

	top, err := board.Top(ctx, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected two ranked users, got %+v", top)
	}
	if top[0].UserID != "alice" || top[0].Points != 100 || top[0].BestStreak != 4 || top[0].Rank != 1 {
		t.Fatalf("unexpected leader %+v", top[0])
	}
	if top[1].UserID != "bob" || top[1].Rank != 2 {
		t.Fatalf("unexpected runner-up %+v", top[1])
	}

}

func TestLeaderboardAppliesEachSessionOnce(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	board := NewLeaderboard(client, "trivia")

	summary := domain.SessionSummary{SessionID: "s1", UserID: "alice", Score: 190, BestStreak: 5}
	for i := 0; i < 3; i++ {
		if err := board.AddResult(ctx, summary); err != nil {
			t.Fatalf("add result %d: %v", i, err)
		}
	}
	if err := board.AddResult(ctx, domain.SessionSummary{SessionID: "s2", UserID: "alice", Score: 10, BestStreak: 1}); err != nil {
		t.Fatalf("add second session: %v", err)
	}

	top, err := board.Top(ctx, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 1 || top[0].Points != 200 || top[0].BestStreak != 5 {
		t.Fatalf("expected each session counted once, got %+v", top)
	}
	if ok, _ := mr.SIsMember("trivia:leaderboard:applied", "s1"); !ok {
		t.Fatalf("expected session marked as applied")
	}
}
