package http

import (
	"encoding/json"
	"net"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trivia-service/internal/domain"

	"github.com/gorilla/websocket"
)

func TestWebSocketPlaysQuizToCompletion(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn := env.dial(t, "u1")

	if msg := readMessage(t, conn); msg.Type != "loading" {
		t.Fatalf("expected loading first, got %s", msg.Type)
	}

	key := answerKey()
	for i := 0; i < 3; i++ {
		ev := decodeEvent(t, readUntil(t, conn, "question"))
		if ev.Index != i || ev.Total != 3 || ev.Question == nil || ev.Deadline == nil {
			t.Fatalf("unexpected question event %+v", ev)
		}
		answer := map[string]any{
			"type":    "answer",
			"payload": map[string]any{"questionIndex": i, "option": key[ev.Question.ID]},
		}
		if err := conn.WriteJSON(answer); err != nil {
			t.Fatalf("write answer: %v", err)
		}
		fb := decodeEvent(t, readUntil(t, conn, "feedback"))
		if fb.Feedback == nil || !fb.Feedback.Attempt.IsCorrect || fb.Feedback.CurrentStreak != i+1 {
			t.Fatalf("unexpected feedback %+v", fb.Feedback)
		}
	}

	done := decodeEvent(t, readUntil(t, conn, "completed"))
	if done.Session == nil || !done.Session.Completed || done.Session.CorrectCount != 3 || done.Session.BestStreak != 3 {
		t.Fatalf("unexpected completed payload %+v", done.Session)
	}
}

func TestWebSocketRejectsBadAnswers(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn := env.dial(t, "")
	readUntil(t, conn, "question")

	_ = conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"questionIndex": 0}})
	if p := decodeError(t, readUntil(t, conn, "error")); p.Message != "Invalid answer." {
		t.Fatalf("unexpected error %+v", p)
	}

	_ = conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"questionIndex": 0, "option": 7}})
	if p := decodeError(t, readUntil(t, conn, "error")); p.Message != userMessage(domain.ErrInvalidOption) || p.Retry {
		t.Fatalf("unexpected error %+v", p)
	}

	_ = conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"questionIndex": 2, "option": 0}})
	if p := decodeError(t, readUntil(t, conn, "error")); p.Message != userMessage(domain.ErrStaleQuestion) {
		t.Fatalf("unexpected error %+v", p)
	}
}

func TestWebSocketRateLimitsInbound(t *testing.T) {
	env := newTestEnv(t, Options{MessagesPerSecond: 1, MessageBurst: 1})
	conn := env.dial(t, "")
	readUntil(t, conn, "question")

	_ = conn.WriteJSON(map[string]any{"type": "ping"})
	_ = conn.WriteJSON(map[string]any{"type": "ping"})

	first := decodeError(t, readUntil(t, conn, "error"))
	second := decodeError(t, readUntil(t, conn, "error"))
	if first.Message != "Unsupported message type." || second.Message != "You're sending messages too quickly." {
		t.Fatalf("unexpected errors %q / %q", first.Message, second.Message)
	}
}

func TestWebSocketSearchIsDebounced(t *testing.T) {
	env := newTestEnv(t, Options{SearchDelay: 20 * time.Millisecond})
	completeSession(t, env.store, "alice", 30)
	completeSession(t, env.store, "albert", 20)
	completeSession(t, env.store, "bob", 10)

	conn := env.dial(t, "")
	readUntil(t, conn, "question")

	for _, prefix := range []string{"a", "al", "alb"} {
		_ = conn.WriteJSON(map[string]any{"type": "search", "payload": map[string]any{"prefix": prefix}})
	}
	msg := readUntil(t, conn, "leaderboard")
	var got leaderboardResponse
	if err := json.Unmarshal(msg.Payload, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Query != "alb" || len(got.Entries) != 1 || got.Entries[0].UserID != "albert" || got.Entries[0].Rank != 2 {
		t.Fatalf("expected only the last search to run, got %+v", got)
	}
}

func TestDisconnectCancelsSession(t *testing.T) {
	env := newTestEnv(t, Options{})
	conn := env.dial(t, "u1")
	readUntil(t, conn, "question")
	if env.sessions.Len() != 1 {
		t.Fatalf("expected one live session, got %d", env.sessions.Len())
	}

	_ = conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for env.sessions.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected session torn down after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// stallingListener hands out connections whose writes, after the upgrade
// response, never reach the peer and fail only when the write deadline passes.
type stallingListener struct {
	net.Listener
}

func (l stallingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &stallingConn{Conn: conn, closed: make(chan struct{})}, nil
}

type stallingConn struct {
	net.Conn
	writes int32

	mu        sync.Mutex
	deadline  time.Time
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *stallingConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return c.Conn.SetWriteDeadline(t)
}

func (c *stallingConn) Write(p []byte) (int, error) {
	if atomic.AddInt32(&c.writes, 1) == 1 {
		return c.Conn.Write(p)
	}
	c.mu.Lock()
	wait := time.Until(c.deadline)
	c.mu.Unlock()
	select {
	case <-time.After(wait):
		return 0, os.ErrDeadlineExceeded
	case <-c.closed:
		return 0, net.ErrClosed
	}
}

func (c *stallingConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.Conn.Close()
}

func TestClientThatStopsReadingIsDisconnected(t *testing.T) {
	env := newTestEnv(t, Options{})
	opts := Options{MessagesPerSecond: 10000, MessageBurst: 10000, WriteWait: 200 * time.Millisecond}
	server := httptest.NewUnstartedServer(NewRouter(env.quiz, env.stats, opts))
	server.Listener = stallingListener{server.Listener}
	server.Start()
	t.Cleanup(server.Close)

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?userId=u1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Each frame earns an error reply the server can never deliver.
	for i := 0; i < 200; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("x")); err != nil {
			break
		}
	}

	waitForSessions(t, env, 1)
	waitForSessions(t, env, 0)
}

func waitForSessions(t *testing.T, env *testEnv, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for env.sessions.Len() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d live sessions, got %d", want, env.sessions.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPushReturnsAfterWriterExits(t *testing.T) {
	c := &wsConn{
		send:       make(chan outboundMessage, 1),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	if !c.push(outboundMessage{Type: "loading"}) {
		t.Fatalf("expected first message queued")
	}
	close(c.writerDone)

	returned := make(chan bool, 1)
	go func() { returned <- c.push(outboundMessage{Type: "loading"}) }()
	select {
	case ok := <-returned:
		if ok {
			t.Fatalf("expected push to report the message dropped")
		}
	case <-time.After(time.Second):
		t.Fatalf("push blocked after the writer exited")
	}
	if c.offer(outboundMessage{Type: "error"}) {
		t.Fatalf("expected offer to drop when the buffer is full")
	}
}

func TestWebSocketThrottleNoticeOncePerBurst(t *testing.T) {
	env := newTestEnv(t, Options{MessagesPerSecond: 1, MessageBurst: 1})
	conn := env.dial(t, "")
	readUntil(t, conn, "question")

	for i := 0; i < 5; i++ {
		_ = conn.WriteJSON(map[string]any{"type": "ping"})
	}
	if got := decodeError(t, readUntil(t, conn, "error")); got.Message != "Unsupported message type." {
		t.Fatalf("expected first ping answered, got %q", got.Message)
	}
	if got := decodeError(t, readUntil(t, conn, "error")); got.Message != "You're sending messages too quickly." {
		t.Fatalf("expected throttle notice, got %q", got.Message)
	}

	time.Sleep(1100 * time.Millisecond)
	_ = conn.WriteJSON(map[string]any{"type": "ping"})
	if got := decodeError(t, readUntil(t, conn, "error")); got.Message != "Unsupported message type." {
		t.Fatalf("expected a single notice for the burst, got %q", got.Message)
	}
}

func TestWebSocketSubmittedSearchRunsImmediately(t *testing.T) {
	env := newTestEnv(t, Options{SearchDelay: time.Hour})
	completeSession(t, env.store, "alice", 30)
	completeSession(t, env.store, "bob", 10)

	conn := env.dial(t, "")
	readUntil(t, conn, "question")

	_ = conn.WriteJSON(map[string]any{"type": "search", "payload": map[string]any{"prefix": "b", "submit": true}})
	msg := readUntil(t, conn, "leaderboard")
	var got leaderboardResponse
	if err := json.Unmarshal(msg.Payload, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Query != "b" || len(got.Entries) != 1 || got.Entries[0].UserID != "bob" {
		t.Fatalf("expected submitted search result, got %+v", got)
	}
}
