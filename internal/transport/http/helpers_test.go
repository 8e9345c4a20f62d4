package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
	"trivia-service/internal/engine"
	"trivia-service/internal/infra/memory"
	"trivia-service/internal/recorder"

	"github.com/gorilla/websocket"
)

type testEnv struct {
	store    *memory.Store
	sessions *memory.SessionStore
	stats    *app.StatsService
	queue    *recorder.Queue
	quiz     *app.QuizService
	server   *httptest.Server
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store := memory.NewStore()
	stats := app.NewStatsService(store, store, store, app.StatsStores{}, app.StatsOptions{})
	queue := recorder.New(recorder.Deps{
		Attempts:    store,
		Sessions:    store,
		Leaderboard: store,
		Invalidator: stats,
	}, recorder.Options{InitialBackoff: time.Millisecond})
	sessions := memory.NewSessionStore()
	bank := memory.NewQuestionBank(memory.SampleQuestions()[:3], store)
	quiz := app.NewQuizService(sessions, bank, queue, app.QuizOptions{
		QuestionCount: 3,
		QuestionTime:  5 * time.Second,
		FeedbackPause: 10 * time.Millisecond,
	})
	env := &testEnv{store: store, sessions: sessions, stats: stats, queue: queue, quiz: quiz}
	env.server = httptest.NewServer(NewRouter(quiz, stats, opts))
	t.Cleanup(func() {
		env.server.Close()
		_ = queue.Close(context.Background())
	})
	return env
}

func (e *testEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	var msg wireMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg
}

// readUntil skips messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) wireMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readMessage(t, conn)
		if msg.Type == typ {
			return msg
		}
	}
	t.Fatalf("no %s message received", typ)
	return wireMessage{}
}

func decodeEvent(t *testing.T, msg wireMessage) engine.Event {
	t.Helper()
	var ev engine.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func decodeError(t *testing.T, msg wireMessage) errorPayload {
	t.Helper()
	var p errorPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return p
}

func answerKey() map[string]int {
	key := make(map[string]int)
	for _, q := range memory.SampleQuestions() {
		key[q.ID] = q.CorrectIndex
	}
	return key
}

func completeSession(t *testing.T, store *memory.Store, userID string, score int) {
	t.Helper()
	ctx := context.Background()
	id := userID + "-session"
	if err := store.StartSession(ctx, domain.SessionRecord{ID: id, UserID: userID}); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if _, err := store.CompleteSession(ctx, domain.SessionSummary{SessionID: id, UserID: userID, Score: score}); err != nil {
		t.Fatalf("complete session: %v", err)
	}
}
