package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/debounce"
	"trivia-service/internal/domain"
	"trivia-service/internal/engine"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type WSHandler struct {
	quiz     *app.QuizService
	stats    *app.StatsService
	opts     Options
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(quiz *app.QuizService, stats *app.StatsService, opts Options) *WSHandler {
	opts = opts.withDefaults()
	return &WSHandler{
		quiz:  quiz,
		stats: stats,
		opts:  opts,
		log:   opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int  `json:"questionIndex"`
	Option        *int `json:"option"`
}

type searchPayload struct {
	Prefix string `json:"prefix"`
	// Submit runs the search now instead of after the typing pause.
	Submit bool `json:"submit"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type loadingPayload struct {
	SessionID string `json:"sessionId,omitempty"`
}

// ServeWS upgrades the request and plays one quiz session per connection at a
// time. Closing the socket cancels the session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsConn{
		h:          h,
		conn:       conn,
		userID:     userID,
		log:        h.log.With(zap.String("user", userID)),
		send:       make(chan outboundMessage, 32),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	go c.writeLoop()

	updates, unsubscribe := h.stats.SubscribeLeaderboard()
	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		for {
			select {
			case entries, ok := <-updates:
				if !ok {
					return
				}
				c.push(outboundMessage{Type: "leaderboard", Payload: leaderboardResponse{Entries: entries}})
			case <-c.done:
				return
			}
		}
	}()

	search := debounce.New(h.opts.SearchDelay, func(prefix string) {
		c.search(ctx, prefix)
	})

	c.start(ctx)

	limiter := rate.NewLimiter(rate.Limit(h.opts.MessagesPerSecond), h.opts.MessageBurst)
	throttled := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("ws read error", zap.Error(err))
			}
			break
		}
		if !limiter.Allow() {
			// one notice per burst; dropped when the client is not reading
			if !throttled {
				throttled = true
				c.offer(errorMessage("You're sending messages too quickly.", false))
			}
			continue
		}
		throttled = false
		var in inboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			c.push(errorMessage("Invalid message.", false))
			continue
		}
		c.handle(ctx, in, search)
	}

	close(c.done)
	search.Stop()
	c.endSession(context.WithoutCancel(ctx))
	unsubscribe()
	<-feedDone
	<-c.writerDone
}

func errorMessage(msg string, retry bool) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: msg, Retry: retry}}
}

type wsConn struct {
	h      *WSHandler
	conn   *websocket.Conn
	userID string
	log    *zap.Logger

	send chan outboundMessage
	// done is closed by the reader, writerDone by the writer when it exits.
	done       chan struct{}
	writerDone chan struct{}

	mu        sync.Mutex
	sessionID string
}

// push queues msg for the writer. It never blocks past the connection's end
// or the writer's exit.
func (c *wsConn) push(msg outboundMessage) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	case <-c.writerDone:
		return false
	}
}

// offer queues msg only if there is room.
func (c *wsConn) offer(msg outboundMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *wsConn) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.h.opts.WriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug("ws write error", zap.Error(err))
				// Unblocks the reader so the connection winds down.
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) currentSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *wsConn) onEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventQuestion, engine.EventFeedback, engine.EventCompleted:
		c.push(outboundMessage{Type: string(ev.Type), Payload: ev})
	case engine.EventError:
		c.push(errorMessage(userMessage(ev.Err), true))
	}
}

// start replaces any previous session with a fresh one.
func (c *wsConn) start(ctx context.Context) {
	c.endSession(ctx)
	c.push(outboundMessage{Type: "loading", Payload: loadingPayload{}})

	session, err := c.h.quiz.Start(ctx, c.userID, c.onEvent)
	if session != nil {
		c.mu.Lock()
		c.sessionID = session.SessionID()
		c.mu.Unlock()
		// Load failures reach the client as error events.
		return
	}
	if err != nil {
		c.log.Warn("session start failed", zap.String("op", "start_session"), zap.Error(err))
		c.push(errorMessage(userMessage(err), true))
	}
}

func (c *wsConn) endSession(ctx context.Context) {
	c.mu.Lock()
	id := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()
	if id != "" {
		c.h.quiz.Cancel(ctx, id)
	}
}

func (c *wsConn) handle(ctx context.Context, in inboundMessage, search *debounce.Debouncer[string]) {
	switch in.Type {
	case "answer":
		var p answerPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil || p.Option == nil {
			c.push(errorMessage("Invalid answer.", false))
			return
		}
		if err := c.h.quiz.Answer(ctx, c.currentSession(), p.QuestionIndex, *p.Option); err != nil {
			c.push(errorMessage(userMessage(err), false))
		}
	case "retry":
		id := c.currentSession()
		if id == "" {
			c.start(ctx)
			return
		}
		c.push(outboundMessage{Type: "loading", Payload: loadingPayload{SessionID: id}})
		err := c.h.quiz.Retry(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrQuestionsUnavailable) && !errors.Is(err, domain.ErrNoQuestions) {
			c.push(errorMessage(userMessage(err), false))
		}
	case "start":
		c.start(ctx)
	case "search":
		var p searchPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.push(errorMessage("Invalid search.", false))
			return
		}
		search.Trigger(p.Prefix)
		if p.Submit {
			search.Flush()
		}
	default:
		c.push(errorMessage("Unsupported message type.", false))
	}
}

func (c *wsConn) search(ctx context.Context, prefix string) {
	prefix = strings.TrimSpace(prefix)
	var (
		entries []domain.LeaderboardEntry
		err     error
	)
	if prefix == "" {
		entries, err = c.h.stats.Leaderboard(ctx, 0)
	} else {
		entries, err = c.h.stats.SearchLeaderboard(ctx, prefix, 0)
	}
	if err != nil {
		c.push(errorMessage(userMessage(err), true))
		return
	}
	c.push(outboundMessage{Type: "leaderboard", Payload: leaderboardResponse{Query: prefix, Entries: entries}})
}
