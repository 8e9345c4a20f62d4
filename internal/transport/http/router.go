package http

import (
	"net/http"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/logging"
	"trivia-service/internal/metrics"

	"go.uber.org/zap"
)

type Options struct {
	// MessagesPerSecond and MessageBurst bound inbound websocket traffic per connection.
	MessagesPerSecond float64
	MessageBurst      int
	// SearchDelay debounces leaderboard searches typed over the websocket.
	SearchDelay time.Duration
	// WriteWait bounds each websocket write; a client that stops reading is
	// disconnected once it passes.
	WriteWait time.Duration
	Logger    *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = 5
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = 10
	}
	if o.SearchDelay <= 0 {
		o.SearchDelay = 500 * time.Millisecond
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// NewRouter mounts the websocket, JSON API, health and metrics endpoints.
func NewRouter(quiz *app.QuizService, stats *app.StatsService, opts Options) http.Handler {
	opts = opts.withDefaults()
	ws := NewWSHandler(quiz, stats, opts)
	api := NewAPIHandler(stats, opts.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /ws", ws.ServeWS)
	mux.HandleFunc("GET /api/users/{id}/stats", metrics.Instrument("/api/users/{id}/stats", api.GetStats))
	mux.HandleFunc("GET /api/users/{id}/role", metrics.Instrument("/api/users/{id}/role", api.GetRole))
	mux.HandleFunc("PUT /api/users/{id}/role", metrics.Instrument("/api/users/{id}/role", api.PutRole))
	mux.HandleFunc("GET /api/leaderboard", metrics.Instrument("/api/leaderboard", api.GetLeaderboard))
	mux.HandleFunc("DELETE /api/cache", metrics.Instrument("/api/cache", api.ResetCache))
	return mux
}
