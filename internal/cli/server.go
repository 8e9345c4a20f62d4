package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/config"
	"trivia-service/internal/metrics"
	"trivia-service/internal/recorder"
	transport "trivia-service/internal/transport/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()
	metrics.Register()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := connectBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	stats := app.NewStatsService(b.roles, b.stats, b.leaderboard, b.cacheStores, statsOptions(cfg, log.Named("stats")))
	queue := recorder.New(b.recorderDeps(stats), recorderOptions(cfg, log.Named("recorder")))
	quiz := app.NewQuizService(b.liveStore, b.source, queue, quizOptions(cfg, log.Named("quiz")))

	handler := transport.NewRouter(quiz, stats, transport.Options{
		MessagesPerSecond: cfg.Server.MessagesPerSecond,
		MessageBurst:      cfg.Server.MessageBurst,
		Logger:            log.Named("http"),
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler,
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting trivia service",
			zap.String("addr", server.Addr),
			zap.String("quiz_source", cfg.Quiz.Source),
			zap.String("cache_backend", cfg.Cache.Backend),
			zap.Bool("postgres", b.pool != nil),
			zap.Bool("redis", b.redis != nil),
			zap.Bool("events", b.publisher != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	case err := <-serveErr:
		log.Error("server failed", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	// Pending progress records are written before the stores go away.
	if err := queue.Close(shutdownCtx); err != nil {
		log.Warn("recorder drain incomplete", zap.Error(err))
	}
	return stats.Close(shutdownCtx)
}
