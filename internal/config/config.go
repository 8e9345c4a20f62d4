package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		// MessagesPerSecond bounds inbound websocket messages per connection.
		MessagesPerSecond float64 `yaml:"messages_per_second"`
		MessageBurst      int     `yaml:"message_burst"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		Namespace string `yaml:"namespace"`
		TTL       string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		// Source is one of memory, postgres or opentdb.
		Source        string `yaml:"source"`
		OpenTDBURL    string `yaml:"opentdb_url"`
		QuestionCount int    `yaml:"question_count"`
		QuestionTime  string `yaml:"question_time"`
		FeedbackPause string `yaml:"feedback_pause"`
	} `yaml:"quiz"`
	Cache struct {
		// Backend is memory or redis.
		Backend        string `yaml:"backend"`
		RoleTTL        string `yaml:"role_ttl"`
		StatsTTL       string `yaml:"stats_ttl"`
		LeaderboardTTL string `yaml:"leaderboard_ttl"`
		MaxEntries     int    `yaml:"max_entries"`
	} `yaml:"cache"`
	Recorder struct {
		Shards         int    `yaml:"shards"`
		QueueSize      int    `yaml:"queue_size"`
		MaxAttempts    uint64 `yaml:"max_attempts"`
		InitialBackoff string `yaml:"initial_backoff"`
		MaxBackoff     string `yaml:"max_backoff"`
		JobTimeout     string `yaml:"job_timeout"`
	} `yaml:"recorder"`
	Events struct {
		AMQPURL  string `yaml:"amqp_url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"events"`
	Local struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"local"`
}

// Default returns a config that runs everything in process.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Server.ReadTimeout = "15s"
	cfg.Server.WriteTimeout = "15s"
	cfg.Server.ShutdownTimeout = "5s"
	cfg.Server.MessagesPerSecond = 5
	cfg.Server.MessageBurst = 10
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	cfg.Redis.Namespace = "trivia"
	cfg.Redis.TTL = "30m"
	cfg.Quiz.Source = "memory"
	cfg.Quiz.OpenTDBURL = "https://opentdb.com/api.php"
	cfg.Quiz.QuestionCount = 10
	cfg.Quiz.QuestionTime = "10s"
	cfg.Quiz.FeedbackPause = "2s"
	cfg.Cache.Backend = "memory"
	cfg.Cache.RoleTTL = "5m"
	cfg.Cache.StatsTTL = "5m"
	cfg.Cache.LeaderboardTTL = "1m"
	cfg.Cache.MaxEntries = 10000
	cfg.Recorder.Shards = 4
	cfg.Recorder.QueueSize = 256
	cfg.Recorder.MaxAttempts = 5
	cfg.Recorder.InitialBackoff = "200ms"
	cfg.Recorder.MaxBackoff = "5s"
	cfg.Recorder.JobTimeout = "5s"
	cfg.Events.Exchange = "trivia.events"
	cfg.Local.SQLitePath = "trivia-local.db"
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file yields
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
