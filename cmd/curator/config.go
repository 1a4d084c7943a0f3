package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/xraph/curator"
)

// envConfig holds all binary configuration, sourced from CURATOR_*
// environment variables and read once at startup.
type envConfig struct {
	// ── Backends ─────────────────────────────────────────────────────────────────
	// StoreDriver: "memory", "postgres", or "redis".
	StoreDriver string `env:"CURATOR_STORE_DRIVER" envDefault:"memory"`
	// QueueDriver: "memory" or "redis".
	QueueDriver string `env:"CURATOR_QUEUE_DRIVER" envDefault:"memory"`

	DatabaseURL string `env:"CURATOR_DATABASE_URL"`

	RedisAddr     string `env:"CURATOR_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"CURATOR_REDIS_PASSWORD"`
	RedisDB       int    `env:"CURATOR_REDIS_DB"       envDefault:"0"`

	// ── Consumer ─────────────────────────────────────────────────────────────────
	Queues             []string      `env:"CURATOR_QUEUES"              envDefault:"catalog,notify"`
	Concurrency        int           `env:"CURATOR_CONCURRENCY"         envDefault:"4"`
	PollTimeout        time.Duration `env:"CURATOR_POLL_TIMEOUT"        envDefault:"30s"`
	ProcessingDeadline time.Duration `env:"CURATOR_PROCESSING_DEADLINE" envDefault:"300s"`
	MaxAttempts        int           `env:"CURATOR_MAX_ATTEMPTS"        envDefault:"3"`
	BackoffBase        time.Duration `env:"CURATOR_BACKOFF_BASE"        envDefault:"5s"`
	BackoffCap         time.Duration `env:"CURATOR_BACKOFF_CAP"         envDefault:"300s"`
	StalenessThreshold time.Duration `env:"CURATOR_STALENESS_THRESHOLD" envDefault:"10m"`
	HeartbeatInterval  time.Duration `env:"CURATOR_HEARTBEAT_INTERVAL"  envDefault:"30s"`
	ShutdownTimeout    time.Duration `env:"CURATOR_SHUTDOWN_TIMEOUT"    envDefault:"30s"`
	SupersedeCheck     bool          `env:"CURATOR_SUPERSEDE_CHECK"     envDefault:"true"`

	// ── Scheduler ────────────────────────────────────────────────────────────────
	// RebuildSchedule is a cron expression for periodic index rebuilds;
	// empty disables them. RebuildSubjects limits the rebuilds to the
	// listed subjects; empty means every known subject.
	RebuildSchedule string   `env:"CURATOR_REBUILD_SCHEDULE"`
	RebuildSubjects []string `env:"CURATOR_REBUILD_SUBJECTS"`

	// ── Logging ──────────────────────────────────────────────────────────────────
	LogLevel  string `env:"CURATOR_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"CURATOR_LOG_FORMAT" envDefault:"json"`
}

// loadConfig parses envConfig from the environment.
func loadConfig() (*envConfig, error) {
	cfg := &envConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// consumerConfig maps the environment onto the library configuration.
func (c *envConfig) consumerConfig() curator.Config {
	return curator.Config{
		Concurrency:        c.Concurrency,
		Queues:             c.Queues,
		PollTimeout:        c.PollTimeout,
		ProcessingDeadline: c.ProcessingDeadline,
		MaxAttempts:        c.MaxAttempts,
		BackoffBase:        c.BackoffBase,
		BackoffCap:         c.BackoffCap,
		StalenessThreshold: c.StalenessThreshold,
		HeartbeatInterval:  c.HeartbeatInterval,
		ShutdownTimeout:    c.ShutdownTimeout,
		SupersedeCheck:     c.SupersedeCheck,
	}
}

// newLogger builds the process logger from the configured level and
// format.
func newLogger(c *envConfig) *slog.Logger {
	level := slog.LevelInfo
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
