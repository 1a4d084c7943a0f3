// Command curator runs the content-catalog job consumer.
//
// Subcommands:
//
//	run      start the worker pool, scheduler, and queue maintenance
//	migrate  apply store migrations and exit
//	replay   re-enqueue quarantined jobs by entry id
//
// All configuration comes from CURATOR_* environment variables; see
// config.go for the full surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/xraph/curator"
	"github.com/xraph/curator/engine"
	"github.com/xraph/curator/id"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/processor"
	memqueue "github.com/xraph/curator/queue/memory"
	redisqueue "github.com/xraph/curator/queue/redis"
	"github.com/xraph/curator/schedule"
	memstore "github.com/xraph/curator/store/memory"
	pgstore "github.com/xraph/curator/store/postgres"
	redisstore "github.com/xraph/curator/store/redis"
)

func main() {
	root := &cobra.Command{
		Use:           "curator",
		Short:         "Queue-driven content catalog job consumer",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(runCmd(), migrateCmd(), replayCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// ── run ──────────────────────────────────────────────────────────────────────

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Consume catalog jobs until interrupted",
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	tr, err := newTransport(cfg, logger)
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}

	c, err := curator.New(
		curator.WithConfig(cfg.consumerConfig()),
		curator.WithLogger(logger),
		curator.WithStore(st),
		curator.WithTransport(tr),
	)
	if err != nil {
		return err
	}

	opts, err := scheduleOptions(cfg)
	if err != nil {
		return err
	}
	eng, err := engine.Build(c, opts...)
	if err != nil {
		return err
	}

	logger.Info("consumer starting",
		slog.String("store", cfg.StoreDriver),
		slog.String("queue", cfg.QueueDriver),
		slog.Any("queues", cfg.Queues),
		slog.Int("concurrency", cfg.Concurrency),
	)
	return eng.Run(ctx)
}

// scheduleOptions expands the rebuild schedule into engine options, one
// entry per subject.
func scheduleOptions(cfg *envConfig) ([]engine.Option, error) {
	if cfg.RebuildSchedule == "" {
		return nil, nil
	}
	if _, err := schedule.ParseSpec(cfg.RebuildSchedule); err != nil {
		return nil, fmt.Errorf("rebuild schedule: %w", err)
	}

	subjects := cfg.RebuildSubjects
	if len(subjects) == 0 {
		subjects = processor.Subjects()
		sort.Strings(subjects)
	}

	opts := make([]engine.Option, 0, len(subjects))
	for _, subject := range subjects {
		if !processor.KnownSubject(subject) {
			return nil, fmt.Errorf("rebuild schedule: unknown subject %q", subject)
		}
		opts = append(opts, engine.WithScheduleEntry(schedule.Entry{
			Name:    "rebuild-" + strings.ToLower(subject),
			Spec:    cfg.RebuildSchedule,
			Type:    job.TypeRebuild,
			Payload: map[string]any{"subject": subject},
			Queue:   processor.DefaultCatalogQueue,
		}))
	}
	return opts, nil
}

// ── migrate ──────────────────────────────────────────────────────────────────

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply store migrations and exit",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn("store close error", slog.String("error", cerr.Error()))
		}
	}()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("migrations applied", slog.String("store", cfg.StoreDriver))
	return nil
}

// ── replay ───────────────────────────────────────────────────────────────────

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <entry-id>...",
		Short: "Re-enqueue quarantined jobs for another attempt",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runReplay,
	}
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	tr, err := newTransport(cfg, logger)
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}

	c, err := curator.New(
		curator.WithConfig(cfg.consumerConfig()),
		curator.WithLogger(logger),
		curator.WithStore(st),
		curator.WithTransport(tr),
	)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Stop(context.Background()); cerr != nil {
			logger.Warn("shutdown error", slog.String("error", cerr.Error()))
		}
	}()

	eng, err := engine.Build(c)
	if err != nil {
		return err
	}

	for _, raw := range args {
		entryID, err := id.ParseQuarantineID(raw)
		if err != nil {
			return fmt.Errorf("entry %q: %w", raw, err)
		}
		env, err := eng.Replay(ctx, entryID)
		if err != nil {
			return fmt.Errorf("replay %s: %w", raw, err)
		}
		logger.Info("job replayed",
			slog.String("entry_id", raw),
			slog.String("job_id", env.ID),
			slog.String("job_type", string(env.Type)),
		)
	}
	return nil
}

// ── backends ─────────────────────────────────────────────────────────────────

func newStore(ctx context.Context, cfg *envConfig, logger *slog.Logger) (curator.Storer, error) {
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("CURATOR_DATABASE_URL is required for the postgres store")
		}
		return pgstore.New(ctx, cfg.DatabaseURL, pgstore.WithLogger(logger))
	case "redis":
		return redisstore.New(newRedisClient(cfg), redisstore.WithLogger(logger)), nil
	case "memory":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newTransport(cfg *envConfig, logger *slog.Logger) (curator.Transport, error) {
	switch cfg.QueueDriver {
	case "redis":
		return redisqueue.New(newRedisClient(cfg), redisqueue.WithLogger(logger)), nil
	case "memory":
		return memqueue.New(), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.QueueDriver)
	}
}

func newRedisClient(cfg *envConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
