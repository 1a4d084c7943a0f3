package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/curator/job"
	"github.com/xraph/curator/queue"
)

// Logging returns middleware that logs transform start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, env *job.Envelope, next Handler) ([]queue.DispatchRequest, error) {
		logger.Info("job started",
			slog.String("job_type", string(env.Type)),
			slog.String("job_id", env.ID),
			slog.String("queue", QueueFrom(ctx)),
			slog.Int("attempt", env.Attempt),
		)

		start := time.Now()
		dispatches, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("job failed",
				slog.String("job_type", string(env.Type)),
				slog.String("job_id", env.ID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("job completed",
				slog.String("job_type", string(env.Type)),
				slog.String("job_id", env.ID),
				slog.Duration("elapsed", elapsed),
				slog.Int("dispatches", len(dispatches)),
			)
		}

		return dispatches, err
	}
}
