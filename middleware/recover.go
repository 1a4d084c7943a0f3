package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/curator"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/queue"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to permanent errors and logged with a stack trace,
// so a panicking transform goes to the dead-letter queue instead of retrying.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, env *job.Envelope, next Handler) (dispatches []queue.DispatchRequest, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("job transform panicked",
					slog.String("job_type", string(env.Type)),
					slog.String("job_id", env.ID),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				dispatches = nil
				retErr = curator.Permanent(fmt.Errorf("panic in job %s: %v", env.ID, r))
			}
		}()
		return next(ctx)
	}
}
