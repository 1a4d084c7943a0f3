package middleware

import (
	"context"
	"time"

	"github.com/xraph/curator/job"
	"github.com/xraph/curator/queue"
)

// Timeout returns middleware that enforces a per-attempt processing deadline.
// When d is non-zero, a context.WithTimeout wraps the handler call; a
// transform that honors its context returns context.DeadlineExceeded, which
// the processor classifies as retryable.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, env *job.Envelope, next Handler) ([]queue.DispatchRequest, error) {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
