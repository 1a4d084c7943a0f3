package middleware

import (
	"context"

	"github.com/xraph/curator/job"
	"github.com/xraph/curator/queue"
)

// Handler is the terminal function that runs the transform for a job.
// It returns the follow-up dispatches the transform wants enqueued.
type Handler func(ctx context.Context) ([]queue.DispatchRequest, error)

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the envelope being processed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, env *job.Envelope, next Handler) ([]queue.DispatchRequest, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, env *job.Envelope, next Handler) ([]queue.DispatchRequest, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) ([]queue.DispatchRequest, error) {
				return mw(ctx, env, prev)
			}
		}
		return h(ctx)
	}
}
