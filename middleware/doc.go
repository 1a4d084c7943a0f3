// Package middleware provides composable middleware for job transforms.
//
// A [Middleware] is a function that wraps a transform handler. Middleware
// are composed into a chain using [Chain] and applied around each attempt.
// They are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging]: logs job type, id, attempt, duration, and outcome
//   - [Recover]: catches panics and converts them to fatal errors
//   - [Timeout]: cancels the transform context after a configured duration
//   - [Tracing]: wraps execution in an OpenTelemetry span
//   - [Metrics]: records per-job duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, env *job.Envelope, next middleware.Handler) ([]queue.DispatchRequest, error) {
//	        // pre-processing
//	        dispatches, err := next(ctx)
//	        // post-processing
//	        return dispatches, err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware
