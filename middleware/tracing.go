package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/curator/job"
	"github.com/xraph/curator/queue"
)

// tracerName is the instrumentation scope name for curator tracing.
const tracerName = "github.com/xraph/curator"

// Tracing returns middleware that wraps the transform in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop tracer
// is used and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: curator.job.id, curator.job.type, curator.queue,
// curator.attempt. On error, the span status is set to codes.Error with the
// error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, env *job.Envelope, next Handler) ([]queue.DispatchRequest, error) {
		ctx, span := tracer.Start(ctx, "curator.job.process",
			trace.WithAttributes(
				attribute.String("curator.job.id", env.ID),
				attribute.String("curator.job.type", string(env.Type)),
				attribute.String("curator.queue", QueueFrom(ctx)),
				attribute.Int("curator.attempt", env.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		dispatches, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return dispatches, err
	}
}
