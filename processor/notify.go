package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/curator/job"
	"github.com/xraph/curator/queue"
)

// Sink delivers notifications to an external channel. Delivery errors
// are transient by default and retried under the attempt budget.
type Sink interface {
	Deliver(ctx context.Context, channel, message string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, channel, message string) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, channel, message string) error {
	return f(ctx, channel, message)
}

// LogSink writes notifications to the log. It is the default sink when
// no external channel is wired.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver logs the notification at Info.
func (s LogSink) Deliver(_ context.Context, channel, message string) error {
	s.Logger.Info("notification delivered",
		slog.String("channel", channel),
		slog.String("message", message),
	)
	return nil
}

// Notify returns the transform for notify jobs, the terminal fan-out of
// catalog work. It validates the payload and hands the message to the
// sink; it never dispatches follow-up work.
func Notify(sink Sink) Transform {
	return func(ctx context.Context, env job.Envelope) ([]queue.DispatchRequest, error) {
		channel, err := requireString(env.Payload, "channel")
		if err != nil {
			return nil, Permanent(err)
		}
		message, err := requireString(env.Payload, "message")
		if err != nil {
			return nil, Permanent(err)
		}
		if err := sink.Deliver(ctx, channel, message); err != nil {
			return nil, fmt.Errorf("curator/processor: deliver to %s: %w", channel, err)
		}
		return nil, nil
	}
}
