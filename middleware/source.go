package middleware

import "context"

type queueKey struct{}

// WithQueue records the name of the queue a delivery arrived on. The
// envelope wire format carries no queue name, so the consumer injects it
// here before running the chain.
func WithQueue(ctx context.Context, queue string) context.Context {
	return context.WithValue(ctx, queueKey{}, queue)
}

// QueueFrom returns the queue name recorded by WithQueue, or "" when the
// context carries none.
func QueueFrom(ctx context.Context) string {
	q, _ := ctx.Value(queueKey{}).(string)
	return q
}
