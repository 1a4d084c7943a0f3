package queue

import (
	"context"
	"time"

	"github.com/xraph/curator/job"
)

// DispatchRequest describes one follow-up enqueue produced while
// processing a job: the queue it targets and the envelope to push.
// Delay is optional; zero means enqueue immediately.
type DispatchRequest struct {
	TargetQueue string
	Envelope    job.Envelope
	Delay       time.Duration
}

// Delivery is one message leased from a queue. The receipt is an opaque
// transport token identifying this lease for Ack and Requeue; holding a
// Delivery does not prevent redelivery once the transport's visibility
// window expires.
type Delivery struct {
	Queue    string
	Envelope job.Envelope
	Receipt  string
}

// Client is the consuming side of the transport. Delivery is
// at-least-once: a message stays owned by the transport until the
// consumer acknowledges it, and an unacked message comes back.
type Client interface {
	// Dequeue blocks up to timeout waiting for a message on the named
	// queue. It returns curator.ErrNoMessage when the timeout expires
	// with nothing to lease.
	Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Delivery, error)

	// Ack permanently removes a leased message from the transport.
	Ack(ctx context.Context, d *Delivery) error

	// Requeue atomically settles the leased message and enqueues env in
	// its place, after the given delay. The retry path uses this to
	// publish the next-attempt envelope without a window where the job
	// exists in neither list.
	Requeue(ctx context.Context, d *Delivery, env job.Envelope, delay time.Duration) error
}

// Peeker is an optional Client capability: non-consuming inspection of
// waiting messages, newest first. Consumers use it to detect that a
// fresher envelope for the same work is already queued.
type Peeker interface {
	Peek(ctx context.Context, queue string, limit int) ([]job.Envelope, error)
}

// Dispatcher pushes new work onto queues. Send performs no internal
// retries; callers decide how to handle a failed dispatch.
type Dispatcher interface {
	Send(ctx context.Context, req DispatchRequest) error
}

// Maintainer is an optional Client capability: a periodic background
// pass the engine runs alongside the worker pool, typically promoting
// due delayed messages and recovering expired leases. Maintain blocks
// until ctx is done.
type Maintainer interface {
	Maintain(ctx context.Context, queues ...string) error
}
