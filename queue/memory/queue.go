// Package memory implements queue.Client, queue.Peeker, and
// queue.Dispatcher entirely in memory. It preserves the transport's
// at-least-once contract: leased messages that are never settled return
// to the queue once their visibility window expires.
//
// The zero-dependency backend is intended for unit tests and local
// development; production deployments use queue/redis.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/curator"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/queue"
)

// Compile-time interface checks.
var (
	_ queue.Client     = (*Queue)(nil)
	_ queue.Peeker     = (*Queue)(nil)
	_ queue.Dispatcher = (*Queue)(nil)
)

// DefaultVisibilityTimeout bounds how long a leased message stays
// invisible before it is handed out again. Keep it longer than the
// consumer's staleness threshold: a crashed worker's record must look
// stale by the time its lease expires, or the redelivery is treated as
// a duplicate of live work and dropped.
const DefaultVisibilityTimeout = 15 * time.Minute

// Option configures the Queue.
type Option func(*Queue)

// WithVisibilityTimeout overrides the lease duration for unacked messages.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *Queue) { q.visibility = d }
}

type flight struct {
	queue   string
	env     job.Envelope
	expires time.Time
}

type delayed struct {
	env job.Envelope
	due time.Time
}

// Queue is an in-memory multi-queue transport.
type Queue struct {
	mu         sync.Mutex
	ready      map[string][]job.Envelope
	delayed    map[string][]delayed
	inflight   map[string]*flight
	waiters    map[string][]chan struct{}
	visibility time.Duration
	closed     bool
}

// New creates an empty in-memory transport.
func New(opts ...Option) *Queue {
	q := &Queue{
		ready:      make(map[string][]job.Envelope),
		delayed:    make(map[string][]delayed),
		inflight:   make(map[string]*flight),
		waiters:    make(map[string][]chan struct{}),
		visibility: DefaultVisibilityTimeout,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue pushes env onto the named queue, after delay if one is given.
func (q *Queue) Enqueue(_ context.Context, queueName string, env job.Envelope, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return curator.ErrQueueClosed
	}
	q.enqueueLocked(queueName, env, delay)
	return nil
}

// Send implements queue.Dispatcher.
func (q *Queue) Send(ctx context.Context, req queue.DispatchRequest) error {
	return q.Enqueue(ctx, req.TargetQueue, req.Envelope, req.Delay)
}

// Dequeue leases the oldest ready message, blocking up to timeout.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Delivery, error) {
	deadline := time.Now().Add(timeout)

	for {
		now := time.Now()

		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, curator.ErrQueueClosed
		}
		q.reclaimExpiredLocked(queueName, now)
		q.promoteDueLocked(queueName, now)

		if env, ok := q.popLocked(queueName); ok {
			receipt := uuid.NewString()
			q.inflight[receipt] = &flight{
				queue:   queueName,
				env:     env,
				expires: now.Add(q.visibility),
			}
			q.mu.Unlock()
			return &queue.Delivery{
				Queue:    queueName,
				Envelope: cloneEnvelope(env),
				Receipt:  receipt,
			}, nil
		}

		if !now.Before(deadline) {
			q.mu.Unlock()
			return nil, curator.ErrNoMessage
		}

		// Wake early when a delayed message comes due or a lease expires.
		wake := deadline
		if due, ok := q.nextEventLocked(queueName); ok && due.Before(wake) {
			wake = due
		}
		ch := make(chan struct{}, 1)
		q.waiters[queueName] = append(q.waiters[queueName], ch)
		q.mu.Unlock()

		timer := time.NewTimer(time.Until(wake))
		select {
		case <-ctx.Done():
			timer.Stop()
			q.removeWaiter(queueName, ch)
			return nil, ctx.Err()
		case <-ch:
			timer.Stop()
		case <-timer.C:
			q.removeWaiter(queueName, ch)
		}
	}
}

// Ack settles a leased message permanently.
func (q *Queue) Ack(_ context.Context, d *queue.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[d.Receipt]; !ok {
		return curator.ErrStaleDelivery
	}
	delete(q.inflight, d.Receipt)
	return nil
}

// Requeue settles the lease and enqueues env in its place after delay.
func (q *Queue) Requeue(_ context.Context, d *queue.Delivery, env job.Envelope, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return curator.ErrQueueClosed
	}
	if _, ok := q.inflight[d.Receipt]; !ok {
		return curator.ErrStaleDelivery
	}
	delete(q.inflight, d.Receipt)
	q.enqueueLocked(d.Queue, env, delay)
	return nil
}

// Peek implements queue.Peeker: ready messages, newest first.
func (q *Queue) Peek(_ context.Context, queueName string, limit int) ([]job.Envelope, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	q.reclaimExpiredLocked(queueName, now)
	q.promoteDueLocked(queueName, now)

	list := q.ready[queueName]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]job.Envelope, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneEnvelope(list[i]))
	}
	return out, nil
}

// Len returns the number of ready messages on the named queue.
func (q *Queue) Len(queueName string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready[queueName])
}

// InFlight returns the number of leased, unsettled messages.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// DelayedLen returns the number of messages waiting on a delay.
func (q *Queue) DelayedLen(queueName string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.delayed[queueName])
}

// Close wakes all blocked consumers and rejects further operations.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for name, chans := range q.waiters {
		for _, ch := range chans {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
		delete(q.waiters, name)
	}
	return nil
}

// ──────────────────────────────────────────────────
// internals (callers hold q.mu)
// ──────────────────────────────────────────────────

func (q *Queue) enqueueLocked(queueName string, env job.Envelope, delay time.Duration) {
	if delay > 0 {
		q.delayed[queueName] = append(q.delayed[queueName], delayed{
			env: env,
			due: time.Now().Add(delay),
		})
	} else {
		q.ready[queueName] = append(q.ready[queueName], env)
	}
	q.signalLocked(queueName)
}

func (q *Queue) popLocked(queueName string) (job.Envelope, bool) {
	list := q.ready[queueName]
	if len(list) == 0 {
		return job.Envelope{}, false
	}
	env := list[0]
	q.ready[queueName] = list[1:]
	return env, true
}

// promoteDueLocked moves delayed messages whose due time has passed onto
// the ready list.
func (q *Queue) promoteDueLocked(queueName string, now time.Time) {
	pending := q.delayed[queueName]
	if len(pending) == 0 {
		return
	}
	remaining := pending[:0]
	for _, d := range pending {
		if !d.due.After(now) {
			q.ready[queueName] = append(q.ready[queueName], d.env)
		} else {
			remaining = append(remaining, d)
		}
	}
	q.delayed[queueName] = remaining
}

// reclaimExpiredLocked returns expired leases to the ready list.
func (q *Queue) reclaimExpiredLocked(queueName string, now time.Time) {
	for receipt, f := range q.inflight {
		if f.queue == queueName && !f.expires.After(now) {
			q.ready[queueName] = append(q.ready[queueName], f.env)
			delete(q.inflight, receipt)
		}
	}
}

// nextEventLocked returns the earliest time a message could appear on
// the queue through delay promotion or lease expiry.
func (q *Queue) nextEventLocked(queueName string) (time.Time, bool) {
	var next time.Time
	for _, d := range q.delayed[queueName] {
		if next.IsZero() || d.due.Before(next) {
			next = d.due
		}
	}
	for _, f := range q.inflight {
		if f.queue == queueName && (next.IsZero() || f.expires.Before(next)) {
			next = f.expires
		}
	}
	return next, !next.IsZero()
}

func (q *Queue) signalLocked(queueName string) {
	chans := q.waiters[queueName]
	if len(chans) == 0 {
		return
	}
	ch := chans[0]
	q.waiters[queueName] = chans[1:]
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (q *Queue) removeWaiter(queueName string, ch chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	chans := q.waiters[queueName]
	for i, c := range chans {
		if c == ch {
			q.waiters[queueName] = append(chans[:i], chans[i+1:]...)
			return
		}
	}
}

// cloneEnvelope copies env with its own payload map so consumers cannot
// mutate queued state through the delivery.
func cloneEnvelope(env job.Envelope) job.Envelope {
	if env.Payload != nil {
		env.Payload = maps.Clone(env.Payload)
	}
	return env
}
