// Package redis implements the queue transport on Redis lists.
//
// Each named queue uses the reliable-queue shape: producers LPUSH onto a
// ready List, consumers BLMOVE the oldest message into a processing List
// and record a lease deadline in a Hash. Settling a delivery (ack or
// requeue) removes the message from the processing List and the Hash in
// one server-side script, so a message is never half-settled. Delayed
// messages wait in a Sorted Set scored by due time.
//
// A maintenance pass ([Queue.Maintain]) promotes due delayed messages
// and returns expired leases to the ready List; run it from exactly one
// goroutine per process.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	q := redisqueue.New(client)
//	go q.Maintain(ctx, "catalog")
package redis

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

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

const (
	// DefaultVisibilityTimeout bounds how long a leased message stays
	// invisible before maintenance hands it out again. Keep it longer
	// than the consumer's staleness threshold: a crashed worker's
	// record must look stale by the time its lease expires, or the
	// redelivery is treated as a duplicate of live work and dropped.
	DefaultVisibilityTimeout = 15 * time.Minute

	// DefaultMaintenanceInterval is how often Maintain promotes due
	// delayed messages and recovers expired leases.
	DefaultMaintenanceInterval = 15 * time.Second

	// promoteBatch caps how many delayed messages one maintenance pass
	// promotes per queue.
	promoteBatch = 100
)

// ackScript settles a lease: only the lease holder's HDEL succeeds, so
// a message recovered by maintenance cannot be double-settled.
var ackScript = redis.NewScript(`
if redis.call('HDEL', KEYS[2], ARGV[1]) == 1 then
  redis.call('LREM', KEYS[1], 1, ARGV[1])
  return 1
end
return 0
`)

// requeueScript settles a lease and enqueues a replacement message in
// the same transaction. ARGV: old raw, new raw, due score, delayed flag.
var requeueScript = redis.NewScript(`
if redis.call('HDEL', KEYS[3], ARGV[1]) == 1 then
  redis.call('LREM', KEYS[1], 1, ARGV[1])
  if ARGV[4] == '1' then
    redis.call('ZADD', KEYS[4], ARGV[3], ARGV[2])
  else
    redis.call('LPUSH', KEYS[2], ARGV[2])
  end
  return 1
end
return 0
`)

// recoverScript returns one expired lease to the ready List. The LREM
// guard keeps a concurrently settled message from being duplicated.
var recoverScript = redis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 1 then
  redis.call('LPUSH', KEYS[2], ARGV[1])
end
redis.call('HDEL', KEYS[3], ARGV[1])
return 1
`)

// Option configures the Queue.
type Option func(*Queue)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithVisibilityTimeout overrides the lease duration for unacked messages.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *Queue) { q.visibility = d }
}

// WithMaintenanceInterval overrides how often Maintain runs its pass.
func WithMaintenanceInterval(d time.Duration) Option {
	return func(q *Queue) { q.maintenance = d }
}

// Queue is a Redis-backed transport.
type Queue struct {
	client      redis.Cmdable
	logger      *slog.Logger
	visibility  time.Duration
	maintenance time.Duration
}

// New creates a Redis-backed queue transport. The caller owns the Redis
// client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Queue {
	q := &Queue{
		client:      client,
		logger:      slog.Default(),
		visibility:  DefaultVisibilityTimeout,
		maintenance: DefaultMaintenanceInterval,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Client returns the underlying Redis client.
func (q *Queue) Client() redis.Cmdable { return q.client }

// Ping verifies the Redis connection is alive.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (q *Queue) Close() error { return nil }

// Enqueue pushes env onto the named queue, after delay if one is given.
func (q *Queue) Enqueue(ctx context.Context, queueName string, env job.Envelope, delay time.Duration) error {
	raw, err := env.Encode()
	if err != nil {
		return err
	}
	if delay > 0 {
		due := float64(time.Now().Add(delay).Unix())
		return q.client.ZAdd(ctx, delayedKey(queueName), redis.Z{Score: due, Member: string(raw)}).Err()
	}
	return q.client.LPush(ctx, readyKey(queueName), raw).Err()
}

// Send implements queue.Dispatcher.
func (q *Queue) Send(ctx context.Context, req queue.DispatchRequest) error {
	return q.Enqueue(ctx, req.TargetQueue, req.Envelope, req.Delay)
}

// Dequeue leases the oldest ready message, blocking up to timeout.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Delivery, error) {
	raw, err := q.client.BLMove(ctx, readyKey(queueName), processingKey(queueName), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, curator.ErrNoMessage
	}
	if err != nil {
		return nil, err
	}

	deadline := strconv.FormatInt(time.Now().Add(q.visibility).Unix(), 10)
	if err := q.client.HSet(ctx, deadlinesKey(queueName), raw, deadline).Err(); err != nil {
		// The lease stands without a recorded deadline; maintenance
		// adopts such orphans, so processing can continue.
		q.logger.Warn("failed to record lease deadline",
			"queue", queueName,
			"error", err)
	}

	env, err := job.Decode([]byte(raw))
	if err != nil {
		q.parkMalformed(ctx, queueName, raw, err)
		return nil, curator.ErrNoMessage
	}

	return &queue.Delivery{
		Queue:    queueName,
		Envelope: env,
		Receipt:  raw,
	}, nil
}

// Ack settles a leased message permanently.
func (q *Queue) Ack(ctx context.Context, d *queue.Delivery) error {
	n, err := ackScript.Run(ctx, q.client,
		[]string{processingKey(d.Queue), deadlinesKey(d.Queue)},
		d.Receipt,
	).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return curator.ErrStaleDelivery
	}
	return nil
}

// Requeue settles the lease and enqueues env in its place after delay.
func (q *Queue) Requeue(ctx context.Context, d *queue.Delivery, env job.Envelope, delay time.Duration) error {
	raw, err := env.Encode()
	if err != nil {
		return err
	}
	delayedFlag := "0"
	var due float64
	if delay > 0 {
		delayedFlag = "1"
		due = float64(time.Now().Add(delay).Unix())
	}
	n, err := requeueScript.Run(ctx, q.client,
		[]string{
			processingKey(d.Queue),
			readyKey(d.Queue),
			deadlinesKey(d.Queue),
			delayedKey(d.Queue),
		},
		d.Receipt, string(raw), due, delayedFlag,
	).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return curator.ErrStaleDelivery
	}
	return nil
}

// Peek implements queue.Peeker: ready messages, newest first.
func (q *Queue) Peek(ctx context.Context, queueName string, limit int) ([]job.Envelope, error) {
	if limit <= 0 {
		limit = promoteBatch
	}
	raws, err := q.client.LRange(ctx, readyKey(queueName), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]job.Envelope, 0, len(raws))
	for _, raw := range raws {
		env, err := job.Decode([]byte(raw))
		if err != nil {
			// Left in place; the dequeue path parks it.
			continue
		}
		out = append(out, env)
	}
	return out, nil
}

// Maintain runs the maintenance loop for the named queues until ctx is
// done: due delayed messages are promoted and expired leases recovered.
func (q *Queue) Maintain(ctx context.Context, queues ...string) error {
	ticker := time.NewTicker(q.maintenance)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, name := range queues {
				q.maintainQueue(ctx, name)
			}
		}
	}
}

func (q *Queue) maintainQueue(ctx context.Context, queueName string) {
	if err := q.promoteDue(ctx, queueName); err != nil {
		q.logger.Error("failed to promote delayed messages",
			"queue", queueName,
			"error", err)
	}
	if err := q.adoptOrphans(ctx, queueName); err != nil {
		q.logger.Error("failed to adopt orphaned leases",
			"queue", queueName,
			"error", err)
	}
	if err := q.recoverExpired(ctx, queueName); err != nil {
		q.logger.Error("failed to recover expired leases",
			"queue", queueName,
			"error", err)
	}
}

// promoteDue moves delayed messages whose due time has passed onto the
// ready List.
func (q *Queue) promoteDue(ctx context.Context, queueName string) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	raws, err := q.client.ZRangeByScore(ctx, delayedKey(queueName), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatch,
	}).Result()
	if err != nil || len(raws) == 0 {
		return err
	}

	pipe := q.client.TxPipeline()
	for _, raw := range raws {
		pipe.LPush(ctx, readyKey(queueName), raw)
		pipe.ZRem(ctx, delayedKey(queueName), raw)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// adoptOrphans assigns a lease deadline to processing messages that have
// none. A consumer that crashed between moving a message and recording
// its deadline leaves such an orphan; adopting it starts the normal
// visibility clock instead of requeueing live work.
func (q *Queue) adoptOrphans(ctx context.Context, queueName string) error {
	raws, err := q.client.LRange(ctx, processingKey(queueName), 0, -1).Result()
	if err != nil || len(raws) == 0 {
		return err
	}
	deadline := strconv.FormatInt(time.Now().Add(q.visibility).Unix(), 10)
	for _, raw := range raws {
		ok, err := q.client.HSetNX(ctx, deadlinesKey(queueName), raw, deadline).Result()
		if err != nil {
			return err
		}
		if ok {
			q.logger.Warn("adopted orphaned lease", "queue", queueName)
		}
	}
	return nil
}

// recoverExpired returns messages whose lease expired to the ready List.
func (q *Queue) recoverExpired(ctx context.Context, queueName string) error {
	deadlines, err := q.client.HGetAll(ctx, deadlinesKey(queueName)).Result()
	if err != nil || len(deadlines) == 0 {
		return err
	}

	now := time.Now().Unix()
	for raw, deadline := range deadlines {
		expiry, err := strconv.ParseInt(deadline, 10, 64)
		if err != nil {
			expiry = 0 // unreadable deadline, treat as expired
		}
		if expiry > now {
			continue
		}
		if err := recoverScript.Run(ctx, q.client,
			[]string{processingKey(queueName), readyKey(queueName), deadlinesKey(queueName)},
			raw,
		).Err(); err != nil {
			return err
		}
		q.logger.Warn("recovered expired lease", "queue", queueName)
	}
	return nil
}

// parkMalformed moves an undecodable message out of the processing List
// so it cannot wedge the consumer, keeping it for operator inspection.
func (q *Queue) parkMalformed(ctx context.Context, queueName, raw string, decodeErr error) {
	q.logger.Error("parking malformed message",
		"queue", queueName,
		"error", decodeErr)

	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, malformedKey(queueName), raw)
	pipe.LRem(ctx, processingKey(queueName), 1, raw)
	pipe.HDel(ctx, deadlinesKey(queueName), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Error("failed to park malformed message",
			"queue", queueName,
			"error", err)
	}
}
