package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/curator"
	"github.com/xraph/curator/id"
	"github.com/xraph/curator/queue"
)

// limiterRetryDelay is how long a delivery rejected by the per-queue
// limiter waits before it becomes leasable again.
const limiterRetryDelay = time.Second

// dequeueErrorDelay is the pause after a transport error before the
// loop polls again.
const dequeueErrorDelay = time.Second

// Pool runs the consumer loop: a set of goroutines that lease
// deliveries from the transport and hand them to the Executor, plus a
// touch loop that keeps active claims inside the staleness threshold.
type Pool struct {
	client   queue.Client
	executor *Executor
	logger   *slog.Logger

	concurrency       int
	queues            []string
	pollTimeout       time.Duration
	heartbeatInterval time.Duration
	limiter           *queue.Limiter

	dequeueCtx    context.Context
	dequeueCancel context.CancelFunc

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent dequeue goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPoolQueues sets the queues the pool leases from. Each goroutine
// round-robins over them.
func WithPoolQueues(queues []string) PoolOption {
	return func(p *Pool) { p.queues = queues }
}

// WithPollTimeout sets how long a blocking dequeue waits before
// returning empty and letting the loop go around.
func WithPollTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollTimeout = d }
}

// WithHeartbeatInterval sets how often active claims are touched. A
// zero value disables the touch loop.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithLimiter sets the per-queue rate and concurrency limiter.
func WithLimiter(l *queue.Limiter) PoolOption {
	return func(p *Pool) { p.limiter = l }
}

// NewPool creates a worker pool around the given transport client and
// executor.
func NewPool(client queue.Client, executor *Executor, logger *slog.Logger, opts ...PoolOption) *Pool {
	dequeueCtx, dequeueCancel := context.WithCancel(context.Background())
	p := &Pool{
		client:            client,
		executor:          executor,
		logger:            logger,
		concurrency:       4,
		queues:            []string{"catalog"},
		pollTimeout:       30 * time.Second,
		heartbeatInterval: 30 * time.Second,
		dequeueCtx:        dequeueCtx,
		dequeueCancel:     dequeueCancel,
		stopCh:            make(chan struct{}),
		activeJobs:        make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the identity the pool's executor claims jobs under.
func (p *Pool) WorkerID() id.WorkerID { return p.executor.WorkerID() }

// Start launches the dequeue goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.WorkerID().String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.queues),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.dequeueLoop()
	}

	if p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go p.touchLoop()
	}

	return nil
}

// Stop unblocks the dequeue goroutines and waits for in-flight work to
// finish. If the context has a deadline, active jobs are cancelled when
// time runs out; their records go stale and another worker reclaims
// them past the staleness threshold.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.WorkerID().String()))

	close(p.stopCh)
	p.dequeueCancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}

	return nil
}

// dequeueLoop is run by each pool goroutine.
func (p *Pool) dequeueLoop() {
	defer p.wg.Done()

	for i := 0; ; i++ {
		select {
		case <-p.stopCh:
			return
		default:
		}

		queueName := p.queues[i%len(p.queues)]
		d, err := p.client.Dequeue(p.dequeueCtx, queueName, p.pollTimeout)
		switch {
		case errors.Is(err, curator.ErrNoMessage):
			continue
		case errors.Is(err, curator.ErrQueueClosed), errors.Is(err, context.Canceled):
			return
		case err != nil:
			p.logger.Error("dequeue error",
				slog.String("queue", queueName),
				slog.String("error", err.Error()),
			)
			p.sleep(dequeueErrorDelay)
			continue
		}

		p.handle(d)
	}
}

// handle runs one leased delivery through the executor, tracking it so
// the touch loop and shutdown cancellation can see it.
func (p *Pool) handle(d *queue.Delivery) {
	if p.limiter != nil && !p.limiter.Acquire(d.Queue) {
		// Over the queue's limit: put the message back with a small
		// delay instead of sitting on the lease.
		if err := p.client.Requeue(context.Background(), d, d.Envelope, limiterRetryDelay); err != nil {
			p.logger.Error("requeue rate-limited delivery",
				slog.String("job_id", d.Envelope.ID),
				slog.String("queue", d.Queue),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.trackJob(d.Envelope.ID, cancel)

	if err := p.executor.Handle(ctx, d); err != nil {
		p.logger.Error("delivery left unsettled",
			slog.String("job_id", d.Envelope.ID),
			slog.String("queue", d.Queue),
			slog.String("error", err.Error()),
		)
	}

	p.untrackJob(d.Envelope.ID)
	cancel()

	if p.limiter != nil {
		p.limiter.Release(d.Queue)
	}
}

// touchLoop periodically refreshes the claims of all active jobs.
func (p *Pool) touchLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.touchActiveJobs()
		}
	}
}

func (p *Pool) touchActiveJobs() {
	p.activeMu.Lock()
	ids := make([]string, 0, len(p.activeJobs))
	for jobID := range p.activeJobs {
		ids = append(ids, jobID)
	}
	p.activeMu.Unlock()

	for _, jobID := range ids {
		p.executor.Touch(context.Background(), jobID)
	}
}

func (p *Pool) sleep(d time.Duration) {
	select {
	case <-time.After(d):
	case <-p.stopCh:
	}
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
