package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/curator"
	"github.com/xraph/curator/backoff"
	"github.com/xraph/curator/dlq"
	"github.com/xraph/curator/ext"
	"github.com/xraph/curator/id"
	"github.com/xraph/curator/job"
	mw "github.com/xraph/curator/middleware"
	"github.com/xraph/curator/processor"
	"github.com/xraph/curator/queue"
	"github.com/xraph/curator/schedule"
	"github.com/xraph/curator/worker"
)

// Engine holds the fully wired consumer. Use Build to create one.
type Engine struct {
	c      *curator.Consumer
	config curator.Config
	logger *slog.Logger

	extensions *ext.Registry
	proc       *processor.Processor
	quarantine *dlq.Service
	pool       *worker.Pool
	scheduler  *schedule.Scheduler

	records    job.Store
	client     queue.Client
	dispatcher queue.Dispatcher
	limiter    *queue.Limiter

	bo           backoff.Strategy
	mws          []mw.Middleware
	transforms   map[job.Type]processor.Transform
	entries      []schedule.Entry
	queueConfigs []queue.Config
	indexer      processor.Indexer
	sink         processor.Sink

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu          sync.Mutex
	running     bool
	schedulerOn bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers a lifecycle extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware appends middleware to the processing chain, inside the
// default stack and closest to the transform.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy. If not set, exponential
// backoff from Config.BackoffBase to Config.BackoffCap is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithTransform overrides the transform for one job type. The default
// transforms cover the full type set, so overriding is opt-in per type.
func WithTransform(t job.Type, fn processor.Transform) Option {
	return func(eng *Engine) {
		eng.transforms[t] = fn
	}
}

// WithIndexer sets the search index the rebuild transform refreshes.
// Defaults to processor.NoopIndexer.
func WithIndexer(i processor.Indexer) Option {
	return func(eng *Engine) {
		eng.indexer = i
	}
}

// WithNotifySink sets the channel notify jobs deliver to. Defaults to
// processor.LogSink on the consumer's logger.
func WithNotifySink(s processor.Sink) Option {
	return func(eng *Engine) {
		eng.sink = s
	}
}

// WithScheduleEntry registers a recurring entry with the scheduler. The
// scheduler only runs when at least one entry is registered.
func WithScheduleEntry(e schedule.Entry) Option {
	return func(eng *Engine) {
		eng.entries = append(eng.entries, e)
	}
}

// WithQueueConfig registers per-queue concurrency and rate limits.
// Queues not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build wires an Engine from a configured Consumer. The consumer's
// store must implement job.Store and dlq.Store; its transport must
// implement queue.Client and queue.Dispatcher.
func Build(c *curator.Consumer, opts ...Option) (*Engine, error) {
	logger := c.Logger()
	cfg := c.Config()

	st := c.Store()
	if st == nil {
		return nil, curator.ErrNoStore
	}
	records, ok := st.(job.Store)
	if !ok {
		return nil, fmt.Errorf("curator/engine: store does not implement job.Store")
	}
	quarantineStore, ok := st.(dlq.Store)
	if !ok {
		return nil, fmt.Errorf("curator/engine: store does not implement dlq.Store")
	}

	tr := c.Transport()
	if tr == nil {
		return nil, curator.ErrNoQueue
	}
	client, ok := tr.(queue.Client)
	if !ok {
		return nil, fmt.Errorf("curator/engine: transport does not implement queue.Client")
	}
	dispatcher, ok := tr.(queue.Dispatcher)
	if !ok {
		return nil, fmt.Errorf("curator/engine: transport does not implement queue.Dispatcher")
	}

	eng := &Engine{
		c:          c,
		config:     cfg,
		logger:     logger,
		extensions: ext.NewRegistry(logger),
		records:    records,
		client:     client,
		dispatcher: dispatcher,
		transforms: make(map[job.Type]processor.Transform),
		indexer:    processor.NoopIndexer{},
		sink:       processor.LogSink{Logger: logger},
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.NewExponential(cfg.BackoffBase, cfg.BackoffCap)
	}

	eng.quarantine = dlq.NewService(quarantineStore, records, dispatcher)

	// Middleware stack, outermost first. Custom middleware run inside
	// the defaults, closest to the transform.
	tracingMw := mw.Tracing()
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/curator"))
	}
	metricsMw := mw.Metrics()
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/curator"))
	}
	stack := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(cfg.ProcessingDeadline),
	}
	stack = append(stack, eng.mws...)

	eng.proc = processor.New(dispatcher, logger, stack...)
	eng.proc.Register(job.TypeCatalogEntry, processor.CatalogEntry(processor.DefaultCatalogQueue, processor.DefaultNotifyQueue))
	eng.proc.Register(job.TypeRebuild, processor.Rebuild(processor.DefaultNotifyQueue, eng.indexer))
	eng.proc.Register(job.TypeNotify, processor.Notify(eng.sink))
	for t, fn := range eng.transforms {
		eng.proc.Register(t, fn)
	}
	if err := eng.proc.Complete(); err != nil {
		return nil, err
	}

	executor := worker.NewExecutor(eng.proc, records, client, eng.quarantine, eng.extensions, logger,
		worker.WithMaxAttempts(cfg.MaxAttempts),
		worker.WithStalenessThreshold(cfg.StalenessThreshold),
		worker.WithBackoff(eng.bo),
		worker.WithSupersedeCheck(cfg.SupersedeCheck),
	)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(cfg.Concurrency),
		worker.WithPoolQueues(cfg.Queues),
		worker.WithPollTimeout(cfg.PollTimeout),
		worker.WithHeartbeatInterval(cfg.HeartbeatInterval),
	}
	if len(eng.queueConfigs) > 0 {
		eng.limiter = queue.NewLimiter(eng.queueConfigs...)
		poolOpts = append(poolOpts, worker.WithLimiter(eng.limiter))
	}
	eng.pool = worker.NewPool(client, executor, logger, poolOpts...)

	eng.scheduler = schedule.NewScheduler(dispatcher, eng.extensions, logger)
	for _, e := range eng.entries {
		if err := eng.scheduler.Add(e); err != nil {
			return nil, err
		}
	}

	c.SetPool(eng.pool)
	c.SetExtensions(eng.extensions)

	return eng, nil
}

// Start launches the scheduler (when entries are registered) and the
// worker pool. Most callers use Run instead.
func (eng *Engine) Start(ctx context.Context) error {
	eng.mu.Lock()
	if eng.running {
		eng.mu.Unlock()
		return nil
	}
	eng.running = true
	startScheduler := len(eng.scheduler.Entries()) > 0
	eng.schedulerOn = startScheduler
	eng.mu.Unlock()

	if startScheduler {
		if err := eng.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("curator/engine: start scheduler: %w", err)
		}
	}
	return eng.c.Start(ctx)
}

// Stop shuts the engine down: the scheduler first so no new fires
// enqueue, then the consumer, which drains the pool and closes the
// transport and store.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	if !eng.running {
		eng.mu.Unlock()
		return nil
	}
	eng.running = false
	stopScheduler := eng.schedulerOn
	eng.schedulerOn = false
	eng.mu.Unlock()

	if stopScheduler {
		if err := eng.scheduler.Stop(ctx); err != nil {
			eng.logger.Error("scheduler stop error", slog.String("error", err.Error()))
		}
	}
	return eng.c.Stop(ctx)
}

// Run starts the engine and blocks until ctx is cancelled, then shuts
// down within Config.ShutdownTimeout. When the transport implements
// queue.Maintainer, a maintenance loop runs alongside the pool and a
// maintenance failure brings the engine down.
func (eng *Engine) Run(ctx context.Context) error {
	if err := eng.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if m, ok := eng.client.(queue.Maintainer); ok {
		g.Go(func() error {
			err := m.Maintain(gctx, eng.config.Queues...)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("curator/engine: queue maintenance: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), eng.config.ShutdownTimeout)
		defer cancel()
		return eng.Stop(stopCtx)
	})

	return g.Wait()
}

// Enqueue validates env and pushes it onto the named queue. Producers
// embedded in the same process use this instead of a separate client.
func (eng *Engine) Enqueue(ctx context.Context, queueName string, env job.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	return eng.dispatcher.Send(ctx, queue.DispatchRequest{TargetQueue: queueName, Envelope: env})
}

// Replay re-enqueues a quarantined job for one more attempt. See
// dlq.Service.Replay.
func (eng *Engine) Replay(ctx context.Context, entryID id.QuarantineID) (job.Envelope, error) {
	return eng.quarantine.Replay(ctx, entryID)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Processor returns the processor.
func (eng *Engine) Processor() *processor.Processor { return eng.proc }

// Quarantine returns the quarantine service for replay and inspection.
func (eng *Engine) Quarantine() *dlq.Service { return eng.quarantine }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Scheduler returns the scheduler.
func (eng *Engine) Scheduler() *schedule.Scheduler { return eng.scheduler }

// Consumer returns the underlying consumer.
func (eng *Engine) Consumer() *curator.Consumer { return eng.c }

// Limiter returns the per-queue limiter, or nil when no queue configs
// were provided.
func (eng *Engine) Limiter() *queue.Limiter { return eng.limiter }
