package curator

import (
	"context"
	"log/slog"
)

// Option configures a Consumer.
type Option func(*Consumer) error

// Storer is the minimal store interface held by the Consumer.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Transport is the minimal queue-client interface held by the Consumer,
// again lifecycle only. The full contract lives in the queue package.
type Transport interface {
	Close() error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Consumer is the central coordinator for catalog job consumption: the
// worker pool, the state store, the queue transport, and lifecycle hooks.
//
// Create one with New() and functional options. The Consumer holds
// references to subsystem components via internal interfaces to avoid
// import cycles. Use engine.Build to wire everything together.
type Consumer struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	transport  Transport
	extensions extensionEmitter
	pool       poolRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Consumer with the given options.
func New(opts ...Option) (*Consumer, error) {
	c := &Consumer{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Logger returns the consumer's logger.
func (c *Consumer) Logger() *slog.Logger { return c.logger }

// Store returns the consumer's store.
func (c *Consumer) Store() Storer { return c.store }

// Transport returns the consumer's queue client.
func (c *Consumer) Transport() Transport { return c.transport }

// Config returns a copy of the consumer's configuration.
func (c *Consumer) Config() Config { return c.config }

// SetPool sets the worker pool (called by the engine package).
func (c *Consumer) SetPool(p poolRunner) { c.pool = p }

// SetExtensions sets the extension emitter (called by the engine package).
func (c *Consumer) SetExtensions(e extensionEmitter) { c.extensions = e }

// Start begins consuming jobs. The pool is wired by engine.Build; a
// Consumer that was never built cannot start.
func (c *Consumer) Start(ctx context.Context) error {
	if c.pool == nil {
		return ErrNoPool
	}
	if err := c.pool.Start(ctx); err != nil {
		return err
	}
	c.started = true
	return nil
}

// Stop gracefully shuts down the consumer.
func (c *Consumer) Stop(ctx context.Context) error {
	if c.pool != nil && c.started {
		if err := c.pool.Stop(ctx); err != nil {
			c.logger.Error("pool stop error", "error", err)
		}
	}
	if c.extensions != nil {
		c.extensions.EmitShutdown(ctx)
	}
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			c.logger.Error("queue close error", "error", err)
		}
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// WithConcurrency sets the number of concurrent worker goroutines.
func WithConcurrency(n int) Option {
	return func(c *Consumer) error {
		c.config.Concurrency = n
		return nil
	}
}

// WithQueues sets the queues the consumer will dequeue from.
func WithQueues(queues []string) Option {
	return func(c *Consumer) error {
		c.config.Queues = queues
		return nil
	}
}

// WithLogger sets the structured logger for the consumer.
func WithLogger(l *slog.Logger) Option {
	return func(c *Consumer) error {
		c.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the consumer.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(c *Consumer) error {
		c.store = s
		return nil
	}
}

// WithTransport sets the queue client whose lifecycle the consumer owns.
func WithTransport(t Transport) Option {
	return func(c *Consumer) error {
		c.transport = t
		return nil
	}
}

// WithConfig replaces the whole configuration in one call.
func WithConfig(cfg Config) Option {
	return func(c *Consumer) error {
		c.config = cfg
		return nil
	}
}
