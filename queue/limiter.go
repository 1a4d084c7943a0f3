package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-queue behaviour such as rate limiting and concurrency.
type Config struct {
	// Name is the queue identifier.
	Name string

	// MaxConcurrency limits how many jobs from this queue may run
	// simultaneously across the local worker pool. Zero means no
	// queue-specific limit (pool-wide concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained jobs per second that may be
	// dequeued from this queue. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// queueState tracks runtime state for a single queue.
type queueState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Limiter enforces per-queue rate limits and concurrency caps at
// dequeue time. It is safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	queues map[string]*queueState
}

// NewLimiter creates a Limiter with the given queue configurations.
// Queues not listed here have no limits.
func NewLimiter(configs ...Config) *Limiter {
	l := &Limiter{
		queues: make(map[string]*queueState, len(configs)),
	}
	for _, cfg := range configs {
		l.queues[cfg.Name] = newQueueState(cfg)
	}
	return l
}

func newQueueState(cfg Config) *queueState {
	qs := &queueState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return qs
}

// Acquire checks rate limits and concurrency for the given queue. If
// the job is allowed to proceed it increments the active counter and
// returns true. The caller MUST call Release when the job completes.
func (l *Limiter) Acquire(queue string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	qs := l.queues[queue]
	if qs == nil {
		return true
	}
	if qs.limiter != nil && !qs.limiter.Allow() {
		return false
	}
	if qs.config.MaxConcurrency > 0 && qs.active >= qs.config.MaxConcurrency {
		return false
	}
	qs.active++
	return true
}

// Release decrements the active job count for the queue.
func (l *Limiter) Release(queue string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if qs := l.queues[queue]; qs != nil && qs.active > 0 {
		qs.active--
	}
}

// SetConfig dynamically updates (or creates) a queue configuration.
func (l *Limiter) SetConfig(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.queues[cfg.Name]
	qs := newQueueState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		qs.active = existing.active
	}
	l.queues[cfg.Name] = qs
}

// ActiveCount returns the current number of active jobs for a queue.
func (l *Limiter) ActiveCount(queue string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if qs := l.queues[queue]; qs != nil {
		return qs.active
	}
	return 0
}
