package curator

import "time"

// Config holds configuration for the Consumer.
type Config struct {
	// Concurrency is the number of worker goroutines pulling from the queue.
	Concurrency int

	// Queues is the list of queues this consumer will dequeue from.
	Queues []string

	// PollTimeout is how long a blocking dequeue waits before returning
	// empty and letting the loop heartbeat.
	PollTimeout time.Duration

	// ProcessingDeadline is the soft deadline for a single job. Past it the
	// attempt is treated as a retryable failure.
	ProcessingDeadline time.Duration

	// MaxAttempts is the retry budget per job id. A job whose next attempt
	// number would reach this value goes to quarantine instead.
	MaxAttempts int

	// BackoffBase is the initial retry delay (doubled each attempt).
	BackoffBase time.Duration

	// BackoffCap is the upper bound on the retry delay.
	BackoffCap time.Duration

	// StalenessThreshold is how old an in_progress record's updated_at may
	// be before another worker is allowed to reclaim it.
	StalenessThreshold time.Duration

	// HeartbeatInterval is how often active claims are touched so live
	// workers never cross the staleness threshold.
	HeartbeatInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// SupersedeCheck enables skipping a catalog_entry job when a newer
	// delivery for the same repository is already waiting in the queue.
	SupersedeCheck bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:        4,
		Queues:             []string{"catalog"},
		PollTimeout:        30 * time.Second,
		ProcessingDeadline: 300 * time.Second,
		MaxAttempts:        3,
		BackoffBase:        5 * time.Second,
		BackoffCap:         300 * time.Second,
		StalenessThreshold: 10 * time.Minute,
		HeartbeatInterval:  30 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		SupersedeCheck:     true,
	}
}
