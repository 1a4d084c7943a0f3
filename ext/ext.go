package ext

import (
	"context"
	"time"

	"github.com/xraph/curator/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobClaimed is called after a worker wins the processing claim on a
// job, before the transform runs.
type JobClaimed interface {
	OnJobClaimed(ctx context.Context, env *job.Envelope, rec *job.Record) error
}

// JobSucceeded is called after a job finishes successfully.
type JobSucceeded interface {
	OnJobSucceeded(ctx context.Context, env *job.Envelope, elapsed time.Duration) error
}

// JobRetrying is called when an attempt fails and a retry is scheduled.
// attempt is the upcoming attempt number, delay the backoff before it.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, env *job.Envelope, attempt int, delay time.Duration) error
}

// JobDead is called when a job is quarantined: its retry budget is
// exhausted or the failure was fatal.
type JobDead interface {
	OnJobDead(ctx context.Context, env *job.Envelope, cause error) error
}

// JobSuperseded is called when a job is dropped because a newer
// envelope for the same target is already waiting in the queue.
type JobSuperseded interface {
	OnJobSuperseded(ctx context.Context, env *job.Envelope, by *job.Envelope) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// ScheduleFired is called when a schedule entry fires and enqueues a job.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, entryName string, jobID string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
