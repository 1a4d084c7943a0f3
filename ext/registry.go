package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/curator/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobClaimedEntry struct {
	name string
	hook JobClaimed
}

type jobSucceededEntry struct {
	name string
	hook JobSucceeded
}

type jobRetryingEntry struct {
	name string
	hook JobRetrying
}

type jobDeadEntry struct {
	name string
	hook JobDead
}

type jobSupersededEntry struct {
	name string
	hook JobSuperseded
}

type scheduleFiredEntry struct {
	name string
	hook ScheduleFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	jobClaimed    []jobClaimedEntry
	jobSucceeded  []jobSucceededEntry
	jobRetrying   []jobRetryingEntry
	jobDead       []jobDeadEntry
	jobSuperseded []jobSupersededEntry
	scheduleFired []scheduleFiredEntry
	shutdown      []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobClaimed); ok {
		r.jobClaimed = append(r.jobClaimed, jobClaimedEntry{name, h})
	}
	if h, ok := e.(JobSucceeded); ok {
		r.jobSucceeded = append(r.jobSucceeded, jobSucceededEntry{name, h})
	}
	if h, ok := e.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, jobRetryingEntry{name, h})
	}
	if h, ok := e.(JobDead); ok {
		r.jobDead = append(r.jobDead, jobDeadEntry{name, h})
	}
	if h, ok := e.(JobSuperseded); ok {
		r.jobSuperseded = append(r.jobSuperseded, jobSupersededEntry{name, h})
	}
	if h, ok := e.(ScheduleFired); ok {
		r.scheduleFired = append(r.scheduleFired, scheduleFiredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitJobClaimed notifies all extensions that implement JobClaimed.
func (r *Registry) EmitJobClaimed(ctx context.Context, env *job.Envelope, rec *job.Record) {
	for _, e := range r.jobClaimed {
		if err := e.hook.OnJobClaimed(ctx, env, rec); err != nil {
			r.logHookError("OnJobClaimed", e.name, err)
		}
	}
}

// EmitJobSucceeded notifies all extensions that implement JobSucceeded.
func (r *Registry) EmitJobSucceeded(ctx context.Context, env *job.Envelope, elapsed time.Duration) {
	for _, e := range r.jobSucceeded {
		if err := e.hook.OnJobSucceeded(ctx, env, elapsed); err != nil {
			r.logHookError("OnJobSucceeded", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, env *job.Envelope, attempt int, delay time.Duration) {
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, env, attempt, delay); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobDead notifies all extensions that implement JobDead.
func (r *Registry) EmitJobDead(ctx context.Context, env *job.Envelope, cause error) {
	for _, e := range r.jobDead {
		if err := e.hook.OnJobDead(ctx, env, cause); err != nil {
			r.logHookError("OnJobDead", e.name, err)
		}
	}
}

// EmitJobSuperseded notifies all extensions that implement JobSuperseded.
func (r *Registry) EmitJobSuperseded(ctx context.Context, env *job.Envelope, by *job.Envelope) {
	for _, e := range r.jobSuperseded {
		if err := e.hook.OnJobSuperseded(ctx, env, by); err != nil {
			r.logHookError("OnJobSuperseded", e.name, err)
		}
	}
}

// EmitScheduleFired notifies all extensions that implement ScheduleFired.
func (r *Registry) EmitScheduleFired(ctx context.Context, entryName string, jobID string) {
	for _, e := range r.scheduleFired {
		if err := e.hook.OnScheduleFired(ctx, entryName, jobID); err != nil {
			r.logHookError("OnScheduleFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the
// consumer loop.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
