package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/curator/ext"
	"github.com/xraph/curator/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*Extension)(nil)
	_ ext.JobClaimed    = (*Extension)(nil)
	_ ext.JobSucceeded  = (*Extension)(nil)
	_ ext.JobRetrying   = (*Extension)(nil)
	_ ext.JobDead       = (*Extension)(nil)
	_ ext.JobSuperseded = (*Extension)(nil)
	_ ext.ScheduleFired = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so the package carries no dependency on any particular
// trail store — callers inject the concrete backend at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is the structured record handed to the Recorder.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges curator lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobClaimed implements ext.JobClaimed.
func (e *Extension) OnJobClaimed(ctx context.Context, env *job.Envelope, rec *job.Record) error {
	return e.record(ctx, ActionJobClaimed, SeverityInfo, OutcomeSuccess,
		ResourceJob, env.ID, CategoryJob, nil,
		"job_type", string(env.Type),
		"attempt", rec.Attempt,
		"claimed_by", rec.ClaimedBy.String(),
	)
}

// OnJobSucceeded implements ext.JobSucceeded.
func (e *Extension) OnJobSucceeded(ctx context.Context, env *job.Envelope, elapsed time.Duration) error {
	return e.record(ctx, ActionJobSucceeded, SeverityInfo, OutcomeSuccess,
		ResourceJob, env.ID, CategoryJob, nil,
		"job_type", string(env.Type),
		"attempt", env.Attempt,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, env *job.Envelope, attempt int, delay time.Duration) error {
	return e.record(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure,
		ResourceJob, env.ID, CategoryJob, nil,
		"job_type", string(env.Type),
		"attempt", attempt,
		"delay", delay.String(),
	)
}

// OnJobDead implements ext.JobDead.
func (e *Extension) OnJobDead(ctx context.Context, env *job.Envelope, cause error) error {
	return e.record(ctx, ActionJobDead, SeverityCritical, OutcomeFailure,
		ResourceJob, env.ID, CategoryJob, cause,
		"job_type", string(env.Type),
		"attempt", env.Attempt,
	)
}

// OnJobSuperseded implements ext.JobSuperseded.
func (e *Extension) OnJobSuperseded(ctx context.Context, env *job.Envelope, by *job.Envelope) error {
	return e.record(ctx, ActionJobSuperseded, SeverityInfo, OutcomeSuccess,
		ResourceJob, env.ID, CategoryJob, nil,
		"job_type", string(env.Type),
		"superseded_by", by.ID,
	)
}

// ── Schedule lifecycle hooks ────────────────────────

// OnScheduleFired implements ext.ScheduleFired.
func (e *Extension) OnScheduleFired(ctx context.Context, entryName string, jobID string) error {
	return e.record(ctx, ActionScheduleFired, SeverityInfo, OutcomeSuccess,
		ResourceSchedule, entryName, CategorySchedule, nil,
		"job_id", jobID,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	// Audit failures must not block the consumer loop.
	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
