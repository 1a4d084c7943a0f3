// Package audithook is a curator extension that bridges job lifecycle
// events to an immutable audit trail backend.
//
// Every job and schedule lifecycle hook emits a structured audit event
// through the [Recorder] interface. The extension assigns severity levels
// (info for normal operations, warning for retries, critical for
// quarantine) and metadata (job type, attempt, elapsed time, errors).
//
// # Usage
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return trail.Append(ctx, evt.Action, evt.ResourceID, evt.Metadata)
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobDead,
//	        audithook.ActionJobRetrying,
//	    ),
//	)
package audithook
