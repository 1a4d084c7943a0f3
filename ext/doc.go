// Package ext defines the extension system for Curator.
//
// Extensions are notified of job lifecycle events and can react to
// them: recording metrics, emitting webhooks, writing audit logs.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobSucceeded(ctx context.Context, env *job.Envelope, elapsed time.Duration) error {
//	    log.Printf("job %s succeeded in %s", env.ID, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobClaimed]: a worker took the processing claim on a job
//   - [JobSucceeded]: the job finished successfully
//   - [JobRetrying]: the attempt failed and a retry was scheduled
//   - [JobDead]: the job exhausted its retries or failed fatally
//   - [JobSuperseded]: a newer envelope for the same target made the job moot
//
// # Other Hooks
//
//   - [ScheduleFired]: a schedule entry fired and enqueued a job
//   - [Shutdown]: the consumer is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
