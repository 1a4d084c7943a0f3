// Package processor implements the per-type job transforms and their
// dispatch contract.
//
// A Processor maps each member of the closed job.Type set to a
// Transform and runs the matched transform through a middleware chain.
// The result of an attempt is an explicit Outcome variant (success,
// retryable, fatal) that the consumer loop commits to the record store;
// the processor itself never retries.
//
// Transforms are pure per-type functions: given an envelope they return
// the follow-up dispatches to enqueue, or an error. Errors are
// retryable unless wrapped with Permanent. Dispatched job ids derive
// deterministically from (job_id, attempt, index), so re-running an
// attempt reproduces the same ids and duplicate deliveries collapse
// downstream.
package processor
