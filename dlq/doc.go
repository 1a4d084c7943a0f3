// Package dlq provides the quarantine for jobs that failed fatally or
// exhausted their retry budget. It supports inspection, replay, and
// purging.
//
// When a job's record is marked dead, the executor calls [Service.Push]
// to quarantine it. The original payload, final error, and attempt count
// are preserved for debugging.
//
// # Entry
//
// An [Entry] captures:
//   - JobID / JobType / Queue: original job identity and source queue
//   - Payload: the payload at time of death
//   - Reason: the final error message
//   - Attempt: the attempt count when the job died
//   - QuarantinedAt: when the terminal failure occurred
//   - ReplayedAt: set when the entry is replayed (nil if not yet replayed)
//
// # Service
//
// [Service] wraps the quarantine store with high-level operations:
//
//	svc := dlq.NewService(store, store, dispatcher)
//
//	// Push is called automatically by the executor on terminal failure.
//	svc.Push(ctx, env, "catalog", err)
//
//	// Access the underlying store for list/get/purge/count.
//	svc.DLQStore().ListDLQ(ctx, dlq.ListOpts{Limit: 50})
//	svc.DLQStore().PurgeDLQ(ctx, cutoff)
//
// # Replay
//
// Replay is the operator intervention for dead jobs. It re-enqueues the
// original envelope under the SAME job id with the recorded attempt
// count, resets the job record to pending, and sets ReplayedAt on the
// entry. Keeping the attempt count means the job gets exactly one more
// automatic attempt unless it succeeds; replay again if that one also
// dies. The `curator replay` CLI command drives this.
package dlq
