// Package queue defines the transport abstraction the consumer runs on:
// leased at-least-once delivery, follow-up dispatch, and per-queue rate
// limiting.
//
// Queues are named channels of serialized [job.Envelope] messages. The
// consumer leases messages through [Client.Dequeue] and settles each one
// exactly once, with [Client.Ack] or [Client.Requeue]; a lease that is
// never settled falls back to the queue when the transport's visibility
// window expires, so a crashed worker loses no work.
//
// [Dispatcher.Send] is the producing side, used by job handlers to emit
// follow-up work and by the retry path to push next-attempt envelopes
// after a backoff delay.
//
// Two implementations ship with this module: queue/memory for tests and
// development, and queue/redis backed by Redis lists.
//
// # Per-Queue Limits
//
// Use [Config] to set per-queue rate limits and concurrency caps:
//
//	queue.Config{
//	    Name:           "catalog",
//	    MaxConcurrency: 5,      // max 5 concurrent catalog jobs
//	    RateLimit:      10,     // max 10 jobs/s dequeued from this queue
//	    RateBurst:      20,     // allow bursts up to 20
//	}
//
// [Limiter] enforces the limits at dequeue time using a token-bucket
// rate limiter (golang.org/x/time/rate) and an active-count gate:
//
//	l := queue.NewLimiter(configs...)
//	if l.Acquire(queueName) {
//	    defer l.Release(queueName)
//	    // process the job
//	}
//
// Queues without a [Config] have no limits beyond the pool-wide
// concurrency.
package queue
