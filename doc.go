// Package curator provides a queue-driven job consumer for content-catalog
// work. It claims catalog jobs from a shared queue, drives each one through
// a durable lifecycle with idempotent retry semantics, and forwards derived
// work to downstream queues.
//
// Curator is designed as a library with a thin runnable shell. Import it,
// configure a store and a queue client, and register per-type transforms as
// ordinary Go functions.
//
// # Quick Start
//
//	c, err := curator.New(
//	    curator.WithStore(pgStore),
//	    curator.WithConcurrency(4),
//	)
//
// # Architecture
//
// Curator follows a composable store pattern where each subsystem (job,
// dlq) defines its own store interface and a single backend implements all
// of them. Coordination between worker processes happens solely through the
// store's compare-and-set on job records: a job is never processed by two
// fresh claimants at once, never silently dropped, and its terminal state
// is durably recorded before the queue message is acknowledged.
//
// Worker and quarantine identities use TypeID — type-prefixed, K-sortable,
// UUIDv7-based identifiers. Job ids remain opaque producer-assigned
// strings; derived follow-up ids are deterministic sha256 digests so
// duplicate deliveries re-derive identical downstream ids.
package curator
