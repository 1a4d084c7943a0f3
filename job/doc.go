// Package job defines the core data model for queue-driven catalog
// processing: the immutable Envelope pulled off the queue, the durable
// Record tracking per-job lifecycle, and the Store contract whose
// compare-and-set operation is the single coordination primitive
// between competing workers.
package job
