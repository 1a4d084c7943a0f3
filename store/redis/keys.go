package redis

// Redis key naming conventions for curator store data.
// All keys are prefixed with "curator:" to avoid collisions.

const keyPrefix = "curator:"

// ── Record keys ──

// recordKey returns the key for a record hash: curator:record:{job_id}
func recordKey(jobID string) string { return keyPrefix + "record:" + jobID }

// recordIDsKey is the Sorted Set indexing all record ids by update time.
const recordIDsKey = keyPrefix + "record_ids"

// ── Quarantine keys ──

// dlqKey returns the key for a quarantine entry hash: curator:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqIDsKey is the Sorted Set indexing quarantine ids by quarantine time.
const dlqIDsKey = keyPrefix + "dlq_ids"
