package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/curator"
	"github.com/xraph/curator/id"
)

// Type identifies the kind of work an envelope describes. The set is
// closed: every member must have a registered transform, and the
// processor's startup check fails loudly when one is missing.
type Type string

const (
	// TypeCatalogEntry publishes or updates a single catalog entry.
	TypeCatalogEntry Type = "catalog_entry"
	// TypeRebuild regenerates the catalog index for one subject.
	TypeRebuild Type = "rebuild"
	// TypeNotify delivers a notification about completed catalog work.
	TypeNotify Type = "notify"
)

// Types returns all known job types. The processor iterates this set to
// verify handler registration is exhaustive.
func Types() []Type {
	return []Type{TypeCatalogEntry, TypeRebuild, TypeNotify}
}

// Valid reports whether t is a member of the closed type set.
func (t Type) Valid() bool {
	switch t {
	case TypeCatalogEntry, TypeRebuild, TypeNotify:
		return true
	default:
		return false
	}
}

// String returns the wire representation of the type.
func (t Type) String() string { return string(t) }

// ParseType parses a wire string into a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", curator.ErrUnknownJobType, s)
	}
	return t, nil
}

// Envelope is the immutable unit of work pulled from the queue.
// A retry never mutates an envelope: it enqueues a fresh one sharing the
// job id with the attempt counter incremented (see WithAttempt).
type Envelope struct {
	ID         string         `json:"job_id"`
	Type       Type           `json:"job_type"`
	Payload    map[string]any `json:"payload"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	Attempt    int            `json:"attempt"`
}

// Validate checks the envelope's own fields. Payload schemas are enforced
// per type by the processor transforms, not here.
func (e *Envelope) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: empty job_id", curator.ErrInvalidEnvelope)
	case !e.Type.Valid():
		return fmt.Errorf("%w: job_type %q", curator.ErrUnknownJobType, e.Type)
	case e.Attempt < 0:
		return fmt.Errorf("%w: negative attempt %d", curator.ErrInvalidEnvelope, e.Attempt)
	case e.EnqueuedAt.IsZero():
		return fmt.Errorf("%w: zero enqueued_at", curator.ErrInvalidEnvelope)
	}
	return nil
}

// WithAttempt returns a copy of the envelope carrying the given attempt
// number and a fresh EnqueuedAt. The payload map is shared: envelopes are
// treated as immutable after construction.
func (e Envelope) WithAttempt(attempt int) Envelope {
	e.Attempt = attempt
	e.EnqueuedAt = time.Now().UTC()
	return e
}

// Encode serializes the envelope to its wire form.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("curator/job: encode envelope %s: %w", e.ID, err)
	}
	return data, nil
}

// Decode parses a wire message into an envelope and validates it.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", curator.ErrInvalidEnvelope, err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// ──────────────────────────────────────────────────
// Record
// ──────────────────────────────────────────────────

// Status is the lifecycle state of a job record.
type Status string

const (
	// StatusPending means the job is waiting for a worker claim.
	StatusPending Status = "pending"
	// StatusInProgress means a worker holds the claim and is processing.
	StatusInProgress Status = "in_progress"
	// StatusSucceeded means the job finished successfully.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the last attempt failed and a retry is being
	// scheduled; the record moves back to pending once the retry is queued.
	StatusFailed Status = "failed"
	// StatusDead means the job exhausted its retry budget or failed
	// fatally; it is never re-claimed automatically.
	StatusDead Status = "dead"
)

// Terminal reports whether the status ends automatic processing.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusDead
}

// Claimable reports whether a claim may move this status to in_progress.
// in_progress itself is claimable only past the staleness threshold,
// which the caller checks against UpdatedAt.
func (s Status) Claimable() bool {
	return s == StatusPending || s == StatusFailed
}

// Record is the durable processing state for one job id. At most one
// record exists per id. All mutation goes through the store's
// compare-and-set; the sole exception is PutRecord for operator writes.
type Record struct {
	JobID     string      `json:"job_id"`
	Status    Status      `json:"status"`
	Attempt   int         `json:"attempt"`
	LastError string      `json:"last_error,omitempty"`
	ClaimedBy id.WorkerID `json:"claimed_by,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewRecord returns an in_progress record for a first claim. Records
// are created at claim time, so pending→in_progress collapses into the
// initial write.
func NewRecord(jobID string, attempt int, claimedBy id.WorkerID) *Record {
	now := time.Now().UTC()
	return &Record{
		JobID:     jobID,
		Status:    StatusInProgress,
		Attempt:   attempt,
		ClaimedBy: claimedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Stale reports whether an in_progress record has gone without a touch
// for longer than threshold, indicating its worker likely crashed.
func (r *Record) Stale(threshold time.Duration, now time.Time) bool {
	if r.Status != StatusInProgress {
		return false
	}
	return now.Sub(r.UpdatedAt) > threshold
}
