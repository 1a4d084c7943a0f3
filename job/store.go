package job

import (
	"context"
)

// Store persists job records. Implementations must make
// CompareAndSetRecord atomic with respect to concurrent callers; it is
// the only primitive the consumer loop relies on for mutual exclusion,
// so a lost update here means two workers processing the same job.
type Store interface {
	// GetRecord returns the record for jobID, or
	// curator.ErrRecordNotFound when none exists.
	GetRecord(ctx context.Context, jobID string) (*Record, error)

	// CompareAndSetRecord writes rec only if the stored status for
	// rec.JobID equals expected. An empty expected status asserts that
	// no record exists yet, making the write a guarded create. On a
	// status mismatch it returns curator.ErrRecordConflict; on a
	// failed guarded create, curator.ErrRecordExists; when expected is
	// non-empty and no record exists, curator.ErrRecordNotFound.
	//
	// On success the store stamps UpdatedAt and preserves the existing
	// CreatedAt, so a CAS that writes back an unchanged record doubles
	// as a claim refresh.
	CompareAndSetRecord(ctx context.Context, expected Status, rec *Record) error

	// PutRecord writes rec unconditionally, stamping UpdatedAt like
	// CompareAndSetRecord. Reserved for operator tooling such as
	// quarantine replay; the consumer loop never calls it.
	PutRecord(ctx context.Context, rec *Record) error

	// ListRecordsByStatus returns records in the given status, newest
	// update first.
	ListRecordsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Record, error)

	// CountRecords returns the number of records per status.
	CountRecords(ctx context.Context) (map[Status]int64, error)
}

// ListOpts bounds a listing.
type ListOpts struct {
	Limit  int
	Offset int
}
