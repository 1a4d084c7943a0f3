package curator

import "errors"

var (
	// Wiring errors.
	ErrNoStore         = errors.New("curator: no store configured")
	ErrNoQueue         = errors.New("curator: no queue client configured")
	ErrNoPool          = errors.New("curator: no worker pool wired")
	ErrMigrationFailed = errors.New("curator: migration failed")

	// Not found errors.
	ErrRecordNotFound = errors.New("curator: job record not found")
	ErrEntryNotFound  = errors.New("curator: quarantine entry not found")

	// Conflict errors.
	ErrRecordConflict = errors.New("curator: job record status conflict")
	ErrRecordExists   = errors.New("curator: job record already exists")

	// Envelope errors.
	ErrInvalidEnvelope = errors.New("curator: invalid job envelope")
	ErrUnknownJobType  = errors.New("curator: unknown job type")

	// Transport errors.
	ErrNoMessage     = errors.New("curator: no message available")
	ErrQueueClosed   = errors.New("curator: queue client closed")
	ErrStaleDelivery = errors.New("curator: delivery receipt not in flight")
)

// permanentError marks a failure as not worth retrying.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the consumer treats the failure as fatal
// rather than retryable: the job goes straight to quarantine instead of
// burning through its retry budget. Returns nil if err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether any error in err's chain was marked with
// Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
