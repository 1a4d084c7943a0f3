package dlq

import (
	"context"
	"time"

	"github.com/xraph/curator/id"
)

// ListOpts controls pagination and filtering for quarantine list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// Queue filters by source queue name. Empty means all queues.
	Queue string
}

// Store defines the persistence contract for the quarantine.
type Store interface {
	// PushDLQ adds a dead job entry to the quarantine.
	PushDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ returns quarantine entries matching the given options,
	// newest first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ retrieves a quarantine entry by ID.
	GetDLQ(ctx context.Context, entryID id.QuarantineID) (*Entry, error)

	// ReplayDLQ marks a quarantine entry as replayed. The actual
	// re-enqueue is handled at the service layer.
	ReplayDLQ(ctx context.Context, entryID id.QuarantineID) error

	// PurgeDLQ removes quarantine entries with QuarantinedAt before the
	// given time. Returns the number of entries removed.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the total number of entries in the quarantine.
	CountDLQ(ctx context.Context) (int64, error)
}
