package dlq

import (
	"context"
	"time"

	"github.com/xraph/curator/id"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/queue"
)

// Service provides high-level quarantine operations over a Store.
type Service struct {
	store      Store
	records    job.Store
	dispatcher queue.Dispatcher
}

// NewService creates a quarantine service. The dispatcher may be nil
// when replay is not needed (Push-only use in the executor).
func NewService(store Store, records job.Store, dispatcher queue.Dispatcher) *Service {
	return &Service{store: store, records: records, dispatcher: dispatcher}
}

// Push quarantines a dead job. The reason string is captured from the
// final handler error.
func (s *Service) Push(ctx context.Context, env job.Envelope, queueName string, cause error) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:            id.NewQuarantineID(),
		JobID:         env.ID,
		JobType:       env.Type,
		Queue:         queueName,
		Payload:       env.Payload,
		Reason:        cause.Error(),
		Attempt:       env.Attempt,
		QuarantinedAt: now,
		CreatedAt:     now,
	}
	return s.store.PushDLQ(ctx, entry)
}

// DLQStore returns the underlying quarantine store for direct access
// to List, Get, Purge, and Count operations.
func (s *Service) DLQStore() Store {
	return s.store
}
