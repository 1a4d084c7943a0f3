package dlq

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/curator"
	"github.com/xraph/curator/id"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/queue"
)

// Replay re-enqueues a quarantined job under its ORIGINAL job id with
// the recorded attempt count, and marks the entry as replayed. The
// record is reset to pending first, so the redelivered envelope can be
// claimed; because the attempt count is preserved, the job gets exactly
// one more automatic attempt unless it succeeds.
func (s *Service) Replay(ctx context.Context, entryID id.QuarantineID) (job.Envelope, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return job.Envelope{}, err
	}

	now := time.Now().UTC()
	env := job.Envelope{
		ID:         entry.JobID,
		Type:       entry.JobType,
		Payload:    entry.Payload,
		EnqueuedAt: now,
		Attempt:    entry.Attempt,
	}

	// Reset the record before enqueueing. A dead record is never
	// claimable, so enqueue-first would race the claim against the
	// reset and could drop the replay as a duplicate.
	rec, err := s.records.GetRecord(ctx, entry.JobID)
	switch {
	case errors.Is(err, curator.ErrRecordNotFound):
		rec = &job.Record{
			JobID:     entry.JobID,
			Status:    job.StatusPending,
			Attempt:   entry.Attempt,
			LastError: entry.Reason,
			CreatedAt: now,
			UpdatedAt: now,
		}
	case err != nil:
		return job.Envelope{}, err
	default:
		rec.Status = job.StatusPending
		rec.ClaimedBy = id.WorkerID{}
		rec.UpdatedAt = now
	}
	if err := s.records.PutRecord(ctx, rec); err != nil {
		return job.Envelope{}, err
	}

	if err := s.dispatcher.Send(ctx, queue.DispatchRequest{
		TargetQueue: entry.Queue,
		Envelope:    env,
	}); err != nil {
		return job.Envelope{}, err
	}

	if err := s.store.ReplayDLQ(ctx, entryID); err != nil {
		// The job is already enqueued. Surface the error but keep the
		// envelope so the caller knows the replay itself happened.
		return env, err
	}

	return env, nil
}
