package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/curator"
	curatorDLQ "github.com/xraph/curator/dlq"
	"github.com/xraph/curator/id"
	"github.com/xraph/curator/job"
	queuememory "github.com/xraph/curator/queue/memory"
	"github.com/xraph/curator/store/memory"
)

func deadEnvelope(jobID string, attempt int) job.Envelope {
	return job.Envelope{
		ID:         jobID,
		Type:       job.TypeCatalogEntry,
		Payload:    map[string]any{"repo_url": "https://example.com/pkgs/" + jobID},
		EnqueuedAt: time.Now().UTC(),
		Attempt:    attempt,
	}
}

func TestService_Push_BuildsEntryFromEnvelope(t *testing.T) {
	s := memory.New()
	q := queuememory.New()
	svc := curatorDLQ.NewService(s, s, q)
	ctx := context.Background()

	env := deadEnvelope("entry-9001", 3)
	cause := errors.New("archive fetch timeout")

	if err := svc.Push(ctx, env, "catalog", cause); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := s.ListDLQ(ctx, curatorDLQ.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 quarantine entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.JobID != "entry-9001" {
		t.Errorf("JobID = %q, want %q", entry.JobID, "entry-9001")
	}
	if entry.JobType != job.TypeCatalogEntry {
		t.Errorf("JobType = %q, want %q", entry.JobType, job.TypeCatalogEntry)
	}
	if entry.Queue != "catalog" {
		t.Errorf("Queue = %q, want %q", entry.Queue, "catalog")
	}
	if entry.Payload["repo_url"] != "https://example.com/pkgs/entry-9001" {
		t.Errorf("Payload = %v, want original payload", entry.Payload)
	}
	if entry.Reason != "archive fetch timeout" {
		t.Errorf("Reason = %q, want %q", entry.Reason, "archive fetch timeout")
	}
	if entry.Attempt != 3 {
		t.Errorf("Attempt = %d, want 3", entry.Attempt)
	}
	if entry.QuarantinedAt.IsZero() {
		t.Error("expected QuarantinedAt to be set")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if entry.ReplayedAt != nil {
		t.Error("fresh entry should not be marked replayed")
	}
}

func TestService_Push_CountIncreases(t *testing.T) {
	s := memory.New()
	svc := curatorDLQ.NewService(s, s, queuememory.New())
	ctx := context.Background()

	for i := range 3 {
		env := deadEnvelope("entry-"+string(rune('a'+i)), 3)
		if err := svc.Push(ctx, env, "catalog", errors.New("fail")); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}

	count, err := s.CountDLQ(ctx)
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if count != 3 {
		t.Errorf("CountDLQ = %d, want 3", count)
	}
}

func TestService_Replay_ReenqueuesSameJobID(t *testing.T) {
	s := memory.New()
	q := queuememory.New()
	svc := curatorDLQ.NewService(s, s, q)
	ctx := context.Background()

	// A dead record, as the executor leaves it.
	now := time.Now().UTC()
	dead := &job.Record{
		JobID:     "entry-9001",
		Status:    job.StatusDead,
		Attempt:   3,
		LastError: "original error",
		ClaimedBy: id.NewWorkerID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.PutRecord(ctx, dead); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}
	if err := svc.Push(ctx, deadEnvelope("entry-9001", 3), "catalog", errors.New("original error")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, _ := s.ListDLQ(ctx, curatorDLQ.ListOpts{Limit: 1})
	replayed, err := svc.Replay(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	// Same identity, preserved attempt.
	if replayed.ID != "entry-9001" {
		t.Errorf("replayed job id = %q, want entry-9001", replayed.ID)
	}
	if replayed.Attempt != 3 {
		t.Errorf("replayed attempt = %d, want 3", replayed.Attempt)
	}

	// The envelope is back on its source queue.
	d, err := q.Dequeue(ctx, "catalog", time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if d.Envelope.ID != "entry-9001" || d.Envelope.Attempt != 3 {
		t.Errorf("queued id=%q attempt=%d, want entry-9001/3", d.Envelope.ID, d.Envelope.Attempt)
	}

	// The record is claimable again.
	rec, err := s.GetRecord(ctx, "entry-9001")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.Status != job.StatusPending {
		t.Errorf("record status = %q, want pending", rec.Status)
	}
	if rec.Attempt != 3 {
		t.Errorf("record attempt = %d, want 3", rec.Attempt)
	}
	if !rec.ClaimedBy.IsNil() {
		t.Errorf("record still claimed by %v", rec.ClaimedBy)
	}
}

func TestService_Replay_MarksEntryAsReplayed(t *testing.T) {
	s := memory.New()
	svc := curatorDLQ.NewService(s, s, queuememory.New())
	ctx := context.Background()

	if err := svc.Push(ctx, deadEnvelope("entry-1", 3), "catalog", errors.New("fail")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := s.ListDLQ(ctx, curatorDLQ.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	entryID := entries[0].ID

	if _, replayErr := svc.Replay(ctx, entryID); replayErr != nil {
		t.Fatalf("Replay: %v", replayErr)
	}

	entry, err := s.GetDLQ(ctx, entryID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if entry.ReplayedAt == nil {
		t.Error("expected ReplayedAt to be set after replay")
	}
}

func TestService_Replay_NotFoundReturnsError(t *testing.T) {
	s := memory.New()
	svc := curatorDLQ.NewService(s, s, queuememory.New())
	ctx := context.Background()

	if _, err := svc.Replay(ctx, id.NewQuarantineID()); !errors.Is(err, curator.ErrEntryNotFound) {
		t.Fatalf("got %v, want ErrEntryNotFound", err)
	}
}
