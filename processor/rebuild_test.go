package processor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/curator"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/processor"
)

func rebuildEnvelope(subject string) job.Envelope {
	return job.Envelope{
		ID:         "rebuild-t1",
		Type:       job.TypeRebuild,
		Payload:    map[string]any{"subject": subject},
		EnqueuedAt: time.Now().UTC(),
	}
}

func TestRebuild_EmitsNotify(t *testing.T) {
	t.Parallel()

	var indexed []string
	transform := processor.Rebuild("notify", processor.IndexerFunc(func(_ context.Context, subject string) error {
		indexed = append(indexed, subject)
		return nil
	}))

	dispatches, err := transform(context.Background(), rebuildEnvelope("Translation_Words"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(indexed) != 1 || indexed[0] != "Translation_Words" {
		t.Errorf("indexer saw %v, want [Translation_Words]", indexed)
	}
	if len(dispatches) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(dispatches))
	}
	if dispatches[0].TargetQueue != "notify" {
		t.Errorf("target = %q, want notify", dispatches[0].TargetQueue)
	}
	if dispatches[0].Envelope.Type != job.TypeNotify {
		t.Errorf("dispatch type = %q, want notify", dispatches[0].Envelope.Type)
	}
	if got := dispatches[0].Envelope.ID; got != job.DeriveID("rebuild-t1", 0, 0) {
		t.Errorf("derived id = %q not deterministic", got)
	}
}

func TestRebuild_UnknownSubjectIsFatal(t *testing.T) {
	t.Parallel()

	transform := processor.Rebuild("notify", processor.NoopIndexer{})
	_, err := transform(context.Background(), rebuildEnvelope("Recipe_Collection"))
	if err == nil {
		t.Fatal("expected error for unknown subject")
	}
	if !curator.IsPermanent(err) {
		t.Errorf("unknown subject must be permanent, got %v", err)
	}
}

func TestRebuild_MissingSubjectIsFatal(t *testing.T) {
	t.Parallel()

	transform := processor.Rebuild("notify", processor.NoopIndexer{})
	env := job.Envelope{
		ID:         "rebuild-t2",
		Type:       job.TypeRebuild,
		Payload:    map[string]any{},
		EnqueuedAt: time.Now().UTC(),
	}
	_, err := transform(context.Background(), env)
	if !curator.IsPermanent(err) {
		t.Fatalf("missing subject must be permanent, got %v", err)
	}
	if !errors.Is(err, curator.ErrInvalidEnvelope) {
		t.Errorf("expected ErrInvalidEnvelope, got %v", err)
	}
}

func TestRebuild_IndexerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	want := errors.New("index backend unavailable")
	transform := processor.Rebuild("notify", processor.IndexerFunc(func(_ context.Context, _ string) error {
		return want
	}))

	dispatches, err := transform(context.Background(), rebuildEnvelope("Bible"))
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if curator.IsPermanent(err) {
		t.Error("indexer errors must stay retryable")
	}
	if dispatches != nil {
		t.Error("failed rebuild must not dispatch")
	}
}
