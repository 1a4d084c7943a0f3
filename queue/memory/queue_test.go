package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/curator"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/queue"
)

func testEnvelope(id string, attempt int) job.Envelope {
	return job.Envelope{
		ID:         id,
		Type:       job.TypeCatalogEntry,
		Payload:    map[string]any{"repo_url": "https://example.com/pkgs/" + id},
		EnqueuedAt: time.Now().UTC(),
		Attempt:    attempt,
	}
}

func TestEnqueueDequeue_FIFO(t *testing.T) {
	q := New()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, "catalog", testEnvelope(id, 0), 0); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		d, err := q.Dequeue(ctx, "catalog", time.Second)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if d.Envelope.ID != want {
			t.Errorf("got %q, want %q", d.Envelope.ID, want)
		}
		if d.Queue != "catalog" {
			t.Errorf("delivery queue = %q, want catalog", d.Queue)
		}
		if d.Receipt == "" {
			t.Error("delivery missing receipt")
		}
	}
}

func TestDequeue_TimeoutReturnsNoMessage(t *testing.T) {
	q := New()

	start := time.Now()
	_, err := q.Dequeue(context.Background(), "empty", 50*time.Millisecond)
	if !errors.Is(err, curator.ErrNoMessage) {
		t.Fatalf("got %v, want ErrNoMessage", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("returned after %v, should have blocked near the timeout", elapsed)
	}
}

func TestDequeue_BlocksUntilEnqueue(t *testing.T) {
	q := New()
	ctx := context.Background()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = q.Enqueue(ctx, "catalog", testEnvelope("late", 0), 0)
	}()

	d, err := q.Dequeue(ctx, "catalog", 2*time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if d.Envelope.ID != "late" {
		t.Errorf("got %q, want late", d.Envelope.ID)
	}
}

func TestDequeue_ContextCanceled(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	if _, err := q.Dequeue(ctx, "catalog", 5*time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestAck_SettlesDelivery(t *testing.T) {
	q := New()
	ctx := context.Background()

	_ = q.Enqueue(ctx, "catalog", testEnvelope("a", 0), 0)
	d, err := q.Dequeue(ctx, "catalog", time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if q.InFlight() != 1 {
		t.Fatalf("in flight = %d, want 1", q.InFlight())
	}

	if err := q.Ack(ctx, d); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if q.InFlight() != 0 {
		t.Errorf("in flight = %d after ack, want 0", q.InFlight())
	}
	if q.Len("catalog") != 0 {
		t.Errorf("ready = %d after ack, want 0", q.Len("catalog"))
	}

	// Second settle of the same lease must fail.
	if err := q.Ack(ctx, d); !errors.Is(err, curator.ErrStaleDelivery) {
		t.Errorf("double ack: got %v, want ErrStaleDelivery", err)
	}
}

func TestRequeue_ReplacesDelivery(t *testing.T) {
	q := New()
	ctx := context.Background()

	_ = q.Enqueue(ctx, "catalog", testEnvelope("a", 0), 0)
	d, _ := q.Dequeue(ctx, "catalog", time.Second)

	retry := d.Envelope.WithAttempt(1)
	if err := q.Requeue(ctx, d, retry, 0); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if q.InFlight() != 0 {
		t.Errorf("in flight = %d after requeue, want 0", q.InFlight())
	}

	got, err := q.Dequeue(ctx, "catalog", time.Second)
	if err != nil {
		t.Fatalf("Dequeue after requeue: %v", err)
	}
	if got.Envelope.ID != "a" || got.Envelope.Attempt != 1 {
		t.Errorf("got id=%q attempt=%d, want a/1", got.Envelope.ID, got.Envelope.Attempt)
	}
}

func TestRequeue_WithDelay(t *testing.T) {
	q := New()
	ctx := context.Background()

	_ = q.Enqueue(ctx, "catalog", testEnvelope("a", 0), 0)
	d, _ := q.Dequeue(ctx, "catalog", time.Second)

	if err := q.Requeue(ctx, d, d.Envelope.WithAttempt(1), 80*time.Millisecond); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if q.DelayedLen("catalog") != 1 {
		t.Fatalf("delayed = %d, want 1", q.DelayedLen("catalog"))
	}

	// Not visible before the delay elapses.
	if _, err := q.Dequeue(ctx, "catalog", 10*time.Millisecond); !errors.Is(err, curator.ErrNoMessage) {
		t.Fatalf("delayed message visible early: %v", err)
	}

	// Visible after.
	got, err := q.Dequeue(ctx, "catalog", time.Second)
	if err != nil {
		t.Fatalf("Dequeue after delay: %v", err)
	}
	if got.Envelope.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", got.Envelope.Attempt)
	}
}

func TestDelayedEnqueue_PromotedWhenDue(t *testing.T) {
	q := New()
	ctx := context.Background()

	if err := q.Enqueue(ctx, "catalog", testEnvelope("later", 0), 60*time.Millisecond); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	start := time.Now()
	d, err := q.Dequeue(ctx, "catalog", 2*time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if d.Envelope.ID != "later" {
		t.Errorf("got %q, want later", d.Envelope.ID)
	}
	if waited := time.Since(start); waited < 50*time.Millisecond {
		t.Errorf("delayed message delivered after %v, before its delay", waited)
	}
}

func TestVisibilityTimeout_Redelivers(t *testing.T) {
	q := New(WithVisibilityTimeout(60 * time.Millisecond))
	ctx := context.Background()

	_ = q.Enqueue(ctx, "catalog", testEnvelope("a", 0), 0)

	first, err := q.Dequeue(ctx, "catalog", time.Second)
	if err != nil {
		t.Fatalf("first Dequeue: %v", err)
	}

	// Never settled; the lease should expire and the message come back.
	second, err := q.Dequeue(ctx, "catalog", 2*time.Second)
	if err != nil {
		t.Fatalf("redelivery Dequeue: %v", err)
	}
	if second.Envelope.ID != first.Envelope.ID {
		t.Errorf("redelivered %q, want %q", second.Envelope.ID, first.Envelope.ID)
	}
	if second.Receipt == first.Receipt {
		t.Error("redelivery reused the expired receipt")
	}

	// The expired lease can no longer be settled.
	if err := q.Ack(ctx, first); !errors.Is(err, curator.ErrStaleDelivery) {
		t.Errorf("ack on expired lease: got %v, want ErrStaleDelivery", err)
	}
	if err := q.Ack(ctx, second); err != nil {
		t.Errorf("ack on live lease: %v", err)
	}
}

func TestPeek_NonConsuming(t *testing.T) {
	q := New()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_ = q.Enqueue(ctx, "catalog", testEnvelope(id, 0), 0)
	}

	peeked, err := q.Peek(ctx, "catalog", 2)
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if len(peeked) != 2 {
		t.Fatalf("peeked %d messages, want 2", len(peeked))
	}
	// Newest first.
	if peeked[0].ID != "c" || peeked[1].ID != "b" {
		t.Errorf("got order [%s %s], want [c b]", peeked[0].ID, peeked[1].ID)
	}
	if q.Len("catalog") != 3 {
		t.Errorf("Peek consumed messages: ready = %d, want 3", q.Len("catalog"))
	}
}

func TestPeek_CopiesPayload(t *testing.T) {
	q := New()
	ctx := context.Background()

	_ = q.Enqueue(ctx, "catalog", testEnvelope("a", 0), 0)

	peeked, _ := q.Peek(ctx, "catalog", 1)
	peeked[0].Payload["repo_url"] = "mutated"

	d, _ := q.Dequeue(ctx, "catalog", time.Second)
	if d.Envelope.Payload["repo_url"] == "mutated" {
		t.Error("peek handed out the queue's own payload map")
	}
}

func TestSend_RoutesToTargetQueue(t *testing.T) {
	q := New()
	ctx := context.Background()

	err := q.Send(ctx, queue.DispatchRequest{
		TargetQueue: "notifications",
		Envelope:    testEnvelope("n1", 0),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if q.Len("notifications") != 1 {
		t.Errorf("notifications ready = %d, want 1", q.Len("notifications"))
	}
	if q.Len("catalog") != 0 {
		t.Errorf("catalog ready = %d, want 0", q.Len("catalog"))
	}
}

func TestClose_WakesBlockedConsumers(t *testing.T) {
	q := New()

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background(), "catalog", 10*time.Second)
		errCh <- err
	}()

	// Give the consumer time to block.
	time.Sleep(30 * time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, curator.ErrQueueClosed) {
			t.Errorf("got %v, want ErrQueueClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue still blocked after Close")
	}

	if err := q.Enqueue(context.Background(), "catalog", testEnvelope("x", 0), 0); !errors.Is(err, curator.ErrQueueClosed) {
		t.Errorf("Enqueue after Close: got %v, want ErrQueueClosed", err)
	}
}
