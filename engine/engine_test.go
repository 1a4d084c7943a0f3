package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/curator"
	"github.com/xraph/curator/backoff"
	"github.com/xraph/curator/dlq"
	"github.com/xraph/curator/engine"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/processor"
	"github.com/xraph/curator/queue"
	memqueue "github.com/xraph/curator/queue/memory"
	"github.com/xraph/curator/schedule"
	memstore "github.com/xraph/curator/store/memory"
)

const testCommit = "3f786850e387550fdab836ed7e6dc881de23001b"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() curator.Config {
	cfg := curator.DefaultConfig()
	cfg.Queues = []string{"catalog", "notify"}
	cfg.Concurrency = 2
	cfg.PollTimeout = 20 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func newTestConsumer(t *testing.T, cfg curator.Config) (*curator.Consumer, *memstore.Store, *memqueue.Queue) {
	t.Helper()

	s := memstore.New()
	q := memqueue.New()
	c, err := curator.New(
		curator.WithConfig(cfg),
		curator.WithStore(s),
		curator.WithTransport(q),
		curator.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, s, q
}

// runEngine runs eng until the returned stop func is called. stop
// cancels the run context and waits for a clean shutdown.
func runEngine(t *testing.T, eng *engine.Engine) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Run returned %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("engine did not shut down")
			}
		})
	}
}

func entryEnvelope(jobID string) job.Envelope {
	return job.Envelope{
		ID:   jobID,
		Type: job.TypeCatalogEntry,
		Payload: map[string]any{
			"repo_url":    "https://git.door43.org/acme/en_obs",
			"repo_name":   "en_obs",
			"owner":       "acme",
			"commit":      testCommit,
			"resource_id": "obs",
		},
		EnqueuedAt: time.Now().UTC(),
	}
}

func notifyEnvelope(jobID string) job.Envelope {
	return job.Envelope{
		ID:         jobID,
		Type:       job.TypeNotify,
		Payload:    map[string]any{"channel": "ops", "message": "catalog refreshed"},
		EnqueuedAt: time.Now().UTC(),
	}
}

func succeededCount(t *testing.T, s *memstore.Store) int {
	t.Helper()
	recs, err := s.ListRecordsByStatus(context.Background(), job.StatusSucceeded, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListRecordsByStatus: %v", err)
	}
	return len(recs)
}

// indexSpy records the subjects the rebuild transform indexed.
type indexSpy struct {
	mu       sync.Mutex
	subjects []string
}

func (s *indexSpy) RebuildIndex(_ context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = append(s.subjects, subject)
	return nil
}

func (s *indexSpy) got() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.subjects))
	copy(out, s.subjects)
	return out
}

// sinkSpy counts notification deliveries.
type sinkSpy struct {
	delivered atomic.Int32
}

func (s *sinkSpy) Deliver(_ context.Context, _, _ string) error {
	s.delivered.Add(1)
	return nil
}

// shutdownExt observes the shutdown hook.
type shutdownExt struct {
	called atomic.Bool
}

func (e *shutdownExt) Name() string { return "shutdown-probe" }

func (e *shutdownExt) OnShutdown(_ context.Context) error {
	e.called.Store(true)
	return nil
}

// closeOnly satisfies curator.Transport but not the queue contracts.
type closeOnly struct{}

func (closeOnly) Close() error { return nil }

// lifecycleOnly satisfies curator.Storer but not the record store.
type lifecycleOnly struct{}

func (lifecycleOnly) Migrate(context.Context) error { return nil }
func (lifecycleOnly) Ping(context.Context) error    { return nil }
func (lifecycleOnly) Close() error                  { return nil }

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestBuild_RequiresStoreAndTransport(t *testing.T) {
	t.Parallel()

	noStore, err := curator.New(
		curator.WithTransport(memqueue.New()),
		curator.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := engine.Build(noStore); !errors.Is(err, curator.ErrNoStore) {
		t.Errorf("Build without store: got %v, want ErrNoStore", err)
	}

	noQueue, err := curator.New(
		curator.WithStore(memstore.New()),
		curator.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := engine.Build(noQueue); !errors.Is(err, curator.ErrNoQueue) {
		t.Errorf("Build without transport: got %v, want ErrNoQueue", err)
	}
}

func TestBuild_RejectsIncapableBackends(t *testing.T) {
	t.Parallel()

	partialStore, err := curator.New(
		curator.WithStore(lifecycleOnly{}),
		curator.WithTransport(memqueue.New()),
		curator.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := engine.Build(partialStore); err == nil || !strings.Contains(err.Error(), "job.Store") {
		t.Errorf("Build with lifecycle-only store: got %v, want job.Store complaint", err)
	}

	partialQueue, err := curator.New(
		curator.WithStore(memstore.New()),
		curator.WithTransport(closeOnly{}),
		curator.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := engine.Build(partialQueue); err == nil || !strings.Contains(err.Error(), "queue.Client") {
		t.Errorf("Build with close-only transport: got %v, want queue.Client complaint", err)
	}
}

func TestBuild_WiresDefaults(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestConsumer(t, testConfig())
	eng, err := engine.Build(c)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	registered := eng.Processor().Registered()
	if len(registered) != len(job.Types()) {
		t.Errorf("registered %d transforms, want %d", len(registered), len(job.Types()))
	}
	if err := eng.Processor().Complete(); err != nil {
		t.Errorf("Complete: %v", err)
	}
	if eng.Pool() == nil || eng.Quarantine() == nil || eng.Scheduler() == nil || eng.Extensions() == nil {
		t.Error("expected all subsystems wired")
	}
	if eng.Limiter() != nil {
		t.Error("expected nil limiter without queue configs")
	}
	if eng.Consumer() != c {
		t.Error("expected the consumer to be retained")
	}

	limited, _, _ := newTestConsumer(t, testConfig())
	eng2, err := engine.Build(limited,
		engine.WithQueueConfig(queue.Config{Name: "catalog", MaxConcurrency: 2}),
	)
	if err != nil {
		t.Fatalf("Build with queue config: %v", err)
	}
	if eng2.Limiter() == nil {
		t.Error("expected limiter with queue configs")
	}
}

func TestBuild_RejectsInvalidScheduleEntry(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestConsumer(t, testConfig())
	_, err := engine.Build(c,
		engine.WithScheduleEntry(schedule.Entry{
			Name:  "broken",
			Spec:  "every other tuesday",
			Type:  job.TypeNotify,
			Queue: "notify",
		}),
	)
	if err == nil {
		t.Fatal("Build with malformed schedule spec succeeded, want error")
	}
}

func TestEngine_ProcessesCatalogEntryEndToEnd(t *testing.T) {
	c, s, _ := newTestConsumer(t, testConfig())

	index := &indexSpy{}
	sink := &sinkSpy{}
	eng, err := engine.Build(c,
		engine.WithBackoff(backoff.NewConstant(5*time.Millisecond)),
		engine.WithIndexer(index),
		engine.WithNotifySink(sink),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := eng.Enqueue(context.Background(), "catalog", entryEnvelope("push-77")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	stop := runEngine(t, eng)
	defer stop()

	// One catalog entry fans out to a rebuild and two notifies.
	deadline := time.After(5 * time.Second)
	for succeededCount(t, s) < 4 {
		select {
		case <-deadline:
			t.Fatalf("timed out: %d records succeeded, want 4", succeededCount(t, s))
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	stop()

	rebuildID := job.DeriveID("push-77", 0, 0)
	entryNotifyID := job.DeriveID("push-77", 0, 1)
	indexNotifyID := job.DeriveID(rebuildID, 0, 0)
	for _, jobID := range []string{"push-77", rebuildID, entryNotifyID, indexNotifyID} {
		rec, err := s.GetRecord(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetRecord(%s): %v", jobID, err)
		}
		if rec.Status != job.StatusSucceeded {
			t.Errorf("record %s status = %s, want succeeded", jobID, rec.Status)
		}
	}

	if got := index.got(); len(got) != 1 || got[0] != "Open_Bible_Stories" {
		t.Errorf("indexed subjects = %v, want [Open_Bible_Stories]", got)
	}
	if n := sink.delivered.Load(); n != 2 {
		t.Errorf("notifications delivered = %d, want 2", n)
	}
}

func TestEngine_RetryBudgetComesFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Queues = []string{"notify"}
	cfg.MaxAttempts = 2
	c, s, _ := newTestConsumer(t, cfg)

	var calls atomic.Int32
	eng, err := engine.Build(c,
		engine.WithBackoff(backoff.NewConstant(time.Millisecond)),
		engine.WithTransform(job.TypeNotify, func(context.Context, job.Envelope) ([]queue.DispatchRequest, error) {
			calls.Add(1)
			return nil, errors.New("webhook 503")
		}),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := eng.Enqueue(context.Background(), "notify", notifyEnvelope("note-9")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	stop := runEngine(t, eng)
	defer stop()

	deadline := time.After(5 * time.Second)
	for {
		rec, err := s.GetRecord(context.Background(), "note-9")
		if err == nil && rec.Status == job.StatusDead {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the job to go dead")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	stop()

	if n := calls.Load(); n != 2 {
		t.Errorf("transform calls = %d, want MaxAttempts (2)", n)
	}
	count, err := s.CountDLQ(context.Background())
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if count != 1 {
		t.Errorf("quarantine count = %d, want 1", count)
	}
}

func TestEngine_QuarantineReplayRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Queues = []string{"notify"}
	c, s, _ := newTestConsumer(t, cfg)

	var healthy atomic.Bool
	eng, err := engine.Build(c,
		engine.WithBackoff(backoff.NewConstant(time.Millisecond)),
		engine.WithTransform(job.TypeNotify, func(context.Context, job.Envelope) ([]queue.DispatchRequest, error) {
			if !healthy.Load() {
				return nil, processor.Permanent(errors.New("channel offline"))
			}
			return nil, nil
		}),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := eng.Enqueue(context.Background(), "notify", notifyEnvelope("note-12")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	stop := runEngine(t, eng)
	defer stop()

	deadline := time.After(5 * time.Second)
	for {
		if n, err := s.CountDLQ(context.Background()); err == nil && n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for quarantine")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	entries, err := s.ListDLQ(context.Background(), dlq.ListOpts{})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d quarantine entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.JobID != "note-12" || entry.Queue != "notify" {
		t.Fatalf("entry = %s on %s, want note-12 on notify", entry.JobID, entry.Queue)
	}

	// Operator fixes the channel and replays.
	healthy.Store(true)
	env, err := eng.Replay(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if env.ID != "note-12" {
		t.Errorf("replayed id = %q, want note-12", env.ID)
	}

	deadline = time.After(5 * time.Second)
	for {
		rec, err := s.GetRecord(context.Background(), "note-12")
		if err == nil && rec.Status == job.StatusSucceeded {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the replayed job to succeed")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	stop()

	replayed, err := s.GetDLQ(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if replayed.ReplayedAt == nil {
		t.Error("expected the entry to be marked replayed")
	}
}

func TestEngine_ScheduleEntryFlowsThroughPool(t *testing.T) {
	cfg := testConfig()
	cfg.Queues = []string{"notify"}
	c, s, _ := newTestConsumer(t, cfg)

	sink := &sinkSpy{}
	eng, err := engine.Build(c,
		engine.WithNotifySink(sink),
		engine.WithScheduleEntry(schedule.Entry{
			Name:    "ops-heartbeat",
			Spec:    "@every 30ms",
			Type:    job.TypeNotify,
			Payload: map[string]any{"channel": "ops", "message": "ping"},
			Queue:   "notify",
		}),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	stop := runEngine(t, eng)
	defer stop()

	deadline := time.After(5 * time.Second)
	for sink.delivered.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a scheduled fire to be processed")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	stop()

	recs, err := s.ListRecordsByStatus(context.Background(), job.StatusSucceeded, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListRecordsByStatus: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("expected at least one succeeded record")
	}
	if got := len(recs[0].JobID); got != 64 {
		t.Errorf("scheduled job id length = %d, want 64 (derived)", got)
	}
}

func TestEngine_ShutdownEmitsHookOnce(t *testing.T) {
	c, _, _ := newTestConsumer(t, testConfig())

	probe := &shutdownExt{}
	eng, err := engine.Build(c, engine.WithExtension(probe))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !probe.called.Load() {
		t.Error("expected the shutdown hook to fire")
	}
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
