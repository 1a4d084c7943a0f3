package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/curator"
	"github.com/xraph/curator/ext"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/queue"
)

// Entry is one recurring fire: a cron expression bound to the envelope
// it enqueues.
type Entry struct {
	// Name identifies the entry and seeds its fire ids. Unique within a
	// scheduler.
	Name string

	// Spec is the cron expression: standard 5-field form or a
	// descriptor like "@hourly" or "@every 30s".
	Spec string

	// Type is the job type of every enqueued envelope.
	Type job.Type

	// Payload is the static payload every fire carries.
	Payload map[string]any

	// Queue is the queue the envelopes are enqueued on.
	Queue string
}

// specParser supports standard 5-field cron and descriptors like "@every 30s".
var specParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSpec parses a cron expression the same way [Scheduler.Add] does.
func ParseSpec(expr string) (cronlib.Schedule, error) {
	return specParser.Parse(expr)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// boundEntry pairs an entry with its parsed schedule and next fire time.
type boundEntry struct {
	entry Entry
	sched cronlib.Schedule
	next  time.Time
}

// Scheduler fires registered entries on a tick loop. Each fire derives
// the envelope id from the entry name and the scheduled fire time, so a
// second replica firing the same occurrence enqueues the same job id
// and the consumers' claim step drops one of the two.
type Scheduler struct {
	dispatcher queue.Dispatcher
	extensions *ext.Registry
	logger     *slog.Logger

	tickInterval time.Duration

	mu      sync.Mutex
	entries map[string]*boundEntry

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler that enqueues through dispatcher.
func NewScheduler(dispatcher queue.Dispatcher, extensions *ext.Registry, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		dispatcher:   dispatcher,
		extensions:   extensions,
		logger:       logger,
		tickInterval: 1 * time.Second,
		entries:      make(map[string]*boundEntry),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers an entry. The first fire is the next time the
// expression matches after registration; occurrences missed while the
// scheduler is down are skipped, not backfilled.
func (s *Scheduler) Add(e Entry) error {
	switch {
	case e.Name == "":
		return fmt.Errorf("curator/schedule: entry with empty name")
	case !e.Type.Valid():
		return fmt.Errorf("curator/schedule: entry %q: %w: %q", e.Name, curator.ErrUnknownJobType, e.Type)
	case e.Queue == "":
		return fmt.Errorf("curator/schedule: entry %q: empty target queue", e.Name)
	}
	sched, err := specParser.Parse(e.Spec)
	if err != nil {
		return fmt.Errorf("curator/schedule: entry %q: parse spec %q: %w", e.Name, e.Spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.Name]; ok {
		return fmt.Errorf("curator/schedule: entry %q already registered", e.Name)
	}
	s.entries[e.Name] = &boundEntry{
		entry: e,
		sched: sched,
		next:  sched.Next(time.Now().UTC()),
	}
	return nil
}

// Entries returns the registered entries.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, b := range s.entries {
		out = append(out, b.entry)
	}
	return out
}

// Start launches the tick loop.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("scheduler started",
		slog.Int("entries", len(s.Entries())),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the tick loop to stop and waits for it to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(time.Now().UTC())
		}
	}
}

func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	var due []*boundEntry
	for _, b := range s.entries {
		// A zero next means the expression has no future occurrence.
		if b.next.IsZero() || b.next.After(now) {
			continue
		}
		due = append(due, b)
	}
	s.mu.Unlock()

	for _, b := range due {
		s.fire(context.Background(), b, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, b *boundEntry, now time.Time) {
	due := b.next
	env := job.Envelope{
		ID:         job.DeriveID(b.entry.Name, 0, int(due.UnixNano())),
		Type:       b.entry.Type,
		Payload:    b.entry.Payload,
		EnqueuedAt: time.Now().UTC(),
	}
	err := s.dispatcher.Send(ctx, queue.DispatchRequest{TargetQueue: b.entry.Queue, Envelope: env})
	if err != nil {
		// The entry stays due, so the next tick retries this fire.
		s.logger.Error("schedule enqueue failed",
			slog.String("entry", b.entry.Name),
			slog.String("target_queue", b.entry.Queue),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	b.next = b.sched.Next(now)
	s.mu.Unlock()

	s.extensions.EmitScheduleFired(ctx, b.entry.Name, env.ID)
	s.logger.Info("schedule fired",
		slog.String("entry", b.entry.Name),
		slog.String("job_id", env.ID),
		slog.String("job_type", string(b.entry.Type)),
		slog.String("target_queue", b.entry.Queue),
	)
}
