// Package worker implements the consumer loop: an Executor that
// claims, processes, and settles one delivery at a time, and a Pool of
// goroutines that lease deliveries from the transport and feed them to
// the Executor.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/curator"
	"github.com/xraph/curator/backoff"
	"github.com/xraph/curator/dlq"
	"github.com/xraph/curator/ext"
	"github.com/xraph/curator/id"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/middleware"
	"github.com/xraph/curator/processor"
	"github.com/xraph/curator/queue"
)

// supersedeScanLimit bounds how many waiting envelopes the supersede
// check inspects per delivery. The queue normally sits near empty; the
// bound only matters during a backlog.
const supersedeScanLimit = 100

// Executor drives one delivery through the full consumer protocol:
// claim the job record, run the processor, commit the outcome to the
// store, and settle the delivery with the transport.
//
// Every record mutation goes through the store's compare-and-set, so
// two executors handed the same job id agree on a single winner. The
// delivery is acked only after the terminal state is durably recorded;
// when a store write fails the delivery is left unacked and the
// transport redelivers it once the lease expires.
type Executor struct {
	proc       *processor.Processor
	store      job.Store
	client     queue.Client
	quarantine *dlq.Service
	extensions *ext.Registry
	backoff    backoff.Strategy
	workerID   id.WorkerID
	logger     *slog.Logger

	maxAttempts    int
	staleThreshold time.Duration
	supersede      bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxAttempts sets the retry budget per job id. A job whose next
// attempt number would reach n goes to quarantine instead.
func WithMaxAttempts(n int) ExecutorOption {
	return func(e *Executor) { e.maxAttempts = n }
}

// WithStalenessThreshold sets how old an in_progress record's
// updated_at may be before this executor reclaims it.
func WithStalenessThreshold(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.staleThreshold = d }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(s backoff.Strategy) ExecutorOption {
	return func(e *Executor) { e.backoff = s }
}

// WithSupersedeCheck toggles skipping a catalog_entry delivery when a
// fresher one for the same repository is already waiting in the queue.
func WithSupersedeCheck(enabled bool) ExecutorOption {
	return func(e *Executor) { e.supersede = enabled }
}

// WithWorkerID overrides the generated worker identity. Tests use this
// to simulate claims held by another worker.
func WithWorkerID(w id.WorkerID) ExecutorOption {
	return func(e *Executor) { e.workerID = w }
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	proc *processor.Processor,
	store job.Store,
	client queue.Client,
	quarantine *dlq.Service,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		proc:           proc,
		store:          store,
		client:         client,
		quarantine:     quarantine,
		extensions:     extensions,
		backoff:        backoff.DefaultStrategy(),
		workerID:       id.NewWorkerID(),
		logger:         logger,
		maxAttempts:    3,
		staleThreshold: 10 * time.Minute,
		supersede:      true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WorkerID returns this executor's worker identity.
func (e *Executor) WorkerID() id.WorkerID { return e.workerID }

// Handle runs one delivery end to end. A nil return means the delivery
// was settled (acked or requeued); a non-nil return means the store
// could not be reached and the delivery was left leased for the
// transport to redeliver.
func (e *Executor) Handle(ctx context.Context, d *queue.Delivery) error {
	env := d.Envelope

	rec, claimed, err := e.claim(ctx, &env)
	if err != nil {
		return err
	}
	if !claimed {
		// The job is live on another worker or already finished:
		// settle the duplicate without processing.
		e.logger.Debug("duplicate delivery settled",
			slog.String("job_id", env.ID),
			slog.String("queue", d.Queue),
		)
		return e.ack(ctx, d)
	}

	e.extensions.EmitJobClaimed(ctx, &env, rec)

	if e.supersede {
		if by := e.supersededBy(ctx, d); by != nil {
			return e.commitSuperseded(ctx, d, &env, rec, by)
		}
	}

	start := time.Now()
	out := e.proc.Process(middleware.WithQueue(ctx, d.Queue), &env)
	elapsed := time.Since(start)

	switch out.Code {
	case processor.OutcomeSuccess:
		return e.commitSuccess(ctx, d, &env, rec, elapsed)
	case processor.OutcomeRetryable:
		if next := rec.Attempt + 1; next < e.maxAttempts {
			return e.commitRetry(ctx, d, &env, rec, out.Err, next)
		}
		return e.commitDead(ctx, d, &env, rec, out.Err)
	default:
		return e.commitDead(ctx, d, &env, rec, out.Err)
	}
}

// Touch refreshes this worker's claim on jobID so the record's
// updated_at stays inside the staleness threshold while the job is
// still running. It is a no-op when the record is no longer an
// in_progress claim held by this worker.
func (e *Executor) Touch(ctx context.Context, jobID string) {
	rec, err := e.store.GetRecord(ctx, jobID)
	if err != nil {
		e.logger.Warn("claim refresh: load record failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}
	if rec.Status != job.StatusInProgress || rec.ClaimedBy.String() != e.workerID.String() {
		return
	}
	// Writing the record back unchanged stamps updated_at.
	if err := e.store.CompareAndSetRecord(ctx, job.StatusInProgress, rec); err != nil {
		e.logger.Warn("claim refresh failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// ──────────────────────────────────────────────────
// Claim
// ──────────────────────────────────────────────────

// claim transitions the record for env to an in_progress claim held by
// this worker, creating the record when none exists. claimed=false
// means the delivery duplicates live or finished work and must be
// settled without processing. A non-nil error means the store could
// not be consulted.
func (e *Executor) claim(ctx context.Context, env *job.Envelope) (*job.Record, bool, error) {
	current, err := e.store.GetRecord(ctx, env.ID)
	if errors.Is(err, curator.ErrRecordNotFound) {
		return e.tryClaim(ctx, "", job.NewRecord(env.ID, env.Attempt, e.workerID))
	}
	if err != nil {
		return nil, false, fmt.Errorf("curator/worker: load record %s: %w", env.ID, err)
	}

	switch {
	case current.Status.Claimable():
		// pending or failed: take the claim, keeping the larger of the
		// delivered and recorded attempt counts.
		rec := job.NewRecord(env.ID, max(env.Attempt, current.Attempt), e.workerID)
		return e.tryClaim(ctx, current.Status, rec)
	case current.Stale(e.staleThreshold, time.Now().UTC()):
		rec := job.NewRecord(env.ID, max(env.Attempt, current.Attempt), e.workerID)
		rec, claimed, err := e.tryClaim(ctx, job.StatusInProgress, rec)
		if claimed {
			e.logger.Warn("reclaimed stale job",
				slog.String("job_id", env.ID),
				slog.String("previous_worker", current.ClaimedBy.String()),
			)
		}
		return rec, claimed, err
	default:
		// Fresh in_progress, succeeded, or dead.
		return nil, false, nil
	}
}

// tryClaim performs the guarded status write. Losing the race to
// another worker is a normal duplicate-delivery outcome, not an error.
func (e *Executor) tryClaim(ctx context.Context, expected job.Status, rec *job.Record) (*job.Record, bool, error) {
	err := e.store.CompareAndSetRecord(ctx, expected, rec)
	switch {
	case err == nil:
		return rec, true, nil
	case errors.Is(err, curator.ErrRecordExists),
		errors.Is(err, curator.ErrRecordConflict),
		errors.Is(err, curator.ErrRecordNotFound):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("curator/worker: claim %s: %w", rec.JobID, err)
	}
}

// ──────────────────────────────────────────────────
// Supersede
// ──────────────────────────────────────────────────

// supersededBy returns a fresher catalog_entry envelope for the same
// repository already waiting on the delivery's queue, or nil. Peek is
// advisory: any failure means the delivery is processed normally.
func (e *Executor) supersededBy(ctx context.Context, d *queue.Delivery) *job.Envelope {
	repoURL, ok := processor.CatalogRepoURL(d.Envelope)
	if !ok {
		return nil
	}
	peeker, ok := e.client.(queue.Peeker)
	if !ok {
		return nil
	}

	waiting, err := peeker.Peek(ctx, d.Queue, supersedeScanLimit)
	if err != nil {
		e.logger.Warn("supersede peek failed",
			slog.String("queue", d.Queue),
			slog.String("error", err.Error()),
		)
		return nil
	}
	for i := range waiting {
		w := &waiting[i]
		if w.ID == d.Envelope.ID {
			continue
		}
		if url, ok := processor.CatalogRepoURL(*w); ok && url == repoURL && w.EnqueuedAt.After(d.Envelope.EnqueuedAt) {
			return w
		}
	}
	return nil
}

func (e *Executor) commitSuperseded(ctx context.Context, d *queue.Delivery, env *job.Envelope, rec *job.Record, by *job.Envelope) error {
	rec.Status = job.StatusSucceeded
	if err := e.store.CompareAndSetRecord(ctx, job.StatusInProgress, rec); err != nil {
		return fmt.Errorf("curator/worker: record supersede %s: %w", env.ID, err)
	}

	e.extensions.EmitJobSuperseded(ctx, env, by)
	e.logger.Info("skipped superseded job",
		slog.String("job_id", env.ID),
		slog.String("superseded_by", by.ID),
		slog.String("queue", d.Queue),
	)
	return e.ack(ctx, d)
}

// ──────────────────────────────────────────────────
// Commit
// ──────────────────────────────────────────────────

func (e *Executor) commitSuccess(ctx context.Context, d *queue.Delivery, env *job.Envelope, rec *job.Record, elapsed time.Duration) error {
	rec.Status = job.StatusSucceeded
	rec.LastError = ""
	if err := e.store.CompareAndSetRecord(ctx, job.StatusInProgress, rec); err != nil {
		// The work is done but not recorded. The redelivery re-runs the
		// transform; deterministic derived ids collapse the duplicate
		// dispatches downstream.
		e.logger.Error("success not recorded",
			slog.String("job_id", env.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("curator/worker: record success %s: %w", env.ID, err)
	}

	e.extensions.EmitJobSucceeded(ctx, env, elapsed)
	e.logger.Info("job succeeded",
		slog.String("job_id", env.ID),
		slog.String("job_type", env.Type.String()),
		slog.Int("attempt", rec.Attempt),
		slog.Duration("elapsed", elapsed),
	)
	return e.ack(ctx, d)
}

func (e *Executor) commitRetry(ctx context.Context, d *queue.Delivery, env *job.Envelope, rec *job.Record, cause error, next int) error {
	rec.Status = job.StatusFailed
	rec.Attempt = next
	rec.LastError = cause.Error()
	if err := e.store.CompareAndSetRecord(ctx, job.StatusInProgress, rec); err != nil {
		e.logger.Error("failure not recorded",
			slog.String("job_id", env.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("curator/worker: record failure %s: %w", env.ID, err)
	}

	delay := e.backoff.Delay(next)
	if err := e.client.Requeue(ctx, d, env.WithAttempt(next), delay); err != nil {
		// The failed record stays claimable, so the eventual redelivery
		// of this lease retries the job anyway.
		e.logger.Error("requeue failed",
			slog.String("job_id", env.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("curator/worker: requeue %s: %w", env.ID, err)
	}

	e.extensions.EmitJobRetrying(ctx, env, next, delay)
	e.logger.Info("job scheduled for retry",
		slog.String("job_id", env.ID),
		slog.String("job_type", env.Type.String()),
		slog.Int("attempt", next),
		slog.Int("max_attempts", e.maxAttempts),
		slog.Duration("delay", delay),
		slog.String("error", cause.Error()),
	)

	// Surface the record as pending while the retry waits out its
	// backoff. Best effort: failed is claimable too, so losing this
	// write changes nothing.
	pending := *rec
	pending.Status = job.StatusPending
	pending.ClaimedBy = id.Nil
	if err := e.store.CompareAndSetRecord(ctx, job.StatusFailed, &pending); err != nil {
		e.logger.Warn("pending transition failed",
			slog.String("job_id", env.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (e *Executor) commitDead(ctx context.Context, d *queue.Delivery, env *job.Envelope, rec *job.Record, cause error) error {
	rec.Status = job.StatusDead
	rec.LastError = cause.Error()
	if err := e.store.CompareAndSetRecord(ctx, job.StatusInProgress, rec); err != nil {
		e.logger.Error("dead transition not recorded",
			slog.String("job_id", env.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("curator/worker: record dead %s: %w", env.ID, err)
	}

	if err := e.quarantine.Push(ctx, *env, d.Queue, cause); err != nil {
		// The dead record is what blocks reprocessing; the quarantine
		// entry is operator tooling.
		e.logger.Error("quarantine push failed",
			slog.String("job_id", env.ID),
			slog.String("error", err.Error()),
		)
	}

	e.extensions.EmitJobDead(ctx, env, cause)
	e.logger.Warn("job dead",
		slog.String("job_id", env.ID),
		slog.String("job_type", env.Type.String()),
		slog.Int("attempt", rec.Attempt),
		slog.String("error", cause.Error()),
	)
	return e.ack(ctx, d)
}

func (e *Executor) ack(ctx context.Context, d *queue.Delivery) error {
	if err := e.client.Ack(ctx, d); err != nil {
		return fmt.Errorf("curator/worker: ack %s: %w", d.Envelope.ID, err)
	}
	return nil
}
