package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/xraph/curator"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/middleware"
	"github.com/xraph/curator/queue"
)

// Transform is the pure per-type function applied to one envelope. It
// returns the follow-up work to dispatch. Returned errors are retryable
// unless wrapped with Permanent.
type Transform func(ctx context.Context, env job.Envelope) ([]queue.DispatchRequest, error)

// Permanent marks a transform error as fatal: the job goes straight to
// quarantine instead of consuming its remaining retry budget. Use it
// for validation failures and other errors a retry cannot fix.
func Permanent(err error) error { return curator.Permanent(err) }

// Code classifies the outcome of one processing attempt.
type Code int

const (
	// OutcomeSuccess means the transform completed and every dispatch
	// was sent.
	OutcomeSuccess Code = iota
	// OutcomeRetryable means the attempt failed transiently and may be
	// retried within the attempt budget.
	OutcomeRetryable
	// OutcomeFatal means the attempt failed permanently; no retry.
	OutcomeFatal
)

// String returns the log representation of the code.
func (c Code) String() string {
	switch c {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Outcome is the explicit result of processing one envelope. The
// consumer loop branches on Code; it never inspects Err beyond logging
// and quarantine capture.
type Outcome struct {
	Code       Code
	Dispatches []queue.DispatchRequest
	Err        error
}

// Success returns a success outcome carrying the dispatches that were
// sent.
func Success(dispatches []queue.DispatchRequest) Outcome {
	return Outcome{Code: OutcomeSuccess, Dispatches: dispatches}
}

// Retryable returns a retryable failure outcome.
func Retryable(err error) Outcome {
	return Outcome{Code: OutcomeRetryable, Err: err}
}

// Fatal returns a fatal failure outcome.
func Fatal(err error) Outcome {
	return Outcome{Code: OutcomeFatal, Err: err}
}

// Processor dispatches envelopes to registered transforms through a
// middleware chain. It is safe for concurrent use.
type Processor struct {
	mu         sync.RWMutex
	transforms map[job.Type]Transform

	dispatcher queue.Dispatcher
	mw         middleware.Middleware
	logger     *slog.Logger
}

// New creates a Processor. Middleware wrap every transform invocation,
// outermost first.
func New(dispatcher queue.Dispatcher, logger *slog.Logger, mws ...middleware.Middleware) *Processor {
	return &Processor{
		transforms: make(map[job.Type]Transform),
		dispatcher: dispatcher,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Register binds a transform to a job type, replacing any previous
// binding.
func (p *Processor) Register(t job.Type, fn Transform) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transforms[t] = fn
}

// Registered returns the job types that currently have a transform.
func (p *Processor) Registered() []job.Type {
	p.mu.RLock()
	defer p.mu.RUnlock()
	types := make([]job.Type, 0, len(p.transforms))
	for t := range p.transforms {
		types = append(types, t)
	}
	return types
}

// Complete verifies that every member of the closed job.Type set has a
// registered transform. The engine calls it before starting workers so
// a missing registration fails at startup, not on first delivery.
func (p *Processor) Complete() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var missing []string
	for _, t := range job.Types() {
		if _, ok := p.transforms[t]; !ok {
			missing = append(missing, string(t))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("curator/processor: no transform registered for %s", strings.Join(missing, ", "))
	}
	return nil
}

// Process runs one envelope through validation, the middleware chain,
// and the matched transform, then sends the resulting dispatches.
//
// Classification: a validation failure or unknown type is fatal; a
// transform error is fatal only when marked Permanent, retryable
// otherwise (context.DeadlineExceeded from the soft processing deadline
// stays retryable); a dispatch send failure is retryable, relying on
// deterministic derived ids to collapse the duplicate sends of the next
// attempt.
func (p *Processor) Process(ctx context.Context, env *job.Envelope) Outcome {
	if err := env.Validate(); err != nil {
		return Fatal(err)
	}

	p.mu.RLock()
	transform, ok := p.transforms[env.Type]
	p.mu.RUnlock()
	if !ok {
		return Fatal(fmt.Errorf("%w: no transform for %q", curator.ErrUnknownJobType, env.Type))
	}

	terminal := func(ctx context.Context) ([]queue.DispatchRequest, error) {
		return transform(ctx, *env)
	}
	dispatches, err := p.mw(ctx, env, terminal)
	if err != nil {
		if curator.IsPermanent(err) {
			return Fatal(err)
		}
		return Retryable(err)
	}

	for _, req := range dispatches {
		if sendErr := p.dispatcher.Send(ctx, req); sendErr != nil {
			p.logger.Warn("dispatch failed",
				slog.String("job_id", env.ID),
				slog.String("derived_id", req.Envelope.ID),
				slog.String("target_queue", req.TargetQueue),
				slog.String("error", sendErr.Error()),
			)
			return Retryable(fmt.Errorf("curator/processor: dispatch %s to %q: %w", req.Envelope.ID, req.TargetQueue, sendErr))
		}
	}
	return Success(dispatches)
}
