package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/curator"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/queue"
)

// Indexer regenerates the catalog index for one subject. The index
// itself lives with an external collaborator; errors from it are
// transient by default and retried under the attempt budget.
type Indexer interface {
	RebuildIndex(ctx context.Context, subject string) error
}

// IndexerFunc adapts a function to the Indexer interface.
type IndexerFunc func(ctx context.Context, subject string) error

// RebuildIndex calls f.
func (f IndexerFunc) RebuildIndex(ctx context.Context, subject string) error {
	return f(ctx, subject)
}

// NoopIndexer is the default Indexer: it accepts every rebuild without
// touching anything, for deployments where the index is materialized
// solely by a downstream consumer of the notify queue.
type NoopIndexer struct{}

// RebuildIndex returns nil.
func (NoopIndexer) RebuildIndex(ctx context.Context, subject string) error { return nil }

// Rebuild returns the transform for rebuild jobs. It validates the
// subject, invokes the indexer, and emits one notify announcing the
// rebuilt index.
func Rebuild(notifyQueue string, indexer Indexer) Transform {
	return func(ctx context.Context, env job.Envelope) ([]queue.DispatchRequest, error) {
		subject, err := requireString(env.Payload, "subject")
		if err != nil {
			return nil, Permanent(err)
		}
		if !KnownSubject(subject) {
			return nil, Permanent(fmt.Errorf("%w: unknown subject %q", curator.ErrInvalidEnvelope, subject))
		}

		if err := indexer.RebuildIndex(ctx, subject); err != nil {
			return nil, fmt.Errorf("curator/processor: rebuild index for %s: %w", subject, err)
		}

		return []queue.DispatchRequest{
			{
				TargetQueue: notifyQueue,
				Envelope: job.Envelope{
					ID:   job.DeriveID(env.ID, env.Attempt, 0),
					Type: job.TypeNotify,
					Payload: map[string]any{
						"channel": "catalog",
						"message": fmt.Sprintf("catalog index rebuilt for %s", subject),
					},
					EnqueuedAt: time.Now().UTC(),
				},
			},
		}, nil
	}
}
