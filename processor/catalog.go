package processor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xraph/curator"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/queue"
)

// Default target queues for the built-in transforms' dispatches.
const (
	// DefaultCatalogQueue carries catalog_entry and rebuild work.
	DefaultCatalogQueue = "catalog"
	// DefaultNotifyQueue carries notify work.
	DefaultNotifyQueue = "notify"
)

var commitHashPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// catalogPayload is the parsed payload of a catalog_entry job.
type catalogPayload struct {
	RepoURL    string
	RepoName   string
	Owner      string
	Commit     string
	ResourceID string
	Ref        string
	ReleasedAt string
}

func parseCatalogPayload(payload map[string]any) (catalogPayload, error) {
	var p catalogPayload
	var err error
	if p.RepoURL, err = requireString(payload, "repo_url"); err != nil {
		return p, err
	}
	if p.RepoName, err = requireString(payload, "repo_name"); err != nil {
		return p, err
	}
	if p.Owner, err = requireString(payload, "owner"); err != nil {
		return p, err
	}
	if p.Commit, err = requireString(payload, "commit"); err != nil {
		return p, err
	}
	if !commitHashPattern.MatchString(p.Commit) {
		return p, fmt.Errorf("%w: commit %q is not a full lowercase hash", curator.ErrInvalidEnvelope, p.Commit)
	}
	if p.ResourceID, err = requireString(payload, "resource_id"); err != nil {
		return p, err
	}
	p.Ref = optionalString(payload, "ref")
	p.ReleasedAt = optionalString(payload, "released_at")
	return p, nil
}

// archiveURL derives the downloadable snapshot URL for a commit.
func archiveURL(repoURL, commit string) string {
	return strings.TrimSuffix(repoURL, "/") + "/archive/" + commit + ".zip"
}

func shortCommit(commit string) string {
	if len(commit) > 10 {
		return commit[:10]
	}
	return commit
}

// CatalogEntry returns the transform for catalog_entry jobs. It
// validates the entry payload, resolves the catalog subject for the
// entry's resource, and emits two dispatches: a rebuild of the
// subject's index (carrying the derived commit archive URL) and a
// notify for the published entry.
func CatalogEntry(rebuildQueue, notifyQueue string) Transform {
	return func(ctx context.Context, env job.Envelope) ([]queue.DispatchRequest, error) {
		p, err := parseCatalogPayload(env.Payload)
		if err != nil {
			return nil, Permanent(err)
		}
		subject, ok := SubjectFor(p.ResourceID)
		if !ok {
			return nil, Permanent(fmt.Errorf("%w: no subject for resource %q", curator.ErrInvalidEnvelope, p.ResourceID))
		}

		version := p.Ref
		if version == "" {
			version = shortCommit(p.Commit)
		}
		notifyPayload := map[string]any{
			"channel": "catalog",
			"message": fmt.Sprintf("catalog entry %s/%s %s published under %s", p.Owner, p.RepoName, version, subject),
		}
		if p.ReleasedAt != "" {
			notifyPayload["released_at"] = p.ReleasedAt
		}

		now := time.Now().UTC()
		return []queue.DispatchRequest{
			{
				TargetQueue: rebuildQueue,
				Envelope: job.Envelope{
					ID:   job.DeriveID(env.ID, env.Attempt, 0),
					Type: job.TypeRebuild,
					Payload: map[string]any{
						"subject":     subject,
						"archive_url": archiveURL(p.RepoURL, p.Commit),
					},
					EnqueuedAt: now,
				},
			},
			{
				TargetQueue: notifyQueue,
				Envelope: job.Envelope{
					ID:         job.DeriveID(env.ID, env.Attempt, 1),
					Type:       job.TypeNotify,
					Payload:    notifyPayload,
					EnqueuedAt: now,
				},
			},
		}, nil
	}
}

// CatalogRepoURL extracts the repository URL from a catalog_entry
// envelope. The supersede check keys on it to spot a fresher push for
// the same repository already waiting in the queue.
func CatalogRepoURL(env job.Envelope) (string, bool) {
	if env.Type != job.TypeCatalogEntry {
		return "", false
	}
	s := optionalString(env.Payload, "repo_url")
	return s, s != ""
}
