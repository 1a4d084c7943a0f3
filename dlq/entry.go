package dlq

import (
	"time"

	"github.com/xraph/curator/id"
	"github.com/xraph/curator/job"
)

// Entry represents a job that failed fatally or exhausted its retry
// budget and was quarantined for inspection or replay.
type Entry struct {
	ID            id.QuarantineID `json:"id"`
	JobID         string          `json:"job_id"`
	JobType       job.Type        `json:"job_type"`
	Queue         string          `json:"queue"`
	Payload       map[string]any  `json:"payload"`
	Reason        string          `json:"reason"`
	Attempt       int             `json:"attempt"`
	QuarantinedAt time.Time       `json:"quarantined_at"`
	ReplayedAt    *time.Time      `json:"replayed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
