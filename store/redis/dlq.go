package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/curator"
	"github.com/xraph/curator/dlq"
	"github.com/xraph/curator/id"
	"github.com/xraph/curator/job"
)

// PushDLQ adds a dead job entry to the quarantine.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	eID := entry.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, dlqKey(eID), dlqToMap(entry))
	pipe.ZAdd(ctx, dlqIDsKey, redis.Z{
		Score:  float64(entry.QuarantinedAt.UnixMilli()),
		Member: eID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("curator/redis: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns quarantine entries matching the given options,
// newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	ids, err := s.client.ZRevRange(ctx, dlqIDsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("curator/redis: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(ids))
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, dlqKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		e, convErr := mapToDLQ(vals)
		if convErr != nil {
			continue
		}
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		entries = append(entries, e)
	}

	// Apply offset/limit.
	if opts.Offset > 0 && opts.Offset < len(entries) {
		entries = entries[opts.Offset:]
	} else if opts.Offset >= len(entries) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDLQ retrieves a quarantine entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.QuarantineID) (*dlq.Entry, error) {
	vals, err := s.client.HGetAll(ctx, dlqKey(entryID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("curator/redis: get dlq: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %s", curator.ErrEntryNotFound, entryID)
	}
	return mapToDLQ(vals)
}

// ReplayDLQ marks a quarantine entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.QuarantineID) error {
	key := dlqKey(entryID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("curator/redis: replay dlq exists: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", curator.ErrEntryNotFound, entryID)
	}

	_, err = s.client.HSet(ctx, key,
		"replayed_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("curator/redis: replay dlq: %w", err)
	}
	return nil
}

// PurgeDLQ removes quarantine entries with QuarantinedAt before the
// given time. Returns the number of entries removed.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	cutoff := strconv.FormatInt(before.UnixMilli(), 10)
	ids, err := s.client.ZRangeByScore(ctx, dlqIDsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + cutoff,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("curator/redis: purge dlq zrangebyscore: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, eID := range ids {
		pipe.Del(ctx, dlqKey(eID))
		pipe.ZRem(ctx, dlqIDsKey, eID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("curator/redis: purge dlq: %w", err)
	}
	return int64(len(ids)), nil
}

// CountDLQ returns the total number of entries in the quarantine.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, dlqIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("curator/redis: count dlq: %w", err)
	}
	return count, nil
}

// ── helpers ──

func dlqToMap(e *dlq.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":             e.ID.String(),
		"job_id":         e.JobID,
		"job_type":       string(e.JobType),
		"queue":          e.Queue,
		"payload":        marshalJSON(e.Payload),
		"reason":         e.Reason,
		"attempt":        strconv.Itoa(e.Attempt),
		"quarantined_at": e.QuarantinedAt.Format(time.RFC3339Nano),
		"created_at":     e.CreatedAt.Format(time.RFC3339Nano),
	}
	if e.ReplayedAt != nil {
		m["replayed_at"] = e.ReplayedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToDLQ(m map[string]string) (*dlq.Entry, error) {
	eID, err := id.ParseQuarantineID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("curator/redis: parse dlq id: %w", err)
	}

	attempt, _ := strconv.Atoi(m["attempt"])                              //nolint:errcheck // best-effort parse from trusted Redis data
	quarantinedAt, _ := time.Parse(time.RFC3339Nano, m["quarantined_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])         //nolint:errcheck // best-effort parse from trusted Redis data

	e := &dlq.Entry{
		ID:            eID,
		JobID:         m["job_id"],
		JobType:       job.Type(m["job_type"]),
		Queue:         m["queue"],
		Payload:       unmarshalPayload(m["payload"]),
		Reason:        m["reason"],
		Attempt:       attempt,
		QuarantinedAt: quarantinedAt,
		CreatedAt:     createdAt,
	}

	if v := m["replayed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.ReplayedAt = &t
	}
	return e, nil
}

// marshalJSON is a helper to marshal to JSON string.
func marshalJSON(v interface{}) string {
	b, _ := json.Marshal(v) //nolint:errcheck // marshal should not fail for basic types
	return string(b)
}

// unmarshalPayload parses a JSON object into a payload map.
func unmarshalPayload(s string) map[string]any {
	if s == "" || s == "null" {
		return nil
	}
	out := make(map[string]any)
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted Redis data
	return out
}
