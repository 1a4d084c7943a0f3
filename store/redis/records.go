package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/curator"
	"github.com/xraph/curator/id"
	"github.com/xraph/curator/job"
)

// casScript guards a record write on the stored status. An empty
// expected status (ARGV[1]) asserts the record must not exist yet.
// Reply is {code, current}: 0 ok, 1 exists, 2 not found, 3 conflict.
var casScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'status')
if ARGV[1] == '' then
  if current then
    return {1, current}
  end
elseif not current then
  return {2, ''}
elseif current ~= ARGV[1] then
  return {3, current}
end
redis.call('HSET', KEYS[1],
  'job_id', ARGV[2],
  'status', ARGV[3],
  'attempt', ARGV[4],
  'last_error', ARGV[5],
  'claimed_by', ARGV[6],
  'updated_at', ARGV[7])
redis.call('HSETNX', KEYS[1], 'created_at', ARGV[8])
redis.call('ZADD', KEYS[2], tonumber(ARGV[9]), ARGV[2])
return {0, ''}
`)

// GetRecord retrieves a record by job id.
func (s *Store) GetRecord(ctx context.Context, jobID string) (*job.Record, error) {
	vals, err := s.client.HGetAll(ctx, recordKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("curator/redis: get record: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %s", curator.ErrRecordNotFound, jobID)
	}
	return mapToRecord(vals), nil
}

// CompareAndSetRecord writes rec only if the stored status matches
// expected. The guard and the write run as one Lua script, so racing
// claimers serialize on the Redis side.
func (s *Store) CompareAndSetRecord(ctx context.Context, expected job.Status, rec *job.Record) error {
	now := time.Now().UTC()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	res, err := casScript.Run(ctx, s.client,
		[]string{recordKey(rec.JobID), recordIDsKey},
		string(expected),
		rec.JobID,
		string(rec.Status),
		strconv.Itoa(rec.Attempt),
		rec.LastError,
		rec.ClaimedBy.String(),
		now.Format(time.RFC3339Nano),
		createdAt.Format(time.RFC3339Nano),
		strconv.FormatInt(now.UnixMilli(), 10),
	).Result()
	if err != nil {
		return fmt.Errorf("curator/redis: compare and set record: %w", err)
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) != 2 {
		return fmt.Errorf("curator/redis: compare and set record: unexpected reply %v", res)
	}
	code, _ := reply[0].(int64)
	current, _ := reply[1].(string)

	switch code {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%w: %s", curator.ErrRecordExists, rec.JobID)
	case 2:
		return fmt.Errorf("%w: %s", curator.ErrRecordNotFound, rec.JobID)
	default:
		return fmt.Errorf("%w: %s is %s, expected %s",
			curator.ErrRecordConflict, rec.JobID, current, expected)
	}
}

// PutRecord writes rec unconditionally. CreatedAt of an existing record
// is preserved via HSETNX.
func (s *Store) PutRecord(ctx context.Context, rec *job.Record) error {
	now := time.Now().UTC()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	key := recordKey(rec.JobID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"job_id":     rec.JobID,
		"status":     string(rec.Status),
		"attempt":    strconv.Itoa(rec.Attempt),
		"last_error": rec.LastError,
		"claimed_by": rec.ClaimedBy.String(),
		"updated_at": now.Format(time.RFC3339Nano),
	})
	pipe.HSetNX(ctx, key, "created_at", createdAt.Format(time.RFC3339Nano))
	pipe.ZAdd(ctx, recordIDsKey, redis.Z{Score: float64(now.UnixMilli()), Member: rec.JobID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("curator/redis: put record: %w", err)
	}
	return nil
}

// ListRecordsByStatus returns records matching the given status, newest
// update first.
func (s *Store) ListRecordsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	ids, err := s.client.ZRevRange(ctx, recordIDsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("curator/redis: list records zrevrange: %w", err)
	}

	records := make([]*job.Record, 0, len(ids))
	for _, jobID := range ids {
		vals, getErr := s.client.HGetAll(ctx, recordKey(jobID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue // skip missing
		}
		r := mapToRecord(vals)
		if r.Status != status {
			continue
		}
		records = append(records, r)
	}

	// Apply offset/limit.
	if opts.Offset > 0 && opts.Offset < len(records) {
		records = records[opts.Offset:]
	} else if opts.Offset >= len(records) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(records) {
		records = records[:opts.Limit]
	}
	return records, nil
}

// CountRecords returns the number of records per status.
func (s *Store) CountRecords(ctx context.Context) (map[job.Status]int64, error) {
	ids, err := s.client.ZRange(ctx, recordIDsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("curator/redis: count records zrange: %w", err)
	}

	counts := make(map[job.Status]int64)
	for _, jobID := range ids {
		statusStr, getErr := s.client.HGet(ctx, recordKey(jobID), "status").Result()
		if getErr != nil {
			continue
		}
		counts[job.Status(statusStr)]++
	}
	return counts, nil
}

// ── helpers ──

func mapToRecord(m map[string]string) *job.Record {
	r := &job.Record{
		JobID:     m["job_id"],
		Status:    job.Status(m["status"]),
		LastError: m["last_error"],
	}
	r.Attempt, _ = strconv.Atoi(m["attempt"])                      //nolint:errcheck // best-effort parse from trusted Redis data
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	if wid := m["claimed_by"]; wid != "" {
		r.ClaimedBy, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	return r
}
