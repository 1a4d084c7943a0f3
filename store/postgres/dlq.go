package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/curator"
	"github.com/xraph/curator/dlq"
	"github.com/xraph/curator/id"
	"github.com/xraph/curator/job"
)

// PushDLQ adds a dead job entry to the quarantine.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO curator_dlq (
			id, job_id, job_type, queue, payload, reason,
			attempt, quarantined_at, replayed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID.String(), entry.JobID, string(entry.JobType),
		entry.Queue, entry.Payload, entry.Reason,
		entry.Attempt, entry.QuarantinedAt, entry.ReplayedAt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("curator/postgres: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns quarantine entries matching the given options,
// newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `
		SELECT
			id, job_id, job_type, queue, payload, reason,
			attempt, quarantined_at, replayed_at, created_at
		FROM curator_dlq
		WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}

	query += " ORDER BY quarantined_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("curator/postgres: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQ(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("curator/postgres: scan dlq row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("curator/postgres: iterate dlq rows: %w", err)
	}
	return entries, nil
}

// GetDLQ retrieves a quarantine entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.QuarantineID) (*dlq.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			id, job_id, job_type, queue, payload, reason,
			attempt, quarantined_at, replayed_at, created_at
		FROM curator_dlq
		WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanDLQ(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", curator.ErrEntryNotFound, entryID)
		}
		return nil, fmt.Errorf("curator/postgres: get dlq: %w", err)
	}
	return e, nil
}

// ReplayDLQ marks a quarantine entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.QuarantineID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE curator_dlq SET replayed_at = NOW() WHERE id = $1`,
		entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("curator/postgres: replay dlq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", curator.ErrEntryNotFound, entryID)
	}
	return nil
}

// PurgeDLQ removes quarantine entries with QuarantinedAt before the
// given time. Returns the number of entries removed.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM curator_dlq WHERE quarantined_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("curator/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDLQ returns the total number of entries in the quarantine.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM curator_dlq`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("curator/postgres: count dlq: %w", err)
	}
	return count, nil
}

// scanDLQ scans a single quarantine entry row.
func scanDLQ(row pgx.Row) (*dlq.Entry, error) {
	var (
		e       dlq.Entry
		idStr   string
		typeStr string
	)
	err := row.Scan(
		&idStr, &e.JobID, &typeStr, &e.Queue, &e.Payload, &e.Reason,
		&e.Attempt, &e.QuarantinedAt, &e.ReplayedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.JobType = job.Type(typeStr)

	parsedID, parseErr := id.ParseQuarantineID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("curator/postgres: parse dlq id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	return &e, nil
}
