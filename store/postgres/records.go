package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/curator"
	"github.com/xraph/curator/id"
	"github.com/xraph/curator/job"
)

// GetRecord retrieves a record by job id.
func (s *Store) GetRecord(ctx context.Context, jobID string) (*job.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT job_id, status, attempt, last_error, claimed_by, created_at, updated_at
		FROM curator_records
		WHERE job_id = $1`,
		jobID,
	)

	r, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", curator.ErrRecordNotFound, jobID)
		}
		return nil, fmt.Errorf("curator/postgres: get record: %w", err)
	}
	return r, nil
}

// CompareAndSetRecord writes rec only if the stored status matches
// expected. An empty expected status asserts no record exists, turning
// the write into a guarded create on the primary key.
func (s *Store) CompareAndSetRecord(ctx context.Context, expected job.Status, rec *job.Record) error {
	if expected == "" {
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO curator_records (
				job_id, status, attempt, last_error, claimed_by, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
			rec.JobID, string(rec.Status), rec.Attempt, rec.LastError,
			rec.ClaimedBy.String(), createdAt,
		)
		if err != nil {
			// Unique violation means another writer created the record first.
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: %s", curator.ErrRecordExists, rec.JobID)
			}
			return fmt.Errorf("curator/postgres: create record: %w", err)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE curator_records SET
			status = $2, attempt = $3, last_error = $4, claimed_by = $5,
			updated_at = NOW()
		WHERE job_id = $1 AND status = $6`,
		rec.JobID, string(rec.Status), rec.Attempt, rec.LastError,
		rec.ClaimedBy.String(), string(expected),
	)
	if err != nil {
		return fmt.Errorf("curator/postgres: compare and set record: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows: the guard failed. A follow-up read picks the sentinel,
	// distinguishing a missing record from a status conflict.
	var current string
	err = s.pool.QueryRow(ctx,
		`SELECT status FROM curator_records WHERE job_id = $1`,
		rec.JobID,
	).Scan(&current)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("%w: %s", curator.ErrRecordNotFound, rec.JobID)
		}
		return fmt.Errorf("curator/postgres: compare and set record: %w", err)
	}
	return fmt.Errorf("%w: %s is %s, expected %s",
		curator.ErrRecordConflict, rec.JobID, current, expected)
}

// PutRecord writes rec unconditionally, inserting or replacing the
// stored row. CreatedAt of an existing row is preserved.
func (s *Store) PutRecord(ctx context.Context, rec *job.Record) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO curator_records (
			job_id, status, attempt, last_error, claimed_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			attempt = EXCLUDED.attempt,
			last_error = EXCLUDED.last_error,
			claimed_by = EXCLUDED.claimed_by,
			updated_at = NOW()`,
		rec.JobID, string(rec.Status), rec.Attempt, rec.LastError,
		rec.ClaimedBy.String(), createdAt,
	)
	if err != nil {
		return fmt.Errorf("curator/postgres: put record: %w", err)
	}
	return nil
}

// ListRecordsByStatus returns records matching the given status, newest
// update first.
func (s *Store) ListRecordsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	query := `
		SELECT job_id, status, attempt, last_error, claimed_by, created_at, updated_at
		FROM curator_records
		WHERE status = $1
		ORDER BY updated_at DESC`
	args := []interface{}{string(status)}
	argIdx := 2

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
		return nil, fmt.Errorf("curator/postgres: list records by status: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// CountRecords returns the number of records per status.
func (s *Store) CountRecords(ctx context.Context) (map[job.Status]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM curator_records GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("curator/postgres: count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[job.Status]int64)
	for rows.Next() {
		var (
			statusStr string
			count     int64
		)
		if scanErr := rows.Scan(&statusStr, &count); scanErr != nil {
			return nil, fmt.Errorf("curator/postgres: scan record count: %w", scanErr)
		}
		counts[job.Status(statusStr)] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("curator/postgres: iterate record counts: %w", err)
	}
	return counts, nil
}

// scanRecord scans a single record row.
func scanRecord(row pgx.Row) (*job.Record, error) {
	var (
		r         job.Record
		statusStr string
		workerStr string
	)
	err := row.Scan(
		&r.JobID, &statusStr, &r.Attempt, &r.LastError, &workerStr,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = job.Status(statusStr)

	if workerStr != "" {
		parsedWorker, workerErr := id.ParseWorkerID(workerStr)
		if workerErr == nil {
			r.ClaimedBy = parsedWorker
		}
	}

	return &r, nil
}

// collectRecords collects all records from query rows.
func collectRecords(rows pgx.Rows) ([]*job.Record, error) {
	var records []*job.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("curator/postgres: scan record row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("curator/postgres: iterate record rows: %w", err)
	}
	return records, nil
}
