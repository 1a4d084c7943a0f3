package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/curator"
	"github.com/xraph/curator/dlq"
	"github.com/xraph/curator/id"
	"github.com/xraph/curator/job"
	"github.com/xraph/curator/store"
)

// Ensure Store implements the composite interface at compile time.
var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	records map[string]*job.Record
	dlqs    map[string]*dlq.Entry
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		records: make(map[string]*job.Record),
		dlqs:    make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Record Store
// ──────────────────────────────────────────────────

// GetRecord retrieves a record by job ID.
func (m *Store) GetRecord(_ context.Context, jobID string) (*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[jobID]
	if !ok {
		return nil, curator.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

// CompareAndSetRecord writes rec iff the stored status matches expected.
// Empty expected asserts no record exists yet.
func (m *Store) CompareAndSetRecord(_ context.Context, expected job.Status, rec *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.records[rec.JobID]
	if expected == "" {
		if ok {
			return fmt.Errorf("%w: %s", curator.ErrRecordExists, rec.JobID)
		}
	} else {
		if !ok {
			return fmt.Errorf("%w: %s", curator.ErrRecordNotFound, rec.JobID)
		}
		if current.Status != expected {
			return fmt.Errorf("%w: %s is %s, expected %s",
				curator.ErrRecordConflict, rec.JobID, current.Status, expected)
		}
	}

	cp := *rec
	cp.UpdatedAt = time.Now().UTC()
	if current != nil {
		cp.CreatedAt = current.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	m.records[rec.JobID] = &cp
	return nil
}

// PutRecord writes rec unconditionally.
func (m *Store) PutRecord(_ context.Context, rec *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	cp.UpdatedAt = time.Now().UTC()
	if current, ok := m.records[rec.JobID]; ok {
		cp.CreatedAt = current.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	m.records[rec.JobID] = &cp
	return nil
}

// ListRecordsByStatus returns records in the given status, newest
// update first.
func (m *Store) ListRecordsByStatus(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Record, 0, len(m.records))
	for _, rec := range m.records {
		if rec.Status != status {
			continue
		}
		cp := *rec
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].UpdatedAt.After(result[k].UpdatedAt)
	})

	// Apply offset / limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountRecords returns the number of records per status.
func (m *Store) CountRecords(_ context.Context) (map[job.Status]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[job.Status]int64)
	for _, rec := range m.records {
		counts[rec.Status]++
	}
	return counts, nil
}

// ──────────────────────────────────────────────────
// Quarantine Store
// ──────────────────────────────────────────────────

// PushDLQ adds a dead job entry to the quarantine.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns quarantine entries matching the given options,
// newest first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].QuarantinedAt.After(result[k].QuarantinedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// GetDLQ retrieves a quarantine entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.QuarantineID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, curator.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

// ReplayDLQ marks a quarantine entry as replayed.
func (m *Store) ReplayDLQ(_ context.Context, entryID id.QuarantineID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return curator.ErrEntryNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes quarantine entries quarantined before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.dlqs {
		if e.QuarantinedAt.Before(before) {
			delete(m.dlqs, key)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of entries in the quarantine.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.dlqs)), nil
}
