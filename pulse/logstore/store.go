package logstore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/teranos/avscheduler/errors"
)

// Store is the durable execution history, backed by job_execution_logs.
//
// Writers are serialized with a mutex; SQLite in WAL mode gives readers a
// consistent snapshot, so a concurrent Latest never observes a partial row.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writers
}

// NewStore creates a new execution log store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Filter narrows List results. Zero values mean "no restriction".
type Filter struct {
	JobID string
	Limit int
}

// Append durably stores rec and returns it with its assigned ID.
// The timestamp is normalized to UTC.
func (s *Store) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.JobID == "" {
		return Record{}, errors.Wrap(errors.ErrLogStore, "record has no job_id")
	}
	if rec.Duration < 0 {
		rec.Duration = 0
	}
	rec.Timestamp = rec.Timestamp.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO job_execution_logs (job_id, exit_code, execution_time, timestamp)
		VALUES (?, ?, ?, ?)`,
		rec.JobID, rec.ExitCode, rec.Duration, formatTimestamp(rec.Timestamp),
	)
	if err != nil {
		return Record{}, errors.Wrapf(errors.Mark(err, errors.ErrLogStore),
			"failed to append execution for job %s", rec.JobID)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return Record{}, errors.Wrap(errors.Mark(err, errors.ErrLogStore), "failed to read inserted id")
	}
	rec.ID = id
	return rec, nil
}

// Latest returns the most recent record for jobID, or nil if it has never run.
func (s *Store) Latest(ctx context.Context, jobID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, exit_code, execution_time, timestamp
		FROM job_execution_logs
		WHERE job_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, jobID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(errors.Mark(err, errors.ErrLogStore),
			"failed to query latest execution for job %s", jobID)
	}
	return &rec, nil
}

// List returns records newest first (timestamp DESC, then id DESC).
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `
		SELECT id, job_id, exit_code, execution_time, timestamp
		FROM job_execution_logs`
	var args []interface{}

	if f.JobID != "" {
		query += " WHERE job_id = ?"
		args = append(args, f.JobID)
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrLogStore), "failed to list executions")
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListSince returns records with id > afterID in insertion order.
// The status server polls this to stream new executions.
func (s *Store) ListSince(ctx context.Context, afterID int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, exit_code, execution_time, timestamp
		FROM job_execution_logs
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrLogStore), "failed to list new executions")
	}
	defer rows.Close()

	return scanRecords(rows)
}

// MaxID returns the highest record id, or 0 for an empty store.
func (s *Store) MaxID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM job_execution_logs").Scan(&id); err != nil {
		return 0, errors.Wrap(errors.Mark(err, errors.ErrLogStore), "failed to query max execution id")
	}
	return id.Int64, nil
}

// Delete removes records for jobID. With all set, every record for the job
// goes; otherwise only records with timestamp strictly before `before`.
// An empty jobID with all set clears the whole table. Returns rows removed.
func (s *Store) Delete(ctx context.Context, jobID string, before time.Time, all bool) (int64, error) {
	var (
		query string
		args  []interface{}
	)

	switch {
	case all && jobID == "":
		query = "DELETE FROM job_execution_logs"
	case all:
		query = "DELETE FROM job_execution_logs WHERE job_id = ?"
		args = []interface{}{jobID}
	case before.IsZero():
		return 0, errors.New("cleanup requires either a cutoff time or all")
	case jobID == "":
		query = "DELETE FROM job_execution_logs WHERE timestamp < ?"
		args = []interface{}{formatTimestamp(before)}
	default:
		query = "DELETE FROM job_execution_logs WHERE job_id = ? AND timestamp < ?"
		args = []interface{}{jobID, formatTimestamp(before)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(errors.Mark(err, errors.ErrLogStore), "failed to delete executions")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(errors.Mark(err, errors.ErrLogStore), "failed to check rows affected")
	}
	return n, nil
}

// JobIDs returns every job ID that has history, sorted.
func (s *Store) JobIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT job_id FROM job_execution_logs ORDER BY job_id")
	if err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrLogStore), "failed to list job ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(errors.Mark(err, errors.ErrLogStore), "failed to scan job id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrLogStore), "error iterating job ids")
	}
	return ids, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec Record
		ts  string
	)
	if err := row.Scan(&rec.ID, &rec.JobID, &rec.ExitCode, &rec.Duration, &ts); err != nil {
		return Record{}, err
	}

	t, err := parseTimestamp(ts)
	if err != nil {
		return Record{}, errors.Wrapf(err, "corrupt timestamp %q in execution %d", ts, rec.ID)
	}
	rec.Timestamp = t
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(errors.Mark(err, errors.ErrLogStore), "failed to scan execution")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrLogStore), "error iterating executions")
	}
	return records, nil
}
