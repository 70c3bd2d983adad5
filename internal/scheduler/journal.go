package scheduler

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS job_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  job_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  queue TEXT NOT NULL,
  target INTEGER DEFAULT 0,
  attempt INTEGER NOT NULL,
  status TEXT NOT NULL,
  error TEXT,
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_runs_kind ON job_runs(kind);
CREATE INDEX IF NOT EXISTS idx_job_runs_started ON job_runs(started_at);
`

// RunRecord is one executed job attempt.
type RunRecord struct {
	JobID      string    `json:"job_id"`
	Kind       string    `json:"kind"`
	Queue      string    `json:"queue"`
	Target     int       `json:"target"`
	Attempt    int       `json:"attempt"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Journal keeps a local run history of every job attempt in a SQLite file, so
// operators can inspect what the scheduler did without a central log store.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenJournal opens (or creates) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one run record.
func (j *Journal) Record(r RunRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`
		INSERT INTO job_runs (job_id, kind, queue, target, attempt, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.Kind, r.Queue, r.Target, r.Attempt, r.Status, r.Error,
		r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339))
	return err
}

// Recent returns the latest n run records, newest first.
func (j *Journal) Recent(n int) ([]RunRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rows, err := j.db.Query(`
		SELECT job_id, kind, queue, target, attempt, status, COALESCE(error, ''), started_at, finished_at
		FROM job_runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		if err := rows.Scan(&r.JobID, &r.Kind, &r.Queue, &r.Target, &r.Attempt, &r.Status, &r.Error, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneBefore deletes run records older than cutoff, returning the count.
func (j *Journal) PruneBefore(cutoff time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	res, err := j.db.Exec(`DELETE FROM job_runs WHERE started_at < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
