// Package state persists batch run history in an embedded SQLite
// database, enabling skip-processed runs and post-hoc inspection.
package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	input_path TEXT NOT NULL,
	status     TEXT NOT NULL,
	error_kind TEXT,
	error_text TEXT,
	duration   REAL,
	segments   INTEGER,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_input_path ON jobs(input_path);
CREATE INDEX IF NOT EXISTS idx_jobs_run_id ON jobs(run_id);
`

// Store is the run-history database. A nil *Store disables history: every
// method is nil-safe.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the history database at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply state schema: %w", err)
	}
	log.Debug().Str("path", path).Msg("state db ready")
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun records a new batch run.
func (s *Store) BeginRun(runID string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`, runID, time.Now().UTC())
	return err
}

// FinishRun records the final counters for a run.
func (s *Store) FinishRun(runID string, succeeded, failed, skipped int) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, succeeded = ?, failed = ?, skipped = ? WHERE id = ?`,
		time.Now().UTC(), succeeded, failed, skipped, runID)
	return err
}

// JobRecord is one persisted job outcome.
type JobRecord struct {
	ID        string
	RunID     string
	InputPath string
	Status    string
	ErrorKind string
	ErrorText string
	Duration  float64
	Segments  int
}

// RecordJob persists one job outcome.
func (s *Store) RecordJob(r JobRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO jobs (id, run_id, input_path, status, error_kind, error_text, duration, segments, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RunID, r.InputPath, r.Status, r.ErrorKind, r.ErrorText, r.Duration, r.Segments, time.Now().UTC())
	return err
}

// HasSucceeded reports whether any previous run succeeded for inputPath.
func (s *Store) HasSucceeded(inputPath string) (bool, error) {
	if s == nil {
		return false, nil
	}
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(1) FROM jobs WHERE input_path = ? AND status = 'succeeded'`, inputPath).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RunJobs returns the recorded jobs for one run, oldest first.
func (s *Store) RunJobs(runID string) ([]JobRecord, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.Query(
		`SELECT id, run_id, input_path, status, COALESCE(error_kind,''), COALESCE(error_text,''), COALESCE(duration,0), COALESCE(segments,0)
		 FROM jobs WHERE run_id = ? ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var r JobRecord
		if err := rows.Scan(&r.ID, &r.RunID, &r.InputPath, &r.Status, &r.ErrorKind, &r.ErrorText, &r.Duration, &r.Segments); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
