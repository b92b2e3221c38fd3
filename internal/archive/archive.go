// Package archive keeps a durable record of finished tasks.
//
// The scheduler's live task set is in-memory (with a YAML file for
// restart recovery); the archive is the long-lived history used for
// metrics over past productions. It is append-only from the daemon's
// point of view: one row per terminal task, written on the completed or
// failed transition.
package archive

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stagecraft/stagehand/pkg/cerr"
)

// Record is one archived terminal task.
type Record struct {
	TaskID         string
	Name           string
	Queue          string
	Outcome        string // "completed" or "failed"
	Reason         string
	DurationMillis int64
	CreatedAt      time.Time
	FinishedAt     time.Time
}

// Stats aggregates the archive for reporting.
type Stats struct {
	Total                 int
	Completed             int
	Failed                int
	AverageDurationMillis int64
}

// Store is a SQLite-backed task archive. Use ":memory:" for tests.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cerr.Errorf(cerr.Internal, err, "failed to open archive %q", path)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, cerr.Errorf(cerr.Internal, err, "failed to enable WAL on archive")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, cerr.Errorf(cerr.Internal, err, "failed to initialize archive schema")
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS task_archive (
	task_id     TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	queue       TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_archive_outcome ON task_archive(outcome);
`

func (s *Store) Close() error { return s.db.Close() }

// Put inserts or replaces one terminal record.
func (s *Store) Put(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO task_archive
			(task_id, name, queue, outcome, reason, duration_ms, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.Name, rec.Queue, rec.Outcome, rec.Reason,
		rec.DurationMillis, rec.CreatedAt, rec.FinishedAt)
	if err != nil {
		return cerr.Errorf(cerr.Internal, err, "failed to archive task %s", rec.TaskID)
	}
	return nil
}

// Get returns one archived record.
func (s *Store) Get(ctx context.Context, taskID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, name, queue, outcome, reason, duration_ms, created_at, finished_at
		FROM task_archive WHERE task_id = ?`, taskID)
	var rec Record
	err := row.Scan(&rec.TaskID, &rec.Name, &rec.Queue, &rec.Outcome, &rec.Reason,
		&rec.DurationMillis, &rec.CreatedAt, &rec.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, cerr.Errorf(cerr.NotFound, nil, "task %s not archived", taskID)
	}
	if err != nil {
		return nil, cerr.Errorf(cerr.Internal, err, "failed to read archive")
	}
	return &rec, nil
}

// Recent lists the most recently finished records.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, name, queue, outcome, reason, duration_ms, created_at, finished_at
		FROM task_archive ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, cerr.Errorf(cerr.Internal, err, "failed to list archive")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.TaskID, &rec.Name, &rec.Queue, &rec.Outcome, &rec.Reason,
			&rec.DurationMillis, &rec.CreatedAt, &rec.FinishedAt); err != nil {
			return nil, cerr.Errorf(cerr.Internal, err, "failed to scan archive row")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats aggregates all archived outcomes.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN outcome = 'completed' THEN duration_ms END), 0)
		FROM task_archive`)
	var st Stats
	var avg float64
	if err := row.Scan(&st.Total, &st.Completed, &st.Failed, &avg); err != nil {
		return Stats{}, cerr.Errorf(cerr.Internal, err, "failed to aggregate archive")
	}
	st.AverageDurationMillis = int64(avg)
	return st, nil
}
