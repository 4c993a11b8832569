// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records batch article runs in SQLite so a later
// invocation can list past runs and replay only the topics that failed.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// TopicStatus is the terminal state of one topic within a run.
type TopicStatus string

const (
	// StatusSucceeded marks a topic whose article was written.
	StatusSucceeded TopicStatus = "succeeded"

	// StatusFailed marks a topic whose pipeline aborted.
	StatusFailed TopicStatus = "failed"
)

// Run is one batch invocation.
type Run struct {
	ID         string
	TopicsFile string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in flight
	Total      int
	Succeeded  int
	Failed     int
}

// TopicRecord is the outcome of one topic within a run.
type TopicRecord struct {
	RunID       string
	Topic       string
	Status      TopicStatus
	ArticlePath string
	Error       string
	Duration    time.Duration
}

// Ledger manages the run database.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path. Parent directories
// and the schema are created as needed. Topic workers record outcomes
// concurrently, so writes serialize on the busy timeout.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return l, nil
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			topics_file TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS topic_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			topic TEXT NOT NULL,
			status TEXT NOT NULL,
			article_path TEXT,
			error TEXT,
			duration_ms INTEGER,
			recorded_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_topic_runs_run_id ON topic_runs(run_id)`,
	}

	for _, stmt := range statements {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// BeginRun inserts a new run row and returns its id.
func (l *Ledger) BeginRun(ctx context.Context, topicsFile string, total int) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, topics_file, started_at, total) VALUES (?, ?, ?, ?)`,
		id, topicsFile, time.Now().UTC().Format(time.RFC3339Nano), total,
	)
	if err != nil {
		return "", fmt.Errorf("recording run start: %w", err)
	}
	return id, nil
}

// RecordTopic appends one topic outcome to the run.
func (l *Ledger) RecordTopic(ctx context.Context, rec TopicRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO topic_runs (run_id, topic, status, article_path, error, duration_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Topic, string(rec.Status), rec.ArticlePath, rec.Error,
		rec.Duration.Milliseconds(), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording topic %q: %w", rec.Topic, err)
	}
	return nil
}

// FinishRun stamps the run's finish time and tallies topic outcomes.
func (l *Ledger) FinishRun(ctx context.Context, runID string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET
			finished_at = ?,
			succeeded = (SELECT COUNT(*) FROM topic_runs WHERE run_id = ? AND status = ?),
			failed    = (SELECT COUNT(*) FROM topic_runs WHERE run_id = ? AND status = ?)
		 WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		runID, string(StatusSucceeded),
		runID, string(StatusFailed),
		runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	return nil
}

// FailedTopics returns the topics recorded as failed for the run, in
// the order they were recorded.
func (l *Ledger) FailedTopics(ctx context.Context, runID string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT topic FROM topic_runs WHERE run_id = ? AND status = ? ORDER BY id`,
		runID, string(StatusFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("querying failed topics: %w", err)
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning failed topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// Runs lists runs newest first, up to limit (no limit when <= 0).
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, topics_file, started_at, finished_at, total, succeeded, failed
		FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FindRun returns the run with the given id. Ids may be abbreviated to
// a unique prefix.
func (l *Ledger) FindRun(ctx context.Context, runID string) (Run, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, topics_file, started_at, finished_at, total, succeeded, failed
		 FROM runs WHERE id LIKE ? ORDER BY started_at DESC`,
		runID+"%",
	)
	if err != nil {
		return Run{}, fmt.Errorf("querying run %s: %w", runID, err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		matches = append(matches, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}

	switch len(matches) {
	case 0:
		return Run{}, fmt.Errorf("no run matches %q", runID)
	case 1:
		return matches[0], nil
	default:
		return Run{}, fmt.Errorf("run id %q is ambiguous (%d matches)", runID, len(matches))
	}
}

// Topics returns every topic outcome recorded for the run, in recording
// order.
func (l *Ledger) Topics(ctx context.Context, runID string) ([]TopicRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, topic, status, article_path, error, duration_ms
		 FROM topic_runs WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying topics for run %s: %w", runID, err)
	}
	defer rows.Close()

	var recs []TopicRecord
	for rows.Next() {
		var rec TopicRecord
		var status string
		var durationMS int64
		if err := rows.Scan(&rec.RunID, &rec.Topic, &status, &rec.ArticlePath, &rec.Error, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning topic record: %w", err)
		}
		rec.Status = TopicStatus(status)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanRun(rows *sql.Rows) (Run, error) {
	var r Run
	var started string
	var finished sql.NullString
	if err := rows.Scan(&r.ID, &r.TopicsFile, &started, &finished, &r.Total, &r.Succeeded, &r.Failed); err != nil {
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Run{}, fmt.Errorf("parsing run start time: %w", err)
	}
	r.StartedAt = t

	if finished.Valid && finished.String != "" {
		t, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return Run{}, fmt.Errorf("parsing run finish time: %w", err)
		}
		r.FinishedAt = t
	}
	return r, nil
}
