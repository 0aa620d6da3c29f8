// Package persistence provides SQLite-based run history storage.
//
// History is an operator convenience: writes are best-effort at run exit and
// failures are logged, never escalated over the run's own outcome.
package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"planloop/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	workflow TEXT NOT NULL,
	session TEXT NOT NULL,
	start_time TIMESTAMP NOT NULL,
	end_time TIMESTAMP NOT NULL,
	final_state TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL DEFAULT '',
	producer_invocations INTEGER NOT NULL DEFAULT 0,
	reviewer_invocations INTEGER NOT NULL DEFAULT 0,
	revision_cycles INTEGER NOT NULL DEFAULT 0,
	steps_completed INTEGER NOT NULL DEFAULT 0,
	exit_code INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session, start_time);
`

// Store is a handle to the run-history database.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if needed) the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory %s: %w", dir, err)
		}
	}

	// WAL mode and a busy timeout keep concurrent read-only inspection
	// (e.g. sqlite3 CLI) from tripping the writer.
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db, logger: logx.NewLogger("history")}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	return nil
}

// RecordRun inserts one terminal run record.
func (s *Store) RecordRun(rec *RunRecord) error {
	if rec.ID == "" {
		rec.ID = NewRunID()
	}

	query := `
		INSERT INTO runs (
			id, workflow, session, start_time, end_time,
			final_state, outcome,
			producer_invocations, reviewer_invocations, revision_cycles,
			steps_completed, exit_code
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		rec.ID, rec.Workflow, rec.Session, rec.StartTime, rec.EndTime,
		rec.FinalState, rec.Outcome,
		rec.ProducerInvocations, rec.ReviewerInvocations, rec.RevisionCycles,
		rec.StepsCompleted, rec.ExitCode,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", rec.ID, err)
	}

	s.logger.Info("Run recorded: workflow=%s session=%s outcome=%s", rec.Workflow, rec.Session, rec.Outcome)
	return nil
}

// RecentRuns returns up to limit runs for a session, newest first. An empty
// session returns runs across all sessions.
func (s *Store) RecentRuns(session string, limit int) ([]*RunRecord, error) {
	query := `
		SELECT id, workflow, session, start_time, end_time,
			final_state, outcome,
			producer_invocations, reviewer_invocations, revision_cycles,
			steps_completed, exit_code, created_at
		FROM runs`
	args := []any{}
	if session != "" {
		query += ` WHERE session = ?`
		args = append(args, session)
	}
	query += ` ORDER BY start_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		rec := &RunRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.Workflow, &rec.Session, &rec.StartTime, &rec.EndTime,
			&rec.FinalState, &rec.Outcome,
			&rec.ProducerInvocations, &rec.ReviewerInvocations, &rec.RevisionCycles,
			&rec.StepsCompleted, &rec.ExitCode, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run rows: %w", err)
	}
	return runs, nil
}
