// Package store implements the Poller's Store capability on SQLite: comment
// cursors (for the CommentReactor's new-comment detection) and run history
// (an audit trail of every workflow dispatch, one row per run with an
// autoincrement id and its session id).
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists comment cursors and run history to SQLite via the
// CGO-backed mattn/go-sqlite3 driver — the primary driver this module's
// lineage uses for its on-disk stores.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) a SQLite database at dataPath/kiln.db
// and runs migrations.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, "kiln.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS comment_cursor (
			repo TEXT NOT NULL,
			ticket_id INTEGER NOT NULL,
			last_seen DATETIME NOT NULL,
			PRIMARY KEY (repo, ticket_id)
		)`,
		`CREATE TABLE IF NOT EXISTS run_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repo TEXT NOT NULL,
			ticket_id INTEGER NOT NULL,
			workflow TEXT NOT NULL,
			session_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_history_ticket ON run_history (repo, ticket_id)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// GetCommentCursor returns the last-seen comment timestamp for (repo, id),
// or nil if no cursor has been recorded yet.
func (s *Store) GetCommentCursor(repo string, id int) (*time.Time, error) {
	var t time.Time
	err := s.db.QueryRow(
		`SELECT last_seen FROM comment_cursor WHERE repo = ? AND ticket_id = ?`, repo, id,
	).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment cursor: %w", err)
	}
	return &t, nil
}

// SetCommentCursor upserts the last-seen comment timestamp for (repo, id).
func (s *Store) SetCommentCursor(repo string, id int, t time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO comment_cursor (repo, ticket_id, last_seen) VALUES (?, ?, ?)
		 ON CONFLICT (repo, ticket_id) DO UPDATE SET last_seen = excluded.last_seen`,
		repo, id, t,
	)
	if err != nil {
		return fmt.Errorf("failed to set comment cursor: %w", err)
	}
	return nil
}

// RecordRunHistory appends one row to the run history audit trail. It is
// append-only — the Poller calls this once per terminated workflow run,
// never updates an existing row.
func (s *Store) RecordRunHistory(repo string, id int, workflow, sessionID, outcome string, startedAt, finishedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO run_history (repo, ticket_id, workflow, session_id, outcome, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		repo, id, workflow, sessionID, outcome, startedAt, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run history: %w", err)
	}
	return nil
}

// RunHistoryEntry is one row of the run history audit trail, returned by
// ListRunHistory for observability (e.g. a future `kiln history` subcommand).
type RunHistoryEntry struct {
	Repo       string
	TicketID   int
	Workflow   string
	SessionID  string
	Outcome    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// ListRunHistory returns the most recent run history entries for (repo, id),
// newest first, bounded by limit.
func (s *Store) ListRunHistory(repo string, id int, limit int) ([]RunHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT repo, ticket_id, workflow, session_id, outcome, started_at, finished_at
		 FROM run_history WHERE repo = ? AND ticket_id = ?
		 ORDER BY id DESC LIMIT ?`, repo, id, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run history: %w", err)
	}
	defer rows.Close()

	var out []RunHistoryEntry
	for rows.Next() {
		var e RunHistoryEntry
		if err := rows.Scan(&e.Repo, &e.TicketID, &e.Workflow, &e.SessionID, &e.Outcome, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run history row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
