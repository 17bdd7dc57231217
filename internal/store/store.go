// Package store provides an optional SQLite-backed ledger of sessions and
// their token usage. Chat transcripts are never persisted, only metadata
// and counters.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/wagiedev/claude-supervisor-go/internal/usage"
)

// SessionStatus values recorded in the sessions table.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SessionRecord is one row of the sessions table.
type SessionRecord struct {
	SessionID        string
	Model            string
	WorkingDirectory string
	Synthetic        bool
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Store is the SQLite-backed usage ledger.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the ledger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordSession upserts a session row. An existing row keeps its
// created_at; everything else is refreshed.
func (s *Store) RecordSession(sessionID, model, workingDirectory string, synthetic bool) error {
	now := time.Now().UTC().Format(time.RFC3339)

	syntheticInt := 0
	if synthetic {
		syntheticInt = 1
	}

	_, err := s.db.Exec(`INSERT INTO sessions
		(session_id, model, working_directory, synthetic, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			model = excluded.model,
			working_directory = excluded.working_directory,
			synthetic = excluded.synthetic,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		sessionID, model, workingDirectory, syntheticInt, StatusActive, now, now)
	if err != nil {
		return fmt.Errorf("recording session: %w", err)
	}

	return nil
}

// SetSessionStatus updates a session's status.
func (s *Store) SetSessionStatus(sessionID, status string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.Exec(`UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ?`,
		status, now, sessionID)
	if err != nil {
		return fmt.Errorf("updating session status: %w", err)
	}

	return nil
}

// RecordUsage appends one usage row for a session. Rows are append-only;
// totals are derived by summation, never by overwriting.
func (s *Store) RecordUsage(sessionID, model string, counters usage.Counters) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.Exec(`INSERT INTO usage
		(session_id, model, input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, model, counters.Input, counters.Output, counters.CacheRead, counters.CacheCreation, now)
	if err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}

	return nil
}

// SessionTotals sums all usage rows for a session.
func (s *Store) SessionTotals(sessionID string) (usage.Counters, error) {
	var counters usage.Counters

	err := s.db.QueryRow(`SELECT
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cache_read_tokens), 0),
			COALESCE(SUM(cache_creation_tokens), 0)
		FROM usage WHERE session_id = ?`, sessionID).
		Scan(&counters.Input, &counters.Output, &counters.CacheRead, &counters.CacheCreation)
	if err != nil {
		return usage.Counters{}, fmt.Errorf("summing usage: %w", err)
	}

	return counters, nil
}

// GetSession returns one session row, or sql.ErrNoRows.
func (s *Store) GetSession(sessionID string) (SessionRecord, error) {
	var (
		rec          SessionRecord
		syntheticInt int
		createdAt    string
		updatedAt    string
	)

	err := s.db.QueryRow(`SELECT session_id, model, working_directory, synthetic, status, created_at, updated_at
		FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&rec.SessionID, &rec.Model, &rec.WorkingDirectory, &syntheticInt, &rec.Status, &createdAt, &updatedAt)
	if err != nil {
		return SessionRecord{}, err
	}

	rec.Synthetic = syntheticInt != 0
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return rec, nil
}

// ListSessions returns all session rows, newest first.
func (s *Store) ListSessions() ([]SessionRecord, error) {
	rows, err := s.db.Query(`SELECT session_id, model, working_directory, synthetic, status, created_at, updated_at
		FROM sessions ORDER BY created_at DESC, session_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []SessionRecord

	for rows.Next() {
		var (
			rec          SessionRecord
			syntheticInt int
			createdAt    string
			updatedAt    string
		)

		if err := rows.Scan(&rec.SessionID, &rec.Model, &rec.WorkingDirectory, &syntheticInt, &rec.Status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}

		rec.Synthetic = syntheticInt != 0
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

		records = append(records, rec)
	}

	return records, rows.Err()
}
