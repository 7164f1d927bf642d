package session

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore stores transcripts in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the transcript database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		stage TEXT,
		status TEXT NOT NULL,
		result TEXT,
		error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transcript_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT,
		tool TEXT,
		args TEXT,
		error TEXT,
		duration_ms INTEGER,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (transcript_id) REFERENCES transcripts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_events_transcript ON events(transcript_id);
	CREATE INDEX IF NOT EXISTS idx_transcripts_task ON transcripts(task_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save upserts the transcript; events are replaced wholesale since the
// recorder always writes the full log.
func (s *SQLiteStore) Save(tr *Transcript) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO transcripts (id, task_id, stage, status, result, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, tr.ID, tr.TaskID, tr.Stage, tr.Status, tr.Result, tr.Error, tr.CreatedAt, tr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM events WHERE transcript_id = ?", tr.ID); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	for _, event := range tr.Events {
		argsJSON, _ := json.Marshal(event.Args)
		_, err = tx.Exec(`
			INSERT INTO events (transcript_id, type, content, tool, args, error, duration_ms, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, tr.ID, event.Type, event.Content, event.Tool,
			string(argsJSON), event.Error, event.DurationMs, event.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to save event: %w", err)
		}
	}

	return tx.Commit()
}

// Load reads a transcript and its events by ID.
func (s *SQLiteStore) Load(id string) (*Transcript, error) {
	row := s.db.QueryRow(`
		SELECT id, task_id, stage, status, result, error, created_at, updated_at
		FROM transcripts WHERE id = ?
	`, id)

	var tr Transcript
	var stage, result, trError sql.NullString
	err := row.Scan(&tr.ID, &tr.TaskID, &stage, &tr.Status, &result, &trError, &tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("transcript not found: %s", id)
		}
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	tr.Stage = stage.String
	tr.Result = result.String
	tr.Error = trError.String

	rows, err := s.db.Query(`
		SELECT type, content, tool, args, error, duration_ms, timestamp
		FROM events WHERE transcript_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	tr.Events = []Event{}
	for rows.Next() {
		var event Event
		var content, tool, argsJSON, eventError sql.NullString
		var durationMs sql.NullInt64
		err := rows.Scan(&event.Type, &content, &tool, &argsJSON, &eventError, &durationMs, &event.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Content = content.String
		event.Tool = tool.String
		event.Error = eventError.String
		event.DurationMs = durationMs.Int64
		if argsJSON.Valid && argsJSON.String != "" && argsJSON.String != "null" {
			json.Unmarshal([]byte(argsJSON.String), &event.Args)
		}
		tr.Events = append(tr.Events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	return &tr, nil
}
