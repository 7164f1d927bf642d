package task

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a task ID has no row.
var ErrNotFound = errors.New("task not found")

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	depth       INTEGER NOT NULL,
	parent_id   TEXT NOT NULL DEFAULT '',
	acceptance  TEXT NOT NULL DEFAULT '',
	result      TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
`

// SQLiteStore persists tasks in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the task database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open task db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init task schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts the task, or replaces every mutable column if the ID
// already exists.
func (s *SQLiteStore) Save(t *Task) error {
	t.UpdatedAt = time.Now()
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, title, description, status, stage, depth, parent_id, acceptance, result, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			stage = excluded.stage,
			acceptance = excluded.acceptance,
			result = excluded.result,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Stage), t.Depth,
		t.ParentID, t.Acceptance, t.Result, t.Error, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// Get retrieves a task by ID.
func (s *SQLiteStore) Get(id string) (*Task, error) {
	row := s.db.QueryRow(`
		SELECT id, title, description, status, stage, depth, parent_id, acceptance, result, error, created_at, updated_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// GetStatus retrieves just the status of a task.
func (s *SQLiteStore) GetStatus(id string) (Status, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM tasks WHERE id = ?`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("get task status %s: %w", id, err)
	}
	return Status(status), nil
}

// UpdateStatus sets the status, result, and error message of a task.
func (s *SQLiteStore) UpdateStatus(id string, status Status, result, errMsg string) error {
	res, err := s.db.Exec(`
		UPDATE tasks SET status = ?, result = ?, error = ?, updated_at = ?
		WHERE id = ?`, string(status), result, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// CountChildren returns the number of direct children of a task.
func (s *SQLiteStore) CountChildren(parentID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE parent_id = ?`, parentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count children of %s: %w", parentID, err)
	}
	return n, nil
}

// ListChildren returns the direct children of a task, oldest first.
func (s *SQLiteStore) ListChildren(parentID string) ([]*Task, error) {
	rows, err := s.db.Query(`
		SELECT id, title, description, status, stage, depth, parent_id, acceptance, result, error, created_at, updated_at
		FROM tasks WHERE parent_id = ? ORDER BY created_at ASC`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", parentID, err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list children of %s: %w", parentID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list children of %s: %w", parentID, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*Task, error) {
	var t Task
	var status, stage string
	err := r.Scan(&t.ID, &t.Title, &t.Description, &status, &stage, &t.Depth,
		&t.ParentID, &t.Acceptance, &t.Result, &t.Error, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.Stage = Stage(stage)
	return &t, nil
}
