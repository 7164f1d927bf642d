// Package session records agent run transcripts and persists them.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status constants for transcripts.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Event types for the transcript log.
const (
	EventSystem     = "system"      // system prompt sent to the LLM
	EventUser       = "user"        // task prompt
	EventAssistant  = "assistant"   // LLM response
	EventToolCall   = "tool_call"   // tool invocation
	EventToolResult = "tool_result" // tool result fed back to the LLM
	EventDelegation = "delegation"  // subtask delegation outcome
)

// Transcript is the chronological record of one agent run.
type Transcript struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Events    []Event   `json:"events"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is a single entry in the transcript, in chronological order.
type Event struct {
	Type       string         `json:"type"`
	Content    string         `json:"content,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Store is the interface for transcript persistence.
type Store interface {
	Save(tr *Transcript) error
	Load(id string) (*Transcript, error)
}

// Recorder accumulates a run's transcript and persists it through a
// Store. Safe for use from the single supervisor goroutine plus
// observers.
type Recorder struct {
	mu    sync.Mutex
	store Store
	tr    *Transcript
}

// NewRecorder starts a transcript for the given task.
func NewRecorder(store Store, taskID, stage string) (*Recorder, error) {
	now := time.Now()
	tr := &Transcript{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Stage:     stage,
		Status:    StatusRunning,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Save(tr); err != nil {
		return nil, fmt.Errorf("failed to save transcript: %w", err)
	}
	return &Recorder{store: store, tr: tr}, nil
}

// ID returns the transcript ID.
func (r *Recorder) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tr.ID
}

// Add appends an event and persists the transcript.
func (r *Recorder) Add(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	r.tr.Events = append(r.tr.Events, event)
	r.tr.UpdatedAt = time.Now()
	return r.store.Save(r.tr)
}

// Complete marks the transcript as complete with a result summary.
func (r *Recorder) Complete(result string) error {
	return r.finish(StatusComplete, result, "")
}

// Fail marks the transcript as failed with an error summary.
func (r *Recorder) Fail(errMsg string) error {
	return r.finish(StatusFailed, "", errMsg)
}

func (r *Recorder) finish(status, result, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tr.Status = status
	r.tr.Result = result
	r.tr.Error = errMsg
	r.tr.UpdatedAt = time.Now()
	return r.store.Save(r.tr)
}

// --- FileStore ---

// FileStore stores transcripts as JSON files, one per run.
type FileStore struct {
	dir string
}

// NewFileStore creates a new file store rooted at dir.
func NewFileStore(dir string) *FileStore {
	os.MkdirAll(dir, 0755)
	return &FileStore{dir: dir}
}

// Save writes the transcript atomically (temp file then rename).
func (s *FileStore) Save(tr *Transcript) error {
	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	filename := filepath.Join(s.dir, tr.ID+".json")
	tmpFile := filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpFile, filename); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Load reads a transcript by ID.
func (s *FileStore) Load(id string) (*Transcript, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("transcript not found: %s", id)
		}
		return nil, fmt.Errorf("failed to read transcript file: %w", err)
	}

	var tr Transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return &tr, nil
}
