// Package task defines the work-item model and its persistence
// boundary for the delegation core.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Stage is the pipeline stage a task belongs to. Child tasks inherit
// the parent's stage.
type Stage string

const (
	StagePM            Stage = "pm"
	StageDev           Stage = "dev"
	StageQA            Stage = "qa"
	StageSecurity      Stage = "security"
	StageDocumentation Stage = "documentation"
)

// DefaultAcceptance is assigned to delegated subtasks that were created
// without an explicit acceptance criterion.
const DefaultAcceptance = "Subtask output reviewed and accepted by the parent task."

// Task is a unit of work. Depth is immutable once created: root tasks
// have depth 0, and every delegation hop adds one.
type Task struct {
	ID          string
	Title       string
	Description string
	Status      Status
	Stage       Stage
	Depth       int
	ParentID    string // empty for root tasks
	Acceptance  string
	Result      string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewRoot creates a root task in the backlog.
func NewRoot(title, description string, stage Stage) *Task {
	now := time.Now()
	if stage == "" {
		stage = StageDev
	}
	return &Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      StatusBacklog,
		Stage:       stage,
		Depth:       0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewChild creates a subtask of parent one level deeper. Delegation
// implies immediate execution intent, so children start in_progress.
func NewChild(parent *Task, title, description string) *Task {
	now := time.Now()
	return &Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      StatusInProgress,
		Stage:       parent.Stage,
		Depth:       parent.Depth + 1,
		ParentID:    parent.ID,
		Acceptance:  DefaultAcceptance,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Store is the minimal persistence interface the delegation core needs.
// The concrete transport behind it is an implementation choice.
type Store interface {
	// Save inserts or updates a task.
	Save(t *Task) error
	// Get retrieves a task by ID.
	Get(id string) (*Task, error)
	// GetStatus retrieves just the status of a task.
	GetStatus(id string) (Status, error)
	// UpdateStatus sets the status, result, and error of a task.
	UpdateStatus(id string, status Status, result, errMsg string) error
	// CountChildren returns the number of direct children of a task.
	CountChildren(parentID string) (int, error)
	// ListChildren returns the direct children of a task, oldest first.
	ListChildren(parentID string) ([]*Task, error)
}
