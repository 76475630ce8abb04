// Package task defines the queue's task model: priorities, statuses, the
// task record itself, templates that stamp out recurring tasks, and the
// serialized queue state.
package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority orders tasks for dispatch. Lower rank dispatches first.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank maps a priority to its dispatch order; unknown priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Valid reports whether p is one of the four known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ParsePriority converts s into a Priority. An empty string maps to
// PriorityMedium so callers can omit the field.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// Status is the lifecycle state of a task. Each status corresponds to
// exactly one queue collection.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrInvalidTransition is returned when a status update would move a task
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid status transition")

var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed},
	// Terminal states transition nowhere.
	StatusCompleted: {},
	StatusFailed:    {},
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal reports whether s is completed or failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a task may move from s to to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Task is a single unit of background work tracked by the queue.
type Task struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`
	// Seq is assigned by the queue in arrival order and breaks priority
	// ties so dispatch stays FIFO even when CreatedAt collides.
	Seq         uint64            `json:"seq"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	ProjectID   string            `json:"project_id,omitempty"`
	ScheduleID  string            `json:"schedule_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Result      string            `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// NewID returns a fresh task identifier.
func NewID() string {
	return uuid.NewString()
}

// Before reports whether t dispatches ahead of other: lower priority rank
// first, then older CreatedAt, then lower Seq.
func (t *Task) Before(other *Task) bool {
	if a, b := t.Priority.Rank(), other.Priority.Rank(); a != b {
		return a < b
	}
	if !t.CreatedAt.Equal(other.CreatedAt) {
		return t.CreatedAt.Before(other.CreatedAt)
	}
	return t.Seq < other.Seq
}

// Validate checks the fields callers are expected to supply.
func (t *Task) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("task type is required")
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", t.Priority)
	}
	if t.Status != "" && !t.Status.Valid() {
		return fmt.Errorf("unknown status %q", t.Status)
	}
	return nil
}

// GetDefaults fills zero-value fields a caller may omit.
func (t *Task) GetDefaults() {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
}
