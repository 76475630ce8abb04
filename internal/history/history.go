package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventTaskEnqueued   EventType = "task_enqueued"
	EventTaskStarted    EventType = "task_started"
	EventTaskCompleted  EventType = "task_completed"
	EventTaskFailed     EventType = "task_failed"
	EventTaskCancelled  EventType = "task_cancelled"
	EventScheduleFired  EventType = "schedule_fired"
	EventProcessSpawned EventType = "process_spawned"
	EventProcessExited  EventType = "process_exited"
	EventProcessKilled  EventType = "process_killed"
	EventProcessTimeout EventType = "process_timeout"
)

// Event represents a lifecycle event to be exported to external systems.
// Task events carry TaskID/TaskType; process events carry ProcessID/PID.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	TaskID     string    `json:"task_id,omitempty"`
	TaskType   string    `json:"task_type,omitempty"`
	Priority   string    `json:"priority,omitempty"`
	ScheduleID string    `json:"schedule_id,omitempty"`
	ProcessID  uint64    `json:"process_id,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
