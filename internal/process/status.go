package process

import "time"

// Status is the lifecycle state of a spawned process. Transitions move only
// forward; completed, error and cancelled are terminal.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether s is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a handle may move from s to next. Starting
// may jump straight to a terminal state for processes that exit before they
// are observed running.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusStarting:
		return next == StatusRunning || next.IsTerminal()
	case StatusRunning:
		return next.IsTerminal()
	}
	return false
}

// Info is a point-in-time view of a handle for callers outside the
// supervisor.
type Info struct {
	ID              uint64    `json:"id"`
	PID             int       `json:"pid"`
	Command         string    `json:"command"`
	Args            []string  `json:"args,omitempty"`
	WorkDir         string    `json:"work_dir,omitempty"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	StoppedAt       time.Time `json:"stopped_at"`
	ExitErr         string    `json:"exit_error,omitempty"`
	OutputBytes     int64     `json:"output_bytes"`
	OutputChunks    int       `json:"output_chunks"`
	OutputTruncated bool      `json:"output_truncated"`
}
