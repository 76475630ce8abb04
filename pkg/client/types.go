package client

import "time"

// TaskRequest enqueues a new task.
type TaskRequest struct {
	Type      string            `json:"type"`
	Priority  string            `json:"priority,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	ProjectID string            `json:"project_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Task mirrors the daemon's task wire shape.
type Task struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Priority    string            `json:"priority"`
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

// TaskQuery filters task listings. Zero fields are not sent.
type TaskQuery struct {
	SessionID string
	ProjectID string
	Status    string
}

// ScheduleRequest registers a recurring schedule.
type ScheduleRequest struct {
	ID       string      `json:"id,omitempty"`
	Expr     string      `json:"expr"`
	Template TaskRequest `json:"template"`
	Enabled  bool        `json:"enabled"`
}

// Schedule mirrors the daemon's schedule wire shape.
type Schedule struct {
	ID        string      `json:"id"`
	Expr      string      `json:"expr"`
	Template  TaskRequest `json:"template"`
	Enabled   bool        `json:"enabled"`
	CreatedAt time.Time   `json:"created_at"`
	LastRun   *time.Time  `json:"last_run,omitempty"`
	NextRun   *time.Time  `json:"next_run,omitempty"`
	RunCount  int64       `json:"run_count"`
}

// SpawnRequest starts a supervised subprocess. Argv is executed directly,
// never through a shell.
type SpawnRequest struct {
	Command string        `json:"command"`
	Args    []string      `json:"args,omitempty"`
	WorkDir string        `json:"work_dir,omitempty"`
	Env     []string      `json:"env,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// ProcessInfo mirrors the daemon's process snapshot, plus captured output on
// the detail endpoint.
type ProcessInfo struct {
	ID              uint64    `json:"id"`
	PID             int       `json:"pid"`
	Command         string    `json:"command"`
	Args            []string  `json:"args,omitempty"`
	WorkDir         string    `json:"work_dir,omitempty"`
	Status          string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	StoppedAt       time.Time `json:"stopped_at"`
	ExitErr         string    `json:"exit_error,omitempty"`
	OutputBytes     int64     `json:"output_bytes"`
	OutputChunks    int       `json:"output_chunks"`
	OutputTruncated bool      `json:"output_truncated"`
	Output          string    `json:"output,omitempty"`
}

// ProcessUsage is a point-in-time resource sample.
type ProcessUsage struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
