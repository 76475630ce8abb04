package task

import (
	"fmt"
	"time"
)

// Template describes the task a schedule creates on each fire.
type Template struct {
	Type      string            `json:"type" mapstructure:"type"`
	Priority  Priority          `json:"priority" mapstructure:"priority"`
	SessionID string            `json:"session_id,omitempty" mapstructure:"session_id"`
	ProjectID string            `json:"project_id,omitempty" mapstructure:"project_id"`
	Metadata  map[string]string `json:"metadata,omitempty" mapstructure:"metadata"`
}

// GetDefaults applies default values to the template.
func (tp *Template) GetDefaults() {
	if tp.Priority == "" {
		tp.Priority = PriorityMedium
	}
}

// Validate validates the template.
func (tp *Template) Validate() error {
	if tp.Type == "" {
		return fmt.Errorf("template type is required")
	}
	if tp.Priority != "" && !tp.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", tp.Priority)
	}
	return nil
}

// Materialize stamps out a fresh pending task from the template. Metadata is
// copied so later edits to the task never leak back into the template.
func (tp *Template) Materialize(now time.Time) Task {
	t := Task{
		ID:        NewID(),
		Type:      tp.Type,
		Status:    StatusPending,
		Priority:  tp.Priority,
		CreatedAt: now,
		UpdatedAt: now,
		SessionID: tp.SessionID,
		ProjectID: tp.ProjectID,
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if len(tp.Metadata) > 0 {
		t.Metadata = make(map[string]string, len(tp.Metadata))
		for k, v := range tp.Metadata {
			t.Metadata[k] = v
		}
	}
	return t
}
