package history

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventTypes(t *testing.T) {
	types := []EventType{
		EventTaskEnqueued, EventTaskStarted, EventTaskCompleted,
		EventTaskFailed, EventTaskCancelled, EventScheduleFired,
		EventProcessSpawned, EventProcessExited, EventProcessKilled,
		EventProcessTimeout,
	}
	seen := make(map[EventType]bool)
	for _, ty := range types {
		if ty == "" {
			t.Fatalf("empty event type constant")
		}
		if seen[ty] {
			t.Fatalf("duplicate event type %q", ty)
		}
		seen[ty] = true
	}
}

func TestEventJSONOmitsEmptyFields(t *testing.T) {
	e := Event{
		Type:       EventTaskEnqueued,
		OccurredAt: time.Now().UTC(),
		TaskID:     "t-1",
		TaskType:   "analysis",
		Priority:   "high",
	}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["type"] != "task_enqueued" || m["task_id"] != "t-1" {
		t.Fatalf("unexpected payload: %v", m)
	}
	for _, absent := range []string{"process_id", "pid", "schedule_id", "detail"} {
		if _, ok := m[absent]; ok {
			t.Fatalf("expected %q to be omitted, payload: %v", absent, m)
		}
	}
}
