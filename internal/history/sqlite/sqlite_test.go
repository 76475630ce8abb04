package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/loykin/taskvisor/internal/history"
)

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := t.TempDir() + "/history.db"

	sink, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()

	enqueued := history.Event{
		Type:       history.EventTaskEnqueued,
		OccurredAt: time.Now().UTC(),
		TaskID:     "task-1",
		TaskType:   "analysis",
		Priority:   "high",
	}
	if err := sink.Send(ctx, enqueued); err != nil {
		t.Fatalf("Failed to send enqueued event: %v", err)
	}

	completed := history.Event{
		Type:       history.EventTaskCompleted,
		OccurredAt: time.Now().UTC(),
		TaskID:     "task-1",
		TaskType:   "analysis",
		Detail:     "ok",
	}
	if err := sink.Send(ctx, completed); err != nil {
		t.Fatalf("Failed to send completed event: %v", err)
	}

	var count int
	if err := sink.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_history WHERE task_id = ?;`, "task-1").Scan(&count); err != nil {
		t.Fatalf("Failed to query count: %v", err)
	}
	if count != 2 {
		t.Fatalf("Expected 2 events, got %d", count)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	e := history.Event{
		Type:       history.EventProcessSpawned,
		OccurredAt: time.Now().UTC(),
		ProcessID:  7,
		PID:        4242,
	}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
