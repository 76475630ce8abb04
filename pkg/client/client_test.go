package client

import (
	"context"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/taskvisor/internal/queue"
	"github.com/loykin/taskvisor/internal/server"
	"github.com/loykin/taskvisor/internal/store/memory"
	"github.com/loykin/taskvisor/internal/supervisor"
)

func newTestDaemon(t *testing.T) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	q, err := queue.New(context.Background(), memory.New(), queue.Options{})
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	sup := supervisor.New(supervisor.Options{GracePeriod: 200 * time.Millisecond})
	r := server.NewRouter(q, sup, "/api")
	srv := httptest.NewServer(r.Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})
	return New(Config{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second})
}

func TestClientDefaults(t *testing.T) {
	c := New(Config{})
	if c.baseURL != "http://localhost:8080/api" {
		t.Fatalf("unexpected default base url %q", c.baseURL)
	}
	if c.client.Timeout != 10*time.Second {
		t.Fatalf("unexpected default timeout %v", c.client.Timeout)
	}
}

func TestClientTaskRoundTrip(t *testing.T) {
	c := newTestDaemon(t)
	ctx := context.Background()

	if !c.IsReachable(ctx) {
		t.Fatalf("daemon should be reachable")
	}

	added, err := c.AddTask(ctx, TaskRequest{Type: "ping", Priority: "urgent", SessionID: "s1"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if added.ID == "" || added.Status != "pending" {
		t.Fatalf("unexpected task %+v", added)
	}

	got, err := c.GetTask(ctx, added.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.ID != added.ID || got.Priority != "urgent" {
		t.Fatalf("unexpected task %+v", got)
	}

	if _, err := c.AddTask(ctx, TaskRequest{Type: "later", Priority: "low", SessionID: "s2"}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	bySession, err := c.ListTasks(ctx, TaskQuery{SessionID: "s1"})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(bySession) != 1 || bySession[0].ID != added.ID {
		t.Fatalf("unexpected session filter result %+v", bySession)
	}

	pending, err := c.PendingTasks(ctx)
	if err != nil {
		t.Fatalf("PendingTasks: %v", err)
	}
	if len(pending) != 2 || pending[0].Type != "ping" {
		t.Fatalf("expected urgent task first, got %+v", pending)
	}

	if err := c.CancelTask(ctx, added.ID); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	err = c.CancelTask(ctx, added.ID)
	if err == nil || !strings.Contains(err.Error(), "task not found") {
		t.Fatalf("expected task not found, got %v", err)
	}
}

func TestClientScheduleRoundTrip(t *testing.T) {
	c := newTestDaemon(t)
	ctx := context.Background()

	added, err := c.AddSchedule(ctx, ScheduleRequest{
		ID:       "heartbeat",
		Expr:     "@every 30s",
		Template: TaskRequest{Type: "beat"},
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	if added.NextRun == nil {
		t.Fatalf("expected seeded NextRun, got %+v", added)
	}

	schedules, err := c.Schedules(ctx)
	if err != nil {
		t.Fatalf("Schedules: %v", err)
	}
	if len(schedules) != 1 || schedules[0].ID != "heartbeat" {
		t.Fatalf("unexpected schedules %+v", schedules)
	}

	if err := c.EnableSchedule(ctx, "heartbeat", false); err != nil {
		t.Fatalf("EnableSchedule: %v", err)
	}
	if err := c.RemoveSchedule(ctx, "heartbeat"); err != nil {
		t.Fatalf("RemoveSchedule: %v", err)
	}
	err = c.RemoveSchedule(ctx, "heartbeat")
	if err == nil || !strings.Contains(err.Error(), "schedule not found") {
		t.Fatalf("expected schedule not found, got %v", err)
	}
}

func TestClientProcessRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skipf("requires a Unix shell, skipping on %s", runtime.GOOS)
	}
	c := newTestDaemon(t)
	ctx := context.Background()

	info, err := c.Spawn(ctx, SpawnRequest{Command: "sh", Args: []string{"-c", "sleep 0.2; echo from-client"}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if info.ID == 0 {
		t.Fatalf("expected process id, got %+v", info)
	}

	live, err := c.Processes(ctx)
	if err != nil {
		t.Fatalf("Processes: %v", err)
	}
	if len(live) != 1 {
		t.Fatalf("expected 1 live process, got %d", len(live))
	}

	waited, err := c.WaitProcess(ctx, info.ID, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitProcess: %v", err)
	}
	if waited.Status != "completed" {
		t.Fatalf("expected completed, got %+v", waited)
	}

	// the registry drops the entry shortly after the wait returns
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := c.Process(ctx, info.ID); err != nil {
			if !strings.Contains(err.Error(), "process not found") {
				t.Fatalf("expected process not found, got %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("process never left the registry")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// killing an exited process is still fine
	if err := c.KillProcess(ctx, info.ID); err != nil {
		t.Fatalf("KillProcess after exit: %v", err)
	}
}

func TestClientWaitTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skipf("requires a Unix shell, skipping on %s", runtime.GOOS)
	}
	c := newTestDaemon(t)
	ctx := context.Background()

	info, err := c.Spawn(ctx, SpawnRequest{Command: "sleep", Args: []string{"60"}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	_, err = c.WaitProcess(ctx, info.ID, 50*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "wait timed out") {
		t.Fatalf("expected wait timeout, got %v", err)
	}
	if err := c.KillProcess(ctx, info.ID); err != nil {
		t.Fatalf("KillProcess: %v", err)
	}
}
