package taskvisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/loykin/taskvisor/internal/process"
	"github.com/loykin/taskvisor/internal/supervisor"
	"github.com/loykin/taskvisor/internal/task"
	"github.com/prometheus/client_golang/prometheus"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func waitUntil(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", d)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newTestEngine(t *testing.T, c Config) *Engine {
	t.Helper()
	if c.Store.DSN == "" {
		c.Store.DSN = "memory://"
	}
	e, err := NewEngine(context.Background(), c)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})
	return e
}

func TestEngineRunsTaskToCompletion(t *testing.T) {
	e := newTestEngine(t, Config{Engine: EngineConfig{TickInterval: 20 * time.Millisecond}})
	if err := e.Register("ping", func(ctx context.Context, tk Task) (string, error) {
		return "pong", nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	e.Start(context.Background())
	added, err := e.Add(context.Background(), Template{Type: "ping"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	waitUntil(t, 3*time.Second, func() bool {
		got, err := e.Get(added.ID)
		return err == nil && got.Status == task.StatusCompleted
	})
	got, _ := e.Get(added.ID)
	if got.Result != "pong" {
		t.Fatalf("unexpected result %q", got.Result)
	}
}

func TestEngineSpawnAndWait(t *testing.T) {
	requireUnix(t)
	e := newTestEngine(t, Config{})
	h, err := e.Spawn(context.Background(), ProcessSpec{Command: "echo", Args: []string{"facade"}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	info, err := e.Wait(context.Background(), h.ID(), 5*time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if info.Status != process.StatusCompleted {
		t.Fatalf("expected completed, got %s", info.Status)
	}
}

func TestCommandExecutorSuccess(t *testing.T) {
	requireUnix(t)
	sup := supervisor.New(supervisor.Options{})
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	exec := CommandExecutor(sup)

	out, err := exec(context.Background(), Task{
		ID:       "t1",
		Metadata: map[string]string{"command": "echo", "args": "hello world"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "hello world") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCommandExecutorFailures(t *testing.T) {
	requireUnix(t)
	sup := supervisor.New(supervisor.Options{GracePeriod: 200 * time.Millisecond})
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	exec := CommandExecutor(sup)

	// no command metadata
	if _, err := exec(context.Background(), Task{ID: "t0"}); err == nil {
		t.Fatalf("expected error for missing command")
	}

	// nonzero exit
	if _, err := exec(context.Background(), Task{
		ID:       "t1",
		Metadata: map[string]string{"command": "false"},
	}); err == nil {
		t.Fatalf("expected error for nonzero exit")
	}

	// bad timeout metadata
	if _, err := exec(context.Background(), Task{
		ID:       "t2",
		Metadata: map[string]string{"command": "echo", "timeout": "soon"},
	}); err == nil {
		t.Fatalf("expected error for bad timeout")
	}

	// timeout kills the process and surfaces the timeout error
	start := time.Now()
	_, err := exec(context.Background(), Task{
		ID:       "t3",
		Metadata: map[string]string{"command": "sleep", "args": "10", "timeout": "100ms"},
	})
	if !errors.Is(err, process.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
}

func TestCommandExecutorCancellation(t *testing.T) {
	requireUnix(t)
	sup := supervisor.New(supervisor.Options{GracePeriod: 200 * time.Millisecond})
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	exec := CommandExecutor(sup)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := exec(ctx, Task{
			ID:       "t1",
			Metadata: map[string]string{"command": "sleep", "args": "60"},
		})
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("executor did not return after cancel")
	}
	waitUntil(t, 5*time.Second, func() bool { return len(sup.List()) == 0 })
}

func TestEngineSchedulesSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	c := Config{
		Store: StoreConfig{DSN: filepath.Join(dir, "tv.db")},
		Schedules: []ScheduleConfig{
			{ID: "beat", Expr: "@every 30s", Type: "tick", Enabled: true},
		},
	}

	e1, err := NewEngine(context.Background(), c)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if got := e1.Schedules(); len(got) != 1 || got[0].ID != "beat" {
		t.Fatalf("unexpected schedules %+v", got)
	}
	if err := e1.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// second boot over the same store: declared schedule already present
	e2, err := NewEngine(context.Background(), c)
	if err != nil {
		t.Fatalf("NewEngine again: %v", err)
	}
	defer func() { _ = e2.Close(context.Background()) }()
	if got := e2.Schedules(); len(got) != 1 {
		t.Fatalf("expected 1 schedule after reload, got %d", len(got))
	}
}

func TestLoadConfigFacade(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.toml")
	data := `
[store]
dsn = "memory://"

[engine]
tick_interval = "1s"
`
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Engine.TickInterval != time.Second {
		t.Fatalf("tick_interval = %v", c.Engine.TickInterval)
	}
	if c.Server.Listen != ":8080" {
		t.Fatalf("default listen = %q", c.Server.Listen)
	}
}

func TestMetricsHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("RegisterMetricsDefault: %v", err)
	}
}

func TestNewHTTPServerStartClose(t *testing.T) {
	e := newTestEngine(t, Config{})
	srv, err := NewHTTPServer("127.0.0.1:0", "/api", e)
	if err != nil {
		t.Fatalf("NewHTTPServer: %v", err)
	}
	_ = srv.Close()
}
