package taskvisor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cfg "github.com/loykin/taskvisor/internal/config"
	"github.com/loykin/taskvisor/internal/env"
	"github.com/loykin/taskvisor/internal/history"
	hfactory "github.com/loykin/taskvisor/internal/history/factory"
	"github.com/loykin/taskvisor/internal/metrics"
	"github.com/loykin/taskvisor/internal/process"
	"github.com/loykin/taskvisor/internal/queue"
	iapi "github.com/loykin/taskvisor/internal/server"
	"github.com/loykin/taskvisor/internal/store"
	sfactory "github.com/loykin/taskvisor/internal/store/factory"
	"github.com/loykin/taskvisor/internal/supervisor"
	"github.com/loykin/taskvisor/internal/task"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Task = task.Task

type Template = task.Template

type Schedule = task.Schedule

type Priority = task.Priority

type TaskStatus = task.Status

type ProcessSpec = process.Spec

type ProcessStatus = process.Status

type ProcessInfo = process.Info

type ProcessUsage = supervisor.Usage

type Executor = queue.Executor

type Filter = queue.Filter

type Config = cfg.Config

type EngineConfig = cfg.EngineConfig

type StoreConfig = cfg.StoreConfig

type ServerConfig = cfg.ServerConfig

type HistoryConfig = cfg.HistoryConfig

type ScheduleConfig = cfg.ScheduleConfig

type HistorySink = history.Sink

const (
	PriorityUrgent = task.PriorityUrgent
	PriorityHigh   = task.PriorityHigh
	PriorityMedium = task.PriorityMedium
	PriorityLow    = task.PriorityLow
)

const (
	StatusPending   = task.StatusPending
	StatusRunning   = task.StatusRunning
	StatusCompleted = task.StatusCompleted
	StatusFailed    = task.StatusFailed
)

// Process statuses carry a Process prefix because the task ones above share
// names with them.
const (
	ProcessStarting  = process.StatusStarting
	ProcessRunning   = process.StatusRunning
	ProcessCompleted = process.StatusCompleted
	ProcessError     = process.StatusError
	ProcessCancelled = process.StatusCancelled
)

// Engine bundles the task queue and the process supervisor behind one
// composition root. Embed it directly or run it under cmd/taskvisor.

type Engine struct {
	Queue      *queue.Queue
	Supervisor *supervisor.Supervisor

	st    store.Store
	sinks []history.Sink
}

// NewEngine wires an Engine from config: store from the DSN, history sinks
// fanned out to queue and supervisor, global env applied to spawned
// processes, declared schedules registered unless already present in the
// loaded state.
func NewEngine(ctx context.Context, c Config) (*Engine, error) {
	st, err := sfactory.NewFromDSN(c.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var sinks []history.Sink
	for _, dsn := range c.History.Sinks {
		sink, err := hfactory.NewSinkFromDSN(dsn)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("open history sink %q: %w", dsn, err)
		}
		sinks = append(sinks, sink)
	}

	q, err := queue.New(ctx, st, queue.Options{
		TickInterval:  c.Engine.TickInterval,
		MaxConcurrent: c.Engine.MaxConcurrent,
		StateKey:      c.Store.Key,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ev := env.New()
	ev.SetAll(c.Engine.Env)
	sup := supervisor.New(supervisor.Options{
		GracePeriod:     c.Engine.GracePeriod,
		MaxOutputBytes:  c.Engine.MaxOutputBytes,
		MaxOutputChunks: c.Engine.MaxOutputChunks,
		Env:             ev,
		FileLog:         c.Log.File,
	})

	if len(sinks) > 0 {
		q.SetHistorySinks(sinks...)
		sup.SetHistorySinks(sinks...)
	}

	e := &Engine{Queue: q, Supervisor: sup, st: st, sinks: sinks}
	if err := e.registerSchedules(ctx, c); err != nil {
		_ = e.Close(ctx)
		return nil, err
	}
	return e, nil
}

// registerSchedules adds configured schedules that are not already in the
// loaded state. Schedules that survived in the store keep their run history.
func (e *Engine) registerSchedules(ctx context.Context, c Config) error {
	declared, err := c.TaskSchedules()
	if err != nil {
		return err
	}
	existing := make(map[string]struct{})
	for _, s := range e.Queue.Schedules() {
		existing[s.ID] = struct{}{}
	}
	for _, s := range declared {
		if _, ok := existing[s.ID]; ok {
			continue
		}
		if _, err := e.Queue.AddSchedule(ctx, s); err != nil {
			return fmt.Errorf("register schedule %q: %w", s.ID, err)
		}
	}
	return nil
}

// Start launches the dispatch loop.
func (e *Engine) Start(ctx context.Context) { e.Queue.Start(ctx) }

// Stop halts the dispatch loop. Direct calls keep working afterwards.
func (e *Engine) Stop() { e.Queue.Stop() }

// Close stops dispatch, kills supervised processes, and releases the store
// and any closable history sinks.
func (e *Engine) Close(ctx context.Context) error {
	e.Queue.Stop()
	err := e.Supervisor.Shutdown(ctx)
	if cerr := e.st.Close(); err == nil {
		err = cerr
	}
	for _, s := range e.sinks {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return err
}

// Queue facade

func (e *Engine) Register(typ string, exec Executor) error { return e.Queue.Register(typ, exec) }
func (e *Engine) Unregister(typ string)                    { e.Queue.Unregister(typ) }
func (e *Engine) Add(ctx context.Context, tmpl Template) (Task, error) {
	return e.Queue.Add(ctx, tmpl)
}
func (e *Engine) Cancel(ctx context.Context, id string) error { return e.Queue.Cancel(ctx, id) }
func (e *Engine) Get(id string) (Task, error)                 { return e.Queue.Get(id) }
func (e *Engine) List(f Filter) []Task                        { return e.Queue.List(f) }
func (e *Engine) Pending() []Task                             { return e.Queue.PendingInOrder() }
func (e *Engine) AddSchedule(ctx context.Context, s Schedule) (Schedule, error) {
	return e.Queue.AddSchedule(ctx, s)
}
func (e *Engine) RemoveSchedule(ctx context.Context, id string) error {
	return e.Queue.RemoveSchedule(ctx, id)
}
func (e *Engine) EnableSchedule(ctx context.Context, id string, enabled bool) error {
	return e.Queue.EnableSchedule(ctx, id, enabled)
}
func (e *Engine) Schedules() []Schedule { return e.Queue.Schedules() }

// Supervisor facade

func (e *Engine) Spawn(ctx context.Context, spec ProcessSpec) (*process.Handle, error) {
	return e.Supervisor.Spawn(ctx, spec, nil)
}
func (e *Engine) Kill(id uint64) error     { return e.Supervisor.Kill(id) }
func (e *Engine) Processes() []ProcessInfo { return e.Supervisor.List() }
func (e *Engine) Process(id uint64) (ProcessInfo, error) {
	return e.Supervisor.Get(id)
}
func (e *Engine) Wait(ctx context.Context, id uint64, timeout time.Duration) (ProcessInfo, error) {
	return e.Supervisor.WaitID(ctx, id, timeout)
}
func (e *Engine) Usage(id uint64) (ProcessUsage, error) { return e.Supervisor.Usage(id) }

// CommandExecutor returns an executor that interprets task metadata as a
// subprocess to run under sup: "command" (required), "args" (space-split),
// "workdir", "timeout" (Go duration). The captured output becomes the task
// result; a kill or timeout fails the task with the handle's exit error.
func CommandExecutor(sup *supervisor.Supervisor) Executor {
	return func(ctx context.Context, t Task) (string, error) {
		command := t.Metadata["command"]
		if command == "" {
			return "", fmt.Errorf("task %s has no command metadata", t.ID)
		}
		spec := ProcessSpec{
			Command: command,
			Args:    strings.Fields(t.Metadata["args"]),
			WorkDir: t.Metadata["workdir"],
		}
		if v := t.Metadata["timeout"]; v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return "", fmt.Errorf("invalid timeout metadata %q: %w", v, err)
			}
			spec.Timeout = d
		}

		h, err := sup.Spawn(ctx, spec, nil)
		if err != nil {
			return "", err
		}
		info, err := sup.Wait(ctx, h, 0)
		if err != nil {
			// cancelled mid-run: take the process down with the task
			_ = sup.Kill(h.ID())
			return h.Output(), err
		}
		if info.Status != process.StatusCompleted {
			if exitErr := h.ExitErr(); exitErr != nil {
				return h.Output(), exitErr
			}
			return h.Output(), fmt.Errorf("process %s", info.Status)
		}
		return h.Output(), nil
	}
}

// LoadConfig reads and validates a TOML config file.
func LoadConfig(path string) (Config, error) {
	return cfg.Load(path)
}

// NewHTTPServer starts an HTTP server exposing the API of the given engine.
func NewHTTPServer(addr, basePath string, e *Engine) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, e.Queue, e.Supervisor)
}

// NewRouter returns the engine's API as an embeddable http.Handler factory.
func NewRouter(e *Engine, basePath string) *iapi.Router {
	return iapi.NewRouter(e.Queue, e.Supervisor, basePath)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
