// Package queue schedules background tasks. Tasks live in exactly one of
// four collections (pending, running, completed, failed); every mutation
// rewrites the whole serialized state into the store under one key, so the
// in-memory state is always authoritative and the store is a recovery
// snapshot, not a source of truth.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/taskvisor/internal/cronexpr"
	"github.com/loykin/taskvisor/internal/history"
	"github.com/loykin/taskvisor/internal/metrics"
	"github.com/loykin/taskvisor/internal/store"
	"github.com/loykin/taskvisor/internal/task"
)

const (
	DefaultTickInterval  = 5 * time.Second
	DefaultMaxConcurrent = 3
	DefaultStateKey      = "queue_state"
)

var (
	ErrTaskNotFound     = errors.New("queue: task not found")
	ErrScheduleNotFound = errors.New("queue: schedule not found")
	ErrNoExecutor       = errors.New("queue: no executor registered")
)

// Executor runs one task to completion. The returned string becomes the task
// result; a non-nil error (or a panic) fails the task. The context is
// cancelled when the task is cancelled or the queue stops; honoring it is
// cooperative.
type Executor func(ctx context.Context, t task.Task) (string, error)

// Options configures a Queue. Zero values select the defaults.
type Options struct {
	TickInterval  time.Duration
	MaxConcurrent int
	StateKey      string
	// Clock overrides time.Now, used by schedule tests.
	Clock func() time.Time
}

// Queue owns the task collections and the dispatch loop. All state mutation
// funnels through its mutex; executor goroutines re-enter only via the
// completion path.
type Queue struct {
	opts Options
	st   store.Store

	mu      sync.RWMutex
	state   task.QueueState
	seq     uint64
	execs   map[string]Executor
	cancels map[string]context.CancelFunc
	sinks   []history.Sink

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Queue backed by st and loads any previously persisted state.
// Tasks found in the running collection are evidence of a crash mid-run and
// are requeued as pending.
func New(ctx context.Context, st store.Store, opts Options) (*Queue, error) {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.StateKey == "" {
		opts.StateKey = DefaultStateKey
	}
	q := &Queue{
		opts:    opts,
		st:      st,
		execs:   make(map[string]Executor),
		cancels: make(map[string]context.CancelFunc),
	}
	if err := q.load(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) now() time.Time {
	if q.opts.Clock != nil {
		return q.opts.Clock()
	}
	return time.Now()
}

func (q *Queue) load(ctx context.Context) error {
	data, err := q.st.Get(ctx, q.opts.StateKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load queue state: %w", err)
	}
	var st task.QueueState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode queue state: %w", err)
	}
	q.state = st
	q.seq = st.MaxSeq()
	if len(q.state.Running) > 0 {
		// Whatever was running when the previous instance died never
		// finished; give those tasks another turn.
		now := q.now()
		for i := range q.state.Running {
			t := q.state.Running[i]
			t.Status = task.StatusPending
			t.StartedAt = nil
			t.UpdatedAt = now
			q.state.Pending = append(q.state.Pending, t)
			slog.Warn("requeued interrupted task", "task", t.ID, "type", t.Type)
		}
		q.state.Running = nil
		if err := q.persistLocked(ctx); err != nil {
			slog.Warn("queue state flush failed after recovery", "err", err)
		}
	}
	q.updateGaugesLocked()
	return nil
}

// persistLocked rewrites the full state under the well-known key. Callers
// hold q.mu. A flush failure is returned to the mutating caller; the
// in-memory mutation is never rolled back.
func (q *Queue) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(&q.state)
	if err != nil {
		return fmt.Errorf("encode queue state: %w", err)
	}
	if err := q.st.Set(ctx, q.opts.StateKey, data); err != nil {
		return fmt.Errorf("persist queue state: %w", err)
	}
	return nil
}

func (q *Queue) updateGaugesLocked() {
	p, r, c, f := q.state.Counts()
	metrics.SetQueueTasks(string(task.StatusPending), p)
	metrics.SetQueueTasks(string(task.StatusRunning), r)
	metrics.SetQueueTasks(string(task.StatusCompleted), c)
	metrics.SetQueueTasks(string(task.StatusFailed), f)
}

// SetHistorySinks replaces the sinks receiving task lifecycle events.
func (q *Queue) SetHistorySinks(sinks ...history.Sink) {
	q.mu.Lock()
	q.sinks = append([]history.Sink(nil), sinks...)
	q.mu.Unlock()
}

// emit sends events to the configured sinks, best effort. Callers must not
// hold q.mu.
func (q *Queue) emit(events ...history.Event) {
	q.mu.RLock()
	sinks := q.sinks
	q.mu.RUnlock()
	if len(sinks) == 0 {
		return
	}
	for _, e := range events {
		if e.OccurredAt.IsZero() {
			e.OccurredAt = q.now()
		}
		for _, sink := range sinks {
			_ = sink.Send(context.Background(), e)
		}
	}
}

// Register makes an executor available for tasks of the given type.
func (q *Queue) Register(typ string, exec Executor) error {
	if typ == "" {
		return errors.New("queue: executor type must not be empty")
	}
	if exec == nil {
		return errors.New("queue: executor must not be nil")
	}
	q.mu.Lock()
	q.execs[typ] = exec
	q.mu.Unlock()
	return nil
}

// Unregister removes the executor for the given type. Pending tasks of that
// type fail at dispatch time like any other unknown type.
func (q *Queue) Unregister(typ string) {
	q.mu.Lock()
	delete(q.execs, typ)
	q.mu.Unlock()
}

// Add materializes the template into a new pending task and persists the
// state before returning. On flush failure the task stays queued in memory
// and the error is returned.
func (q *Queue) Add(ctx context.Context, tmpl task.Template) (task.Task, error) {
	if err := tmpl.Validate(); err != nil {
		return task.Task{}, err
	}
	q.mu.Lock()
	t := tmpl.Materialize(q.now())
	q.seq++
	t.Seq = q.seq
	q.state.Pending = append(q.state.Pending, t)
	perr := q.persistLocked(ctx)
	q.updateGaugesLocked()
	q.mu.Unlock()

	metrics.IncTaskEnqueued(t.Type, string(t.Priority))
	slog.Info("task enqueued", "task", t.ID, "type", t.Type, "priority", t.Priority)
	q.emit(history.Event{
		Type: history.EventTaskEnqueued, TaskID: t.ID, TaskType: t.Type,
		Priority: string(t.Priority),
	})
	return t, perr
}

// UpdateStatus moves a task between collections, enforcing the forward-only
// transition table. StartedAt is set the first time the task enters running;
// CompletedAt, Result and Error only on a terminal status.
func (q *Queue) UpdateStatus(ctx context.Context, id string, status task.Status, result, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", task.ErrInvalidTransition, status)
	}
	q.mu.Lock()
	coll, idx := q.locateLocked(id)
	if coll == nil {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	t := (*coll)[idx]
	if !t.Status.CanTransition(status) {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", task.ErrInvalidTransition, t.Status, status)
	}
	*coll = append((*coll)[:idx], (*coll)[idx+1:]...)

	now := q.now()
	t.Status = status
	t.UpdatedAt = now
	if status == task.StatusRunning && t.StartedAt == nil {
		t.StartedAt = &now
	}
	if status.IsTerminal() {
		t.CompletedAt = &now
		t.Result = result
		t.Error = errMsg
		if cancel, ok := q.cancels[id]; ok {
			cancel()
			delete(q.cancels, id)
		}
	}
	target := q.collectionForLocked(status)
	*target = append(*target, t)
	perr := q.persistLocked(ctx)
	q.updateGaugesLocked()
	q.mu.Unlock()

	if status.IsTerminal() {
		metrics.IncTaskFinished(t.Type, string(status))
	}
	slog.Info("task status updated", "task", t.ID, "status", status)
	if evt, ok := eventForStatus(status); ok {
		q.emit(history.Event{Type: evt, TaskID: t.ID, TaskType: t.Type, Priority: string(t.Priority), Detail: errMsg})
	}
	return perr
}

// Cancel removes a task outright. A pending task just disappears; a running
// task additionally has its executor context cancelled, and the executor's
// late completion callback then finds nothing to update. Cancelling a task
// that already finished reports ErrTaskNotFound.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	q.mu.Lock()
	var t task.Task
	found := false
	for _, coll := range []*[]task.Task{&q.state.Pending, &q.state.Running} {
		for i := range *coll {
			if (*coll)[i].ID == id {
				t = (*coll)[i]
				*coll = append((*coll)[:i], (*coll)[i+1:]...)
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	if !found {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if cancel, ok := q.cancels[id]; ok {
		cancel()
		delete(q.cancels, id)
	}
	perr := q.persistLocked(ctx)
	q.updateGaugesLocked()
	q.mu.Unlock()

	metrics.IncTaskFinished(t.Type, "cancelled")
	slog.Info("task cancelled", "task", id)
	q.emit(history.Event{Type: history.EventTaskCancelled, TaskID: id, TaskType: t.Type})
	return perr
}

// Get returns a copy of the task with the given id, wherever it lives.
func (q *Queue) Get(id string) (task.Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	coll, idx := q.locateLocked(id)
	if coll == nil {
		return task.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return (*coll)[idx], nil
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	SessionID string
	ProjectID string
	Status    task.Status
}

func (f Filter) matches(t task.Task) bool {
	if f.SessionID != "" && t.SessionID != f.SessionID {
		return false
	}
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// List returns copies of all tasks accepted by the filter, grouped pending,
// running, completed, failed.
func (q *Queue) List(f Filter) []task.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []task.Task
	for _, coll := range []*[]task.Task{&q.state.Pending, &q.state.Running, &q.state.Completed, &q.state.Failed} {
		for _, t := range *coll {
			if f.matches(t) {
				out = append(out, t)
			}
		}
	}
	return out
}

// PendingInOrder returns the pending tasks in dispatch order: priority rank
// first, FIFO among equals.
func (q *Queue) PendingInOrder() []task.Task {
	q.mu.RLock()
	out := append([]task.Task(nil), q.state.Pending...)
	q.mu.RUnlock()
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Before(&out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Counts reports the size of each collection.
func (q *Queue) Counts() (pending, running, completed, failed int) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.state.Counts()
}

// AddSchedule registers a recurring schedule. The first firing happens one
// full interval after registration, not immediately.
func (q *Queue) AddSchedule(ctx context.Context, s task.Schedule) (task.Schedule, error) {
	s.GetDefaults()
	if err := s.Validate(); err != nil {
		return task.Schedule{}, err
	}
	q.mu.Lock()
	for i := range q.state.Schedules {
		if q.state.Schedules[i].ID == s.ID {
			q.mu.Unlock()
			return task.Schedule{}, fmt.Errorf("queue: schedule %q already exists", s.ID)
		}
	}
	now := q.now()
	s.CreatedAt = now
	if next, err := cronexpr.Next(s.Expr, now); err == nil {
		s.NextRun = &next
	}
	q.state.Schedules = append(q.state.Schedules, s)
	perr := q.persistLocked(ctx)
	q.mu.Unlock()

	slog.Info("schedule added", "schedule", s.ID, "expr", s.Expr)
	return s, perr
}

// RemoveSchedule deletes a schedule. Tasks it already materialized stay.
func (q *Queue) RemoveSchedule(ctx context.Context, id string) error {
	q.mu.Lock()
	idx := -1
	for i := range q.state.Schedules {
		if q.state.Schedules[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	q.state.Schedules = append(q.state.Schedules[:idx], q.state.Schedules[idx+1:]...)
	perr := q.persistLocked(ctx)
	q.mu.Unlock()

	slog.Info("schedule removed", "schedule", id)
	return perr
}

// EnableSchedule toggles a schedule. Enabling recomputes NextRun from now so
// a long-disabled schedule does not fire immediately on a stale NextRun.
func (q *Queue) EnableSchedule(ctx context.Context, id string, enabled bool) error {
	q.mu.Lock()
	var s *task.Schedule
	for i := range q.state.Schedules {
		if q.state.Schedules[i].ID == id {
			s = &q.state.Schedules[i]
			break
		}
	}
	if s == nil {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	s.Enabled = enabled
	if enabled {
		if next, err := cronexpr.Next(s.Expr, q.now()); err == nil {
			s.NextRun = &next
		}
	}
	perr := q.persistLocked(ctx)
	q.mu.Unlock()

	slog.Info("schedule toggled", "schedule", id, "enabled", enabled)
	return perr
}

// Schedules returns copies of all schedules.
func (q *Queue) Schedules() []task.Schedule {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]task.Schedule(nil), q.state.Schedules...)
}

// locateLocked finds the collection and index holding id. Callers hold q.mu.
func (q *Queue) locateLocked(id string) (*[]task.Task, int) {
	for _, coll := range []*[]task.Task{&q.state.Pending, &q.state.Running, &q.state.Completed, &q.state.Failed} {
		for i := range *coll {
			if (*coll)[i].ID == id {
				return coll, i
			}
		}
	}
	return nil, -1
}

func (q *Queue) collectionForLocked(st task.Status) *[]task.Task {
	switch st {
	case task.StatusRunning:
		return &q.state.Running
	case task.StatusCompleted:
		return &q.state.Completed
	case task.StatusFailed:
		return &q.state.Failed
	default:
		return &q.state.Pending
	}
}

func eventForStatus(st task.Status) (history.EventType, bool) {
	switch st {
	case task.StatusRunning:
		return history.EventTaskStarted, true
	case task.StatusCompleted:
		return history.EventTaskCompleted, true
	case task.StatusFailed:
		return history.EventTaskFailed, true
	default:
		return "", false
	}
}
