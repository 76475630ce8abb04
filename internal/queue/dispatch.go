package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/taskvisor/internal/history"
	"github.com/loykin/taskvisor/internal/metrics"
	"github.com/loykin/taskvisor/internal/task"
)

// Start launches the dispatch loop. The loop ticks immediately, then every
// TickInterval, until ctx is cancelled or Stop is called. Starting an
// already started queue is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.mu.Unlock()

	q.wg.Add(1)
	go q.loop(runCtx)
	slog.Info("queue started", "tick", q.opts.TickInterval, "max_concurrent", q.opts.MaxConcurrent)
}

// Stop cancels the loop and every running executor context, then waits for
// them to return. The queue remains usable for direct calls afterwards.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()

	cancel()
	q.wg.Wait()
	slog.Info("queue stopped")
}

func (q *Queue) loop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.TickInterval)
	defer ticker.Stop()
	q.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Tick(ctx)
		}
	}
}

// Tick runs one dispatch pass: due schedules materialize into pending tasks,
// then pending tasks are promoted one step at a time until the concurrency
// cap or the pending collection is exhausted. Any single task failing never
// prevents the next tick.
func (q *Queue) Tick(ctx context.Context) {
	start := time.Now()
	metrics.IncDispatchTick()
	q.fireSchedules(ctx)
	for q.promoteOne(ctx) {
	}
	metrics.ObserveTickDuration(time.Since(start).Seconds())
}

// fireSchedules turns every enabled, due schedule into a pending task and
// advances its NextRun.
func (q *Queue) fireSchedules(ctx context.Context) {
	q.mu.Lock()
	now := q.now()
	var events []history.Event
	for i := range q.state.Schedules {
		s := &q.state.Schedules[i]
		if !s.Due(now) {
			continue
		}
		t := s.Template.Materialize(now)
		q.seq++
		t.Seq = q.seq
		t.ScheduleID = s.ID
		q.state.Pending = append(q.state.Pending, t)
		// Expressions are validated at registration, so advancing cannot fail.
		_ = s.MarkFired(now)

		metrics.IncScheduleFire(s.ID)
		metrics.IncTaskEnqueued(t.Type, string(t.Priority))
		slog.Info("schedule fired", "schedule", s.ID, "task", t.ID, "next_run", s.NextRun)
		events = append(events,
			history.Event{Type: history.EventScheduleFired, ScheduleID: s.ID, TaskID: t.ID, TaskType: t.Type},
			history.Event{Type: history.EventTaskEnqueued, TaskID: t.ID, TaskType: t.Type, Priority: string(t.Priority), ScheduleID: s.ID},
		)
	}
	if len(events) > 0 {
		if err := q.persistLocked(ctx); err != nil {
			slog.Warn("queue state flush failed", "err", err)
		}
		q.updateGaugesLocked()
	}
	q.mu.Unlock()
	q.emit(events...)
}

// promoteOne promotes the single best pending task (lowest priority rank,
// FIFO among equals). It reports whether it made progress, so the tick can
// call it again; a false return means the cap is reached or nothing is
// pending. A task whose type has no registered executor fails immediately
// without invoking anything.
func (q *Queue) promoteOne(ctx context.Context) bool {
	q.mu.Lock()
	if len(q.state.Running) >= q.opts.MaxConcurrent || len(q.state.Pending) == 0 {
		q.mu.Unlock()
		return false
	}
	best := 0
	for i := 1; i < len(q.state.Pending); i++ {
		if q.state.Pending[i].Before(&q.state.Pending[best]) {
			best = i
		}
	}
	t := q.state.Pending[best]
	q.state.Pending = append(q.state.Pending[:best], q.state.Pending[best+1:]...)
	now := q.now()

	exec, ok := q.execs[t.Type]
	if !ok {
		t.Status = task.StatusFailed
		t.UpdatedAt = now
		t.CompletedAt = &now
		t.Error = fmt.Sprintf("%v: %s", ErrNoExecutor, t.Type)
		q.state.Failed = append(q.state.Failed, t)
		if err := q.persistLocked(ctx); err != nil {
			slog.Warn("queue state flush failed", "err", err)
		}
		q.updateGaugesLocked()
		q.mu.Unlock()

		metrics.IncTaskFinished(t.Type, string(task.StatusFailed))
		slog.Warn("task failed at dispatch", "task", t.ID, "type", t.Type, "err", t.Error)
		q.emit(history.Event{Type: history.EventTaskFailed, TaskID: t.ID, TaskType: t.Type, Detail: t.Error})
		return true
	}

	t.Status = task.StatusRunning
	t.UpdatedAt = now
	t.StartedAt = &now
	q.state.Running = append(q.state.Running, t)
	taskCtx, cancel := context.WithCancel(ctx)
	q.cancels[t.ID] = cancel
	if err := q.persistLocked(ctx); err != nil {
		slog.Warn("queue state flush failed", "err", err)
	}
	q.updateGaugesLocked()
	q.wg.Add(1)
	go q.runTask(taskCtx, exec, t)
	q.mu.Unlock()

	slog.Info("task started", "task", t.ID, "type", t.Type, "priority", t.Priority)
	q.emit(history.Event{Type: history.EventTaskStarted, TaskID: t.ID, TaskType: t.Type, Priority: string(t.Priority)})
	return true
}

// runTask invokes the executor and reports its outcome. A panic is recovered
// into a failed status so one bad executor cannot take down the loop.
func (q *Queue) runTask(ctx context.Context, exec Executor, t task.Task) {
	defer q.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			metrics.IncExecutorPanic(t.Type)
			slog.Error("executor panicked", "task", t.ID, "type", t.Type, "panic", r)
			q.finish(t.ID, task.StatusFailed, "", fmt.Sprintf("executor panic: %v", r))
		}
	}()
	result, err := exec(ctx, t)
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "executor failed"
		}
		q.finish(t.ID, task.StatusFailed, "", msg)
		return
	}
	q.finish(t.ID, task.StatusCompleted, result, "")
}

// finish records a terminal status. A missing task means it was cancelled
// while the executor was still running; that late callback is a no-op.
func (q *Queue) finish(id string, status task.Status, result, errMsg string) {
	err := q.UpdateStatus(context.Background(), id, status, result, errMsg)
	if err != nil && !errors.Is(err, ErrTaskNotFound) {
		slog.Warn("task completion not recorded", "task", id, "err", err)
	}
}
