// Package supervisor spawns and tracks external subprocesses. Each spawn gets
// a monotonic id, a capped output buffer, and a single monitor goroutine that
// owns the reap. Kill and timeout deliver signals to the child's process
// group and escalate from SIGTERM to SIGKILL after a grace period.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/taskvisor/internal/env"
	"github.com/loykin/taskvisor/internal/history"
	"github.com/loykin/taskvisor/internal/logger"
	"github.com/loykin/taskvisor/internal/metrics"
	"github.com/loykin/taskvisor/internal/process"
)

// DefaultGracePeriod is the delay between SIGTERM and SIGKILL when stopping a
// process that does not exit on its own.
const DefaultGracePeriod = 5 * time.Second

var (
	ErrNotFound    = errors.New("supervisor: process not found")
	ErrSpawnFailed = errors.New("supervisor: spawn failed")
	ErrWorkdir     = errors.New("supervisor: workdir does not exist")
	ErrWaitTimeout = errors.New("supervisor: wait timed out")
)

// Options configures a Supervisor. The zero value is usable.
type Options struct {
	// GracePeriod is the SIGTERM to SIGKILL escalation delay. <= 0 selects
	// DefaultGracePeriod.
	GracePeriod time.Duration
	// MaxOutputBytes / MaxOutputChunks bound each handle's output buffer.
	// <= 0 selects the process package defaults.
	MaxOutputBytes  int64
	MaxOutputChunks int
	// Env supplies engine-wide environment overrides for spawned commands.
	Env *env.Env
	// FileLog, when Dir is set, mirrors each process's combined output to a
	// rotated file under Dir.
	FileLog logger.FileConfig
}

// Supervisor owns the registry of live subprocess handles. A handle is
// inserted when the spawn succeeds and removed when it reaches a terminal
// status; callers that need the handle afterwards keep the pointer returned
// by Spawn.
type Supervisor struct {
	opts Options

	mu      sync.RWMutex
	entries map[uint64]*procEntry
	sinks   []history.Sink

	nextID atomic.Uint64
	wg     sync.WaitGroup
}

// procEntry pairs a handle with the channel the monitor closes once the
// process is actually reaped. Signal escalation selects on it so a process
// that died on SIGTERM is never followed up with SIGKILL on a recycled pid.
type procEntry struct {
	h      *process.Handle
	reaped chan struct{}
}

func New(opts Options) *Supervisor {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Env == nil {
		opts.Env = env.New()
	}
	return &Supervisor{
		opts:    opts,
		entries: make(map[uint64]*procEntry),
	}
}

// SetHistorySinks replaces the sinks that receive process lifecycle events.
func (s *Supervisor) SetHistorySinks(sinks ...history.Sink) {
	s.mu.Lock()
	s.sinks = append([]history.Sink(nil), sinks...)
	s.mu.Unlock()
}

// Spawn validates the spec, starts the command, and returns its handle.
// The observer, when set, receives every output chunk as it arrives and may
// be called from multiple goroutines (stdout and stderr are read
// concurrently). Spawn does not block on the process: callers use Wait or
// the handle's Done channel.
func (s *Supervisor) Spawn(ctx context.Context, spec process.Spec, observer func(chunk string)) (*process.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	if spec.WorkDir != "" {
		st, err := os.Stat(spec.WorkDir)
		if err != nil || !st.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrWorkdir, spec.WorkDir)
		}
	}

	id := s.nextID.Add(1)
	mirror, err := s.opts.FileLog.Writer(fmt.Sprintf("proc-%d", id))
	if err != nil {
		slog.Warn("process output mirror unavailable", "id", id, "err", err)
		mirror = nil
	}
	h := process.NewHandle(id, spec, s.opts.MaxOutputBytes, s.opts.MaxOutputChunks, chainObserver(mirror, observer))

	cmd := spec.BuildCommand()
	cmd.Env = s.opts.Env.Merge(spec.Env, env.Var{"TERM": "dumb"})

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		closeMirror(mirror)
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		closeMirror(mirror)
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrSpawnFailed, err)
	}
	// Stdin stays nil so the child reads EOF from the null device instead of
	// inheriting a terminal.
	if err := cmd.Start(); err != nil {
		closeMirror(mirror)
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	pid := cmd.Process.Pid
	h.SetStarted(pid)
	e := &procEntry{h: h, reaped: make(chan struct{})}
	s.insert(e)
	metrics.IncProcessSpawn()
	slog.Info("process spawned", "id", id, "pid", pid, "command", spec.Command)
	s.emit(history.Event{Type: history.EventProcessSpawned, ProcessID: id, PID: pid, Detail: spec.Command})

	var readers sync.WaitGroup
	readers.Add(2)
	go drainOutput(&readers, stdout, h)
	go drainOutput(&readers, stderr, h)

	var timer *time.Timer
	if spec.Timeout > 0 {
		timer = time.AfterFunc(spec.Timeout, func() { s.timeout(e, spec.Timeout) })
	}

	s.wg.Add(1)
	go s.monitor(e, cmd, &readers, timer, mirror)
	return h, nil
}

// monitor is the only goroutine that calls cmd.Wait for this spawn. It joins
// the pipe readers first; Wait closes the pipes and reading after that would
// race the close.
func (s *Supervisor) monitor(e *procEntry, cmd *exec.Cmd, readers *sync.WaitGroup, timer *time.Timer, mirror io.WriteCloser) {
	defer s.wg.Done()
	readers.Wait()
	err := cmd.Wait()
	close(e.reaped)
	if timer != nil {
		timer.Stop()
	}
	first := e.h.MarkExited(err)
	closeMirror(mirror)
	s.remove(e.h.ID())

	snap := e.h.Snapshot()
	metrics.IncProcessExit(string(snap.Status))
	if snap.OutputTruncated {
		metrics.IncOutputTruncation()
	}
	if first {
		slog.Info("process exited",
			"id", snap.ID, "pid", snap.PID, "status", snap.Status,
			"duration", snap.StoppedAt.Sub(snap.StartedAt).Round(time.Millisecond))
		s.emit(history.Event{Type: history.EventProcessExited, ProcessID: snap.ID, PID: snap.PID, Detail: string(snap.Status)})
	}
}

// timeout finalizes the handle as an error the moment the spawn timeout
// expires, then stops the process underneath it.
func (s *Supervisor) timeout(e *procEntry, d time.Duration) {
	if !e.h.MarkTimedOut(d) {
		return
	}
	snap := e.h.Snapshot()
	slog.Warn("process timed out", "id", snap.ID, "pid", snap.PID, "timeout", d)
	metrics.IncProcessTimeout()
	s.emit(history.Event{Type: history.EventProcessTimeout, ProcessID: snap.ID, PID: snap.PID, Detail: d.String()})
	s.remove(snap.ID)
	_ = e.h.SignalGroup(syscall.SIGTERM)
	s.escalateAsync(e)
}

// Kill requests termination of a live process. Killing an unknown or already
// finished process is a no-op, and repeated kills of the same process only
// signal once. The handle reaches cancelled when the monitor reaps the exit.
func (s *Supervisor) Kill(id uint64) error {
	e, ok := s.lookup(id)
	if !ok {
		return nil
	}
	if !e.h.MarkKilled() {
		return nil
	}
	slog.Info("process kill requested", "id", id, "pid", e.h.PID())
	s.emit(history.Event{Type: history.EventProcessKilled, ProcessID: id, PID: e.h.PID()})
	_ = e.h.SignalGroup(syscall.SIGTERM)
	s.escalateAsync(e)
	return nil
}

func (s *Supervisor) escalateAsync(e *procEntry) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-e.reaped:
		case <-time.After(s.opts.GracePeriod):
			_ = e.h.SignalGroup(syscall.SIGKILL)
		}
	}()
}

// Wait blocks until the handle reaches a terminal status and returns its
// final snapshot. timeout <= 0 waits indefinitely. A context error or
// ErrWaitTimeout is returned with the current (possibly live) snapshot.
func (s *Supervisor) Wait(ctx context.Context, h *process.Handle, timeout time.Duration) (process.Info, error) {
	var expire <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}
	select {
	case <-h.Done():
		return h.Snapshot(), nil
	case <-ctx.Done():
		return h.Snapshot(), ctx.Err()
	case <-expire:
		return h.Snapshot(), ErrWaitTimeout
	}
}

// WaitID is Wait for callers that only hold the id. It fails with
// ErrNotFound once the process left the registry.
func (s *Supervisor) WaitID(ctx context.Context, id uint64, timeout time.Duration) (process.Info, error) {
	e, ok := s.lookup(id)
	if !ok {
		return process.Info{}, ErrNotFound
	}
	return s.Wait(ctx, e.h, timeout)
}

// Usage reports current CPU and memory consumption of a live process.
func (s *Supervisor) Usage(id uint64) (Usage, error) {
	e, ok := s.lookup(id)
	if !ok {
		return Usage{}, ErrNotFound
	}
	p, err := gopsproc.NewProcess(int32(e.h.PID()))
	if err != nil {
		return Usage{}, fmt.Errorf("inspect pid %d: %w", e.h.PID(), err)
	}
	var u Usage
	if cpu, err := p.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		u.RSSBytes = mi.RSS
	}
	return u, nil
}

// Usage is a point-in-time resource sample for one supervised process.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// Shutdown kills every live process and waits until all monitors finished
// reaping, or until ctx expires.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	for _, e := range s.liveEntries() {
		_ = s.Kill(e.h.ID())
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) emit(e history.Event) {
	s.mu.RLock()
	sinks := s.sinks
	s.mu.RUnlock()
	if len(sinks) == 0 {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	// History export is best effort and must not slow down supervision.
	for _, sink := range sinks {
		_ = sink.Send(context.Background(), e)
	}
}

func drainOutput(wg *sync.WaitGroup, r io.Reader, h *process.Handle) {
	defer wg.Done()
	buf := make([]byte, 8192)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.AppendOutput(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

func chainObserver(mirror io.WriteCloser, observer func(chunk string)) func(chunk string) {
	if mirror == nil {
		return observer
	}
	return func(chunk string) {
		_, _ = mirror.Write([]byte(chunk))
		if observer != nil {
			observer(chunk)
		}
	}
}

func closeMirror(w io.WriteCloser) {
	if w != nil {
		_ = w.Close()
	}
}
