package process

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"
)

// ErrTimeout marks exit errors caused by the per-process timeout, so callers
// can tell a timeout from an ordinary nonzero exit.
var ErrTimeout = errors.New("process timed out")

// Handle is the bookkeeping record for one spawned subprocess. Identity is
// the supervisor-assigned monotonic ID, not the OS pid: pids are recycled by
// the kernel and are kept only for signal delivery. The supervisor owns the
// handle until it reaches a terminal status.
type Handle struct {
	id uint64

	mu        sync.Mutex
	spec      Spec
	pid       int
	status    Status
	startedAt time.Time
	stoppedAt time.Time
	exitErr   error
	out       cappedBuffer
	observer  func(chunk string)
	done      chan struct{}
	killed    bool
	timedOut  bool
}

// NewHandle creates a handle in the starting state. maxBytes/maxChunks <= 0
// select the package defaults. observer, when set, receives every output
// chunk as it arrives, including chunks the capped buffer drops.
func NewHandle(id uint64, spec Spec, maxBytes int64, maxChunks int, observer func(chunk string)) *Handle {
	return &Handle{
		id:       id,
		spec:     spec,
		status:   StatusStarting,
		out:      newCappedBuffer(maxBytes, maxChunks),
		observer: observer,
		done:     make(chan struct{}),
	}
}

func (h *Handle) ID() uint64 { return h.id }

func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

func (h *Handle) Spec() Spec {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.spec
}

func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Done returns a channel closed exactly once when the handle reaches a
// terminal status.
func (h *Handle) Done() <-chan struct{} { return h.done }

// TimedOut reports whether the per-process timeout finalized this handle.
func (h *Handle) TimedOut() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timedOut
}

// transitionLocked moves the handle to next if the transition is legal and
// closes done on entering a terminal state. Callers hold h.mu.
func (h *Handle) transitionLocked(next Status) bool {
	if !h.status.CanTransition(next) {
		return false
	}
	h.status = next
	if next.IsTerminal() {
		h.stoppedAt = time.Now()
		close(h.done)
	}
	return true
}

// SetStarted records the child pid after exec start succeeded and moves the
// handle to running.
func (h *Handle) SetStarted(pid int) {
	h.mu.Lock()
	h.pid = pid
	h.startedAt = time.Now()
	h.transitionLocked(StatusRunning)
	h.mu.Unlock()
}

// AppendOutput feeds one chunk of subprocess output into the capped buffer
// and forwards it to the observer. stderr and stdout share this stream.
func (h *Handle) AppendOutput(chunk string) {
	if chunk == "" {
		return
	}
	h.mu.Lock()
	h.out.append(chunk)
	obs := h.observer
	h.mu.Unlock()
	if obs != nil {
		obs(chunk)
	}
}

// MarkKilled records an explicit kill request so the eventual exit maps to
// cancelled. It reports false when the handle is already terminal or a kill
// was already requested, making kill idempotent.
func (h *Handle) MarkKilled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.IsTerminal() || h.killed {
		return false
	}
	h.killed = true
	h.out.appendMarker("\n[process killed]\n")
	return true
}

// MarkTimedOut finalizes the handle as a timeout error: status error, marker
// in the output, Done closed. The later natural exit becomes a no-op. It
// reports false when the handle already reached a terminal state.
func (h *Handle) MarkTimedOut(timeout time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.IsTerminal() {
		return false
	}
	h.timedOut = true
	h.exitErr = fmt.Errorf("%w after %s", ErrTimeout, timeout)
	h.out.appendMarker(fmt.Sprintf("\n[process timed out after %s]\n", timeout))
	h.transitionLocked(StatusError)
	return true
}

// MarkExited finalizes the handle after the monitor reaped the process:
// exit 0 maps to completed, an explicit kill to cancelled, anything else to
// error. A handle already finalized by a timeout stays as it is.
func (h *Handle) MarkExited(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.IsTerminal() {
		return false
	}
	switch {
	case h.killed:
		h.exitErr = err
		h.transitionLocked(StatusCancelled)
	case err != nil:
		h.exitErr = err
		h.transitionLocked(StatusError)
	default:
		h.transitionLocked(StatusCompleted)
	}
	return true
}

// ExitErr returns the recorded exit error, nil for a clean exit.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Output returns the captured output as one string, markers included.
func (h *Handle) Output() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out.output()
}

// OutputChunks returns a copy of the stored chunk sequence.
func (h *Handle) OutputChunks() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out.snapshot()
}

// SignalGroup delivers sig to the child's process group. No-op when no pid
// was recorded.
func (h *Handle) SignalGroup(sig syscall.Signal) error {
	h.mu.Lock()
	pid := h.pid
	h.mu.Unlock()
	if pid <= 0 {
		return nil
	}
	return killProcess(-pid, sig)
}

// Snapshot returns a copy of the current state.
func (h *Handle) Snapshot() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	info := Info{
		ID:              h.id,
		PID:             h.pid,
		Command:         h.spec.Command,
		Args:            append([]string(nil), h.spec.Args...),
		WorkDir:         h.spec.WorkDir,
		Status:          h.status,
		StartedAt:       h.startedAt,
		StoppedAt:       h.stoppedAt,
		OutputBytes:     h.out.bytes,
		OutputChunks:    len(h.out.chunks),
		OutputTruncated: h.out.truncated,
	}
	if h.exitErr != nil {
		info.ExitErr = h.exitErr.Error()
	}
	return info
}
