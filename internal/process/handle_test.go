package process

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusStarting, StatusRunning},
		{StatusStarting, StatusCompleted},
		{StatusStarting, StatusError},
		{StatusStarting, StatusCancelled},
		{StatusRunning, StatusCompleted},
		{StatusRunning, StatusError},
		{StatusRunning, StatusCancelled},
	}
	for _, tr := range allowed {
		if !tr.from.CanTransition(tr.to) {
			t.Fatalf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}
	denied := []struct{ from, to Status }{
		{StatusRunning, StatusStarting},
		{StatusRunning, StatusRunning},
		{StatusCompleted, StatusRunning},
		{StatusCompleted, StatusError},
		{StatusError, StatusRunning},
		{StatusError, StatusCompleted},
		{StatusCancelled, StatusRunning},
	}
	for _, tr := range denied {
		if tr.from.CanTransition(tr.to) {
			t.Fatalf("%s -> %s should be denied", tr.from, tr.to)
		}
	}
}

func TestHandleCompletedFlow(t *testing.T) {
	h := NewHandle(1, Spec{Command: "echo"}, 0, 0, nil)
	if h.Status() != StatusStarting {
		t.Fatalf("new handle should be starting, got %s", h.Status())
	}

	h.SetStarted(1234)
	if h.Status() != StatusRunning || h.PID() != 1234 {
		t.Fatalf("after start: status=%s pid=%d", h.Status(), h.PID())
	}
	select {
	case <-h.Done():
		t.Fatalf("done closed before terminal status")
	default:
	}

	if !h.MarkExited(nil) {
		t.Fatalf("first MarkExited should take effect")
	}
	if h.Status() != StatusCompleted {
		t.Fatalf("expected completed, got %s", h.Status())
	}
	select {
	case <-h.Done():
	default:
		t.Fatalf("done should be closed after terminal status")
	}

	// Terminal is final.
	if h.MarkExited(errors.New("late")) {
		t.Fatalf("second MarkExited must be a no-op")
	}
	if h.MarkKilled() {
		t.Fatalf("kill on terminal handle must be a no-op")
	}
	if h.Status() != StatusCompleted || h.ExitErr() != nil {
		t.Fatalf("terminal state mutated: %s %v", h.Status(), h.ExitErr())
	}
}

func TestHandleErrorFlow(t *testing.T) {
	h := NewHandle(2, Spec{Command: "false"}, 0, 0, nil)
	h.SetStarted(99)
	exitErr := errors.New("exit status 1")
	if !h.MarkExited(exitErr) {
		t.Fatalf("MarkExited should take effect")
	}
	if h.Status() != StatusError {
		t.Fatalf("expected error, got %s", h.Status())
	}
	if !errors.Is(h.ExitErr(), exitErr) {
		t.Fatalf("exit error not recorded: %v", h.ExitErr())
	}
}

func TestHandleKillMapsToCancelled(t *testing.T) {
	h := NewHandle(3, Spec{Command: "sleep", Args: []string{"60"}}, 0, 0, nil)
	h.SetStarted(100)

	if !h.MarkKilled() {
		t.Fatalf("first kill request should take effect")
	}
	if h.MarkKilled() {
		t.Fatalf("second kill request must be a no-op")
	}
	// Handle stays running until the monitor reaps the exit.
	if h.Status() != StatusRunning {
		t.Fatalf("kill request must not finalize status, got %s", h.Status())
	}

	h.MarkExited(errors.New("signal: terminated"))
	if h.Status() != StatusCancelled {
		t.Fatalf("killed process should end cancelled, got %s", h.Status())
	}
	if !strings.Contains(h.Output(), "[process killed]") {
		t.Fatalf("output missing kill marker: %q", h.Output())
	}
}

func TestHandleTimeoutWinsOverExit(t *testing.T) {
	h := NewHandle(4, Spec{Command: "sleep", Args: []string{"10"}}, 0, 0, nil)
	h.SetStarted(4321)

	if !h.MarkTimedOut(100 * time.Millisecond) {
		t.Fatalf("timeout should finalize a running handle")
	}
	if h.Status() != StatusError {
		t.Fatalf("timeout should set error, got %s", h.Status())
	}
	if !h.TimedOut() {
		t.Fatalf("TimedOut should report true")
	}
	if !errors.Is(h.ExitErr(), ErrTimeout) {
		t.Fatalf("exit error should wrap ErrTimeout: %v", h.ExitErr())
	}
	if !strings.Contains(h.Output(), "[process timed out after 100ms]") {
		t.Fatalf("output missing timeout marker: %q", h.Output())
	}
	select {
	case <-h.Done():
	default:
		t.Fatalf("done should close at timeout finalization")
	}

	// Natural exit after the timeout is a no-op.
	if h.MarkExited(nil) {
		t.Fatalf("exit after timeout must be a no-op")
	}
	if h.Status() != StatusError {
		t.Fatalf("status changed after timeout: %s", h.Status())
	}
	if h.MarkTimedOut(time.Second) {
		t.Fatalf("second timeout must be a no-op")
	}
}

func TestHandleExitBeforeRunning(t *testing.T) {
	h := NewHandle(5, Spec{Command: "true"}, 0, 0, nil)
	if !h.MarkExited(nil) {
		t.Fatalf("starting -> completed should be legal")
	}
	if h.Status() != StatusCompleted {
		t.Fatalf("expected completed, got %s", h.Status())
	}
}

func TestOutputByteCapTruncation(t *testing.T) {
	h := NewHandle(6, Spec{Command: "yes"}, 16, 100, nil)
	h.AppendOutput("0123456789") // 10 bytes, fits
	h.AppendOutput("0123456789") // would exceed 16 -> sentinel
	h.AppendOutput("dropped")    // silently dropped

	chunks := h.OutputChunks()
	if len(chunks) != 2 {
		t.Fatalf("expected data chunk + sentinel, got %d chunks: %q", len(chunks), chunks)
	}
	if chunks[1] != TruncationSentinel {
		t.Fatalf("second chunk should be the sentinel, got %q", chunks[1])
	}
	if n := strings.Count(h.Output(), TruncationSentinel); n != 1 {
		t.Fatalf("sentinel must appear exactly once, got %d", n)
	}

	info := h.Snapshot()
	if !info.OutputTruncated {
		t.Fatalf("snapshot should report truncation")
	}
	if info.OutputBytes != 10 {
		t.Fatalf("stored bytes should stop at 10, got %d", info.OutputBytes)
	}
}

func TestOutputChunkCapTruncation(t *testing.T) {
	h := NewHandle(7, Spec{Command: "yes"}, 1<<20, 3, nil)
	for i := 0; i < 3; i++ {
		h.AppendOutput("x")
	}
	h.AppendOutput("overflow")
	h.AppendOutput("more")

	chunks := h.OutputChunks()
	if len(chunks) != 4 {
		t.Fatalf("expected 3 data chunks + sentinel, got %d", len(chunks))
	}
	if chunks[3] != TruncationSentinel {
		t.Fatalf("last chunk should be the sentinel, got %q", chunks[3])
	}
}

func TestObserverSeesDroppedChunks(t *testing.T) {
	var seen []string
	h := NewHandle(8, Spec{Command: "yes"}, 8, 100, func(chunk string) {
		seen = append(seen, chunk)
	})
	h.AppendOutput("aaaa")
	h.AppendOutput("bbbbbbbb") // overflows -> sentinel stored, chunk dropped
	h.AppendOutput("cc")       // dropped

	if len(seen) != 3 {
		t.Fatalf("observer should receive the live stream, got %d chunks", len(seen))
	}
	if seen[1] != "bbbbbbbb" || seen[2] != "cc" {
		t.Fatalf("observer chunks mangled: %q", seen)
	}
	if len(h.OutputChunks()) != 2 {
		t.Fatalf("buffer should hold data chunk + sentinel, got %q", h.OutputChunks())
	}
}

func TestHandleDefaultCaps(t *testing.T) {
	h := NewHandle(9, Spec{Command: "echo"}, 0, 0, nil)
	if h.out.maxBytes != DefaultMaxOutputBytes {
		t.Fatalf("default byte cap: got %d", h.out.maxBytes)
	}
	if h.out.maxChunks != DefaultMaxOutputChunks {
		t.Fatalf("default chunk cap: got %d", h.out.maxChunks)
	}
}

func TestSnapshotFields(t *testing.T) {
	h := NewHandle(10, Spec{Command: "work", Args: []string{"-v"}, WorkDir: "/tmp"}, 0, 0, nil)
	h.SetStarted(555)
	h.AppendOutput("hello")
	h.MarkExited(nil)

	info := h.Snapshot()
	if info.ID != 10 || info.PID != 555 {
		t.Fatalf("identity fields: %+v", info)
	}
	if info.Command != "work" || len(info.Args) != 1 || info.WorkDir != "/tmp" {
		t.Fatalf("spec fields: %+v", info)
	}
	if info.Status != StatusCompleted {
		t.Fatalf("status: %s", info.Status)
	}
	if info.StartedAt.IsZero() || info.StoppedAt.IsZero() {
		t.Fatalf("timestamps missing: %+v", info)
	}
	if info.OutputBytes != 5 || info.OutputChunks != 1 || info.OutputTruncated {
		t.Fatalf("output accounting: %+v", info)
	}
}

func TestSignalGroupWithoutPID(t *testing.T) {
	h := NewHandle(11, Spec{Command: "echo"}, 0, 0, nil)
	if err := h.SignalGroup(0); err != nil {
		t.Fatalf("signal without pid should be a no-op, got %v", err)
	}
}

func TestProcessExistsSelf(t *testing.T) {
	if !processExists(os.Getpid()) {
		t.Fatalf("own pid should exist")
	}
}
