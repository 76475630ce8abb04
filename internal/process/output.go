package process

import "strings"

const (
	// DefaultMaxOutputBytes caps the cumulative output bytes a handle retains.
	DefaultMaxOutputBytes = 10 * 1024 * 1024
	// DefaultMaxOutputChunks caps the number of output chunks a handle retains.
	DefaultMaxOutputChunks = 10_000
	// TruncationSentinel is stored exactly once when either cap is hit.
	TruncationSentinel = "[output truncated]"
)

// cappedBuffer accumulates output chunks until either the byte or chunk cap
// is exceeded, then stores one sentinel and drops everything after. Overflow
// is a degrade-gracefully policy, never an error. The owning handle's lock
// guards all access.
type cappedBuffer struct {
	chunks    []string
	bytes     int64
	maxBytes  int64
	maxChunks int
	truncated bool
}

func newCappedBuffer(maxBytes int64, maxChunks int) cappedBuffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxOutputBytes
	}
	if maxChunks <= 0 {
		maxChunks = DefaultMaxOutputChunks
	}
	return cappedBuffer{maxBytes: maxBytes, maxChunks: maxChunks}
}

// append stores chunk if the caps allow and reports whether it was stored.
// The first overflow stores the sentinel instead.
func (b *cappedBuffer) append(chunk string) bool {
	if b.truncated {
		return false
	}
	if b.bytes+int64(len(chunk)) > b.maxBytes || len(b.chunks) >= b.maxChunks {
		b.chunks = append(b.chunks, TruncationSentinel)
		b.truncated = true
		return false
	}
	b.chunks = append(b.chunks, chunk)
	b.bytes += int64(len(chunk))
	return true
}

// appendMarker stores an informational marker (timeout, kill) as its own
// chunk. Markers bypass the caps; at most a handful exist per handle.
func (b *cappedBuffer) appendMarker(marker string) {
	b.chunks = append(b.chunks, marker)
}

func (b *cappedBuffer) output() string {
	return strings.Join(b.chunks, "")
}

func (b *cappedBuffer) snapshot() []string {
	out := make([]string, len(b.chunks))
	copy(out, b.chunks)
	return out
}
