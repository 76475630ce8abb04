package supervisor

import (
	"sort"

	"github.com/loykin/taskvisor/internal/metrics"
	"github.com/loykin/taskvisor/internal/process"
)

func (s *Supervisor) insert(e *procEntry) {
	s.mu.Lock()
	s.entries[e.h.ID()] = e
	n := len(s.entries)
	s.mu.Unlock()
	metrics.SetRunningProcesses(n)
}

// remove drops the entry if it is still present. Both the monitor and the
// timeout path call it, whichever comes second is a no-op.
func (s *Supervisor) remove(id uint64) {
	s.mu.Lock()
	delete(s.entries, id)
	n := len(s.entries)
	s.mu.Unlock()
	metrics.SetRunningProcesses(n)
}

func (s *Supervisor) lookup(id uint64) (*procEntry, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	return e, ok
}

func (s *Supervisor) liveEntries() []*procEntry {
	s.mu.RLock()
	out := make([]*procEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()
	return out
}

// Get returns a snapshot of one live process, ErrNotFound once it finished
// and left the registry.
func (s *Supervisor) Get(id uint64) (process.Info, error) {
	e, ok := s.lookup(id)
	if !ok {
		return process.Info{}, ErrNotFound
	}
	return e.h.Snapshot(), nil
}

// Handle returns the live handle itself, for callers that want to block on
// its Done channel.
func (s *Supervisor) Handle(id uint64) (*process.Handle, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	return e.h, true
}

// List returns snapshots of all live processes ordered by id.
func (s *Supervisor) List() []process.Info {
	entries := s.liveEntries()
	out := make([]process.Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.h.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count reports the number of live processes.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
