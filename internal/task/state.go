package task

// QueueState is the full queue snapshot persisted after every mutation. The
// four task slices mirror the queue's four status collections; a task id
// appears in exactly one of them.
type QueueState struct {
	Pending   []Task     `json:"pending"`
	Running   []Task     `json:"running"`
	Completed []Task     `json:"completed"`
	Failed    []Task     `json:"failed"`
	Schedules []Schedule `json:"schedules,omitempty"`
}

// Counts returns the number of tasks per collection in pending, running,
// completed, failed order.
func (st *QueueState) Counts() (int, int, int, int) {
	return len(st.Pending), len(st.Running), len(st.Completed), len(st.Failed)
}

// MaxSeq returns the highest Seq across all collections so a reloaded queue
// can keep assigning unique sequence numbers.
func (st *QueueState) MaxSeq() uint64 {
	var max uint64
	for _, ts := range [][]Task{st.Pending, st.Running, st.Completed, st.Failed} {
		for i := range ts {
			if ts[i].Seq > max {
				max = ts[i].Seq
			}
		}
	}
	return max
}
