package logjoin

// DeadlineIndex maps uid -> flush-deadline (microseconds since epoch). It is
// owned exclusively by one LogJoin core instance (spec.md §5); no internal
// locking is provided, matching the single-threaded-cooperative model.
type DeadlineIndex struct {
	deadlines map[string]int64
}

// NewDeadlineIndex returns an empty DeadlineIndex.
func NewDeadlineIndex() *DeadlineIndex {
	return &DeadlineIndex{deadlines: make(map[string]int64)}
}

// Touch sets uid's deadline to the larger of its current value (if any)
// and deadlineMicros. This is the only mutation on the append path and is
// what makes deadlines[uid] monotonically non-decreasing (spec.md §3, §8).
func (d *DeadlineIndex) Touch(uid string, deadlineMicros int64) {
	if existing, ok := d.deadlines[uid]; !ok || deadlineMicros > existing {
		d.deadlines[uid] = deadlineMicros
	}
}

// Get returns uid's current deadline and whether it has one at all.
func (d *DeadlineIndex) Get(uid string) (int64, bool) {
	v, ok := d.deadlines[uid]

	return v, ok
}

// Remove deletes uid's entry, if any.
func (d *DeadlineIndex) Remove(uid string) {
	delete(d.deadlines, uid)
}

// Len reports the number of uids currently tracked.
func (d *DeadlineIndex) Len() int {
	return len(d.deadlines)
}

// Due returns the uids whose deadline is strictly before streamTime,
// snapshotted up front so the caller may remove entries from the index
// while iterating this slice without the usual hazards of deleting from a
// live Go map mid-range (spec.md §4.4: "Iteration must support safe
// in-place removal").
func (d *DeadlineIndex) Due(streamTime int64) []string {
	due := make([]string, 0)

	for uid, deadline := range d.deadlines {
		if deadline < streamTime {
			due = append(due, uid)
		}
	}

	return due
}

// Snapshot returns a copy of the full uid->deadline map, for diagnostics
// (internal/adminapi's /debug/deadlines endpoint) and tests. Callers must
// not mutate the returned map expecting it to affect the index.
func (d *DeadlineIndex) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(d.deadlines))
	for uid, deadline := range d.deadlines {
		out[uid] = deadline
	}

	return out
}
