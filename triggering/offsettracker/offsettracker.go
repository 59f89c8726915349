// Package offsettracker implements a per-partition structure that records
// polled-but-unacknowledged offsets
// and completed-but-not-yet-contiguous offsets, and yields the commitable
// prefix once completions catch up with the head of the polled sequence.
//
// The core problem it solves — tasks pulled from a partition may finish in
// any order, but a broker offset commit can only ever represent "everything
// up to here is done" — mirrors the ack-list/commit-level pattern used by
// uber-go/kafka-client's partition consumer and sarama's offset manager:
// track an ordered backlog of outstanding offsets, mark completions as they
// arrive, and only advance the commit point while the backlog's head is
// marked done.
package offsettracker

import (
	"sort"
	"sync"
)

// Tracker is safe for concurrent use. A single instance serves one
// ConsumerBucket across all of its assigned partitions; both the poll loop
// (RegisterPolled, DrainCommitable) and completion callbacks
// (ReleaseCompleted) running on other goroutines serialize on it.
type Tracker struct {
	mu         sync.Mutex
	partitions map[int32]*partitionState
	staged     map[int32]int64
}

// partitionState holds one partition's outstanding and completed offsets.
// polled is kept sorted ascending and free of duplicates; completed is a
// sparse set restricted to members of polled (RegisterPolled removes an
// offset from completed defensively, in case a rebalance redelivers a
// message whose prior completion we already observed).
type partitionState struct {
	polled    []int64
	completed map[int64]struct{}
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		partitions: make(map[int32]*partitionState),
		staged:     make(map[int32]int64),
	}
}

func (t *Tracker) partition(p int32) *partitionState {
	ps, ok := t.partitions[p]
	if !ok {
		ps = &partitionState{completed: make(map[int64]struct{})}
		t.partitions[p] = ps
	}
	return ps
}

// RegisterPolled records offset as observed-but-unacknowledged on
// partition. Safe to call for an offset already registered (a no-op beyond
// the defensive completed-removal below).
func (t *Tracker) RegisterPolled(partition int32, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps := t.partition(partition)
	delete(ps.completed, offset)

	i := sort.Search(len(ps.polled), func(i int) bool { return ps.polled[i] >= offset })
	if i < len(ps.polled) && ps.polled[i] == offset {
		return
	}
	ps.polled = append(ps.polled, 0)
	copy(ps.polled[i+1:], ps.polled[i:])
	ps.polled[i] = offset
}

// ReleaseCompleted marks offset as finished processing. If offset is not
// currently in the polled backlog for partition — which happens when a
// rebalance redelivered a message whose earlier copy we already committed
// past — it is a no-op and known is false, so the caller can count it as an
// already-committed occurrence. Otherwise it drains the contiguous run of
// completed offsets starting at the head of polled, staging the offset
// immediately past the drained run as the next commit point for partition.
func (t *Tracker) ReleaseCompleted(partition int32, offset int64) (known bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps, ok := t.partitions[partition]
	if !ok {
		return false
	}
	i := sort.Search(len(ps.polled), func(i int) bool { return ps.polled[i] >= offset })
	if i >= len(ps.polled) || ps.polled[i] != offset {
		return false
	}

	ps.completed[offset] = struct{}{}
	if i != 0 {
		// Not the head yet; nothing to drain until earlier offsets complete.
		return true
	}

	drained := int64(-1)
	n := 0
	for n < len(ps.polled) {
		o := ps.polled[n]
		if _, done := ps.completed[o]; !done {
			break
		}
		delete(ps.completed, o)
		drained = o
		n++
	}
	if n > 0 {
		ps.polled = ps.polled[n:]
		t.staged[partition] = drained + 1
	}

	return true
}

// DrainCommitable atomically removes and returns the staged commit map:
// partition -> next offset to commit (the offset of the next message to
// read). Subsequent calls return nothing until more
// offsets stage.
func (t *Tracker) DrainCommitable() map[int32]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.staged) == 0 {
		return nil
	}
	out := t.staged
	t.staged = make(map[int32]int64)
	return out
}

// Outstanding returns the number of polled offsets not yet drained for
// partition, feeding the "offsets" gauge.
func (t *Tracker) Outstanding(partition int32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps, ok := t.partitions[partition]
	if !ok {
		return 0
	}
	return len(ps.polled)
}

// OutstandingTotal sums Outstanding across all partitions this tracker has
// ever seen, including ones that have since fully drained (and so report 0).
func (t *Tracker) OutstandingTotal() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, ps := range t.partitions {
		total += len(ps.polled)
	}
	return total
}

// CompletedPending returns the number of offsets marked complete for
// partition that are not yet drainable (i.e. blocked behind an earlier,
// still in-flight offset), feeding the "offsetsCompleted" gauge.
func (t *Tracker) CompletedPending(partition int32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps, ok := t.partitions[partition]
	if !ok {
		return 0
	}
	return len(ps.completed)
}

// Forget drops all tracked state for partition, called when a partition is
// revoked during a rebalance so stale offsets don't leak across reassignment.
func (t *Tracker) Forget(partition int32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.partitions, partition)
	delete(t.staged, partition)
}
