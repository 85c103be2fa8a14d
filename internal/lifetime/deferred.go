package lifetime

import (
	"sync"

	"github.com/spaghettifunk/vixen/internal/corelog"
)

type deferredEntry struct {
	scheduledFrame uint64
	destroy        Destroyer
}

// DeferredQueue is the FIFO-per-frame-slot deferred destruction queue of
// spec.md section 3.1/3.2. An entry enqueued at frame F is eligible for
// destruction once the queue is drained for frame F+N or later, where N is
// the configured frames-in-flight count; Drain enforces "no earlier than
// F+N" by the caller only ever invoking Drain with frame indices that have
// already completed their GPU work (the frame scheduler's fence wait gates
// this).
type DeferredQueue struct {
	mu             sync.Mutex
	entries        []deferredEntry
	framesInFlight uint64
}

// NewDeferredQueue constructs a queue that releases an entry scheduled at
// frame F once Drain is called with a frame index >= F+framesInFlight.
func NewDeferredQueue(framesInFlight uint64) *DeferredQueue {
	if framesInFlight == 0 {
		framesInFlight = 1
	}
	return &DeferredQueue{framesInFlight: framesInFlight}
}

// Enqueue schedules destroy to run once the queue has been drained at
// least framesInFlight frames past scheduledFrame.
func (q *DeferredQueue) Enqueue(scheduledFrame uint64, destroy Destroyer) {
	if destroy == nil {
		return
	}
	q.mu.Lock()
	q.entries = append(q.entries, deferredEntry{scheduledFrame: scheduledFrame, destroy: destroy})
	q.mu.Unlock()
}

// Drain runs every destroyer whose scheduledFrame+framesInFlight <=
// currentFrame, in FIFO order, and removes them from the queue. It is
// called once per frame slot acquisition (spec.md section 4.9 step 2).
func (q *DeferredQueue) Drain(currentFrame uint64) int {
	q.mu.Lock()
	var ready []deferredEntry
	var remaining []deferredEntry
	for _, e := range q.entries {
		if e.scheduledFrame+q.framesInFlight <= currentFrame {
			ready = append(ready, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	q.entries = remaining
	q.mu.Unlock()

	for _, e := range ready {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// Deferred-destruction failures are logged; the
					// resource is still removed from tracking (spec.md
					// section 7 propagation policy).
					corelog.Error("deferred destruction panicked: %v", r)
				}
			}()
			e.destroy(e.scheduledFrame)
		}()
	}
	return len(ready)
}

// Pending reports how many entries are still awaiting their drain frame,
// for budget-identity tests (spec.md section 3.2 invariant 7).
func (q *DeferredQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
