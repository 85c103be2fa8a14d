package frame

import (
	"sync"

	"github.com/spaghettifunk/vixen/internal/corelog"
)

// TimestampQueryPool is the minimal GPU seam a timing-capable node's
// commands write into: two queries per frame slot, begin and end, per
// spec.md section 4.9 ("2-slot query pool per frame slot").
type TimestampQueryPool interface {
	WriteTimestamp(cmd CommandBuffer, frameSlot int, queryIndex uint32) error
	// FetchResults returns the two raw GPU ticks for frameSlot if the GPU
	// has finished writing them (available=false otherwise, e.g. right
	// after Reset before any command has executed).
	FetchResults(frameSlot int) (beginTicks, endTicks uint64, available bool, err error)
	Reset(frameSlot int) error
}

// Sample is one node's most recently completed GPU timing for a frame slot.
type Sample struct {
	NodeName    string
	FrameIndex  uint64
	DurationNs  float64
}

// Tracker reads each slot's timestamp results one frame behind the frame
// that wrote them, so a query-result read can never stall waiting for the
// GPU (spec.md: "results are read from the previous frame to avoid
// stalls"). One Tracker is shared by every timing-opted-in node; each gets
// its own begin/end query index pair within the pool.
type Tracker struct {
	pool                 TimestampQueryPool
	timestampPeriodNanos float64

	mu          sync.Mutex
	nextQuery   uint32
	nodeQueries map[string]uint32 // node name -> base query index (begin=base, end=base+1)
	pending     map[int]map[string]uint64 // frameSlot -> node -> frameIndex written
	latest      map[string]Sample
}

// NewTracker builds a tracker over pool. timestampPeriodNanos is the
// device's reported nanoseconds-per-tick (spec.md: "reported period equals
// the device's timestamp period").
func NewTracker(pool TimestampQueryPool, timestampPeriodNanos float64) *Tracker {
	return &Tracker{
		pool:                 pool,
		timestampPeriodNanos: timestampPeriodNanos,
		nodeQueries:          make(map[string]uint32),
		pending:              make(map[int]map[string]uint64),
		latest:               make(map[string]Sample),
	}
}

// Register reserves a begin/end query index pair for nodeName, idempotent
// across calls.
func (t *Tracker) Register(nodeName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodeQueries[nodeName]; ok {
		return
	}
	t.nodeQueries[nodeName] = t.nextQuery
	t.nextQuery += 2
}

// WriteBegin/WriteEnd record the begin/end timestamp commands for nodeName
// into cmd, for the given frame slot. Register must have been called first.
func (t *Tracker) WriteBegin(cmd CommandBuffer, frameSlot int, nodeName string, frameIndex uint64) error {
	return t.write(cmd, frameSlot, nodeName, frameIndex, 0)
}

func (t *Tracker) WriteEnd(cmd CommandBuffer, frameSlot int, nodeName string, frameIndex uint64) error {
	return t.write(cmd, frameSlot, nodeName, frameIndex, 1)
}

func (t *Tracker) write(cmd CommandBuffer, frameSlot int, nodeName string, frameIndex uint64, offset uint32) error {
	t.mu.Lock()
	base, ok := t.nodeQueries[nodeName]
	if ok && offset == 0 {
		if t.pending[frameSlot] == nil {
			t.pending[frameSlot] = make(map[string]uint64)
		}
		t.pending[frameSlot][nodeName] = frameIndex
	}
	t.mu.Unlock()
	if !ok {
		t.Register(nodeName)
		t.mu.Lock()
		base = t.nodeQueries[nodeName]
		t.mu.Unlock()
	}
	return t.pool.WriteTimestamp(cmd, frameSlot, base+offset)
}

// Collect reads back every node's completed query for frameSlot — intended
// to be called once per Scheduler.Step, after the fence wait for that slot
// has already succeeded for a *previous* use of the slot, which is exactly
// when the GPU is guaranteed done with the prior occupant's queries.
func (t *Tracker) Collect(frameSlot int) []Sample {
	t.mu.Lock()
	writers := t.pending[frameSlot]
	t.mu.Unlock()
	if len(writers) == 0 {
		return nil
	}

	var samples []Sample
	for node, frameIndex := range writers {
		begin, end, available, err := t.pool.FetchResults(frameSlot)
		if err != nil {
			corelog.Warn("timestamp query for %q failed: %v", node, err)
			continue
		}
		if !available {
			continue
		}
		dur := float64(end-begin) * t.timestampPeriodNanos
		s := Sample{NodeName: node, FrameIndex: frameIndex, DurationNs: dur}
		t.mu.Lock()
		t.latest[node] = s
		t.mu.Unlock()
		samples = append(samples, s)
	}
	if err := t.pool.Reset(frameSlot); err != nil {
		corelog.Warn("timestamp query pool reset for slot %d failed: %v", frameSlot, err)
	}
	t.mu.Lock()
	delete(t.pending, frameSlot)
	t.mu.Unlock()
	return samples
}

// Latest returns the most recently collected sample for nodeName, if any.
func (t *Tracker) Latest(nodeName string) (Sample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.latest[nodeName]
	return s, ok
}
