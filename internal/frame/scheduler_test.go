package frame

import (
	"context"
	"sync"
	"testing"

	"github.com/spaghettifunk/vixen/internal/eventbus"
	"github.com/spaghettifunk/vixen/internal/graph"
	"github.com/spaghettifunk/vixen/internal/lifetime"
)

type fakeFence struct {
	mu       sync.Mutex
	signaled bool
	waits    int
}

func (f *fakeFence) Wait(uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
	return nil
}
func (f *fakeFence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signaled = false
	return nil
}

type fakeSemaphore struct{ name string }

type fakePool struct{ resets int }

func (p *fakePool) Reset() error { p.resets++; return nil }

type fakeSync struct{}

func (fakeSync) NewFence(signaled bool) (Fence, error) { return &fakeFence{signaled: signaled}, nil }
func (fakeSync) NewSemaphore() (Semaphore, error)      { return &fakeSemaphore{}, nil }
func (fakeSync) NewCommandPool(uint32) (CommandPool, error) {
	return &fakePool{}, nil
}

type fakeSwapchain struct{ acquired int }

func (s *fakeSwapchain) AcquireNextImage(Semaphore) (uint32, error) {
	s.acquired++
	return uint32(s.acquired % 3), nil
}

type submitRecord struct {
	batch SubmitBatch
	fence Fence
}

type fakeQueue struct {
	mu       sync.Mutex
	submits  []submitRecord
	presents []uint32
}

func (q *fakeQueue) Submit(batch SubmitBatch, fence Fence) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submits = append(q.submits, submitRecord{batch: batch, fence: fence})
	return nil
}
func (q *fakeQueue) Present(imageIndex uint32, _ []Semaphore) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.presents = append(q.presents, imageIndex)
	return nil
}

func newTestScheduler(t *testing.T, framesInFlight int, g *graph.Graph, bus *eventbus.Bus, deferred *lifetime.DeferredQueue) (*Scheduler, *fakeQueue, *fakeSwapchain) {
	t.Helper()
	q := &fakeQueue{}
	sc := &fakeSwapchain{}
	s, err := NewScheduler(framesInFlight, []uint32{0}, fakeSync{}, sc, q, deferred, g, bus, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error building scheduler: %v", err)
	}
	return s, q, sc
}

func compiledSingleNodeGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := testGraphForFrame()
	if _, err := g.AddNode("device", framePassthroughType()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Compile(); err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	return g
}

// TestSchedulerRunsSixStepFrameLoop exercises one Step end to end: fence
// wait, deferred drain, image acquire, wave recording/execution, submit,
// and present all happen, in that order of dependency.
func TestSchedulerRunsSixStepFrameLoop(t *testing.T) {
	g := compiledSingleNodeGraph(t)
	bus := eventbus.New(0)
	deferred := lifetime.NewDeferredQueue(2)
	s, q, sc := newTestScheduler(t, 2, g, bus, deferred)

	var recorded []string
	var frameEvents []eventbus.Topic
	tok := bus.Subscribe(eventbus.TopicFrameStart, func(ev eventbus.Event) { frameEvents = append(frameEvents, ev.Topic) })
	defer bus.Unsubscribe(eventbus.TopicFrameStart, tok)

	err := s.Step(context.Background(), func(ctx context.Context, nodeName string, slot *Slot, frameIndex uint64) (CommandBuffer, error) {
		recorded = append(recorded, nodeName)
		return "cmd-" + nodeName, nil
	})
	if err != nil {
		t.Fatalf("unexpected Step error: %v", err)
	}
	if len(recorded) != 1 || recorded[0] != "device" {
		t.Fatalf("recorded = %v, want [device]", recorded)
	}
	if sc.acquired != 1 {
		t.Fatalf("swapchain acquired %d times, want 1", sc.acquired)
	}
	if len(q.submits) == 0 {
		t.Fatalf("expected at least one submit")
	}
	if len(q.presents) != 1 {
		t.Fatalf("expected exactly one present, got %d", len(q.presents))
	}
	if s.CompletedFrames() != 1 {
		t.Fatalf("CompletedFrames() = %d, want 1", s.CompletedFrames())
	}
}

// TestFrameSafetySlotReuseWaitsOnFence verifies
// spec.md testable property 3: with N frames in flight, frame F and frame
// F-N use the same slot, but the fence wait before step 4's CPU writes
// guarantees no overlap between a CPU write for frame F and a GPU read
// still in flight for frame F-N. This test checks the weaker, directly
// observable half of that guarantee: the slot index assignment really does
// wrap with period N, and the fence is waited on before every reuse.
func TestFrameSafetySlotReuseWaitsOnFence(t *testing.T) {
	g := compiledSingleNodeGraph(t)
	bus := eventbus.New(0)
	deferred := lifetime.NewDeferredQueue(2)
	s, _, _ := newTestScheduler(t, 2, g, bus, deferred)

	record := func(ctx context.Context, nodeName string, slot *Slot, frameIndex uint64) (CommandBuffer, error) {
		return nil, nil
	}
	for i := 0; i < 6; i++ {
		if err := s.Step(context.Background(), record); err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
	}
	// Frame indices 1..6 map to slots (1%2, 2%2, ...) = 1,0,1,0,1,0; each
	// of the 2 slots is reused 3 times, each reuse preceded by a fence
	// wait (slot 0 waited at frame 2, 4, 6 in addition to its initial
	// pre-signaled state).
	for i, slot := range s.slots {
		ff := slot.Fence.(*fakeFence)
		if ff.waits < 3 {
			t.Fatalf("slot %d fence waited %d times over 6 frames with 2 in flight, want >= 3", i, ff.waits)
		}
	}
}

// TestDeferredDestructionDrainsWithinFramesInFlightWindow verifies spec.md
// testable property 4: a resource whose last ref drops at frame F is
// destroyed at or after frame F+N and strictly before F+N+2, by checking
// that Drain at frame F+N (called inside Step) actually runs the destroyer,
// and that it is not runnable any earlier.
func TestDeferredDestructionDrainsWithinFramesInFlightWindow(t *testing.T) {
	g := compiledSingleNodeGraph(t)
	bus := eventbus.New(0)
	const N = 2
	deferred := lifetime.NewDeferredQueue(N)
	s, _, _ := newTestScheduler(t, N, g, bus, deferred)

	destroyed := make(chan uint64, 1)
	// g.CurrentFrame() is 0 before any Step; simulate "last ref dropped at
	// frame F=0" by enqueueing directly, matching what lifetime.Shared.Drop
	// would have done.
	deferred.Enqueue(0, func(scheduledFrame uint64) { destroyed <- scheduledFrame })

	record := func(ctx context.Context, nodeName string, slot *Slot, frameIndex uint64) (CommandBuffer, error) {
		return nil, nil
	}
	// Step advances the frame counter before draining, so the first Step
	// drains at frame 1 (0+1 < 0+N=2, not yet eligible), the second at
	// frame 2 (0+2 <= 2, eligible).
	if err := s.Step(context.Background(), record); err != nil {
		t.Fatalf("step 1: unexpected error: %v", err)
	}
	select {
	case <-destroyed:
		t.Fatalf("destroyer ran before frame F+N=2")
	default:
	}
	if err := s.Step(context.Background(), record); err != nil {
		t.Fatalf("step 2: unexpected error: %v", err)
	}
	select {
	case f := <-destroyed:
		if f != 0 {
			t.Fatalf("destroyer ran with scheduledFrame=%d, want 0", f)
		}
	default:
		t.Fatalf("destroyer did not run by frame F+N=2")
	}
}
