package frame

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/vixen/internal/corelog"
	"github.com/spaghettifunk/vixen/internal/corerr"
	"github.com/spaghettifunk/vixen/internal/eventbus"
	"github.com/spaghettifunk/vixen/internal/graph"
	"github.com/spaghettifunk/vixen/internal/lifetime"
)

// DefaultFramesInFlight is spec.md section 4.9's default ring depth.
const DefaultFramesInFlight = 2

// FenceWaitTimeoutNanos bounds how long Step waits on a slot's fence before
// giving up; chosen generously since a real stall here indicates a GPU hang
// rather than ordinary contention.
const FenceWaitTimeoutNanos = 5_000_000_000 // 5s

// Slot owns the per-frame-in-flight resources of spec.md section 4.9: one
// fence, two semaphores, and one command pool per queue family.
type Slot struct {
	Index          uint64
	Fence          Fence
	ImageAcquired  Semaphore
	RenderComplete Semaphore
	Pools          map[uint32]CommandPool
}

// Scheduler maintains the ring of frame slots and drives the six-step
// frame loop of spec.md section 4.9. It owns no graph-compiler logic
// itself; it only drives the already-compiled execution plan.
type Scheduler struct {
	sync      SyncProvider
	swapchain SwapchainProvider
	queue     QueueProvider
	deferred  *lifetime.DeferredQueue
	graph     *graph.Graph
	bus       *eventbus.Bus
	pool      *WorkerPool
	timestamp *Tracker

	queueFamilies []uint32
	slots         []*Slot
	frameCounter  uint64 // atomic, number of Step calls completed

	staticMu    sync.Mutex
	staticCache map[string]staticEntry
}

// staticEntry is the last command buffer recorded for a graph.RecordStatic
// node, tagged with the node's generation at record time so a later
// Compile (shader reload, param change) invalidates it.
type staticEntry struct {
	buffer     CommandBuffer
	generation uint64
}

// NewScheduler builds framesInFlight slots, each with its own fence
// (pre-signaled so the first Step doesn't block), semaphore pair, and one
// command pool per entry in queueFamilies.
func NewScheduler(framesInFlight int, queueFamilies []uint32, sync SyncProvider, swapchain SwapchainProvider, queue QueueProvider, deferred *lifetime.DeferredQueue, g *graph.Graph, bus *eventbus.Bus, pool *WorkerPool, timestamp *Tracker) (*Scheduler, error) {
	if framesInFlight <= 0 {
		framesInFlight = DefaultFramesInFlight
	}
	if framesInFlight > 4 {
		return nil, fmt.Errorf("frame: frames_in_flight must be in range 1..4, got %d", framesInFlight)
	}
	slots := make([]*Slot, framesInFlight)
	for i := range slots {
		fence, err := sync.NewFence(true)
		if err != nil {
			return nil, corerr.GpuError(0, "NewScheduler.NewFence", err)
		}
		acquired, err := sync.NewSemaphore()
		if err != nil {
			return nil, corerr.GpuError(0, "NewScheduler.NewSemaphore", err)
		}
		renderComplete, err := sync.NewSemaphore()
		if err != nil {
			return nil, corerr.GpuError(0, "NewScheduler.NewSemaphore", err)
		}
		pools := make(map[uint32]CommandPool, len(queueFamilies))
		for _, qf := range queueFamilies {
			p, err := sync.NewCommandPool(qf)
			if err != nil {
				return nil, corerr.GpuError(0, "NewScheduler.NewCommandPool", err)
			}
			pools[qf] = p
		}
		slots[i] = &Slot{Index: uint64(i), Fence: fence, ImageAcquired: acquired, RenderComplete: renderComplete, Pools: pools}
	}
	return &Scheduler{
		sync:          sync,
		swapchain:     swapchain,
		queue:         queue,
		deferred:      deferred,
		graph:         g,
		bus:           bus,
		pool:          pool,
		timestamp:     timestamp,
		queueFamilies: queueFamilies,
		slots:         slots,
		staticCache:   make(map[string]staticEntry),
	}, nil
}

// FramesInFlight reports the ring depth.
func (s *Scheduler) FramesInFlight() int { return len(s.slots) }

// CompletedFrames reports the number of Step calls that have returned
// successfully so far.
func (s *Scheduler) CompletedFrames() uint64 { return atomic.LoadUint64(&s.frameCounter) }

// RecordFunc records one node's contribution to the current frame into a
// command buffer and returns it, or an error. The scheduler doesn't
// interpret the returned buffer beyond threading it into the submit batch.
type RecordFunc func(ctx context.Context, nodeName string, slot *Slot, frameIndex uint64) (CommandBuffer, error)

// Step executes one frame of the six-step loop in spec.md section 4.9,
// driving the graph's already-compiled execution plan.
func (s *Scheduler) Step(ctx context.Context, record RecordFunc) error {
	frameIndex := s.graph.AdvanceFrame()
	slot := s.slots[frameIndex%uint64(len(s.slots))]

	// Step 1: wait on the slot's fence.
	if err := slot.Fence.Wait(FenceWaitTimeoutNanos); err != nil {
		return corerr.GpuError(0, "Scheduler.Step.FenceWait", err)
	}

	// Step 2: drain deferred destruction for this slot.
	drained := s.deferred.Drain(frameIndex)
	if drained > 0 {
		corelog.Debug("frame %d: drained %d deferred destructions", frameIndex, drained)
	}

	// Step 3: acquire the next swapchain image.
	imageIndex, err := s.swapchain.AcquireNextImage(slot.ImageAcquired)
	if err != nil {
		return corerr.GpuError(0, "Scheduler.Step.AcquireNextImage", err)
	}

	if err := slot.Fence.Reset(); err != nil {
		return corerr.GpuError(0, "Scheduler.Step.FenceReset", err)
	}
	for _, p := range slot.Pools {
		if err := p.Reset(); err != nil {
			return corerr.GpuError(0, "Scheduler.Step.PoolReset", err)
		}
	}

	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicFrameStart, Index: frameIndex})

	// Step 4/5: play waves in order, recording (possibly in parallel via
	// the worker pool) then submitting each wave's command buffers.
	plan := s.graph.ExecutionPlan()
	if plan == nil {
		return corerr.InvalidState("Scheduler.Step: graph has not been compiled")
	}
	for wi, wave := range plan.Waves {
		buffers, err := s.recordWave(ctx, wave, slot, frameIndex, record)
		if err != nil {
			return fmt.Errorf("frame %d wave %d: %w", frameIndex, wi, err)
		}
		last := wi == len(plan.Waves)-1
		batch := SubmitBatch{CommandBuffers: buffers}
		if wi == 0 {
			batch.WaitSemaphores = []Semaphore{slot.ImageAcquired}
		}
		if last {
			batch.SignalSemaphores = []Semaphore{slot.RenderComplete}
		}
		var fence Fence
		if last {
			fence = slot.Fence
		}
		if err := s.queue.Submit(batch, fence); err != nil {
			return corerr.GpuError(0, "Scheduler.Step.Submit", err)
		}
	}

	// Step 6: present, waiting on render-complete.
	if err := s.queue.Present(imageIndex, []Semaphore{slot.RenderComplete}); err != nil {
		return corerr.GpuError(0, "Scheduler.Step.Present", err)
	}

	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicFrameEnd, Index: frameIndex})
	s.bus.Drain()

	atomic.AddUint64(&s.frameCounter, 1)
	return nil
}

// ender is satisfied by a CommandBuffer that needs an explicit end-of-
// recording call before submission (gpuapi.CommandBuffer does). Checked
// via type assertion rather than added to the CommandBuffer interface
// itself, since a fake CommandBuffer in tests has no such requirement.
type ender interface {
	End() error
}

func endRecording(name string, cmd CommandBuffer) error {
	if e, ok := cmd.(ender); ok {
		if err := e.End(); err != nil {
			return fmt.Errorf("end %q: %w", name, err)
		}
	}
	return nil
}

func (s *Scheduler) recordWave(ctx context.Context, wave graph.Wave, slot *Slot, frameIndex uint64, record RecordFunc) ([]CommandBuffer, error) {
	buffers := make([]CommandBuffer, len(wave))
	errs := make([]error, len(wave))
	nameToIdx := make(map[string]int, len(wave))
	for i, name := range wave {
		nameToIdx[name] = i
	}

	if s.pool == nil || len(wave) <= 1 {
		for i, name := range wave {
			if cmd, ok := s.reuseStatic(name); ok {
				buffers[i] = cmd
				continue
			}
			cmd, err := record(ctx, name, slot, frameIndex)
			if err != nil {
				return nil, fmt.Errorf("record %q: %w", name, err)
			}
			if err := s.graph.ExecuteNode(name, cmd, frameIndex); err != nil {
				return nil, fmt.Errorf("execute %q: %w", name, err)
			}
			if err := endRecording(name, cmd); err != nil {
				return nil, err
			}
			s.cacheStatic(name, cmd)
			buffers[i] = cmd
		}
		return buffers, nil
	}

	err := s.pool.RecordWave(ctx, wave, func(name string) error {
		if cmd, ok := s.reuseStatic(name); ok {
			buffers[nameToIdx[name]] = cmd
			return nil
		}
		cmd, err := record(ctx, name, slot, frameIndex)
		if err != nil {
			errs[nameToIdx[name]] = fmt.Errorf("record %q: %w", name, err)
			return err
		}
		if err := s.graph.ExecuteNode(name, cmd, frameIndex); err != nil {
			errs[nameToIdx[name]] = fmt.Errorf("execute %q: %w", name, err)
			return err
		}
		if err := endRecording(name, cmd); err != nil {
			errs[nameToIdx[name]] = err
			return err
		}
		s.cacheStatic(name, cmd)
		buffers[nameToIdx[name]] = cmd
		return nil
	})
	if err != nil {
		for _, e := range errs {
			if e != nil {
				return nil, e
			}
		}
		return nil, err
	}
	return buffers, nil
}

// reuseStatic returns a previously recorded buffer for name if its policy
// is RecordStatic and its node hasn't recompiled since that recording
// (spec.md section 4.9 / Open Question 1: a STATIC node re-records only
// on shader reload or parameter change, not every frame).
func (s *Scheduler) reuseStatic(name string) (CommandBuffer, bool) {
	policy, ok := s.graph.RecordPolicyOf(name)
	if !ok || policy != graph.RecordStatic {
		return nil, false
	}
	n, ok := s.graph.Node(name)
	if !ok {
		return nil, false
	}
	gen := n.Generation()

	s.staticMu.Lock()
	defer s.staticMu.Unlock()
	entry, ok := s.staticCache[name]
	if !ok || entry.generation != gen {
		return nil, false
	}
	return entry.buffer, true
}

func (s *Scheduler) cacheStatic(name string, cmd CommandBuffer) {
	policy, ok := s.graph.RecordPolicyOf(name)
	if !ok || policy != graph.RecordStatic {
		return
	}
	n, ok := s.graph.Node(name)
	if !ok {
		return
	}
	s.staticMu.Lock()
	s.staticCache[name] = staticEntry{buffer: cmd, generation: n.Generation()}
	s.staticMu.Unlock()
}
