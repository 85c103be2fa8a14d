package gpuapi

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/frame"
)

// CommandBuffer wraps a single VkCommandBuffer. Grounded on the teacher's
// VulkanCommandBuffer (engine/renderer/vulkan/command_buffer.go), trimmed
// to the begin/end/record surface this module needs; frame.CommandBuffer
// is declared as interface{} so recording itself stays outside the seam.
type CommandBuffer struct {
	ctx    *Context
	handle vk.CommandBuffer
}

// Handle returns the raw VkCommandBuffer for driver calls made by node
// Execute implementations.
func (b *CommandBuffer) Handle() vk.CommandBuffer { return b.handle }

// Begin starts recording, matching the teacher's one-time-submit single-use
// pattern used for per-frame dynamic command buffers.
func (b *CommandBuffer) Begin(oneTimeSubmit bool) error {
	info := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if oneTimeSubmit {
		info.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if res := vk.BeginCommandBuffer(b.handle, &info); res != vk.Success {
		return fmt.Errorf("gpuapi: begin command buffer: result %d", res)
	}
	return nil
}

// End finishes recording.
func (b *CommandBuffer) End() error {
	if res := vk.EndCommandBuffer(b.handle); res != vk.Success {
		return fmt.Errorf("gpuapi: end command buffer: result %d", res)
	}
	return nil
}

// Queue implements internal/frame.QueueProvider: submit a wave's recorded
// command buffers and present a swapchain image. Grounded on the teacher's
// VulkanCommandBuffer.EndSingleUse (submit+wait) and
// VulkanSwapchain.SwapchainPresent (engine/renderer/vulkan/swapchain.go),
// generalized from single-use transfer submits to per-wave batch submits
// gated by wait/signal semaphores and a fence.
type Queue struct {
	ctx           *Context
	handle        vk.Queue
	family        uint32
	swapchain     vk.Swapchain
	presentHandle vk.Queue
}

// NewQueue wraps family's queue handle as an internal/frame.QueueProvider.
// swapchain and presentHandle are set once the swapchain exists (see
// swapchain.go); Present returns an error if called before that.
func NewQueue(ctx *Context, handle vk.Queue, family uint32) *Queue {
	return &Queue{ctx: ctx, handle: handle, family: family}
}

// BindSwapchain records the swapchain and present queue a later Present
// call targets. NewSwapchain (swapchain.go) calls this once the swapchain
// is (re)created.
func (q *Queue) BindSwapchain(swapchain vk.Swapchain, presentQueue vk.Queue) {
	q.swapchain = swapchain
	q.presentHandle = presentQueue
}

// Submit submits batch's command buffers to this queue, signaling fence on
// completion. Serialized per queue family via the context's lock pool,
// since vkQueueSubmit on the same VkQueue from multiple goroutines is
// undefined behavior.
func (q *Queue) Submit(batch frame.SubmitBatch, fence frame.Fence) error {
	cmdBuffers := make([]vk.CommandBuffer, 0, len(batch.CommandBuffers))
	for _, cb := range batch.CommandBuffers {
		gcb, ok := cb.(*CommandBuffer)
		if !ok {
			return fmt.Errorf("gpuapi: submit: command buffer %T is not a gpuapi.CommandBuffer", cb)
		}
		cmdBuffers = append(cmdBuffers, gcb.handle)
	}
	waits := toSemaphoreHandles(batch.WaitSemaphores)
	signals := toSemaphoreHandles(batch.SignalSemaphores)
	waitStages := make([]vk.PipelineStageFlags, len(waits))
	for i := range waitStages {
		waitStages[i] = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}

	info := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   uint32(len(cmdBuffers)),
		PCommandBuffers:      cmdBuffers,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		PWaitDstStageMask:    waitStages,
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}

	var vkFence vk.Fence
	if gf, ok := fence.(*Fence); ok && gf != nil {
		vkFence = gf.handle
	}

	return q.ctx.Locks.SafeQueueCall(q.family, func() error {
		if res := vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{info}, vkFence); res != vk.Success {
			return fmt.Errorf("gpuapi: queue submit: result %d", res)
		}
		return nil
	})
}

// Present presents imageIndex once every waitSemaphore is signaled.
func (q *Queue) Present(imageIndex uint32, waitSemaphores []frame.Semaphore) error {
	if q.swapchain == nil {
		return fmt.Errorf("gpuapi: present called before a swapchain was bound")
	}
	waits := toSemaphoreHandles(waitSemaphores)
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{q.swapchain},
		PImageIndices:      []uint32{imageIndex},
	}
	return q.ctx.Locks.SafeQueueCall(q.family, func() error {
		if res := vk.QueuePresent(q.presentHandle, &info); res != vk.Success && res != vk.Suboptimal {
			return fmt.Errorf("gpuapi: queue present: result %d", res)
		}
		return nil
	})
}

func toSemaphoreHandles(sems []frame.Semaphore) []vk.Semaphore {
	out := make([]vk.Semaphore, 0, len(sems))
	for _, s := range sems {
		if gs, ok := s.(*Semaphore); ok && gs != nil {
			out = append(out, gs.handle)
		}
	}
	return out
}
