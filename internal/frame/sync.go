// Package frame implements the frame-in-flight ring, worker pool, and
// timestamp-query tracking of spec.md section 4.9. It depends only on the
// small GPU-API seam declared here, keeping Vulkan specifics in
// internal/gpuapi (spec.md section 6: "the core consumes an opaque GPU
// API").
package frame

// Fence is a single GPU/CPU synchronization point: a frame slot's fence is
// signaled once the GPU has finished every command submitted against that
// slot.
type Fence interface {
	Wait(timeoutNanos uint64) error
	Reset() error
}

// Semaphore is an opaque GPU-side synchronization primitive used to order
// work across queues; the core never inspects it, only threads it through
// submit/acquire/present calls.
type Semaphore interface{}

// CommandPool resets the command buffers allocated from it for reuse on the
// next pass through this frame slot.
type CommandPool interface {
	Reset() error
}

// CommandBuffer is an opaque recorded command sequence; DYNAMIC nodes
// re-record into a fresh one every frame, STATIC nodes record once and
// resubmit the same buffer (spec.md section 4.9, "Command buffer policy").
type CommandBuffer interface{}

// SubmitBatch groups the command buffers for one wave with the semaphores
// that gate and signal it.
type SubmitBatch struct {
	CommandBuffers   []CommandBuffer
	WaitSemaphores   []Semaphore
	SignalSemaphores []Semaphore
}

// QueueProvider submits recorded work and presents a swapchain image.
type QueueProvider interface {
	Submit(batch SubmitBatch, fence Fence) error
	Present(imageIndex uint32, waitSemaphores []Semaphore) error
}

// SwapchainProvider acquires the next presentable image, signaling acquired
// once the image is available for the GPU to render into.
type SwapchainProvider interface {
	AcquireNextImage(acquired Semaphore) (imageIndex uint32, err error)
}

// SyncProvider constructs the per-slot synchronization objects and command
// pools; the concrete Vulkan implementation lives in internal/gpuapi.
type SyncProvider interface {
	NewFence(signaled bool) (Fence, error)
	NewSemaphore() (Semaphore, error)
	NewCommandPool(queueFamily uint32) (CommandPool, error)
}
