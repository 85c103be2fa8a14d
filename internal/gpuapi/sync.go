package gpuapi

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/frame"
)

// Fence implements internal/frame.Fence over a real VkFence. Grounded on
// the teacher's VulkanFence (engine/renderer/vulkan/fence.go): IsSignaled
// is cached so repeated Wait calls on an already-signaled fence are free,
// same as the teacher's early return.
type Fence struct {
	ctx        *Context
	handle     vk.Fence
	isSignaled bool
}

// NewFence creates a fence, optionally pre-signaled.
func (ctx *Context) NewFence(signaled bool) (*Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var handle vk.Fence
	if res := vk.CreateFence(ctx.Device.Logical, &info, ctx.Allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("gpuapi: create fence: result %d", res)
	}
	return &Fence{ctx: ctx, handle: handle, isSignaled: signaled}, nil
}

// Wait blocks until the fence is signaled or timeoutNanos elapses.
func (f *Fence) Wait(timeoutNanos uint64) error {
	if f.isSignaled {
		return nil
	}
	res := vk.WaitForFences(f.ctx.Device.Logical, 1, []vk.Fence{f.handle}, vk.True, timeoutNanos)
	switch res {
	case vk.Success:
		f.isSignaled = true
		return nil
	case vk.Timeout:
		return fmt.Errorf("gpuapi: fence wait timed out after %dns", timeoutNanos)
	default:
		return fmt.Errorf("gpuapi: fence wait failed: result %d", res)
	}
}

// Reset clears the fence back to unsignaled, ready for the next submission.
func (f *Fence) Reset() error {
	if !f.isSignaled {
		return nil
	}
	if res := vk.ResetFences(f.ctx.Device.Logical, 1, []vk.Fence{f.handle}); res != vk.Success {
		return fmt.Errorf("gpuapi: reset fence: result %d", res)
	}
	f.isSignaled = false
	return nil
}

// Destroy releases the underlying VkFence.
func (f *Fence) Destroy() {
	if f.handle != nil {
		vk.DestroyFence(f.ctx.Device.Logical, f.handle, f.ctx.Allocator)
		f.handle = nil
	}
}

// Handle returns the raw VkFence for submission calls.
func (f *Fence) Handle() vk.Fence { return f.handle }

// Semaphore wraps a VkSemaphore; internal/frame treats it as opaque
// (frame.Semaphore is interface{}) and only threads the pointer through
// submit/acquire/present calls.
type Semaphore struct {
	ctx    *Context
	handle vk.Semaphore
}

// NewSemaphore creates an unsignaled binary semaphore.
func (ctx *Context) NewSemaphore() (*Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var handle vk.Semaphore
	if res := vk.CreateSemaphore(ctx.Device.Logical, &info, ctx.Allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("gpuapi: create semaphore: result %d", res)
	}
	return &Semaphore{ctx: ctx, handle: handle}, nil
}

// Destroy releases the underlying VkSemaphore.
func (s *Semaphore) Destroy() {
	if s.handle != nil {
		vk.DestroySemaphore(s.ctx.Device.Logical, s.handle, s.ctx.Allocator)
		s.handle = nil
	}
}

// Handle returns the raw VkSemaphore.
func (s *Semaphore) Handle() vk.Semaphore { return s.handle }

// CommandPool implements internal/frame.CommandPool: resetting the pool
// resets every command buffer allocated from it in one call, which is how
// this module reclaims a frame slot's command buffers for reuse rather
// than freeing and reallocating them every frame.
type CommandPool struct {
	ctx    *Context
	family uint32
	handle vk.CommandPool
}

// NewCommandPool creates a resettable command pool bound to queueFamily.
func (ctx *Context) NewCommandPool(queueFamily uint32) (*CommandPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var handle vk.CommandPool
	if res := vk.CreateCommandPool(ctx.Device.Logical, &info, ctx.Allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("gpuapi: create command pool: result %d", res)
	}
	return &CommandPool{ctx: ctx, family: queueFamily, handle: handle}, nil
}

// Reset recycles every command buffer allocated from this pool.
func (p *CommandPool) Reset() error {
	if res := vk.ResetCommandPool(p.ctx.Device.Logical, p.handle, vk.CommandPoolResetFlags(0)); res != vk.Success {
		return fmt.Errorf("gpuapi: reset command pool: result %d", res)
	}
	return nil
}

// Destroy releases the underlying VkCommandPool and every buffer allocated
// from it.
func (p *CommandPool) Destroy() {
	if p.handle != nil {
		vk.DestroyCommandPool(p.ctx.Device.Logical, p.handle, p.ctx.Allocator)
		p.handle = nil
	}
}

// Allocate allocates count primary command buffers from this pool.
func (p *CommandPool) Allocate(count uint32) ([]*CommandBuffer, error) {
	handles := make([]vk.CommandBuffer, count)
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}
	if res := vk.AllocateCommandBuffers(p.ctx.Device.Logical, &info, handles); res != vk.Success {
		return nil, fmt.Errorf("gpuapi: allocate command buffers: result %d", res)
	}
	out := make([]*CommandBuffer, count)
	for i, h := range handles {
		out[i] = &CommandBuffer{ctx: p.ctx, handle: h}
	}
	return out, nil
}

// SyncProvider implements internal/frame.SyncProvider, the factory the
// frame scheduler uses to build each ring slot's synchronization objects.
type SyncProvider struct {
	ctx *Context
}

// NewSyncProvider wraps ctx as an internal/frame.SyncProvider.
func NewSyncProvider(ctx *Context) *SyncProvider { return &SyncProvider{ctx: ctx} }

func (s *SyncProvider) NewFence(signaled bool) (frame.Fence, error) {
	return s.ctx.NewFence(signaled)
}

func (s *SyncProvider) NewSemaphore() (frame.Semaphore, error) {
	return s.ctx.NewSemaphore()
}

func (s *SyncProvider) NewCommandPool(queueFamily uint32) (frame.CommandPool, error) {
	return s.ctx.NewCommandPool(queueFamily)
}
