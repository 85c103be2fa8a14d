// Package gpuapi is the Vulkan-backed concrete implementation of the opaque
// GPU API boundary described in spec.md section 6: physical/logical device
// and queue creation, command pool/buffer allocation and submission with
// fences/semaphores, memory allocation with properties and type selection,
// swapchain image acquire/present, and timestamp queries. Every exported
// type here exists to satisfy one of the provider seams declared by the
// core packages (internal/memory.DeviceMemoryProvider,
// internal/frame.SyncProvider/QueueProvider/SwapchainProvider, and the
// timestamp query pool seam) so that internal/graph, internal/memory and
// internal/frame never import "github.com/goki/vulkan" directly.
//
// Grounded on the teacher's engine/renderer/vulkan package (context.go,
// device.go), condensed to the device/queue/memory slice this module
// needs: instance and surface creation belong to internal/platform (the
// windowing layer), not here.
package gpuapi

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/corelog"
)

// Context aggregates the handles every other file in this package needs:
// the Vulkan instance and allocation callbacks (owned by internal/platform),
// plus the Device this package creates from them.
type Context struct {
	Instance  vk.Instance
	Surface   vk.Surface
	Allocator *vk.AllocationCallbacks
	Device    *Device
	Locks     *LockPool
}

// NewContext wraps an already-created instance/surface pair (produced by
// internal/platform) and selects+creates a logical device against it.
func NewContext(instance vk.Instance, surface vk.Surface, requireDiscreteGPU bool) (*Context, error) {
	ctx := &Context{
		Instance: instance,
		Surface:  surface,
		Locks:    NewLockPool(),
	}
	dev, err := newDevice(ctx, requireDiscreteGPU)
	if err != nil {
		return nil, fmt.Errorf("gpuapi: create context: %w", err)
	}
	ctx.Device = dev
	corelog.Info("gpuapi: context ready, graphics queue family=%d present=%d transfer=%d",
		dev.GraphicsQueueFamily, dev.PresentQueueFamily, dev.TransferQueueFamily)
	return ctx, nil
}

// FindMemoryIndex returns the index of a physical device memory type
// satisfying both typeFilter (the bitmask from a VkMemoryRequirements) and
// propertyFlags, or -1 if none qualifies.
func (c *Context) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlagBits) int32 {
	props := c.Device.MemoryProperties
	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		t := props.MemoryTypes[i]
		t.Deref()
		if (typeFilter&(1<<i)) != 0 && (vk.MemoryPropertyFlagBits(t.PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	corelog.Warn("gpuapi: no memory type satisfies filter=%#x flags=%#x", typeFilter, propertyFlags)
	return -1
}
