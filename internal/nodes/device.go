package nodes

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/gpuapi"
	"github.com/spaghettifunk/vixen/internal/graph"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// SlotDevice is the output slot name the device node publishes under, and
// the name every other node in this package reads it from.
const SlotDevice = "Device"

// DeviceOutput is the public struct exposed by the device node's output
// slot (spec.md section 4.11: "{device, graphicsQueueIndex,
// memoryProperties}").
type DeviceOutput struct {
	Context             *gpuapi.Context
	GraphicsQueueFamily  uint32
	PresentQueueFamily   uint32
	TransferQueueFamily  uint32
	MemoryProperties     vk.PhysicalDeviceMemoryProperties
}

// NewDeviceNodeType builds the device node type over an already-selected
// gpuapi.Context. Physical/logical device selection itself happens in
// gpuapi.NewContext, driven by internal/platform's instance+surface
// before the graph is even built; this node's Compile only publishes that
// already-built context into the graph so downstream nodes read it
// through a slot rather than a package global (spec.md section 9). The
// teacher's equivalent is VulkanContext's ownership by the renderer
// backend (engine/renderer/vulkan/context.go), which every later stage
// reads from directly rather than re-deriving.
func NewDeviceNodeType(gctx *gpuapi.Context) *graph.Type {
	return &graph.Type{
		Name: "Device",
		Outputs: []graph.SlotSpec{
			{Name: SlotDevice, Type: "nodes.DeviceOutput", Role: graph.RoleData, Mutability: graph.MutabilityRO, Scope: graph.ScopeGraph},
		},
		Capabilities: graph.CapabilityGraphics | graph.CapabilityCompute | graph.CapabilityTransfer,
		Compile: func(c *graph.Context) error {
			out := DeviceOutput{
				Context:             gctx,
				GraphicsQueueFamily: gctx.Device.GraphicsQueueFamily,
				PresentQueueFamily:  gctx.Device.PresentQueueFamily,
				TransferQueueFamily: gctx.Device.TransferQueueFamily,
				MemoryProperties:    gctx.Device.MemoryProperties,
			}
			// The logical device outlives the graph; its teardown is
			// driven by internal/app, not this node's destroyer.
			return publish(c, SlotDevice, resource.KindDevice, "device", resource.LifetimePersistent, out, func(uint64) {})
		},
	}
}
