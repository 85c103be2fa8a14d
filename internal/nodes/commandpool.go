package nodes

import (
	"fmt"

	"github.com/spaghettifunk/vixen/internal/gpuapi"
	"github.com/spaghettifunk/vixen/internal/graph"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// SlotCommandPool is the output slot name the command pool node publishes
// under.
const SlotCommandPool = "CommandPool"

// CommandPoolOutput wraps the resettable pool a command pool node creates
// (spec.md section 4.11: "output is a command-pool handle").
type CommandPoolOutput struct {
	Pool   *gpuapi.CommandPool
	Family uint32
}

// queueFamilyOf resolves the "QueueFamily" string parameter
// (graphics|present|transfer, defaulting to graphics) against dev.
func queueFamilyOf(c *graph.Context, dev DeviceOutput) (uint32, error) {
	p, ok := c.Param("QueueFamily")
	if !ok {
		return dev.GraphicsQueueFamily, nil
	}
	switch p.String {
	case "", "graphics":
		return dev.GraphicsQueueFamily, nil
	case "present":
		return dev.PresentQueueFamily, nil
	case "transfer":
		return dev.TransferQueueFamily, nil
	default:
		return 0, fmt.Errorf("nodes: command pool: unknown QueueFamily %q", p.String)
	}
}

// NewCommandPoolNodeType builds a command pool node reading its device
// from SlotDevice and creating a resettable pool against the queue family
// named by the "QueueFamily" parameter. Grounded on the teacher's command
// pool creation in RendererBackendInitialize (engine/renderer/vulkan), and
// on gpuapi.Context.NewCommandPool's CommandPoolCreateResetCommandBufferBit
// choice, which is what lets the frame scheduler reset-and-reuse a slot's
// pool every frame instead of freeing and reallocating (spec.md section
// 4.9).
func NewCommandPoolNodeType() *graph.Type {
	return &graph.Type{
		Name: "CommandPool",
		Inputs: []graph.SlotSpec{
			{Name: SlotDevice, Type: "nodes.DeviceOutput", Role: graph.RoleDependency, Mutability: graph.MutabilityRO},
		},
		Outputs: []graph.SlotSpec{
			{Name: SlotCommandPool, Type: "nodes.CommandPoolOutput", Role: graph.RoleData, Mutability: graph.MutabilityRW, Scope: graph.ScopeGraph},
		},
		Params: map[string]graph.Param{
			"QueueFamily": {Kind: graph.ParamString, String: "graphics"},
		},
		Compile: func(c *graph.Context) error {
			dev, err := input[DeviceOutput](c, SlotDevice)
			if err != nil {
				return err
			}
			family, err := queueFamilyOf(c, dev)
			if err != nil {
				return err
			}
			pool, err := dev.Context.NewCommandPool(family)
			if err != nil {
				return err
			}
			out := CommandPoolOutput{Pool: pool, Family: family}
			return publish(c, SlotCommandPool, resource.KindCommandPool, c.NodeName(), resource.LifetimePersistent, out, func(uint64) {
				pool.Destroy()
			})
		},
	}
}
