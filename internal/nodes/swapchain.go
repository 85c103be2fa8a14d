package nodes

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/eventbus"
	"github.com/spaghettifunk/vixen/internal/gpuapi"
	"github.com/spaghettifunk/vixen/internal/graph"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// SlotSwapchain is the output slot name the swapchain node publishes
// under.
const SlotSwapchain = "Swapchain"

// SwapchainOutput is the public struct the swapchain node exposes to
// downstream nodes as a struct-unpacker input (spec.md section 4.11:
// "{images, views, extent, format, imageCount}").
type SwapchainOutput struct {
	Swapchain  *gpuapi.Swapchain
	Images     []vk.Image
	Views      []vk.ImageView
	Extent     vk.Extent2D
	Format     vk.Format
	ImageCount uint32
}

// NewSwapchainNodeType builds the swapchain node over surface and queue
// (both owned by internal/platform, which created the windowing surface
// the device node's gpuapi.Context was selected against). Width/Height
// parameters default to 1920x1080; internal/app sets them to the new
// framebuffer size on every window resize. MarkDirty plus a
// Compile re-run rebuilds the swapchain and republishes it — this node's
// Compile is idempotent-safe to call more than once, as spec.md section
// 4.5's state machine requires of every node. Grounded on the teacher's
// createSwapchain/RegenerateRenderTargets pair
// (engine/renderer/vulkan/swapchain.go), collapsed into one rebuild path
// since this module's render targets are a separate node (the framebuffer
// node), not baked into swapchain creation.
func NewSwapchainNodeType(surface vk.Surface, queue *gpuapi.Queue) *graph.Type {
	return &graph.Type{
		Name: "Swapchain",
		Inputs: []graph.SlotSpec{
			{Name: SlotDevice, Type: "nodes.DeviceOutput", Role: graph.RoleDependency, Mutability: graph.MutabilityRO},
		},
		Outputs: []graph.SlotSpec{
			{Name: SlotSwapchain, Type: "nodes.SwapchainOutput", Role: graph.RoleData, Mutability: graph.MutabilityRW, Scope: graph.ScopeGraph},
		},
		Params: map[string]graph.Param{
			"Width":  {Kind: graph.ParamUint, Uint: 1920},
			"Height": {Kind: graph.ParamUint, Uint: 1080},
		},
		Compile: func(c *graph.Context) error {
			dev, err := input[DeviceOutput](c, SlotDevice)
			if err != nil {
				return err
			}
			widthParam, _ := c.Param("Width")
			heightParam, _ := c.Param("Height")

			sc, err := gpuapi.NewSwapchain(dev.Context, surface, uint32(widthParam.Uint), uint32(heightParam.Uint), queue)
			if err != nil {
				return err
			}
			out := SwapchainOutput{
				Swapchain:  sc,
				Images:     sc.Images,
				Views:      sc.Views,
				Extent:     sc.Extent(),
				Format:     sc.Format(),
				ImageCount: uint32(len(sc.Images)),
			}
			if err := publish(c, SlotSwapchain, resource.KindSwapchain, c.NodeName(), resource.LifetimePersistent, out, func(uint64) {
				sc.Destroy()
			}); err != nil {
				return err
			}
			c.Publish(eventbus.Event{Topic: eventbus.TopicSwapchainResize, Data: out})
			return nil
		},
	}
}
