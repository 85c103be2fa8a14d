package nodes

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/graph"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// SlotFramebuffer is the output slot name the framebuffer node publishes
// under; SlotDepthView is its optional depth attachment input.
const (
	SlotFramebuffer = "Framebuffer"
	SlotColorView   = "ColorView"
	SlotDepthView   = "DepthView"
)

// FramebufferOutput is the public struct the framebuffer node exposes.
type FramebufferOutput struct {
	Framebuffer vk.Framebuffer
	Width       uint32
	Height      uint32
}

// NewFramebufferNodeType builds one framebuffer from a render pass and a
// color (plus optional depth) attachment view — spec.md section 4.11's
// "trivially derive from color/depth attachment inputs and the
// render-pass schema". A real swapchain-backed graph instantiates one of
// these per swapchain image, since a VkFramebuffer binds to concrete image
// views rather than the swapchain as a whole; that fan-out is the graph's
// wiring, not this node's concern. Grounded on the teacher's
// FramebufferCreate (engine/renderer/vulkan/framebuffer.go).
func NewFramebufferNodeType() *graph.Type {
	return &graph.Type{
		Name: "Framebuffer",
		Inputs: []graph.SlotSpec{
			{Name: SlotDevice, Type: "nodes.DeviceOutput", Role: graph.RoleDependency, Mutability: graph.MutabilityRO},
			{Name: SlotRenderPass, Type: "nodes.RenderPassOutput", Role: graph.RoleDependency, Mutability: graph.MutabilityRO},
			{Name: SlotColorView, Type: "vk.ImageView", Role: graph.RoleData, Mutability: graph.MutabilityRO},
			{Name: SlotDepthView, Type: "vk.ImageView", Role: graph.RoleData, Mutability: graph.MutabilityRO, Nullable: true},
		},
		Outputs: []graph.SlotSpec{
			{Name: SlotFramebuffer, Type: "nodes.FramebufferOutput", Role: graph.RoleData, Mutability: graph.MutabilityRO, Scope: graph.ScopeNode},
		},
		Params: map[string]graph.Param{
			"Width":  {Kind: graph.ParamUint, Uint: 1920},
			"Height": {Kind: graph.ParamUint, Uint: 1080},
		},
		Capabilities: graph.CapabilityGraphics,
		Compile: func(c *graph.Context) error {
			dev, err := input[DeviceOutput](c, SlotDevice)
			if err != nil {
				return err
			}
			pass, err := input[RenderPassOutput](c, SlotRenderPass)
			if err != nil {
				return err
			}
			colorView, err := input[vk.ImageView](c, SlotColorView)
			if err != nil {
				return err
			}
			depthView, hasDepth := optionalInput[vk.ImageView](c, SlotDepthView)

			views := []vk.ImageView{colorView}
			if hasDepth {
				views = append(views, depthView)
			}

			widthParam, _ := c.Param("Width")
			heightParam, _ := c.Param("Height")
			width, height := uint32(widthParam.Uint), uint32(heightParam.Uint)

			info := vk.FramebufferCreateInfo{
				SType:           vk.StructureTypeFramebufferCreateInfo,
				RenderPass:      pass.RenderPass,
				AttachmentCount: uint32(len(views)),
				PAttachments:    views,
				Width:           width,
				Height:          height,
				Layers:          1,
			}
			var fb vk.Framebuffer
			if res := vk.CreateFramebuffer(dev.Context.Device.Logical, &info, dev.Context.Allocator, &fb); res != vk.Success {
				return fmt.Errorf("nodes: create framebuffer: result %d", res)
			}

			out := FramebufferOutput{Framebuffer: fb, Width: width, Height: height}
			return publish(c, SlotFramebuffer, resource.KindFramebuffer, c.NodeName(), resource.LifetimeTransient, out, func(uint64) {
				vk.DestroyFramebuffer(dev.Context.Device.Logical, fb, dev.Context.Allocator)
			})
		},
	}
}
