package nodes

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/graph"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// SlotColorFormat and SlotDepthFormat name the render-pass node's format
// parameters; the depth attachment is added only when the node type is
// built with clearDepth. SlotRenderPassOut is its output slot.
const (
	SlotColorFormat   = "ColorFormat"
	SlotDepthFormat   = "DepthFormat"
	SlotRenderPassOut = SlotRenderPass
)

// RenderPassOutput is the public struct the render-pass node exposes.
type RenderPassOutput struct {
	RenderPass  vk.RenderPass
	ColorFormat vk.Format
	DepthFormat vk.Format
	HasDepth    bool
}

// NewRenderPassNodeType builds a render pass with one color attachment and
// an optional depth attachment, one subpass, and one external subpass
// dependency — derived trivially from the color/depth format parameters
// (spec.md section 4.11: "trivially derive from color/depth attachment
// inputs and the render-pass schema"). Grounded on the teacher's
// RenderpassCreate (engine/renderer/vulkan/renderpass.go), collapsed to a
// single pass with no multi-pass chaining (HasPrevPass/HasNextPass in the
// teacher): this module composes passes at the graph level instead, so
// every render-pass node always starts undefined and ends
// present-source-ready.
func NewRenderPassNodeType(clearColor bool, clearDepth bool) *graph.Type {
	return &graph.Type{
		Name: "RenderPass",
		Inputs: []graph.SlotSpec{
			{Name: SlotDevice, Type: "nodes.DeviceOutput", Role: graph.RoleDependency, Mutability: graph.MutabilityRO},
		},
		Outputs: []graph.SlotSpec{
			{Name: SlotRenderPassOut, Type: "nodes.RenderPassOutput", Role: graph.RoleData, Mutability: graph.MutabilityRO, Scope: graph.ScopeGraph},
		},
		Params: map[string]graph.Param{
			SlotColorFormat: {Kind: graph.ParamUint, Uint: uint64(vk.FormatB8g8r8a8Unorm)},
			SlotDepthFormat: {Kind: graph.ParamUint, Uint: uint64(vk.FormatD32Sfloat)},
		},
		Capabilities: graph.CapabilityGraphics,
		Compile: func(c *graph.Context) error {
			dev, err := input[DeviceOutput](c, SlotDevice)
			if err != nil {
				return err
			}
			colorParam, _ := c.Param(SlotColorFormat)
			depthParam, _ := c.Param(SlotDepthFormat)
			colorFormat := vk.Format(colorParam.Uint)
			depthFormat := vk.Format(depthParam.Uint)

			attachments := make([]vk.AttachmentDescription, 0, 2)
			colorAttachment := vk.AttachmentDescription{
				Format:         colorFormat,
				Samples:        vk.SampleCount1Bit,
				LoadOp:         vk.AttachmentLoadOpDontCare,
				StoreOp:        vk.AttachmentStoreOpStore,
				StencilLoadOp:  vk.AttachmentLoadOpDontCare,
				StencilStoreOp: vk.AttachmentStoreOpDontCare,
				InitialLayout:  vk.ImageLayoutUndefined,
				FinalLayout:    vk.ImageLayoutPresentSrc,
			}
			if clearColor {
				colorAttachment.LoadOp = vk.AttachmentLoadOpClear
			}
			attachments = append(attachments, colorAttachment)

			colorRef := []vk.AttachmentReference{{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}}
			subpass := vk.SubpassDescription{
				PipelineBindPoint:    vk.PipelineBindPointGraphics,
				ColorAttachmentCount: 1,
				PColorAttachments:    colorRef,
			}

			if clearDepth {
				depthAttachment := vk.AttachmentDescription{
					Format:         depthFormat,
					Samples:        vk.SampleCount1Bit,
					LoadOp:         vk.AttachmentLoadOpClear,
					StoreOp:        vk.AttachmentStoreOpDontCare,
					StencilLoadOp:  vk.AttachmentLoadOpDontCare,
					StencilStoreOp: vk.AttachmentStoreOpDontCare,
					InitialLayout:  vk.ImageLayoutUndefined,
					FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
				}
				attachments = append(attachments, depthAttachment)
				depthRef := vk.AttachmentReference{Attachment: 1, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
				subpass.PDepthStencilAttachment = &depthRef
			}

			dependency := vk.SubpassDependency{
				SrcSubpass:    vk.SubpassExternal,
				DstSubpass:    0,
				SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
				DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
				DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			}

			info := vk.RenderPassCreateInfo{
				SType:           vk.StructureTypeRenderPassCreateInfo,
				AttachmentCount: uint32(len(attachments)),
				PAttachments:    attachments,
				SubpassCount:    1,
				PSubpasses:      []vk.SubpassDescription{subpass},
				DependencyCount: 1,
				PDependencies:   []vk.SubpassDependency{dependency},
			}
			var pass vk.RenderPass
			if res := vk.CreateRenderPass(dev.Context.Device.Logical, &info, dev.Context.Allocator, &pass); res != vk.Success {
				return fmt.Errorf("nodes: create render pass: result %d", res)
			}

			out := RenderPassOutput{RenderPass: pass, ColorFormat: colorFormat, DepthFormat: depthFormat, HasDepth: clearDepth}
			return publish(c, SlotRenderPassOut, resource.KindRenderPass, c.NodeName(), resource.LifetimePersistent, out, func(uint64) {
				vk.DestroyRenderPass(dev.Context.Device.Logical, pass, dev.Context.Allocator)
			})
		},
	}
}
