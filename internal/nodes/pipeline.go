package nodes

import (
	"context"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/mitchellh/hashstructure/v2"

	"github.com/spaghettifunk/vixen/internal/cache"
	"github.com/spaghettifunk/vixen/internal/graph"
	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/resource"
	"github.com/spaghettifunk/vixen/internal/shaderbundle"
)

// SlotPipeline is the output slot name both pipeline node variants publish
// under. The graphics variant additionally reads SlotRenderPass; the
// compute variant has no such input (spec.md section 4.11: "consume a
// shader bundle + render-pass or no render-pass for compute").
const SlotPipeline = "Pipeline"

// PipelineOutput is the public struct both pipeline node variants expose.
type PipelineOutput struct {
	Pipeline       vk.Pipeline
	Layout         vk.PipelineLayout
	BindPoint      vk.PipelineBindPoint
	DescriptorSets []vk.DescriptorSetLayout
}

// Cache budgets for the handle-shaped pipeline caches. A "budget" here
// counts entries, not bytes: every cached value is a fixed-size Vulkan
// handle, so eviction should cap how many distinct pipelines/layouts stay
// resident rather than track a byte footprint like the allocator's image
// and buffer caches do.
const (
	descriptorSetLayoutBudget = 128
	pipelineLayoutBudget      = 128
	pipelineBudget            = 64
)

// ShaderSource resolves a program name and stage ("comp", "vert", "frag")
// to its compiled SPIR-V bytes. Grounded on the teacher's
// create_shader_module file-naming convention ("shaders/<name>.<stage>.spv",
// engine/renderer/vulkan/shader_utils.go), generalized into an injected
// lookup since this module doesn't fix the shader toolchain's output
// directory.
type ShaderSource func(programName, stage string) ([]byte, error)

// pipelineIdentity and descriptorSetLayoutIdentity are resource.Descriptor
// implementations whose content hash is a pipeline build's full identity.
// They are never passed to resource.Make — they exist only to drive
// cache.KeyOf — so they carry no Kind-specific validation of their own.
type pipelineIdentity struct {
	HandleKind    resource.Kind
	Program       string
	Interface     uint64
	PushConstants []shaderbundle.PushConstantRange
}

func (d pipelineIdentity) Kind() resource.Kind       { return d.HandleKind }
func (d pipelineIdentity) Validate() error           { return nil }
func (d pipelineIdentity) Clone() resource.Descriptor { return d }
func (d pipelineIdentity) ContentHash() (uint64, error) {
	h, err := hashstructure.Hash(d, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, fmt.Errorf("nodes: hash pipeline identity: %w", err)
	}
	return h, nil
}

type descriptorSetLayoutIdentity struct {
	Set      uint32
	Bindings []shaderbundle.Binding
}

func (d descriptorSetLayoutIdentity) Kind() resource.Kind        { return resource.KindDescriptorSetLayout }
func (d descriptorSetLayoutIdentity) Validate() error            { return nil }
func (d descriptorSetLayoutIdentity) Clone() resource.Descriptor { return d }
func (d descriptorSetLayoutIdentity) ContentHash() (uint64, error) {
	h, err := hashstructure.Hash(d, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, fmt.Errorf("nodes: hash descriptor set layout identity: %w", err)
	}
	return h, nil
}

// NewComputePipelineNodeType builds the compute pipeline node: one shader
// stage, no render pass, delegating layout and pipeline construction to
// the descriptor-set-layout, pipeline-layout, and compute-pipeline caches
// so two nodes compiling the same bundle share one VkPipeline. Grounded on
// the teacher's NewGraphicsPipeline layout-then-pipeline sequencing
// (engine/renderer/vulkan/pipeline.go), trimmed to what a compute pipeline
// needs: no vertex input, no rasterizer, no render pass.
func NewComputePipelineNodeType(bundleFn func() *shaderbundle.ShaderDataBundle, source ShaderSource) *graph.Type {
	return &graph.Type{
		Name: "ComputePipeline",
		Inputs: []graph.SlotSpec{
			{Name: SlotDevice, Type: "nodes.DeviceOutput", Role: graph.RoleDependency, Mutability: graph.MutabilityRO},
		},
		Outputs: []graph.SlotSpec{
			{Name: SlotPipeline, Type: "nodes.PipelineOutput", Role: graph.RoleData, Mutability: graph.MutabilityRO, Scope: graph.ScopeGraph},
		},
		Capabilities: graph.CapabilityCompute,
		Compile: func(c *graph.Context) error {
			dev, err := input[DeviceOutput](c, SlotDevice)
			if err != nil {
				return err
			}
			bundle := bundleFn()
			if bundle == nil {
				return fmt.Errorf("nodes: compute pipeline: no shader bundle available")
			}
			code, err := source(bundle.ProgramName, "comp")
			if err != nil {
				return err
			}

			ctx := c.Context()
			reg := c.Deps().Caches
			queue := c.Deps().Queue

			setLayouts, layoutShareds, err := descriptorSetLayoutsForBundle(ctx, dev, bundle, reg, queue)
			if err != nil {
				return err
			}

			layoutCache := cache.NewPipelineLayoutCache(reg, pipelineLayoutBudget)
			layoutKey := pipelineIdentity{HandleKind: resource.KindPipelineLayout, Program: bundle.ProgramName, Interface: bundle.DescriptorInterfaceHash, PushConstants: bundle.PushConstantRanges}
			pipelineLayoutShared, err := layoutCache.Get(ctx, layoutKey, func(context.Context) (*lifetime.Shared, uint64, error) {
				return createPipelineLayout(dev, setLayouts, bundle.PushConstantRanges, queue)
			})
			if err != nil {
				return err
			}
			vkLayout := pipelineLayoutShared.Variant().Handle().(vk.PipelineLayout)

			pipelineCache := cache.NewComputePipelineCache(reg, pipelineBudget)
			pipelineKey := pipelineIdentity{HandleKind: resource.KindPipeline, Program: bundle.ProgramName, Interface: bundle.DescriptorInterfaceHash}
			pipelineShared, err := pipelineCache.Get(ctx, pipelineKey, func(context.Context) (*lifetime.Shared, uint64, error) {
				return createComputePipeline(dev, code, vkLayout, queue)
			})
			if err != nil {
				return err
			}
			vkPipeline := pipelineShared.Variant().Handle().(vk.Pipeline)

			out := PipelineOutput{Pipeline: vkPipeline, Layout: vkLayout, BindPoint: vk.PipelineBindPointCompute, DescriptorSets: setLayouts}
			return publish(c, SlotPipeline, resource.KindPipeline, c.NodeName(), resource.LifetimePersistent, out, func(frameIndex uint64) {
				pipelineShared.Drop(frameIndex)
				pipelineLayoutShared.Drop(frameIndex)
				for _, s := range layoutShareds {
					s.Drop(frameIndex)
				}
			})
		},
	}
}

// NewGraphicsPipelineNodeType builds a graphics pipeline against the
// render pass SlotRenderPass names, with a fixed-function pipeline state
// (viewport/scissor dynamic, back-face culling, no blending) generalized
// from the teacher's NewGraphicsPipeline. Vertex shader and fragment
// shader stages both come from bundle's program name under the "vert"/
// "frag" stage suffixes.
func NewGraphicsPipelineNodeType(bundleFn func() *shaderbundle.ShaderDataBundle, source ShaderSource) *graph.Type {
	return &graph.Type{
		Name: "GraphicsPipeline",
		Inputs: []graph.SlotSpec{
			{Name: SlotDevice, Type: "nodes.DeviceOutput", Role: graph.RoleDependency, Mutability: graph.MutabilityRO},
			{Name: SlotRenderPass, Type: "nodes.RenderPassOutput", Role: graph.RoleDependency, Mutability: graph.MutabilityRO},
		},
		Outputs: []graph.SlotSpec{
			{Name: SlotPipeline, Type: "nodes.PipelineOutput", Role: graph.RoleData, Mutability: graph.MutabilityRO, Scope: graph.ScopeGraph},
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
			bundle := bundleFn()
			if bundle == nil {
				return fmt.Errorf("nodes: graphics pipeline: no shader bundle available")
			}
			vertCode, err := source(bundle.ProgramName, "vert")
			if err != nil {
				return err
			}
			fragCode, err := source(bundle.ProgramName, "frag")
			if err != nil {
				return err
			}

			ctx := c.Context()
			reg := c.Deps().Caches
			queue := c.Deps().Queue

			setLayouts, layoutShareds, err := descriptorSetLayoutsForBundle(ctx, dev, bundle, reg, queue)
			if err != nil {
				return err
			}

			layoutCache := cache.NewPipelineLayoutCache(reg, pipelineLayoutBudget)
			layoutKey := pipelineIdentity{HandleKind: resource.KindPipelineLayout, Program: bundle.ProgramName, Interface: bundle.DescriptorInterfaceHash, PushConstants: bundle.PushConstantRanges}
			pipelineLayoutShared, err := layoutCache.Get(ctx, layoutKey, func(context.Context) (*lifetime.Shared, uint64, error) {
				return createPipelineLayout(dev, setLayouts, bundle.PushConstantRanges, queue)
			})
			if err != nil {
				return err
			}
			vkLayout := pipelineLayoutShared.Variant().Handle().(vk.PipelineLayout)

			pipelineCache := cache.NewGraphicsPipelineCache(reg, pipelineBudget)
			pipelineKey := pipelineIdentity{HandleKind: resource.KindPipeline, Program: bundle.ProgramName, Interface: bundle.DescriptorInterfaceHash}
			pipelineShared, err := pipelineCache.Get(ctx, pipelineKey, func(context.Context) (*lifetime.Shared, uint64, error) {
				return createGraphicsPipeline(dev, vertCode, fragCode, vkLayout, pass.RenderPass, queue)
			})
			if err != nil {
				return err
			}
			vkPipeline := pipelineShared.Variant().Handle().(vk.Pipeline)

			out := PipelineOutput{Pipeline: vkPipeline, Layout: vkLayout, BindPoint: vk.PipelineBindPointGraphics, DescriptorSets: setLayouts}
			return publish(c, SlotPipeline, resource.KindPipeline, c.NodeName(), resource.LifetimePersistent, out, func(frameIndex uint64) {
				pipelineShared.Drop(frameIndex)
				pipelineLayoutShared.Drop(frameIndex)
				for _, s := range layoutShareds {
					s.Drop(frameIndex)
				}
			})
		},
	}
}

// descriptorSetLayoutsForBundle builds (or fetches from cache) one
// VkDescriptorSetLayout per descriptor set index bundle's bindings
// reference, returning both the raw handles (for PipelineOutput) and the
// Shareds the caller owns a reference to and must Drop on teardown.
func descriptorSetLayoutsForBundle(ctx context.Context, dev DeviceOutput, bundle *shaderbundle.ShaderDataBundle, reg *cache.Registry, queue *lifetime.DeferredQueue) ([]vk.DescriptorSetLayout, []*lifetime.Shared, error) {
	count := descriptorSetCount(bundle)
	if count == 0 {
		return nil, nil, nil
	}
	layoutCache := cache.NewDescriptorSetLayoutCache(reg, descriptorSetLayoutBudget)
	handles := make([]vk.DescriptorSetLayout, count)
	shareds := make([]*lifetime.Shared, count)
	for set := uint32(0); set < count; set++ {
		bindings, err := layoutBindings(bundle, set)
		if err != nil {
			return nil, nil, err
		}
		key := descriptorSetLayoutIdentity{Set: set, Bindings: bundle.BindingsForSet(set)}
		shared, err := layoutCache.Get(ctx, key, func(context.Context) (*lifetime.Shared, uint64, error) {
			return createDescriptorSetLayout(dev, bindings, queue)
		})
		if err != nil {
			return nil, nil, err
		}
		handles[set] = shared.Variant().Handle().(vk.DescriptorSetLayout)
		shareds[set] = shared
	}
	return handles, shareds, nil
}

func createDescriptorSetLayout(dev DeviceOutput, bindings []vk.DescriptorSetLayoutBinding, queue *lifetime.DeferredQueue) (*lifetime.Shared, uint64, error) {
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(dev.Context.Device.Logical, &info, dev.Context.Allocator, &layout); res != vk.Success {
		return nil, 0, fmt.Errorf("nodes: create descriptor set layout: result %d", res)
	}
	shared, err := makeShared(queue, resource.KindDescriptorSetLayout, "descriptor-set-layout", resource.LifetimePersistent, layout, func(uint64) {
		vk.DestroyDescriptorSetLayout(dev.Context.Device.Logical, layout, dev.Context.Allocator)
	})
	if err != nil {
		return nil, 0, err
	}
	return shared, 1, nil
}

func createPipelineLayout(dev DeviceOutput, setLayouts []vk.DescriptorSetLayout, ranges []shaderbundle.PushConstantRange, queue *lifetime.DeferredQueue) (*lifetime.Shared, uint64, error) {
	pcRanges := vkPushConstantRanges(ranges)
	info := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(pcRanges)),
		PPushConstantRanges:    pcRanges,
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(dev.Context.Device.Logical, &info, dev.Context.Allocator, &layout); res != vk.Success {
		return nil, 0, fmt.Errorf("nodes: create pipeline layout: result %d", res)
	}
	shared, err := makeShared(queue, resource.KindPipelineLayout, "pipeline-layout", resource.LifetimePersistent, layout, func(uint64) {
		vk.DestroyPipelineLayout(dev.Context.Device.Logical, layout, dev.Context.Allocator)
	})
	if err != nil {
		return nil, 0, err
	}
	return shared, 1, nil
}

func createShaderModule(dev DeviceOutput, code []byte) (vk.ShaderModule, error) {
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    bytesToUint32(code),
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(dev.Context.Device.Logical, &info, dev.Context.Allocator, &module); res != vk.Success {
		return nil, fmt.Errorf("nodes: create shader module: result %d", res)
	}
	return module, nil
}

// bytesToUint32 reinterprets SPIR-V bytecode (little-endian per the spec)
// as the uint32 words vk.ShaderModuleCreateInfo.PCode expects.
func bytesToUint32(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = uint32(b[4*i]) | uint32(b[4*i+1])<<8 | uint32(b[4*i+2])<<16 | uint32(b[4*i+3])<<24
	}
	return out
}

func createComputePipeline(dev DeviceOutput, code []byte, layout vk.PipelineLayout, queue *lifetime.DeferredQueue) (*lifetime.Shared, uint64, error) {
	module, err := createShaderModule(dev, code)
	if err != nil {
		return nil, 0, err
	}
	defer vk.DestroyShaderModule(dev.Context.Device.Logical, module, dev.Context.Allocator)

	info := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  "main\x00",
		},
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateComputePipelines(dev.Context.Device.Logical, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{info}, dev.Context.Allocator, pipelines); res != vk.Success {
		return nil, 0, fmt.Errorf("nodes: create compute pipeline: result %d", res)
	}
	pipeline := pipelines[0]
	shared, err := makeShared(queue, resource.KindPipeline, "compute-pipeline", resource.LifetimePersistent, pipeline, func(uint64) {
		vk.DestroyPipeline(dev.Context.Device.Logical, pipeline, dev.Context.Allocator)
	})
	if err != nil {
		return nil, 0, err
	}
	return shared, 1, nil
}

// createGraphicsPipeline builds a fixed-function graphics pipeline:
// dynamic viewport/scissor, no vertex input attributes (the ray-march
// full-screen triangle needs none), back-face culling, no blending.
// Grounded on NewGraphicsPipeline's per-state-struct construction
// (engine/renderer/vulkan/pipeline.go), trimmed of the configurable
// vertex-attribute and wireframe paths this module's shader set does not
// need yet.
func createGraphicsPipeline(dev DeviceOutput, vertCode, fragCode []byte, layout vk.PipelineLayout, renderPass vk.RenderPass, queue *lifetime.DeferredQueue) (*lifetime.Shared, uint64, error) {
	vertModule, err := createShaderModule(dev, vertCode)
	if err != nil {
		return nil, 0, err
	}
	defer vk.DestroyShaderModule(dev.Context.Device.Logical, vertModule, dev.Context.Allocator)
	fragModule, err := createShaderModule(dev, fragCode)
	if err != nil {
		return nil, 0, err
	}
	defer vk.DestroyShaderModule(dev.Context.Device.Logical, fragModule, dev.Context.Allocator)

	stages := []vk.PipelineShaderStageCreateInfo{
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageVertexBit, Module: vertModule, PName: "main\x00"},
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageFragmentBit, Module: fragModule, PName: "main\x00"},
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{SType: vk.StructureTypePipelineVertexInputStateCreateInfo}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1.0,
	}
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
	}
	colorBlendAttachment := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) | vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachment},
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(dev.Context.Device.Logical, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, dev.Context.Allocator, pipelines); res != vk.Success {
		return nil, 0, fmt.Errorf("nodes: create graphics pipeline: result %d", res)
	}
	pipeline := pipelines[0]
	shared, err := makeShared(queue, resource.KindPipeline, "graphics-pipeline", resource.LifetimePersistent, pipeline, func(uint64) {
		vk.DestroyPipeline(dev.Context.Device.Logical, pipeline, dev.Context.Allocator)
	})
	if err != nil {
		return nil, 0, err
	}
	return shared, 1, nil
}
