package nodes

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/gpuapi"
	"github.com/spaghettifunk/vixen/internal/graph"
	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/memory"
	"github.com/spaghettifunk/vixen/internal/resource"
	"github.com/spaghettifunk/vixen/internal/shaderbundle"
)

// SlotDescriptorSet is the output slot name the descriptor set node
// publishes under. SlotTexture is the optional combined-image-sampler
// input it reads (spec.md section 4.11: "an optional texture input").
const (
	SlotDescriptorSet = "DescriptorSet"
	SlotTexture       = "Texture"
)

// DescriptorSetOutput is the public struct the descriptor set node
// exposes: the layout and pool it built from the bundle's binding schema,
// one descriptor set and one uniform buffer per frame in flight, and the
// UpdateUniformBuffer method spec.md section 4.11 calls for.
type DescriptorSetOutput struct {
	Layout vk.DescriptorSetLayout
	Pool   vk.DescriptorPool
	Sets   []vk.DescriptorSet

	uniformBuffers []*lifetime.Shared
	mapped         [][]byte
}

// UpdateUniformBuffer copies data into the uniform buffer bound to
// frameSlot's descriptor set. The destination memory is host-coherent, so
// no explicit flush is required after the copy.
func (o DescriptorSetOutput) UpdateUniformBuffer(frameSlot int, data []byte) error {
	if frameSlot < 0 || frameSlot >= len(o.mapped) {
		return fmt.Errorf("nodes: descriptor set: frame slot %d out of range (have %d)", frameSlot, len(o.mapped))
	}
	dst := o.mapped[frameSlot]
	if len(data) > len(dst) {
		return fmt.Errorf("nodes: descriptor set: write of %d bytes overruns %d byte uniform buffer", len(data), len(dst))
	}
	copy(dst, data)
	return nil
}

// NewDescriptorSetNodeType builds a descriptor set node for set index 0 of
// the bundle bundleFn returns at Compile time (a getter, not a fixed
// value, so an asset-watch-triggered MarkDirty followed by recompile picks
// up a hot-reloaded bundle without rebuilding the node type). provider is
// the concrete allocator backing internal/memory's Allocator, needed here
// only to map the uniform buffers it allocates; framesInFlight sizes the
// per-frame descriptor set and uniform buffer arrays.
//
// Grounded on the teacher's VulkanDescriptorSetConfig/
// VulkanShaderDescriptorSetState (engine/renderer/vulkan/descriptor.go) for
// the "array of N descriptor sets, one generation per frame" shape, and on
// NewGraphicsPipeline's push-constant/descriptor-set-layout wiring
// (engine/renderer/vulkan/pipeline.go) for how a layout feeds a pipeline.
func NewDescriptorSetNodeType(bundleFn func() *shaderbundle.ShaderDataBundle, framesInFlight int, provider *gpuapi.MemoryProvider) *graph.Type {
	return &graph.Type{
		Name: "DescriptorSet",
		Inputs: []graph.SlotSpec{
			{Name: SlotDevice, Type: "nodes.DeviceOutput", Role: graph.RoleDependency, Mutability: graph.MutabilityRO},
			{Name: SlotTexture, Type: "vk.ImageView", Role: graph.RoleData, Mutability: graph.MutabilityRO, Nullable: true},
		},
		Outputs: []graph.SlotSpec{
			{Name: SlotDescriptorSet, Type: "nodes.DescriptorSetOutput", Role: graph.RoleData, Mutability: graph.MutabilityRW, Scope: graph.ScopeGraph},
		},
		Compile: func(c *graph.Context) error {
			dev, err := input[DeviceOutput](c, SlotDevice)
			if err != nil {
				return err
			}
			bundle := bundleFn()
			if bundle == nil {
				return fmt.Errorf("nodes: descriptor set: no shader bundle available")
			}

			bindings, err := layoutBindings(bundle, 0)
			if err != nil {
				return err
			}

			layoutInfo := vk.DescriptorSetLayoutCreateInfo{
				SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
				BindingCount: uint32(len(bindings)),
				PBindings:    bindings,
			}
			var layout vk.DescriptorSetLayout
			if res := vk.CreateDescriptorSetLayout(dev.Context.Device.Logical, &layoutInfo, dev.Context.Allocator, &layout); res != vk.Success {
				return fmt.Errorf("nodes: create descriptor set layout: result %d", res)
			}

			pool, err := newDescriptorPool(dev.Context, bindings, framesInFlight)
			if err != nil {
				vk.DestroyDescriptorSetLayout(dev.Context.Device.Logical, layout, dev.Context.Allocator)
				return err
			}

			layouts := make([]vk.DescriptorSetLayout, framesInFlight)
			for i := range layouts {
				layouts[i] = layout
			}
			sets := make([]vk.DescriptorSet, framesInFlight)
			allocInfo := vk.DescriptorSetAllocateInfo{
				SType:              vk.StructureTypeDescriptorSetAllocateInfo,
				DescriptorPool:     pool,
				DescriptorSetCount: uint32(framesInFlight),
				PSetLayouts:        layouts,
			}
			if res := vk.AllocateDescriptorSets(dev.Context.Device.Logical, &allocInfo, sets); res != vk.Success {
				vk.DestroyDescriptorPool(dev.Context.Device.Logical, pool, dev.Context.Allocator)
				vk.DestroyDescriptorSetLayout(dev.Context.Device.Logical, layout, dev.Context.Allocator)
				return fmt.Errorf("nodes: allocate descriptor sets: result %d", res)
			}

			uboSize := uniformBufferSize(bundle)
			buffers := make([]*lifetime.Shared, framesInFlight)
			mapped := make([][]byte, framesInFlight)
			texture, hasTexture := optionalInput[vk.ImageView](c, SlotTexture)

			for i := 0; i < framesInFlight; i++ {
				shared, err := c.Deps().Allocator.Allocate(&resource.BufferDescriptor{
					Size:       uboSize,
					Usage:      resource.Usage(vk.BufferUsageUniformBufferBit),
					Properties: resource.MemoryProperty(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit),
					Lifetime:   resource.LifetimePersistent,
				}, memory.Hint{DebugName: fmt.Sprintf("%s-ubo-%d", c.NodeName(), i), Scope: c.Scope()})
				if err != nil {
					return err
				}
				buffers[i] = shared

				buf, ok := provider.BufferHandle(shared.Variant().Handle())
				if !ok {
					return fmt.Errorf("nodes: descriptor set: uniform buffer %d has no backing vk.Buffer", i)
				}
				view, err := provider.MapHandle(shared.Variant().Handle(), uboSize)
				if err != nil {
					return err
				}
				mapped[i] = view

				writeDescriptorSet(dev.Context, sets[i], bindings, buf, uboSize, texture, hasTexture)
			}

			out := DescriptorSetOutput{Layout: layout, Pool: pool, Sets: sets, uniformBuffers: buffers, mapped: mapped}
			return publish(c, SlotDescriptorSet, resource.KindDescriptorSet, c.NodeName(), resource.LifetimePersistent, out, func(frameIndex uint64) {
				for _, shared := range buffers {
					provider.UnmapHandle(shared.Variant().Handle())
					shared.Drop(frameIndex)
				}
				vk.DestroyDescriptorPool(dev.Context.Device.Logical, pool, dev.Context.Allocator)
				vk.DestroyDescriptorSetLayout(dev.Context.Device.Logical, layout, dev.Context.Allocator)
			})
		},
	}
}

// newDescriptorPool sizes one pool entry per distinct descriptor type in
// bindings, each large enough for framesInFlight sets, with
// FREE_DESCRIPTOR_SET so individual sets (not just the whole pool) can be
// freed — spec.md section 4.11's "pool (with FREE_DESCRIPTOR_SET
// capability)".
func newDescriptorPool(ctx *gpuapi.Context, bindings []vk.DescriptorSetLayoutBinding, framesInFlight int) (vk.DescriptorPool, error) {
	counts := make(map[vk.DescriptorType]uint32, len(bindings))
	for _, b := range bindings {
		counts[b.DescriptorType] += b.DescriptorCount * uint32(framesInFlight)
	}
	sizes := make([]vk.DescriptorPoolSize, 0, len(counts))
	for t, n := range counts {
		sizes = append(sizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: n})
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       uint32(framesInFlight),
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(ctx.Device.Logical, &info, ctx.Allocator, &pool); res != vk.Success {
		return nil, fmt.Errorf("nodes: create descriptor pool: result %d", res)
	}
	return pool, nil
}

// uniformBufferSize returns the byte size of set 0's first struct-backed
// binding, the UBO the descriptor set's uniform buffer mirrors.
func uniformBufferSize(bundle *shaderbundle.ShaderDataBundle) uint64 {
	for _, b := range bundle.BindingsForSet(0) {
		if b.Type == shaderbundle.DescriptorUniformBuffer && b.StructDefIndex >= 0 && b.StructDefIndex < len(bundle.StructDefs) {
			return uint64(bundle.StructDefs[b.StructDefIndex].TotalSize)
		}
	}
	return 0
}

func writeDescriptorSet(ctx *gpuapi.Context, set vk.DescriptorSet, bindings []vk.DescriptorSetLayoutBinding, buf vk.Buffer, size uint64, texture vk.ImageView, hasTexture bool) {
	writes := make([]vk.WriteDescriptorSet, 0, len(bindings))
	for _, b := range bindings {
		switch b.DescriptorType {
		case vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer:
			bufferInfo := vk.DescriptorBufferInfo{Buffer: buf, Offset: 0, Range: vk.DeviceSize(size)}
			writes = append(writes, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      b.Binding,
				DescriptorCount: 1,
				DescriptorType:  b.DescriptorType,
				PBufferInfo:     []vk.DescriptorBufferInfo{bufferInfo},
			})
		case vk.DescriptorTypeCombinedImageSampler, vk.DescriptorTypeSampledImage, vk.DescriptorTypeStorageImage:
			if !hasTexture {
				continue
			}
			imageInfo := vk.DescriptorImageInfo{ImageView: texture, ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal}
			if b.DescriptorType == vk.DescriptorTypeStorageImage {
				imageInfo.ImageLayout = vk.ImageLayoutGeneral
			}
			writes = append(writes, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      b.Binding,
				DescriptorCount: 1,
				DescriptorType:  b.DescriptorType,
				PImageInfo:      []vk.DescriptorImageInfo{imageInfo},
			})
		}
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(ctx.Device.Logical, uint32(len(writes)), writes, 0, nil)
	}
}
