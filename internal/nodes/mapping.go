package nodes

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/shaderbundle"
)

// vkDescriptorType maps a shaderbundle.DescriptorType to the Vulkan
// descriptor type it names. Grounded on the teacher's descriptor.go
// binding layout table (engine/renderer/vulkan/descriptor.go), generalized
// from its sampler/UBO-only set to every descriptor type spec.md section 6
// lists.
func vkDescriptorType(t shaderbundle.DescriptorType) (vk.DescriptorType, error) {
	switch t {
	case shaderbundle.DescriptorUniformBuffer:
		return vk.DescriptorTypeUniformBuffer, nil
	case shaderbundle.DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer, nil
	case shaderbundle.DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler, nil
	case shaderbundle.DescriptorStorageImage:
		return vk.DescriptorTypeStorageImage, nil
	case shaderbundle.DescriptorSampler:
		return vk.DescriptorTypeSampler, nil
	case shaderbundle.DescriptorSampledImage:
		return vk.DescriptorTypeSampledImage, nil
	default:
		return 0, fmt.Errorf("nodes: unknown descriptor type %q", t)
	}
}

// vkShaderStageFlags ORs together the Vulkan stage bit for every stage a
// binding or push constant range declares visibility to.
func vkShaderStageFlags(stages []shaderbundle.StageFlag) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	for _, s := range stages {
		switch s {
		case shaderbundle.StageVertex:
			flags |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
		case shaderbundle.StageFragment:
			flags |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
		case shaderbundle.StageCompute:
			flags |= vk.ShaderStageFlags(vk.ShaderStageComputeBit)
		}
	}
	return flags
}

// layoutBindings builds the VkDescriptorSetLayoutBinding array for one
// descriptor set of bundle, in the ascending-binding-number order
// VkDescriptorSetLayoutCreateInfo expects (shaderbundle.BindingsForSet
// already sorts them).
func layoutBindings(bundle *shaderbundle.ShaderDataBundle, set uint32) ([]vk.DescriptorSetLayoutBinding, error) {
	bindings := bundle.BindingsForSet(set)
	out := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		dt, err := vkDescriptorType(b.Type)
		if err != nil {
			return nil, fmt.Errorf("nodes: binding %q: %w", b.Name, err)
		}
		out[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  dt,
			DescriptorCount: b.Count,
			StageFlags:      vkShaderStageFlags(b.Stages),
		}
	}
	return out, nil
}

// vkPushConstantRanges converts every push constant range bundle declares.
// The teacher's NewGraphicsPipeline (engine/renderer/vulkan/pipeline.go)
// hardcodes vertex|fragment visibility for every range; here each range
// carries its own stage set, read straight from the bundle instead.
func vkPushConstantRanges(ranges []shaderbundle.PushConstantRange) []vk.PushConstantRange {
	out := make([]vk.PushConstantRange, len(ranges))
	for i, r := range ranges {
		out[i] = vk.PushConstantRange{
			StageFlags: vkShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	return out
}

// descriptorSetCount returns one past the highest set index bundle's
// bindings reference, i.e. how many descriptor set layouts a pipeline
// built from bundle needs.
func descriptorSetCount(bundle *shaderbundle.ShaderDataBundle) uint32 {
	var max uint32
	seen := false
	for _, b := range bundle.Bindings {
		if !seen || b.Set > max {
			max = b.Set
			seen = true
		}
	}
	if !seen {
		return 0
	}
	return max + 1
}
