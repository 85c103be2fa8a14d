// Package shaderbundle implements the shader data bundle external
// interface of spec.md section 6: the graph consumes one bundle per
// shader — program name, bindings, struct definitions, push constant
// ranges, and a descriptor interface hash — treating it as pure input
// produced by a separate shader toolchain. Grounded on the teacher's
// VulkanShaderConfig/VulkanShaderStageConfig
// (engine/renderer/vulkan/shader.go), which plays the same "parsed shader
// metadata, no SPIR-V inspection in this package" role.
package shaderbundle

import (
	"fmt"

	"github.com/spaghettifunk/vixen/internal/resource"
)

// DescriptorType names a Vulkan descriptor type, kept as a closed string
// enum here so a manifest is self-describing without importing
// internal/gpuapi (which would pull goki/vulkan into this package).
type DescriptorType string

const (
	DescriptorUniformBuffer        DescriptorType = "UniformBuffer"
	DescriptorStorageBuffer        DescriptorType = "StorageBuffer"
	DescriptorCombinedImageSampler DescriptorType = "CombinedImageSampler"
	DescriptorStorageImage         DescriptorType = "StorageImage"
	DescriptorSampler              DescriptorType = "Sampler"
	DescriptorSampledImage         DescriptorType = "SampledImage"
)

// StageFlag names a shader stage a binding or push constant range is
// visible to; bundles combine these as a set since one binding may be
// visible to several stages.
type StageFlag string

const (
	StageVertex   StageFlag = "Vertex"
	StageFragment StageFlag = "Fragment"
	StageCompute  StageFlag = "Compute"
)

// Binding is one reflected descriptor binding (spec.md section 6:
// "{set, binding, descriptor type, stage flags, count, struct def index,
// name}").
type Binding struct {
	Set            uint32
	Binding        uint32
	Type           DescriptorType
	Stages         []StageFlag
	Count          uint32
	StructDefIndex int // -1 when the binding has no associated struct (samplers, images)
	Name           string
}

func (b Binding) validate(structDefCount int) error {
	if b.Name == "" {
		return fmt.Errorf("shaderbundle: binding at set=%d binding=%d has no name", b.Set, b.Binding)
	}
	if b.Count == 0 {
		return fmt.Errorf("shaderbundle: binding %q has zero count", b.Name)
	}
	if b.StructDefIndex >= structDefCount {
		return fmt.Errorf("shaderbundle: binding %q struct def index %d out of range (have %d)", b.Name, b.StructDefIndex, structDefCount)
	}
	return nil
}

// PushConstantRange is one push constant range a shader declares.
type PushConstantRange struct {
	Stages []StageFlag
	Offset uint32
	Size   uint32
}

// ShaderDataBundle is the parsed, validated form of one shader's metadata
// (spec.md section 6). The core treats it as opaque input data; it never
// inspects SPIR-V itself.
type ShaderDataBundle struct {
	ProgramName             string
	Bindings                []Binding
	StructDefs              []*resource.RuntimeStructDescriptor
	PushConstantRanges      []PushConstantRange
	DescriptorInterfaceHash uint64
}

// Validate checks structural invariants: every binding's struct index is
// in range, every struct def is individually valid, and the program name
// is non-empty.
func (b *ShaderDataBundle) Validate() error {
	if b.ProgramName == "" {
		return fmt.Errorf("shaderbundle: bundle has no program name")
	}
	for _, def := range b.StructDefs {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("shaderbundle: %s: %w", b.ProgramName, err)
		}
	}
	for _, binding := range b.Bindings {
		if err := binding.validate(len(b.StructDefs)); err != nil {
			return fmt.Errorf("shaderbundle: %s: %w", b.ProgramName, err)
		}
	}
	return nil
}

// BindingsForSet returns every binding declared against the given
// descriptor set index, in ascending binding-number order — the order a
// VkDescriptorSetLayoutCreateInfo expects them in.
func (b *ShaderDataBundle) BindingsForSet(set uint32) []Binding {
	var out []Binding
	for _, binding := range b.Bindings {
		if binding.Set == set {
			out = append(out, binding)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Binding < out[j-1].Binding; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
