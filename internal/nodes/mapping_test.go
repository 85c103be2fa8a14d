package nodes

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/resource"
	"github.com/spaghettifunk/vixen/internal/shaderbundle"
)

func testBundle() *shaderbundle.ShaderDataBundle {
	return &shaderbundle.ShaderDataBundle{
		ProgramName: "raymarch.compute",
		StructDefs: []*resource.RuntimeStructDescriptor{
			{Name: "Camera", TotalSize: 16, Fields: []resource.StructField{
				{Name: "origin", Size: 12, BaseType: resource.BaseTypeFloat32, ComponentCount: 3},
			}},
		},
		Bindings: []shaderbundle.Binding{
			{Set: 0, Binding: 1, Type: shaderbundle.DescriptorStorageImage, Stages: []shaderbundle.StageFlag{shaderbundle.StageCompute}, Count: 1, StructDefIndex: -1, Name: "outputImage"},
			{Set: 0, Binding: 0, Type: shaderbundle.DescriptorUniformBuffer, Stages: []shaderbundle.StageFlag{shaderbundle.StageCompute}, Count: 1, StructDefIndex: 0, Name: "camera"},
		},
		PushConstantRanges: []shaderbundle.PushConstantRange{
			{Stages: []shaderbundle.StageFlag{shaderbundle.StageCompute}, Offset: 0, Size: 8},
		},
	}
}

func TestVkDescriptorTypeRejectsUnknown(t *testing.T) {
	if _, err := vkDescriptorType("not-a-type"); err == nil {
		t.Fatalf("expected an error for an unknown descriptor type")
	}
}

func TestVkShaderStageFlagsCombinesStages(t *testing.T) {
	flags := vkShaderStageFlags([]shaderbundle.StageFlag{shaderbundle.StageVertex, shaderbundle.StageFragment})
	want := vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	if flags != want {
		t.Errorf("vkShaderStageFlags = %#x, want %#x", flags, want)
	}
}

func TestLayoutBindingsSortedAndMapped(t *testing.T) {
	bindings, err := layoutBindings(testBundle(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(bindings))
	}
	if bindings[0].Binding != 0 || bindings[1].Binding != 1 {
		t.Fatalf("bindings not in ascending order: %+v", bindings)
	}
	if bindings[0].DescriptorType != vk.DescriptorTypeUniformBuffer {
		t.Errorf("binding 0 type = %v, want UniformBuffer", bindings[0].DescriptorType)
	}
	if bindings[1].DescriptorType != vk.DescriptorTypeStorageImage {
		t.Errorf("binding 1 type = %v, want StorageImage", bindings[1].DescriptorType)
	}
}

func TestVkPushConstantRangesPreservesOffsetAndSize(t *testing.T) {
	ranges := vkPushConstantRanges(testBundle().PushConstantRanges)
	if len(ranges) != 1 || ranges[0].Size != 8 {
		t.Fatalf("unexpected ranges: %+v", ranges)
	}
}

func TestDescriptorSetCountFindsHighestSet(t *testing.T) {
	bundle := testBundle()
	if got := descriptorSetCount(bundle); got != 1 {
		t.Errorf("descriptorSetCount = %d, want 1", got)
	}
	bundle.Bindings = append(bundle.Bindings, shaderbundle.Binding{Set: 2, Binding: 0, Type: shaderbundle.DescriptorSampler, Stages: []shaderbundle.StageFlag{shaderbundle.StageFragment}, Count: 1, StructDefIndex: -1, Name: "samp"})
	if got := descriptorSetCount(bundle); got != 3 {
		t.Errorf("descriptorSetCount = %d, want 3", got)
	}
}

func TestDescriptorSetCountEmptyBundle(t *testing.T) {
	if got := descriptorSetCount(&shaderbundle.ShaderDataBundle{}); got != 0 {
		t.Errorf("descriptorSetCount = %d, want 0", got)
	}
}
