// Package resource implements the closed tagged-union of GPU/host resource
// handles and their descriptors (spec.md section 4.1). The variant is
// closed deliberately: adding a resource kind means extending Kind, its
// validator, and the allocator dispatch table, never inferring a new kind
// at runtime.
package resource

// Kind enumerates every resource variant the core knows how to create,
// validate, and cache (spec.md section 3.1).
type Kind int

const (
	KindImage Kind = iota
	KindBuffer
	KindImageView
	KindSampler
	KindCommandPool
	KindPipeline
	KindPipelineLayout
	KindDescriptorSet
	KindDescriptorSetLayout
	KindRenderPass
	KindFramebuffer
	KindAccelerationStructure
	KindShaderModule
	KindShaderDataBundle
	KindSurface
	KindSwapchain
	KindDevice
	KindStorageImage
	KindTexture3D
	KindRuntimeStructBuffer
	KindPassThrough
	kindSentinel
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "Image"
	case KindBuffer:
		return "Buffer"
	case KindImageView:
		return "ImageView"
	case KindSampler:
		return "Sampler"
	case KindCommandPool:
		return "CommandPool"
	case KindPipeline:
		return "Pipeline"
	case KindPipelineLayout:
		return "PipelineLayout"
	case KindDescriptorSet:
		return "DescriptorSet"
	case KindDescriptorSetLayout:
		return "DescriptorSetLayout"
	case KindRenderPass:
		return "RenderPass"
	case KindFramebuffer:
		return "Framebuffer"
	case KindAccelerationStructure:
		return "AccelerationStructure"
	case KindShaderModule:
		return "ShaderModule"
	case KindShaderDataBundle:
		return "ShaderDataBundle"
	case KindSurface:
		return "Surface"
	case KindSwapchain:
		return "Swapchain"
	case KindDevice:
		return "Device"
	case KindStorageImage:
		return "StorageImage"
	case KindTexture3D:
		return "Texture3D"
	case KindRuntimeStructBuffer:
		return "RuntimeStructBuffer"
	case KindPassThrough:
		return "PassThrough"
	default:
		return "Unknown"
	}
}

// Valid reports whether k is one of the closed set of known kinds.
func (k Kind) Valid() bool { return k >= 0 && k < kindSentinel }

// Shape groups kinds by their underlying GPU memory layout, used by the
// allocator and the aliasing pass to decide whether two resources can ever
// share the same backing store.
type Shape int

const (
	ShapeBuffer Shape = iota
	ShapeImage
	ShapeHandle
)

// ShapeOf returns the memory shape for k.
func ShapeOf(k Kind) Shape {
	switch k {
	case KindBuffer, KindRuntimeStructBuffer:
		return ShapeBuffer
	case KindImage, KindStorageImage, KindTexture3D, KindImageView:
		return ShapeImage
	default:
		return ShapeHandle
	}
}

// Lifetime classifies how long a resource instance is expected to live,
// independent of its refcount (spec.md section 3.1).
type Lifetime int

const (
	LifetimePersistent Lifetime = iota
	LifetimeTransient
	LifetimeFrame
	LifetimeScope
)

func (l Lifetime) String() string {
	switch l {
	case LifetimePersistent:
		return "Persistent"
	case LifetimeTransient:
		return "Transient"
	case LifetimeFrame:
		return "Frame"
	case LifetimeScope:
		return "Scope"
	default:
		return "Unknown"
	}
}
