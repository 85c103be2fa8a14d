package memory

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/vixen/internal/corelog"
	"github.com/spaghettifunk/vixen/internal/corerr"
	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// DeviceMemoryProvider is the minimal slice of the opaque GPU API
// (spec.md section 6) an allocator needs: the ability to actually back a
// descriptor with device memory and later free it. The concrete Vulkan
// implementation lives in internal/gpuapi; this package only depends on
// this interface, keeping the Vulkan API out of scope as spec.md requires.
type DeviceMemoryProvider interface {
	AllocateMemory(desc resource.Descriptor, properties resource.MemoryProperty) (resource.Handle, uint64, error)
	FreeMemory(h resource.Handle)
}

// Hint carries allocation preferences that do not affect correctness but
// may affect placement: a debug name and the scope the allocation should
// be attached to.
type Hint struct {
	DebugName string
	Scope     *lifetime.Scope
	Class     Class
}

// Allocator is the common interface both the pooled and direct
// implementations satisfy (spec.md section 4.2).
type Allocator interface {
	Allocate(desc resource.Descriptor, hint Hint) (*lifetime.Shared, error)
	Free(shared *lifetime.Shared, frameIndex uint64)
	Alias(existing *lifetime.Shared, newDescriptor resource.Descriptor) (*lifetime.Shared, error)
}

func classOf(properties resource.MemoryProperty, hint Hint) Class {
	if hint.Class != 0 || properties == 0 {
		return hint.Class
	}
	return ClassDeviceLocal
}

func descriptorBytes(desc resource.Descriptor) uint64 {
	switch d := desc.(type) {
	case *resource.BufferDescriptor:
		return d.Size
	case *resource.ImageDescriptor:
		bpp := uint64(4) // conservative estimate absent format introspection
		return uint64(d.Width) * uint64(d.Height) * uint64(d.Depth) * bpp * uint64(d.MipLevels) * uint64(d.ArrayLayers)
	case *resource.RuntimeStructDescriptor:
		return uint64(d.TotalSize)
	default:
		return 0
	}
}

func propertiesOf(desc resource.Descriptor) resource.MemoryProperty {
	switch d := desc.(type) {
	case *resource.BufferDescriptor:
		return d.Properties
	case *resource.ImageDescriptor:
		return d.Properties
	default:
		return 0
	}
}

// direct always satisfies an allocation via the underlying GPU API,
// without pooling or suballocation (spec.md section 4.2: "a direct
// allocator that always satisfies via the underlying GPU API").
type direct struct {
	provider DeviceMemoryProvider
	budget   *Budget
	queue    *lifetime.DeferredQueue
	mu       sync.Mutex
}

// NewDirectAllocator builds an Allocator that always calls through to
// provider and tracks bytes against budget.
func NewDirectAllocator(provider DeviceMemoryProvider, budget *Budget, queue *lifetime.DeferredQueue) Allocator {
	return &direct{provider: provider, budget: budget, queue: queue}
}

func (d *direct) Allocate(desc resource.Descriptor, hint Hint) (*lifetime.Shared, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	class := classOf(propertiesOf(desc), hint)
	bytes := descriptorBytes(desc)

	throttle, err := d.budget.Reserve(class, bytes)
	if err != nil {
		return nil, err
	}
	if throttle {
		corelog.Warn("allocation of %d bytes for %q crossed the soft limit for class %s", bytes, hint.DebugName, class)
	}

	variant, err := resource.Make(desc)
	if err != nil {
		d.budget.Release(class, bytes)
		return nil, err
	}
	h, actualBytes, err := d.provider.AllocateMemory(desc, propertiesOf(desc))
	if err != nil {
		d.budget.Release(class, bytes)
		return nil, corerr.GpuError(0, "direct.Allocate", err)
	}
	variant.Bind(h)

	name := hint.DebugName
	if name == "" {
		name = fmt.Sprintf("%s-%p", desc.Kind(), variant)
	}
	shared := lifetime.NewShared(name, variant, d.queue, func(uint64) {
		d.provider.FreeMemory(h)
		d.budget.Release(class, actualBytes)
	})
	if hint.Scope != nil {
		hint.Scope.Acquire(shared)
	}
	return shared, nil
}

func (d *direct) Free(shared *lifetime.Shared, frameIndex uint64) {
	shared.Drop(frameIndex)
}

func (d *direct) Alias(existing *lifetime.Shared, newDescriptor resource.Descriptor) (*lifetime.Shared, error) {
	// The direct allocator never aliases: every allocation goes straight
	// to the GPU API, so there is no suballocation to reuse.
	return nil, corerr.AliasConflict(existing.Name(), newDescriptor.Kind().String())
}
