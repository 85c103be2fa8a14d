package resource

import (
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
)

// Format is an opaque, engine-level stand-in for a GPU pixel/vertex
// format. The concrete Vulkan mapping lives in internal/gpuapi; this
// core package only needs format identity and a zero/undefined sentinel.
type Format uint32

const FormatUndefined Format = 0

// Usage is a bitmask of how a resource will be used (sampled, storage,
// transfer, color attachment, etc.); concrete bit meanings are assigned by
// internal/gpuapi.
type Usage uint32

// MemoryProperty is a bitmask over memory type properties (device-local,
// host-visible, host-coherent, lazily-allocated); concrete bit meanings
// are assigned by internal/gpuapi.
type MemoryProperty uint32

// Descriptor is implemented by every concrete resource descriptor. It must
// validate its own structural invariants and support a deep clone so it
// can be used as a stable cache key (spec.md section 4.1).
type Descriptor interface {
	Kind() Kind
	Validate() error
	Clone() Descriptor
	// ContentHash returns a deterministic hash of the descriptor's
	// content, used by content-addressed caches (spec.md section 4.4).
	ContentHash() (uint64, error)
}

func hashOf(v interface{}) (uint64, error) {
	h, err := hashstructure.Hash(v, hashstructure.FormatV2, &hashstructure.HashOptions{
		// SlicesAsSets is left false: ordering is meaningful for most of
		// our descriptors (attachment order, binding order); callers that
		// need order-independence sort their slice before hashing, which
		// is the "collections sorted before hashing" rule of spec.md 4.4.
	})
	if err != nil {
		return 0, fmt.Errorf("resource: hash descriptor: %w", err)
	}
	return h, nil
}

// ImageDescriptor describes a 1D/2D/3D image resource.
type ImageDescriptor struct {
	Width, Height, Depth uint32
	MipLevels            uint32
	ArrayLayers          uint32
	Format               Format
	Usage                Usage
	Properties           MemoryProperty
	Lifetime             Lifetime
}

func (d *ImageDescriptor) Kind() Kind { return KindImage }

func (d *ImageDescriptor) Validate() error {
	if d.Width == 0 || d.Height == 0 {
		return fmt.Errorf("resource: image descriptor requires width>0 and height>0, got %dx%d", d.Width, d.Height)
	}
	if d.Format == FormatUndefined {
		return fmt.Errorf("resource: image descriptor requires a concrete format")
	}
	if d.MipLevels == 0 {
		d.MipLevels = 1
	}
	if d.ArrayLayers == 0 {
		d.ArrayLayers = 1
	}
	if d.Depth == 0 {
		d.Depth = 1
	}
	return nil
}

func (d *ImageDescriptor) Clone() Descriptor {
	cp := *d
	return &cp
}

func (d *ImageDescriptor) ContentHash() (uint64, error) { return hashOf(*d) }

// BufferDescriptor describes a linear buffer resource.
type BufferDescriptor struct {
	Size       uint64
	Usage      Usage
	Properties MemoryProperty
	Lifetime   Lifetime
}

func (d *BufferDescriptor) Kind() Kind { return KindBuffer }

func (d *BufferDescriptor) Validate() error {
	if d.Size == 0 {
		return fmt.Errorf("resource: buffer descriptor requires size>0")
	}
	return nil
}

func (d *BufferDescriptor) Clone() Descriptor {
	cp := *d
	return &cp
}

func (d *BufferDescriptor) ContentHash() (uint64, error) { return hashOf(*d) }

// BaseType enumerates the scalar/vector base types a runtime struct field
// can have, as produced by SPIR-V reflection (treated as pure input data;
// spec.md section 6).
type BaseType int

const (
	BaseTypeFloat32 BaseType = iota
	BaseTypeInt32
	BaseTypeUint32
	BaseTypeFloat64
	BaseTypeBool32
)

// StructField is one reflected member of a runtime struct (UBO/SSBO).
type StructField struct {
	Name            string
	Offset          uint32
	Size            uint32
	BaseType        BaseType
	ComponentCount  uint8
	ArrayStride     uint32 // 0 when the field is not an array
}

// RuntimeStructDescriptor describes a shader-reflected uniform/storage
// buffer layout. LayoutHash is computed from the field table and is used
// by variadic slot discovery to recognize when two nodes expose
// structurally identical buffers (spec.md section 3.1).
type RuntimeStructDescriptor struct {
	Name       string
	Fields     []StructField
	TotalSize  uint32
	Lifetime   Lifetime
}

func (d *RuntimeStructDescriptor) Kind() Kind { return KindRuntimeStructBuffer }

func (d *RuntimeStructDescriptor) Validate() error {
	if d.TotalSize == 0 {
		return fmt.Errorf("resource: runtime struct descriptor %q requires TotalSize>0", d.Name)
	}
	for _, f := range d.Fields {
		if f.Size == 0 {
			return fmt.Errorf("resource: runtime struct descriptor %q field %q has zero size", d.Name, f.Name)
		}
		if f.Offset+f.Size > d.TotalSize {
			return fmt.Errorf("resource: runtime struct descriptor %q field %q overruns TotalSize", d.Name, f.Name)
		}
	}
	return nil
}

func (d *RuntimeStructDescriptor) Clone() Descriptor {
	cp := *d
	cp.Fields = append([]StructField(nil), d.Fields...)
	return &cp
}

func (d *RuntimeStructDescriptor) ContentHash() (uint64, error) { return hashOf(*d) }

// LayoutHash returns the 64-bit hash of the field table alone (name,
// offset, size, base type, component count), used for schema discovery at
// compile time independent of the descriptor's lifetime or display name.
func (d *RuntimeStructDescriptor) LayoutHash() (uint64, error) {
	return hashOf(d.Fields)
}

// PassThroughDescriptor describes the borrow-only pass-through variant
// (spec.md Open Question 3): it never owns the underlying resource, it
// only republishes a reference to it under a new slot identity.
type PassThroughDescriptor struct {
	TargetKind Kind
}

func (d *PassThroughDescriptor) Kind() Kind { return KindPassThrough }

func (d *PassThroughDescriptor) Validate() error {
	if !d.TargetKind.Valid() {
		return fmt.Errorf("resource: pass-through descriptor has invalid target kind %v", d.TargetKind)
	}
	return nil
}

func (d *PassThroughDescriptor) Clone() Descriptor {
	cp := *d
	return &cp
}

func (d *PassThroughDescriptor) ContentHash() (uint64, error) { return hashOf(*d) }
