package resource

// Handle is an opaque GPU or host handle. Concrete handle types live in
// internal/gpuapi; here it is treated as an opaque value the variant
// carries but never inspects.
type Handle interface{}

// Variant is the tagged-union resource value of spec.md section 3.1: one
// of the closed Kind values, paired with its typed descriptor and, once
// allocated, its opaque handle.
type Variant struct {
	kind       Kind
	descriptor Descriptor
	handle     Handle
	lifetime   Lifetime
	shape      Shape
}

// Make constructs a zero/invalid variant carrying descriptor but not yet
// backed by any GPU allocation (spec.md section 4.1: "does not allocate
// GPU memory"). Call Bind once the allocator has produced a handle.
func Make(descriptor Descriptor) (*Variant, error) {
	if descriptor == nil {
		return nil, errDescriptorNil
	}
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	k := descriptor.Kind()
	if !k.Valid() {
		return nil, errInvalidKind(k)
	}
	return &Variant{
		kind:       k,
		descriptor: descriptor,
		lifetime:   lifetimeOf(descriptor),
		shape:      ShapeOf(k),
	}, nil
}

func lifetimeOf(d Descriptor) Lifetime {
	switch v := d.(type) {
	case *ImageDescriptor:
		return v.Lifetime
	case *BufferDescriptor:
		return v.Lifetime
	case *RuntimeStructDescriptor:
		return v.Lifetime
	case *HandleDescriptor:
		return v.Lifetime
	default:
		return LifetimeTransient
	}
}

// Bind attaches the concrete handle produced by an allocator. It does not
// re-validate the descriptor; Make already did that.
func (v *Variant) Bind(h Handle) { v.handle = h }

func (v *Variant) Kind() Kind             { return v.kind }
func (v *Variant) Descriptor() Descriptor { return v.descriptor }
func (v *Variant) Handle() Handle         { return v.handle }
func (v *Variant) Lifetime() Lifetime     { return v.lifetime }
func (v *Variant) Shape() Shape           { return v.shape }

// Validate re-runs the descriptor's structural validation; used after a
// hot-reload mutates a descriptor in place.
func (v *Variant) Validate() error { return v.descriptor.Validate() }

// CloneDescriptor returns a deep copy of the variant's descriptor, used as
// a stable, independently-mutable cache key (spec.md section 4.1).
func (v *Variant) CloneDescriptor() Descriptor { return v.descriptor.Clone() }

type descriptorNilError struct{}

func (descriptorNilError) Error() string { return "resource: descriptor must not be nil" }

var errDescriptorNil = descriptorNilError{}

type invalidKindError struct{ kind Kind }

func (e invalidKindError) Error() string { return "resource: invalid kind " + e.kind.String() }

func errInvalidKind(k Kind) error { return invalidKindError{kind: k} }
