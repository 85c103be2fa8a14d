package memory

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/vixen/internal/corelog"
	"github.com/spaghettifunk/vixen/internal/corerr"
	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// slabSize is the granularity the pooled allocator requests from the GPU
// API when none of its existing blocks has enough contiguous free space.
const slabSize = 64 << 20 // 64 MiB

type freeRange struct{ offset, size uint64 }

type block struct {
	handle resource.Handle
	class  Class
	total  uint64
	free   []freeRange
}

func newBlock(h resource.Handle, class Class, total uint64) *block {
	return &block{handle: h, class: class, total: total, free: []freeRange{{0, total}}}
}

// firstFit finds the first free range that fits bytes and carves it,
// returning the allocated offset.
func (bl *block) firstFit(bytes uint64) (uint64, bool) {
	for i, r := range bl.free {
		if r.size >= bytes {
			offset := r.offset
			if r.size == bytes {
				bl.free = append(bl.free[:i], bl.free[i+1:]...)
			} else {
				bl.free[i] = freeRange{offset: r.offset + bytes, size: r.size - bytes}
			}
			return offset, true
		}
	}
	return 0, false
}

// release returns [offset, offset+size) to the free list and coalesces
// adjacent ranges so fragmentation doesn't grow unbounded.
func (bl *block) release(offset, size uint64) {
	bl.free = append(bl.free, freeRange{offset: offset, size: size})
	coalesce(bl.free)
}

func coalesce(ranges []freeRange) {
	// Simple O(n^2) coalesce; block counts per class stay small (single
	// digits) in practice, so this never shows up in a profile.
	merged := true
	for merged {
		merged = false
		for i := 0; i < len(ranges); i++ {
			for j := i + 1; j < len(ranges); j++ {
				if ranges[i].offset+ranges[i].size == ranges[j].offset {
					ranges[i].size += ranges[j].size
					ranges = append(ranges[:j], ranges[j+1:]...)
					merged = true
					break
				}
				if ranges[j].offset+ranges[j].size == ranges[i].offset {
					ranges[j].size += ranges[i].size
					ranges = append(ranges[:i], ranges[i+1:]...)
					merged = true
					break
				}
			}
			if merged {
				break
			}
		}
	}
}

func (bl *block) largestFree() uint64 {
	var max uint64
	for _, r := range bl.free {
		if r.size > max {
			max = r.size
		}
	}
	return max
}

func (bl *block) totalFree() uint64 {
	var sum uint64
	for _, r := range bl.free {
		sum += r.size
	}
	return sum
}

// pooled performs slab/suballocation: it requests coarse-grained blocks
// from the underlying GPU API and carves sub-ranges out of them, enabling
// aliasing when two transient resources' lifetimes are provably disjoint
// (spec.md section 4.2).
type pooled struct {
	provider DeviceMemoryProvider
	budget   *Budget
	queue    *lifetime.DeferredQueue

	mu     sync.Mutex
	blocks map[Class][]*block
}

// NewPooledAllocator builds a suballocating Allocator backed by provider.
func NewPooledAllocator(provider DeviceMemoryProvider, budget *Budget, queue *lifetime.DeferredQueue) Allocator {
	return &pooled{
		provider: provider,
		budget:   budget,
		queue:    queue,
		blocks:   make(map[Class][]*block),
	}
}

func (p *pooled) Allocate(desc resource.Descriptor, hint Hint) (*lifetime.Shared, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	class := classOf(propertiesOf(desc), hint)
	bytes := descriptorBytes(desc)
	if bytes == 0 {
		bytes = 1
	}

	throttle, err := p.budget.Reserve(class, bytes)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	var chosen *block
	var offset uint64
	for _, bl := range p.blocks[class] {
		if off, ok := bl.firstFit(bytes); ok {
			chosen, offset = bl, off
			break
		}
	}
	if chosen == nil {
		want := slabSize
		if bytes > uint64(want) {
			want = int(bytes)
		}
		h, actual, perr := p.provider.AllocateMemory(desc, propertiesOf(desc))
		if perr != nil {
			p.mu.Unlock()
			p.budget.Release(class, bytes)
			return nil, corerr.GpuError(0, "pooled.Allocate", perr)
		}
		if actual < uint64(want) {
			actual = uint64(want)
		}
		chosen = newBlock(h, class, actual)
		p.blocks[class] = append(p.blocks[class], chosen)
		off, ok := chosen.firstFit(bytes)
		if !ok {
			p.mu.Unlock()
			p.budget.Release(class, bytes)
			return nil, corerr.OutOfMemory(class.String())
		}
		offset = off
	}
	p.mu.Unlock()

	if throttle {
		logThrottle(class, bytes, hint)
	}

	variant, err := resource.Make(desc)
	if err != nil {
		p.releaseRange(class, chosen, offset, bytes)
		return nil, err
	}
	variant.Bind(subrange{block: chosen, offset: offset})

	name := hint.DebugName
	if name == "" {
		name = fmt.Sprintf("%s@%d+%d", desc.Kind(), offset, bytes)
	}
	shared := lifetime.NewShared(name, variant, p.queue, func(uint64) {
		p.releaseRange(class, chosen, offset, bytes)
	})
	if hint.Scope != nil {
		hint.Scope.Acquire(shared)
	}
	return shared, nil
}

// subrange is the handle bound to a pooled allocation: the block it lives
// in plus its byte offset.
type subrange struct {
	block  *block
	offset uint64
}

func (p *pooled) releaseRange(class Class, bl *block, offset, bytes uint64) {
	p.mu.Lock()
	bl.release(offset, bytes)
	p.mu.Unlock()
	p.budget.Release(class, bytes)
}

func (p *pooled) Free(shared *lifetime.Shared, frameIndex uint64) {
	shared.Drop(frameIndex)
}

// Alias reuses newDescriptor against existing's backing memory. It trusts
// the caller (the graph compiler's allocation phase) to have already
// proven the two resources' lifetime intervals are disjoint; this
// function only checks the mechanical constraint that the new descriptor
// fits inside the existing allocation.
func (p *pooled) Alias(existing *lifetime.Shared, newDescriptor resource.Descriptor) (*lifetime.Shared, error) {
	sr, ok := existing.Variant().Handle().(subrange)
	if !ok {
		return nil, corerr.AliasConflict(existing.Name(), newDescriptor.Kind().String())
	}
	if err := newDescriptor.Validate(); err != nil {
		return nil, err
	}
	needed := descriptorBytes(newDescriptor)
	if needed > descriptorBytes(existing.Variant().Descriptor()) {
		return nil, corerr.AliasConflict(existing.Name(), newDescriptor.Kind().String())
	}

	variant, err := resource.Make(newDescriptor)
	if err != nil {
		return nil, err
	}
	variant.Bind(sr)

	backing := existing.Clone()
	name := fmt.Sprintf("alias(%s)->%s", existing.Name(), newDescriptor.Kind())
	return lifetime.NewShared(name, variant, p.queue, func(frame uint64) {
		backing.Drop(frame)
	}), nil
}

func logThrottle(class Class, bytes uint64, hint Hint) {
	// Direct allocations log this warning inline in direct.Allocate;
	// pooled allocations log here, after the block-search critical section
	// in pooled.Allocate has been left.
	corelog.Warn("allocation of %d bytes for %q crossed the soft limit for class %s", bytes, hint.DebugName, class)
}
