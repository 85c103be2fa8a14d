package memory

import (
	"testing"

	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/resource"
)

type fakeProvider struct {
	nextHandle int
	allocated  int
	freed      int
}

func (p *fakeProvider) AllocateMemory(desc resource.Descriptor, properties resource.MemoryProperty) (resource.Handle, uint64, error) {
	p.nextHandle++
	p.allocated++
	return p.nextHandle, slabSize, nil
}

func (p *fakeProvider) FreeMemory(h resource.Handle) {
	p.freed++
}

func TestPooledAllocateCarvesSingleBlock(t *testing.T) {
	provider := &fakeProvider{}
	budget := NewBudget(nil)
	queue := lifetime.NewDeferredQueue(1)
	a := NewPooledAllocator(provider, budget, queue)

	s1, err := a.Allocate(&resource.BufferDescriptor{Size: 1024}, Hint{DebugName: "buf1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, err := a.Allocate(&resource.BufferDescriptor{Size: 2048}, Hint{DebugName: "buf2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.allocated != 1 {
		t.Fatalf("allocated = %d, want 1 block reused for both requests", provider.allocated)
	}
	_ = s1
	_ = s2
}

func TestPooledFreeReturnsRangeForReuse(t *testing.T) {
	provider := &fakeProvider{}
	budget := NewBudget(nil)
	queue := lifetime.NewDeferredQueue(1)
	a := NewPooledAllocator(provider, budget, queue)

	s1, err := a.Allocate(&resource.BufferDescriptor{Size: 4096}, Hint{DebugName: "buf1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := budget.Used(ClassDeviceLocal)

	a.Free(s1, 0)
	queue.Drain(1) // framesInFlight=1: F+1=1 <= 1, eligible

	after := budget.Used(ClassDeviceLocal)
	if after >= before {
		t.Fatalf("Used() = %d after free, want less than %d before", after, before)
	}
}

func TestAliasRejectsDescriptorLargerThanBackingBlock(t *testing.T) {
	provider := &fakeProvider{}
	budget := NewBudget(nil)
	queue := lifetime.NewDeferredQueue(1)
	a := NewPooledAllocator(provider, budget, queue)

	backing, err := a.Allocate(&resource.BufferDescriptor{Size: 1024}, Hint{DebugName: "backing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = a.Alias(backing, &resource.BufferDescriptor{Size: slabSize + 1})
	if err == nil {
		t.Fatalf("expected AliasConflictError when the new descriptor exceeds the backing block")
	}
}

func TestAliasSharesBackingHandle(t *testing.T) {
	provider := &fakeProvider{}
	budget := NewBudget(nil)
	queue := lifetime.NewDeferredQueue(1)
	a := NewPooledAllocator(provider, budget, queue)

	backing, err := a.Allocate(&resource.BufferDescriptor{Size: 4096}, Hint{DebugName: "backing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	aliased, err := a.Alias(backing, &resource.BufferDescriptor{Size: 2048})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aliased.Variant().Handle() != backing.Variant().Handle() {
		t.Fatalf("aliased resource should share backing's subrange handle")
	}
}

func TestDirectAllocatorNeverAliases(t *testing.T) {
	provider := &fakeProvider{}
	budget := NewBudget(nil)
	queue := lifetime.NewDeferredQueue(1)
	a := NewDirectAllocator(provider, budget, queue)

	s, err := a.Allocate(&resource.BufferDescriptor{Size: 1024}, Hint{DebugName: "s"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := a.Alias(s, &resource.BufferDescriptor{Size: 512}); err == nil {
		t.Fatalf("expected direct allocator to always reject Alias")
	}
}
