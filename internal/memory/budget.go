// Package memory implements the allocator interface, its two
// implementations (pooled and direct), and the budget manager/bridge of
// spec.md section 4.2.
package memory

import (
	"sync"

	"github.com/spaghettifunk/vixen/internal/corerr"
)

// Class names a memory pool the budget manager tracks independently
// (spec.md section 4.2: "soft/hard limits per memory class").
type Class int

const (
	ClassDeviceLocal Class = iota
	ClassHostVisible
	ClassLazilyAllocated
)

func (c Class) String() string {
	switch c {
	case ClassDeviceLocal:
		return "device-local"
	case ClassHostVisible:
		return "host-visible"
	case ClassLazilyAllocated:
		return "lazily-allocated"
	default:
		return "unknown"
	}
}

type classBudget struct {
	soft, hard, used uint64
}

// Budget tracks soft/hard limits and current usage for every memory
// class. Soft/hard limits are inclusive: equality counts as "at limit"
// (spec.md section 4.2 tie-break rule).
type Budget struct {
	mu      sync.Mutex
	classes map[Class]*classBudget
}

// NewBudget constructs a tracker with the given per-class soft/hard
// limits. Classes not present default to unlimited (soft=hard=max uint64).
func NewBudget(limits map[Class][2]uint64) *Budget {
	b := &Budget{classes: make(map[Class]*classBudget)}
	for _, c := range []Class{ClassDeviceLocal, ClassHostVisible, ClassLazilyAllocated} {
		soft, hard := ^uint64(0), ^uint64(0)
		if l, ok := limits[c]; ok {
			soft, hard = l[0], l[1]
		}
		b.classes[c] = &classBudget{soft: soft, hard: hard}
	}
	return b
}

// alignPadding rounds a requested size up to the allocator's reporting
// granularity so that reported usage is always >= actual usage, per
// spec.md section 4.2's accounting rule.
const alignPadding = 256

func align(bytes uint64) uint64 {
	return (bytes + alignPadding - 1) / alignPadding * alignPadding
}

// Reserve accounts for a request of bytes against class. It returns
// throttle=true once usage would cross the soft limit, and a
// corerr.BudgetExceeded error once it would cross the hard limit; in the
// error case no accounting change is made.
func (b *Budget) Reserve(class Class, bytes uint64) (throttle bool, err error) {
	padded := align(bytes)
	b.mu.Lock()
	defer b.mu.Unlock()
	cb := b.classes[class]
	next := cb.used + padded
	if next > cb.hard {
		return false, corerr.BudgetExceeded(class.String(), padded, cb.hard)
	}
	cb.used = next
	return next >= cb.soft, nil
}

// Release returns bytes to class's available budget. It is called once a
// deferred destruction actually completes, not when the refcount merely
// reaches zero (spec.md invariant 7: used = live + pending deferred).
func (b *Budget) Release(class Class, bytes uint64) {
	padded := align(bytes)
	b.mu.Lock()
	defer b.mu.Unlock()
	cb := b.classes[class]
	if padded > cb.used {
		cb.used = 0
		return
	}
	cb.used -= padded
}

// Used reports current accounted usage for class.
func (b *Budget) Used(class Class) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.classes[class].used
}

// Limits reports the (soft, hard) limit pair for class.
func (b *Budget) Limits(class Class) (soft, hard uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb := b.classes[class]
	return cb.soft, cb.hard
}
