// Package lifetime implements the intrusive refcounted shared-resource
// holder, its deferred-destruction queue, and the stack-structured
// lifetime scopes of spec.md section 4.3.
package lifetime

import (
	"sync/atomic"

	"github.com/spaghettifunk/vixen/internal/corelog"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// Destroyer is invoked exactly once, when a Shared's refcount reaches
// zero and its deferred-destruction delay has elapsed. It receives the
// frame index the drop was scheduled at, so an aliasing Shared's
// destroyer can forward the drop to its backing Shared at the same frame.
type Destroyer func(scheduledFrame uint64)

// Shared is an intrusively refcounted holder around a resource.Variant.
// Clone increments the count; Drop decrements it and, at zero, enqueues
// the destroyer onto a DeferredQueue tagged with the frame the drop
// happened on, rather than calling it synchronously (spec.md section 3.2
// invariant 6: deferred by exactly N frames).
type Shared struct {
	name    string
	variant *resource.Variant
	destroy Destroyer
	count   int32 // atomic
	queue   *DeferredQueue
}

// NewShared wraps variant in a refcounted holder with refcount 1. destroy
// is called at most once, after the holder's refcount reaches zero and the
// owning queue has drained the frame it was dropped on.
func NewShared(name string, variant *resource.Variant, queue *DeferredQueue, destroy Destroyer) *Shared {
	return &Shared{
		name:    name,
		variant: variant,
		destroy: destroy,
		count:   1,
		queue:   queue,
	}
}

// Name identifies the resource for logging and cache diagnostics.
func (s *Shared) Name() string { return s.name }

// Variant exposes the underlying tagged resource value. Callers must not
// retain it past the Shared's last Drop.
func (s *Shared) Variant() *resource.Variant { return s.variant }

// RefCount reports the current live reference count (for tests/metrics).
func (s *Shared) RefCount() int32 { return atomic.LoadInt32(&s.count) }

// Clone increments the refcount and returns the same Shared, modeling an
// additional owner taking a reference (spec.md section 4.3).
func (s *Shared) Clone() *Shared {
	n := atomic.AddInt32(&s.count, 1)
	corelog.Debug("shared %q cloned, refcount now %d", s.name, n)
	return s
}

// Drop decrements the refcount. At zero, the destroyer is enqueued onto
// the deferred-destruction queue tagged with frameIndex rather than run
// immediately (spec.md invariant 6: freed no earlier than frame F+N, no
// later than F+N+1).
func (s *Shared) Drop(frameIndex uint64) {
	n := atomic.AddInt32(&s.count, -1)
	if n < 0 {
		corelog.Warn("shared %q dropped below zero refcount", s.name)
		return
	}
	if n == 0 {
		if s.queue != nil {
			s.queue.Enqueue(frameIndex, s.destroy)
		} else if s.destroy != nil {
			s.destroy(frameIndex)
		}
	}
}

// Weak is a non-owning observer of a Shared. It never increments or
// decrements the refcount; Resolve returns nil once the holder's refcount
// has reached zero (its destruction is then pending or done).
type Weak struct {
	target *Shared
}

// Weak returns a borrowing view of s that does not affect its lifetime.
func (s *Shared) Weak() Weak { return Weak{target: s} }

// Resolve returns the underlying Shared. Callers must not call Clone/Drop
// on the result without already holding a strong reference elsewhere;
// Weak exists for read-only observation (spec.md section 5: "Read-only
// observers may coexist").
func (w Weak) Resolve() *Shared {
	if w.target == nil || atomic.LoadInt32(&w.target.count) <= 0 {
		return nil
	}
	return w.target
}
