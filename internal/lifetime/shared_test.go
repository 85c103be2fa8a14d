package lifetime

import (
	"testing"

	"github.com/spaghettifunk/vixen/internal/resource"
)

func newTestShared(t *testing.T, q *DeferredQueue, destroyed *bool) *Shared {
	t.Helper()
	v, err := resource.Make(&resource.BufferDescriptor{Size: 256})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewShared("test-buffer", v, q, func(uint64) { *destroyed = true })
}

func TestDropAtZeroEnqueuesDeferredDestruction(t *testing.T) {
	q := NewDeferredQueue(2)
	destroyed := false
	s := newTestShared(t, q, &destroyed)

	s.Drop(10)
	if destroyed {
		t.Fatalf("destroyer ran synchronously; want deferred")
	}
	if q.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", q.Pending())
	}

	q.Drain(11) // 10+2=12 > 11, not yet eligible
	if destroyed {
		t.Fatalf("destroyer ran before F+N, F=10 N=2")
	}

	q.Drain(12) // 10+2=12 <= 12, eligible
	if !destroyed {
		t.Fatalf("destroyer did not run at F+N")
	}
	if q.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0 after drain", q.Pending())
	}
}

func TestCloneKeepsResourceAliveAcrossOneDrop(t *testing.T) {
	q := NewDeferredQueue(2)
	destroyed := false
	s := newTestShared(t, q, &destroyed)

	s.Clone()
	s.Drop(0) // refcount 2 -> 1
	if q.Pending() != 0 {
		t.Fatalf("expected no pending destruction while a reference remains")
	}
	s.Drop(0) // refcount 1 -> 0
	if q.Pending() != 1 {
		t.Fatalf("expected a pending destruction once the last reference drops")
	}
}

func TestScopeReleasesAllHeldOnEnd(t *testing.T) {
	q := NewDeferredQueue(1)
	destroyedA, destroyedB := false, false
	a := newTestShared(t, q, &destroyedA)
	b := newTestShared(t, q, &destroyedB)

	sc := NewScope(ScopeCompile, 5)
	sc.Acquire(a)
	sc.Acquire(b)
	if sc.HeldCount() != 2 {
		t.Fatalf("HeldCount() = %d, want 2", sc.HeldCount())
	}
	sc.End()
	if sc.HeldCount() != 0 {
		t.Fatalf("HeldCount() = %d after End, want 0", sc.HeldCount())
	}
	if q.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2 after scope end dropped both", q.Pending())
	}
}

func TestScopeEndIsIdempotent(t *testing.T) {
	sc := NewScope(ScopeFrame, 0)
	sc.End()
	sc.End() // must not panic or double-release
	if !sc.Ended() {
		t.Fatalf("expected scope to be ended")
	}
}

func TestScopeRunReleasesOnPanic(t *testing.T) {
	q := NewDeferredQueue(1)
	destroyed := false
	s := newTestShared(t, q, &destroyed)

	sc := NewScope(ScopeCompile, 0)
	func() {
		defer func() { recover() }()
		sc.Run(func(sc *Scope) error {
			sc.Acquire(s)
			panic("compile blew up")
		})
	}()

	if !sc.Ended() {
		t.Fatalf("expected scope to be ended after panic unwound")
	}
	if q.Pending() != 1 {
		t.Fatalf("expected the acquired resource to have been dropped despite the panic")
	}
}
