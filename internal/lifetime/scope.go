package lifetime

import (
	"sync"

	"github.com/spaghettifunk/vixen/internal/corelog"
)

// ScopeKind distinguishes the three stack-structured lifetime scopes of
// spec.md section 4.3.
type ScopeKind int

const (
	// ScopeFrame is bound to a specific frame-in-flight; everything
	// acquired through it is released at FrameEnd.
	ScopeFrame ScopeKind = iota
	// ScopeCompile is bound to one graph compilation. Graph.Compile and
	// Graph.Recompile end it only when the compile fails, so no
	// half-compiled state leaks; after a successful compile the scope is
	// not ended and the references it recorded stay with the nodes that
	// acquired them.
	ScopeCompile
	// ScopePersistent lives until graph teardown.
	ScopePersistent
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeFrame:
		return "Frame"
	case ScopeCompile:
		return "Compile"
	case ScopePersistent:
		return "Persistent"
	default:
		return "Unknown"
	}
}

// Scope is a structured lifetime guard: every shared resource acquired
// through it is released, exactly once, on every exit path (End, or a
// panic recovered by Run). This is the mechanism spec.md section
// 9 calls the replacement for exception-based cleanup: "scoped acquisition
// of every shared resource with guaranteed release on all exit paths".
type Scope struct {
	mu    sync.Mutex
	kind  ScopeKind
	frame uint64
	held  []*Shared
	ended bool
}

// NewScope opens a scope of the given kind, tagged with the frame index it
// applies to (meaningful only for ScopeFrame; ignored otherwise).
func NewScope(kind ScopeKind, frame uint64) *Scope {
	return &Scope{kind: kind, frame: frame}
}

func (s *Scope) Kind() ScopeKind { return s.kind }

// Acquire records shared in this scope as given, without cloning it; End
// drops that same reference once. The allocators pass the reference they
// also return to their caller, so a caller whose scope is never ended
// drops the reference itself.
func (s *Scope) Acquire(shared *Shared) *Shared {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		corelog.Warn("scope: Acquire called after End; releasing immediately")
		shared.Drop(s.frame)
		return shared
	}
	s.held = append(s.held, shared)
	return shared
}

// End releases every reference this scope holds, exactly once, then marks
// the scope closed. Calling End twice is a no-op (idempotent, matching the
// node Cleanup idempotence requirement of spec.md section 3.1).
func (s *Scope) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	held := s.held
	s.held = nil
	s.ended = true
	frame := s.frame
	s.mu.Unlock()

	for _, h := range held {
		h.Drop(frame)
	}
}

// Run executes fn inside the scope and guarantees End runs afterward, on
// every return path including a panic, which is then re-raised after
// cleanup completes.
func (s *Scope) Run(fn func(*Scope) error) (err error) {
	defer s.End()
	defer func() {
		if r := recover(); r != nil {
			s.End()
			panic(r)
		}
	}()
	return fn(s)
}

// Ended reports whether End has already run.
func (s *Scope) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// HeldCount reports how many references are currently held, for tests.
func (s *Scope) HeldCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}
