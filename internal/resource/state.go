package resource

import (
	"sync"

	"github.com/spaghettifunk/vixen/internal/corerr"
)

// State is the resource-state lattice of spec.md section 3.1's RM<T>
// wrapper.
type State int

const (
	StateUninitialized State = iota
	StateValid
	StateDirty
	StateError
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateValid:
		return "valid"
	case StateDirty:
		return "dirty"
	case StateError:
		return "error"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// RM wraps a value of type T with a state, gating every read behind the
// state lattice of spec.md section 3.1: "all public mutations go through
// the wrapper; reads in Error|Destroyed fail with <InvalidState>". op
// identifies the owner for InvalidState error messages (typically a node
// or cache-entry name).
type RM[T any] struct {
	mu    sync.Mutex
	op    string
	state State
	value T
	err   error
}

// NewRM constructs a wrapper in StateUninitialized, holding T's zero value
// until the first Set.
func NewRM[T any](op string) *RM[T] {
	return &RM[T]{op: op, state: StateUninitialized}
}

// Set installs value and transitions to Valid, regardless of prior state.
// Use this for the initial Compile-time assignment and for re-assignment
// after a successful re-compile.
func (r *RM[T]) Set(value T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = value
	r.state = StateValid
	r.err = nil
}

// MarkDirty transitions Valid → Dirty, mirroring the node lifecycle's
// Valid→Dirty→Valid hot-reload transition. A no-op outside Valid.
func (r *RM[T]) MarkDirty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateValid {
		r.state = StateDirty
	}
}

// Fail transitions to Error, recording cause for Err. A wrapper in Error
// rejects every Get until the next Set.
func (r *RM[T]) Fail(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateError
	r.err = cause
}

// Destroy transitions to Destroyed; like Error, this rejects every Get
// until the next Set.
func (r *RM[T]) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateDestroyed
}

// Get returns the wrapped value, failing with corerr.InvalidState if the
// wrapper is currently Error or Destroyed (spec.md section 3.1).
func (r *RM[T]) Get() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateError || r.state == StateDestroyed {
		var zero T
		return zero, corerr.InvalidState(r.op)
	}
	return r.value, nil
}

// State reports the current lattice position without gating.
func (r *RM[T]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the cause passed to the most recent Fail, or nil if the
// wrapper has never failed or has since been Set.
func (r *RM[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
