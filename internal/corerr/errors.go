// Package corerr declares the stable error kinds of the render-graph core
// (spec.md section 7). Each kind carries the fields callers need to act on
// it and supports errors.As so a wrapped chain can still be inspected.
package corerr

import (
	"errors"
	"fmt"
)

// InvalidGraphError reports a validation, cycle, or type-mismatch failure
// surfaced during Compile.
type InvalidGraphError struct {
	Reason string
}

func (e *InvalidGraphError) Error() string { return fmt.Sprintf("invalid graph: %s", e.Reason) }

func InvalidGraph(reason string, args ...interface{}) error {
	return &InvalidGraphError{Reason: fmt.Sprintf(reason, args...)}
}

// MissingDependencyError reports a required input slot left unconnected.
type MissingDependencyError struct {
	Node string
	Slot string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing dependency: %s.%s is required but unconnected", e.Node, e.Slot)
}

func MissingDependency(node, slot string) error {
	return &MissingDependencyError{Node: node, Slot: slot}
}

// CapabilityMissingError reports a device capability the node type requires
// but the selected device does not expose.
type CapabilityMissingError struct {
	Flag string
}

func (e *CapabilityMissingError) Error() string {
	return fmt.Sprintf("capability missing: %s", e.Flag)
}

func CapabilityMissing(flag string) error {
	return &CapabilityMissingError{Flag: flag}
}

// GpuErrorKind wraps any non-success return from the GPU API.
type GpuErrorKind struct {
	Code int32
	Site string
	Err  error
}

func (e *GpuErrorKind) Error() string {
	return fmt.Sprintf("gpu error %d at %s: %v", e.Code, e.Site, e.Err)
}

func (e *GpuErrorKind) Unwrap() error { return e.Err }

func GpuError(code int32, site string, err error) error {
	return &GpuErrorKind{Code: code, Site: site, Err: err}
}

// OutOfMemoryError reports allocator exhaustion for a resource kind.
type OutOfMemoryError struct {
	Kind string
}

func (e *OutOfMemoryError) Error() string { return fmt.Sprintf("out of memory: %s", e.Kind) }

func OutOfMemory(kind string) error { return &OutOfMemoryError{Kind: kind} }

// BudgetExceededError reports a hard budget breach.
type BudgetExceededError struct {
	Kind      string
	Requested uint64
	Limit     uint64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: %s requested=%d limit=%d", e.Kind, e.Requested, e.Limit)
}

func BudgetExceeded(kind string, requested, limit uint64) error {
	return &BudgetExceededError{Kind: kind, Requested: requested, Limit: limit}
}

// AliasConflictError reports the scheduler and allocator disagreeing about
// whether two transient resources' lifetimes overlap.
type AliasConflictError struct {
	ResA, ResB string
}

func (e *AliasConflictError) Error() string {
	return fmt.Sprintf("alias conflict between %s and %s", e.ResA, e.ResB)
}

func AliasConflict(resA, resB string) error {
	return &AliasConflictError{ResA: resA, ResB: resB}
}

// ConnectionFailedError reports a deferred connection that could not be
// resolved after graph-compile-time setup.
type ConnectionFailedError struct {
	Edge   string
	Reason string
}

func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("connection failed: %s: %s", e.Edge, e.Reason)
}

func ConnectionFailed(edge, reason string) error {
	return &ConnectionFailedError{Edge: edge, Reason: reason}
}

// CacheBuildFailedError wraps any error raised inside a get_or_create
// creator closure.
type CacheBuildFailedError struct {
	Key   string
	Inner error
}

func (e *CacheBuildFailedError) Error() string {
	return fmt.Sprintf("cache build failed for key %s: %v", e.Key, e.Inner)
}

func (e *CacheBuildFailedError) Unwrap() error { return e.Inner }

func CacheBuildFailed(key string, inner error) error {
	return &CacheBuildFailedError{Key: key, Inner: inner}
}

// InvalidStateError reports an operation invoked on a resource in the
// Error or Destroyed state.
type InvalidStateError struct {
	Op string
}

func (e *InvalidStateError) Error() string { return fmt.Sprintf("invalid state for op: %s", e.Op) }

func InvalidState(op string) error { return &InvalidStateError{Op: op} }

// CycleError reports a cycle detected during dependency analysis.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected among nodes: %v", e.Nodes)
}

func Cycle(nodes []string) error { return &CycleError{Nodes: nodes} }

// As is a thin wrapper over errors.As for call sites that prefer a
// functional style when peeling a specific kind out of a wrapped chain.
func As[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}
