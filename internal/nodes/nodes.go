// Package nodes implements the concrete leaf node types of spec.md
// section 4.11: device, command pool, swapchain, descriptor set,
// pipeline, compute dispatch, render pass, and framebuffer. Each is a
// *graph.Type built over internal/gpuapi's concrete Vulkan seam, the way
// the teacher's engine/renderer/vulkan package is the concrete backend
// behind its renderer abstraction. internal/graph, internal/memory, and
// internal/frame never import this package; internal/app wires it in at
// the top.
package nodes

import (
	"fmt"

	"github.com/spaghettifunk/vixen/internal/graph"
	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// makeShared binds payload (a node's public output struct, a raw GPU
// handle, or a cache entry's built value) as the opaque resource.Handle of
// a fresh Variant and wraps it in a Shared against queue. destroy runs
// once the Shared's last reference drops, through the graph's deferred
// destruction queue (spec.md section 4.3), so a command pool or pipeline
// is torn down no sooner than a buffer would be.
func makeShared(queue *lifetime.DeferredQueue, kind resource.Kind, name string, lt resource.Lifetime, payload interface{}, destroy lifetime.Destroyer) (*lifetime.Shared, error) {
	desc := &resource.HandleDescriptor{HandleKind: kind, Name: name, Lifetime: lt}
	variant, err := resource.Make(desc)
	if err != nil {
		return nil, fmt.Errorf("nodes: bind %s: %w", name, err)
	}
	variant.Bind(payload)
	return lifetime.NewShared(name, variant, queue, destroy), nil
}

// publish binds payload as a node's named output slot via makeShared.
func publish(c *graph.Context, slot string, kind resource.Kind, name string, lt resource.Lifetime, payload interface{}, destroy lifetime.Destroyer) error {
	shared, err := makeShared(c.Deps().Queue, kind, name, lt, payload, destroy)
	if err != nil {
		return err
	}
	c.SetOutput(slot, shared)
	return nil
}

// input resolves slot and returns the opaque payload a prior node bound
// via publish, type-asserting it to T. Used by every node whose Compile
// reads a struct-unpacker input (spec.md section 4.11's "struct-unpacker
// input" wording for the swapchain node, generalized to every slot here).
func input[T any](c *graph.Context, slot string) (T, error) {
	var zero T
	sh, err := c.Input(slot)
	if err != nil {
		return zero, err
	}
	v, ok := sh.Variant().Handle().(T)
	if !ok {
		return zero, fmt.Errorf("nodes: input %q has type %T, want %T", slot, sh.Variant().Handle(), zero)
	}
	return v, nil
}

// optionalInput is like input but returns ok=false instead of an error
// when the slot is unconnected, for nodes with a Nullable input (e.g. the
// descriptor set node's optional texture input).
func optionalInput[T any](c *graph.Context, slot string) (T, bool) {
	var zero T
	sh, err := c.Input(slot)
	if err != nil {
		return zero, false
	}
	v, ok := sh.Variant().Handle().(T)
	return v, ok
}
