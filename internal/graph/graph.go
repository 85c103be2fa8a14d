package graph

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/vixen/internal/cache"
	"github.com/spaghettifunk/vixen/internal/corerr"
	"github.com/spaghettifunk/vixen/internal/eventbus"
	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/memory"
)

// Deps bundles the external collaborators a node's Compile/Execute phase
// needs: the allocator and budget of internal/memory, the cache registry
// of internal/cache, and the deferred-destruction queue shared with the
// frame scheduler. Nodes reach these through Context rather than package
// globals (spec.md section 9: "no file-scope mutables").
type Deps struct {
	Allocator memory.Allocator
	Budget    *memory.Budget
	Caches    *cache.Registry
	Queue     *lifetime.DeferredQueue
}

// Graph owns node instances exclusively, the edge set, deferred
// connections, and the artifacts produced by Compile: execution order,
// wave table, and execution plan (spec.md section 3.1).
type Graph struct {
	ctx  context.Context
	bus  *eventbus.Bus
	deps Deps

	frameCounter uint64 // atomic

	mu       sync.RWMutex
	nodes    map[string]*Instance
	order    []string // node insertion order, the tie-break for wave computation
	edges    []Connection
	deferred []deferredConnection

	compiled bool
	waves    []Wave
	plan     *ExecutionPlan
}

// New constructs an empty graph bound to bus for event delivery and deps
// for resource allocation/caching. ctx is threaded through every phase
// function as the base context.
func New(ctx context.Context, bus *eventbus.Bus, deps Deps) *Graph {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Graph{
		ctx:   ctx,
		bus:   bus,
		deps:  deps,
		nodes: make(map[string]*Instance),
	}
}

// Deps returns the graph's external collaborators.
func (g *Graph) Deps() Deps { return g.deps }

// CurrentFrame returns the frame index most recently advanced to by the
// frame scheduler (0 before the first frame runs).
func (g *Graph) CurrentFrame() uint64 { return atomic.LoadUint64(&g.frameCounter) }

// AdvanceFrame is called by the frame scheduler once per frame step.
func (g *Graph) AdvanceFrame() uint64 { return atomic.AddUint64(&g.frameCounter, 1) }

// Bus returns the graph's event bus, for nodes that need to subscribe
// outside of their own Context (e.g. from Setup's closures).
func (g *Graph) Bus() *eventbus.Bus { return g.bus }

// AddNode instantiates t under the stable instance name. Adding a node
// after Compile has run returns an error: the graph is immutable except
// for parameters once compiled (spec.md section 3.3).
func (g *Graph) AddNode(name string, t *Type) (*Instance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.compiled {
		return nil, corerr.InvalidState("AddNode after Compile")
	}
	if _, exists := g.nodes[name]; exists {
		return nil, corerr.InvalidGraph("duplicate node name %q", name)
	}
	n := newInstance(name, t, g)
	g.nodes[name] = n
	g.order = append(g.order, name)
	return n, nil
}

// Node looks up a node instance by name.
func (g *Graph) Node(name string) (*Instance, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns every node instance in insertion order.
func (g *Graph) Nodes() []*Instance {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Instance, len(g.order))
	for i, name := range g.order {
		out[i] = g.nodes[name]
	}
	return out
}

// Waves returns the wave partition produced by the last successful
// Compile, or nil if the graph hasn't compiled yet.
func (g *Graph) Waves() []Wave {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.waves
}

// ExecutionPlan returns the execution plan produced by the last successful
// Compile, or nil.
func (g *Graph) ExecutionPlan() *ExecutionPlan {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.plan
}

// Compiled reports whether Compile has succeeded at least once.
func (g *Graph) Compiled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.compiled
}

// ExecuteNode runs the named node's Execute phase for frameIndex, threading
// cmd (an opaque per-wave command buffer from internal/frame) through to
// the node's ExecuteFunc. Used by the frame scheduler to play a compiled
// wave (spec.md section 4.9 step 5).
func (g *Graph) ExecuteNode(name string, cmd interface{}, frameIndex uint64) error {
	g.mu.RLock()
	n, ok := g.nodes[name]
	g.mu.RUnlock()
	if !ok {
		return corerr.InvalidGraph("execute: unknown node %q", name)
	}
	return n.runExecute(g.ctx, g, cmd, frameIndex)
}

// RecordPolicyOf reports the named node's current command-recording policy
// (spec.md section 4.9, "Command buffer policy").
func (g *Graph) RecordPolicyOf(name string) (RecordPolicy, bool) {
	g.mu.RLock()
	n, ok := g.nodes[name]
	g.mu.RUnlock()
	if !ok {
		return RecordDynamic, false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.recordPolicy, true
}

// Teardown runs Cleanup on every node, in reverse insertion order, so a
// node is always cleaned up before the nodes it depends on (spec.md
// section 3.3: graph destroyed last, after every node's Cleanup).
func (g *Graph) Teardown() {
	g.mu.RLock()
	order := append([]string(nil), g.order...)
	g.mu.RUnlock()

	for i := len(order) - 1; i >= 0; i-- {
		g.nodes[order[i]].runCleanup(g.ctx, g)
	}
}
