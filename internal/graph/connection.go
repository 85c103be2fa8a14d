package graph

import "github.com/spaghettifunk/vixen/internal/corerr"

// Connection is a directed edge (sourceNode, sourceSlot) → (sinkNode,
// sinkSlot) (spec.md section 3.1).
type Connection struct {
	SourceNode string
	SourceSlot string
	SinkNode   string
	SinkSlot   string
}

func (c Connection) edgeName() string {
	return c.SourceNode + "." + c.SourceSlot + "->" + c.SinkNode + "." + c.SinkSlot
}

// deferredConnection is a closure-encoded edge resolved after
// graph-compile-time setup, needed for variadic slots whose arity is only
// known once nodes discover it during that phase (spec.md section 4.6).
type deferredConnection struct {
	edge    string
	resolve func(g *Graph) error
}

// Connect registers an immediate connection between two static slots. Both
// endpoints must already exist in their node's schema; type compatibility
// is checked here so callers see the error at graph-construction time
// rather than at Compile.
func (g *Graph) Connect(c Connection) error {
	src, ok := g.nodes[c.SourceNode]
	if !ok {
		return corerr.InvalidGraph("connect: unknown source node %q", c.SourceNode)
	}
	sink, ok := g.nodes[c.SinkNode]
	if !ok {
		return corerr.InvalidGraph("connect: unknown sink node %q", c.SinkNode)
	}
	srcSpec, ok := src.outputs.specs[c.SourceSlot]
	if !ok {
		return corerr.InvalidGraph("connect: %s has no output slot %q", c.SourceNode, c.SourceSlot)
	}
	sinkSpec, ok := sink.inputs.specs[c.SinkSlot]
	if !ok {
		return corerr.InvalidGraph("connect: %s has no input slot %q", c.SinkNode, c.SinkSlot)
	}
	if !typeCompatible(srcSpec.Type, sinkSpec.Type) {
		return corerr.InvalidGraph("connect: %s (%s) is not compatible with %s (%s)",
			c.edgeName(), srcSpec.Type, c.edgeName(), sinkSpec.Type)
	}

	g.edges = append(g.edges, c)
	return nil
}

// ConnectDeferred registers a deferred connection: resolve is invoked
// during graph-compile-time setup's second half, after every node has had
// a chance to discover its variadic slots. Deferred connections resolve in
// registration order; a single failure aborts the phase.
func (g *Graph) ConnectDeferred(edgeName string, resolve func(g *Graph) error) {
	g.deferred = append(g.deferred, deferredConnection{edge: edgeName, resolve: resolve})
}

// typeCompatible reports whether a value of type src may flow into a sink
// expecting type sink. The core model only defines identity compatibility;
// node types that need coercion should declare a PassThrough node instead
// of relying on implicit conversion.
func typeCompatible(src, sink TypeTag) bool {
	return src == sink
}

// resolveDeferred runs every deferred connection in registration order,
// aborting with the first failure (spec.md section 4.6).
func (g *Graph) resolveDeferred() error {
	for _, dc := range g.deferred {
		if err := dc.resolve(g); err != nil {
			return corerr.ConnectionFailed(dc.edge, err.Error())
		}
	}
	return nil
}

// wireOne propagates one resolved immediate connection's source slot
// value into its sink slot. Called once per connection per compile pass, after
// Compile has populated outputs but before the next node's Compile that
// depends on them — in practice, right after each node's Compile in
// topological order.
func (g *Graph) wireOne(c Connection) {
	src := g.nodes[c.SourceNode]
	sink := g.nodes[c.SinkNode]
	if v, ok := src.outputs.get(c.SourceSlot); ok {
		sink.inputs.set(c.SinkSlot, v)
	}
}
