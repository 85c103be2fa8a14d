package graph

// DiscoverFunc is run during graph-compile-time setup for any node type
// that declares a variadic slot; it registers the concrete sub-slots the
// node has discovered (e.g. one per shader-reflected struct member) by
// calling SetVariadicOutput/recording expected variadic inputs.
type DiscoverFunc func(c *Context) error

// runVariadicDiscovery invokes every node's DiscoverFunc, if its type
// declares one, in node-insertion order. This runs before deferred
// connections are resolved, matching spec.md section 4.8 phase 2: "Nodes
// that implement the graph-compile hook discover dynamic slots... Deferred
// connections are then resolved."
func (g *Graph) runVariadicDiscovery() error {
	for _, name := range g.order {
		n := g.nodes[name]
		if n.Type.Discover == nil {
			continue
		}
		if err := n.Type.Discover(n.newContext(g.ctx, g, nil)); err != nil {
			return err
		}
	}
	return nil
}
