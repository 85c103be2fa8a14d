package graph

import "github.com/spaghettifunk/vixen/internal/corerr"

// validate is graph-compiler phase 1 (spec.md section 4.8): every required
// (non-nullable, non-variadic) input must hold a value or be the sink of an
// immediate connection. It checks nothing else: connection types are
// checked only at Connect time and are not re-checked here, declared
// parameters are filled from the type's defaults in newInstance and are
// not checked here, and slot scopes are not checked.
func (g *Graph) validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, name := range g.order {
		n := g.nodes[name]
		for _, spec := range n.Type.Inputs {
			if spec.Nullable || spec.Array == ArrayVariadic {
				continue
			}
			if !n.inputs.connected(spec.Name) {
				if !connectedByEdge(g.edges, name, spec.Name) {
					return corerr.MissingDependency(name, spec.Name)
				}
			}
		}
	}
	return nil
}

// connectedByEdge reports whether an immediate connection targets
// node.slot; inputs aren't populated with values until Compile runs, so
// phase 1 checks the edge list rather than the slot table.
func connectedByEdge(edges []Connection, node, slot string) bool {
	for _, e := range edges {
		if e.SinkNode == node && e.SinkSlot == slot {
			return true
		}
	}
	return false
}
