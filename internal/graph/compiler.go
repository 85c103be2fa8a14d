package graph

import (
	"github.com/spaghettifunk/vixen/internal/corelog"
	"github.com/spaghettifunk/vixen/internal/lifetime"
)

// Compile runs the six graph-compiler phases of spec.md section 4.8 in
// order, aborting at the first failing phase. A failed compile rolls back
// every resource acquired during it via the compile scope and leaves the
// graph uncompiled.
func (g *Graph) Compile() error {
	scope := lifetime.NewScope(lifetime.ScopeCompile, g.CurrentFrame())
	var finalErr error
	defer func() {
		if finalErr != nil {
			scope.End()
		}
	}()

	if err := g.validate(); err != nil {
		finalErr = err
		return err
	}

	if err := g.runVariadicDiscovery(); err != nil {
		finalErr = err
		return err
	}
	if err := g.resolveDeferred(); err != nil {
		finalErr = err
		return err
	}
	// Re-validate: deferred connections may have populated inputs that
	// phase 1 could not see yet (variadic sub-slots).
	if err := g.validate(); err != nil {
		finalErr = err
		return err
	}

	dep, err := g.analyzeDependencies()
	if err != nil {
		finalErr = err
		return err
	}

	waves, err := g.computeWaves(dep)
	if err != nil {
		finalErr = err
		return err
	}

	plan, err := g.generate(dep.topological, waves, scope)
	if err != nil {
		finalErr = err
		return err
	}

	g.mu.Lock()
	g.waves = waves
	g.plan = plan
	g.compiled = true
	g.mu.Unlock()

	corelog.Info("graph compiled: %d nodes, %d waves", len(dep.topological), len(waves))
	return nil
}

// generate is graph-compiler phase 5+6 combined: it drives Setup then
// Compile on every node in topological order, attaching compile-time
// resource acquisitions to scope so a later failure rolls everything
// back, and builds the execution plan from the already-computed waves.
func (g *Graph) generate(topoOrder []string, waves []Wave, scope *lifetime.Scope) (*ExecutionPlan, error) {
	g.mu.RLock()
	nodes := g.nodes
	edges := append([]Connection(nil), g.edges...)
	g.mu.RUnlock()

	for _, name := range topoOrder {
		n := nodes[name]
		if err := n.runSetup(g.ctx, g, scope); err != nil {
			return nil, err
		}
		if err := n.runCompile(g.ctx, g, scope); err != nil {
			return nil, err
		}
		for _, e := range edges {
			if e.SourceNode == name {
				g.wireOne(e)
			}
		}
	}

	// waves were computed before Compile ran and populated outputs; they
	// remain valid since wave membership depends on slot identity (which
	// resource a slot refers to), not on the resource's concrete value.
	if len(waves) == 0 {
		waves = []Wave{topoOrder}
	}
	return &ExecutionPlan{Waves: waves}, nil
}

// Recompile re-runs Compile (not Setup) only for the dirty subgraph: nodes
// marked dirty (parameter change, shader reload, explicit MarkDirty) and
// every node downstream of one, in topological order (spec.md section
// 4.8: "re-compile re-runs only the dirty subgraph... dirtiness propagates
// to downstream nodes that consume the dirty node's output").
func (g *Graph) Recompile() error {
	g.mu.RLock()
	order := append([]string(nil), g.order...)
	edges := append([]Connection(nil), g.edges...)
	nodes := g.nodes
	g.mu.RUnlock()

	dirty := make(map[string]bool)
	for _, name := range order {
		if nodes[name].State() == StateDirty {
			dirty[name] = true
		}
	}
	if len(dirty) == 0 {
		return nil
	}

	// Propagate dirtiness downstream to a fixed point.
	changed := true
	for changed {
		changed = false
		for _, e := range edges {
			if dirty[e.SourceNode] && !dirty[e.SinkNode] {
				dirty[e.SinkNode] = true
				nodes[e.SinkNode].mu.Lock()
				if nodes[e.SinkNode].state == StateValid {
					nodes[e.SinkNode].state = StateDirty
				}
				nodes[e.SinkNode].mu.Unlock()
				changed = true
			}
		}
	}

	scope := lifetime.NewScope(lifetime.ScopeCompile, g.CurrentFrame())
	var finalErr error
	defer func() {
		if finalErr != nil {
			scope.End()
		}
	}()

	for _, name := range order {
		if !dirty[name] {
			continue
		}
		n := nodes[name]
		if err := n.runCompile(g.ctx, g, scope); err != nil {
			finalErr = err
			return err
		}
		for _, e := range edges {
			if e.SourceNode == name {
				g.wireOne(e)
			}
		}
	}
	corelog.Info("graph recompiled: %d dirty nodes", len(dirty))
	return nil
}
