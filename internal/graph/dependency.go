package graph

import (
	"fmt"
	"sort"

	"github.com/emicklei/dot"
	"github.com/heimdalr/dag"

	"github.com/spaghettifunk/vixen/internal/corerr"
)

// dependencyGraph is the phase-3 product (spec.md section 4.8): the DAG
// built from the graph's edges, its per-node transitive ancestor set, and
// a deterministic topological order.
type dependencyGraph struct {
	d            *dag.DAG
	topological  []string
	ancestorsOf  map[string]map[string]bool
	adjacency    map[string][]string // node -> direct dependents (edges out)
	dependencies map[string][]string // node -> direct dependencies (edges in)
}

// analyzeDependencies builds the DAG from g.edges, rejecting cycles
// (<Cycle(nodes)>), and computes each node's transitive dependency set.
func (g *Graph) analyzeDependencies() (*dependencyGraph, error) {
	g.mu.RLock()
	order := append([]string(nil), g.order...)
	edges := append([]Connection(nil), g.edges...)
	g.mu.RUnlock()

	d := dag.NewDAG()
	for _, name := range order {
		if err := d.AddVertexByID(name, name); err != nil {
			return nil, corerr.InvalidGraph("dependency analysis: add vertex %q: %v", name, err)
		}
	}

	adjacency := make(map[string][]string, len(order))
	dependencies := make(map[string][]string, len(order))
	pairs := make(map[[2]string]bool, len(edges))
	for _, e := range edges {
		if e.SourceNode == e.SinkNode {
			return nil, corerr.Cycle([]string{e.SourceNode})
		}
		// Several connections between the same two nodes are one dependency.
		pair := [2]string{e.SourceNode, e.SinkNode}
		if pairs[pair] {
			continue
		}
		pairs[pair] = true
		if err := d.AddEdge(e.SourceNode, e.SinkNode); err != nil {
			if cyc := findCycle(order, append(edges, e)); len(cyc) > 0 {
				return nil, corerr.Cycle(cyc)
			}
			return nil, corerr.InvalidGraph("dependency analysis: add edge %s: %v", e.edgeName(), err)
		}
		adjacency[e.SourceNode] = append(adjacency[e.SourceNode], e.SinkNode)
		dependencies[e.SinkNode] = append(dependencies[e.SinkNode], e.SourceNode)
	}

	topo, err := kahnTopologicalOrder(order, dependencies)
	if err != nil {
		return nil, err
	}

	ancestors := make(map[string]map[string]bool, len(order))
	for _, name := range order {
		ancestors[name] = transitiveAncestors(name, dependencies)
	}

	return &dependencyGraph{
		d:            d,
		topological:  topo,
		ancestorsOf:  ancestors,
		adjacency:    adjacency,
		dependencies: dependencies,
	}, nil
}

// findCycle runs a plain DFS over edges to recover the exact node list
// participating in a cycle, used only to enrich the error once
// heimdalr/dag has already told us a cycle exists.
func findCycle(nodes []string, edges []Connection) []string {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.SourceNode] = append(adj[e.SourceNode], e.SinkNode)
	}
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(nodes))
	var stack []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		state[n] = visiting
		stack = append(stack, n)
		for _, m := range adj[n] {
			switch state[m] {
			case unvisited:
				if visit(m) {
					return true
				}
			case visiting:
				// Found the back-edge; extract the cycle portion of stack.
				for i, s := range stack {
					if s == m {
						cycle = append([]string(nil), stack[i:]...)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		return false
	}

	for _, n := range nodes {
		if state[n] == unvisited {
			if visit(n) {
				return cycle
			}
		}
	}
	return nil
}

// kahnTopologicalOrder computes a deterministic topological order using
// Kahn's algorithm, breaking ties by insertion order (the position in
// nodes), matching spec.md section 4.8 phase 4's tie-break rule reused
// here for a stable base ordering.
func kahnTopologicalOrder(nodes []string, dependencies map[string][]string) ([]string, error) {
	indexOf := make(map[string]int, len(nodes))
	for i, n := range nodes {
		indexOf[n] = i
	}
	indegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		indegree[n] = len(dependencies[n])
	}

	var ready []string
	for _, n := range nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	children := make(map[string][]string)
	for n, deps := range dependencies {
		for _, dep := range deps {
			children[dep] = append(children[dep], n)
		}
	}

	var order []string
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return indexOf[ready[i]] < indexOf[ready[j]] })
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, c := range children[n] {
			indegree[c]--
			if indegree[c] == 0 {
				ready = append(ready, c)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, corerr.InvalidGraph("dependency analysis: topological sort covered %d of %d nodes, a cycle slipped past AddEdge", len(order), len(nodes))
	}
	return order, nil
}

func transitiveAncestors(name string, dependencies map[string][]string) map[string]bool {
	seen := make(map[string]bool)
	var walk func(n string)
	walk = func(n string) {
		for _, dep := range dependencies[n] {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(name)
	return seen
}

// DOT renders the compiled dependency graph as Graphviz DOT source, for
// debugging wave partitions. Returns an empty string if the graph hasn't
// compiled yet.
func (g *Graph) DOT() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.compiled {
		return ""
	}
	gv := dot.NewGraph(dot.Directed)
	nodesByName := make(map[string]dot.Node, len(g.order))
	for _, name := range g.order {
		nodesByName[name] = gv.Node(name)
	}
	for _, e := range g.edges {
		gv.Edge(nodesByName[e.SourceNode], nodesByName[e.SinkNode], fmt.Sprintf("%s->%s", e.SourceSlot, e.SinkSlot))
	}
	return gv.String()
}
