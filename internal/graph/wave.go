package graph

import "sort"

// Wave is a set of node names whose mutual resource accesses are
// non-conflicting, safe to record/submit in parallel (spec.md glossary).
type Wave []string

// ExecutionPlan is the final artifact of graph-compiler phase 6: an
// ordered list of waves, each a set of recorded command buffers (spec.md
// section 4.8 phase 6). Here recorded buffers are represented by the node
// names that contributed them; the actual command buffer objects are
// owned by internal/frame at submission time.
type ExecutionPlan struct {
	Waves []Wave
}

type resourceClaim struct {
	node       string
	mutability Mutability
}

// computeWaves is graph-compiler phase 4 (spec.md section 4.8): partition
// the DAG into waves such that Wk contains nodes whose every predecessor
// is in W<k, then split apart any two nodes in the same wave that claim
// the same resource with conflicting mutabilities, using breadth-first
// demotion with tie-break (insertion order, then instance name).
func (g *Graph) computeWaves(dep *dependencyGraph) ([]Wave, error) {
	g.mu.RLock()
	order := append([]string(nil), g.order...)
	edges := append([]Connection(nil), g.edges...)
	nodes := g.nodes
	g.mu.RUnlock()

	indexOf := make(map[string]int, len(order))
	for i, n := range order {
		indexOf[n] = i
	}

	level := make(map[string]int, len(order))
	for _, n := range dep.topological {
		max := -1
		for _, d := range dep.dependencies[n] {
			if level[d] > max {
				max = level[d]
			}
		}
		level[n] = max + 1
	}

	claims := buildResourceClaims(nodes, edges)

	numWaves := 0
	for _, l := range level {
		if l+1 > numWaves {
			numWaves = l + 1
		}
	}
	waves := make([][]string, numWaves)
	for _, n := range order {
		waves[level[n]] = append(waves[level[n]], n)
	}

	conflicts := func(a, b string) bool {
		return resourceConflict(a, b, claims)
	}
	tieBreak := func(names []string) {
		sort.Slice(names, func(i, j int) bool {
			ii, jj := indexOf[names[i]], indexOf[names[j]]
			if ii != jj {
				return ii < jj
			}
			return names[i] < names[j]
		})
	}

	// Sweep repeatedly: within each wave, accept nodes in tie-break order,
	// demoting any node that conflicts with an already-accepted peer to
	// the next wave. Demotion strictly increases a node's wave index, so
	// this terminates in at most len(order) sweeps.
	for sweep := 0; sweep < len(order)+1; sweep++ {
		moved := false
		for w := 0; w < len(waves); w++ {
			tieBreak(waves[w])
			var accepted []string
			for _, n := range waves[w] {
				conflict := false
				// A dependency demoted into this wave or later forces n out too.
				for _, d := range dep.dependencies[n] {
					if level[d] >= w {
						conflict = true
						break
					}
				}
				for _, a := range accepted {
					if conflict {
						break
					}
					if conflicts(n, a) {
						conflict = true
						break
					}
				}
				if conflict {
					if w+1 == len(waves) {
						waves = append(waves, nil)
					}
					waves[w+1] = append(waves[w+1], n)
					level[n] = w + 1
					moved = true
				} else {
					accepted = append(accepted, n)
				}
			}
			waves[w] = accepted
		}
		if !moved {
			break
		}
	}

	result := make([]Wave, 0, len(waves))
	for _, w := range waves {
		if len(w) == 0 {
			continue
		}
		tieBreak(w)
		result = append(result, Wave(w))
	}
	return result, nil
}

func buildResourceClaims(nodes map[string]*Instance, edges []Connection) map[string][]resourceClaim {
	claims := make(map[string][]resourceClaim)
	addClaim := func(resourceID, node string, m Mutability) {
		claims[resourceID] = append(claims[resourceID], resourceClaim{node: node, mutability: m})
	}
	seenSource := make(map[string]bool)
	for _, e := range edges {
		resourceID := e.SourceNode + "." + e.SourceSlot
		if !seenSource[resourceID] {
			seenSource[resourceID] = true
			if srcNode, ok := nodes[e.SourceNode]; ok {
				if spec, ok := srcNode.outputs.specs[e.SourceSlot]; ok {
					addClaim(resourceID, e.SourceNode, spec.Mutability)
				}
			}
		}
		if sinkNode, ok := nodes[e.SinkNode]; ok {
			if spec, ok := sinkNode.inputs.specs[e.SinkSlot]; ok {
				addClaim(resourceID, e.SinkNode, spec.Mutability)
			}
		}
	}
	return claims
}

func resourceConflict(a, b string, claims map[string][]resourceClaim) bool {
	for _, cs := range claims {
		var ma, mb Mutability
		aFound, bFound := false, false
		for _, c := range cs {
			if c.node == a {
				ma, aFound = c.mutability, true
			}
			if c.node == b {
				mb, bFound = c.mutability, true
			}
		}
		if aFound && bFound && ma.conflictsWith(mb) {
			return true
		}
	}
	return false
}
