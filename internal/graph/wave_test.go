package graph

import (
	"math/rand"
	"testing"
)

// TestWaveCorrectnessNoConflictingMutabilityInSameWave exercises spec.md's
// wave-correctness property: for every computed wave, no two member nodes
// declare overlapping resource accesses (same edge) with conflicting
// mutabilities. A single producer feeds three consumers reading the same
// output slot: two as RO (non-conflicting, may share a wave) and one as RW
// (conflicts with everything, must be demoted to a later wave).
func TestWaveCorrectnessDemotesConflictingMutability(t *testing.T) {
	g := testGraph()
	if _, err := g.AddNode("producer", passthroughType(MutabilityWO)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	roType := consumerType(1, MutabilityRO)
	rwType := consumerType(1, MutabilityRW)
	if _, err := g.AddNode("readerA", roType); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := g.AddNode("readerB", roType); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := g.AddNode("writer", rwType); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, sink := range []string{"readerA", "readerB", "writer"} {
		if err := g.Connect(Connection{SourceNode: "producer", SourceSlot: "out", SinkNode: sink, SinkSlot: "in0"}); err != nil {
			t.Fatalf("unexpected connect error: %v", err)
		}
	}
	if err := g.Compile(); err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}

	waves := g.Waves()
	pos := make(map[string]int)
	for wi, w := range waves {
		for _, n := range w {
			pos[n] = wi
		}
	}

	if pos["readerA"] != pos["readerB"] {
		t.Fatalf("two non-conflicting RO readers of the same resource were split across waves: %d vs %d", pos["readerA"], pos["readerB"])
	}
	if pos["writer"] == pos["readerA"] || pos["writer"] == pos["readerB"] {
		t.Fatalf("RW writer shares a wave with an RO reader of the same resource: writer=%d readerA=%d readerB=%d",
			pos["writer"], pos["readerA"], pos["readerB"])
	}

	verifyNoConflictWithinWave(t, waves, g)
}

// TestWaveCorrectnessRandomizedFanOut runs the same no-conflict invariant
// over randomized fan-out shapes: one producer feeding a mix of RO and RW
// consumers in random order.
func TestWaveCorrectnessRandomizedFanOut(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 10; trial++ {
		g := testGraph()
		if _, err := g.AddNode("producer", passthroughType(MutabilityWO)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		n := 3 + rng.Intn(10)
		names := make([]string, n)
		for i := 0; i < n; i++ {
			names[i] = slotLabel(i + 1)
			mut := MutabilityRO
			if rng.Intn(3) == 0 {
				mut = MutabilityRW
			}
			if _, err := g.AddNode(names[i], consumerType(1, mut)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := g.Connect(Connection{SourceNode: "producer", SourceSlot: "out", SinkNode: names[i], SinkSlot: "in0"}); err != nil {
				t.Fatalf("unexpected connect error: %v", err)
			}
		}
		if err := g.Compile(); err != nil {
			t.Fatalf("trial %d: unexpected compile error: %v", trial, err)
		}
		verifyNoConflictWithinWave(t, g.Waves(), g)
	}
}

func verifyNoConflictWithinWave(t *testing.T, waves []Wave, g *Graph) {
	t.Helper()
	g.mu.RLock()
	nodes := g.nodes
	edges := append([]Connection(nil), g.edges...)
	g.mu.RUnlock()
	claims := buildResourceClaims(nodes, edges)
	for wi, w := range waves {
		for i := 0; i < len(w); i++ {
			for j := i + 1; j < len(w); j++ {
				if resourceConflict(w[i], w[j], claims) {
					t.Fatalf("wave %d contains conflicting nodes %s and %s", wi, w[i], w[j])
				}
			}
		}
	}
}
