package graph

import (
	"context"
	"math/rand"
	"testing"

	"github.com/spaghettifunk/vixen/internal/cache"
	"github.com/spaghettifunk/vixen/internal/eventbus"
	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/memory"
	"github.com/spaghettifunk/vixen/internal/resource"
)

func testDeps() Deps {
	return Deps{
		Budget: memory.NewBudget(nil),
		Caches: cache.NewRegistry(),
		Queue:  lifetime.NewDeferredQueue(2),
	}
}

func testGraph() *Graph {
	return New(context.Background(), eventbus.New(0), testDeps())
}

// passthroughType produces one output slot by allocating a fresh dummy
// shared resource; it never reads any input, so it is useful purely to
// exercise compile/topology without needing a concrete allocator.
func passthroughType(outMutability Mutability) *Type {
	return &Type{
		Name:    "passthrough",
		Outputs: []SlotSpec{{Name: "out", Type: "res", Mutability: outMutability}},
		Compile: func(c *Context) error {
			v, err := resource.Make(&resource.BufferDescriptor{Size: 64})
			if err != nil {
				return err
			}
			s := lifetime.NewShared(c.NodeName(), v, nil, func(uint64) {})
			c.SetOutput("out", s)
			return nil
		},
	}
}

// consumerType declares n RO input slots named "inN" and one output slot.
func consumerType(n int, inMutability Mutability) *Type {
	inputs := make([]SlotSpec, n)
	for i := range inputs {
		inputs[i] = SlotSpec{Name: slotName(i), Type: "res", Mutability: inMutability}
	}
	return &Type{
		Name:    "consumer",
		Inputs:  inputs,
		Outputs: []SlotSpec{{Name: "out", Type: "res", Mutability: MutabilityWO}},
		Compile: func(c *Context) error {
			for i := range inputs {
				if _, err := c.Input(slotName(i)); err != nil {
					return err
				}
			}
			v, err := resource.Make(&resource.BufferDescriptor{Size: 64})
			if err != nil {
				return err
			}
			c.SetOutput("out", lifetime.NewShared(c.NodeName(), v, nil, func(uint64) {}))
			return nil
		},
	}
}

func slotName(i int) string {
	return []string{"in0", "in1", "in2", "in3", "in4", "in5", "in6", "in7"}[i]
}

func TestCompileEmptySingleNodeGraph(t *testing.T) {
	g := testGraph()
	if _, err := g.AddNode("device", passthroughType(MutabilityWO)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Compile(); err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	waves := g.Waves()
	if len(waves) != 1 || len(waves[0]) != 1 || waves[0][0] != "device" {
		t.Fatalf("waves = %v, want single wave {device}", waves)
	}
	if g.ExecutionPlan() == nil {
		t.Fatalf("expected non-nil execution plan")
	}
}

func TestCompileFailsOnMissingRequiredInput(t *testing.T) {
	g := testGraph()
	if _, err := g.AddNode("consumer", consumerType(1, MutabilityRO)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := g.Compile()
	if err == nil {
		t.Fatalf("expected compile to fail: required input is unconnected")
	}
}

func TestCompileDetectsCycle(t *testing.T) {
	g := testGraph()
	a, _ := g.AddNode("a", consumerType(1, MutabilityRO))
	_ = a
	_, _ = g.AddNode("b", consumerType(1, MutabilityRO))

	// a.out -> b.in0, b.out -> a.in0: a two-node cycle.
	if err := g.Connect(Connection{SourceNode: "a", SourceSlot: "out", SinkNode: "b", SinkSlot: "in0"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Connect(Connection{SourceNode: "b", SourceSlot: "out", SinkNode: "a", SinkSlot: "in0"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Compile(); err == nil {
		t.Fatalf("expected compile to fail on cycle")
	}
}

func TestTopologicalSoundnessRandomizedDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		n := 5 + rng.Intn(40)
		g := testGraph()
		names := make([]string, n)
		for i := 0; i < n; i++ {
			names[i] = slotLabel(i)
			if _, err := g.AddNode(names[i], passthroughType(MutabilityWO)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		// Wire a few inputs too, reusing "out" as a fan-out source feeding
		// synthetic "in0" slots on later nodes isn't modeled by
		// passthroughType, so edges here only establish ordering via
		// dependency-only connections through a consumer type instead.
		type edge struct{ u, v int }
		var edges []edge
		for i := 0; i < n; i++ {
			// Each node may depend on up to 2 earlier nodes, keeping the
			// graph acyclic by construction (edges always go forward).
			for k := 0; k < 2; k++ {
				if i == 0 {
					break
				}
				j := rng.Intn(i)
				edges = append(edges, edge{u: j, v: i})
			}
		}
		g2 := testGraph()
		nodes2 := make([]string, n)
		consumerInputCounts := make([]int, n)
		for _, e := range edges {
			consumerInputCounts[e.v]++
		}
		for i := 0; i < n; i++ {
			nodes2[i] = slotLabel(i)
			cnt := consumerInputCounts[i]
			if cnt > 8 {
				cnt = 8
			}
			if cnt == 0 {
				if _, err := g2.AddNode(nodes2[i], passthroughType(MutabilityWO)); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			} else {
				if _, err := g2.AddNode(nodes2[i], consumerType(cnt, MutabilityRO)); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
		}
		slotIdx := make([]int, n)
		for _, e := range edges {
			if slotIdx[e.v] >= 8 {
				continue
			}
			if err := g2.Connect(Connection{
				SourceNode: nodes2[e.u], SourceSlot: "out",
				SinkNode: nodes2[e.v], SinkSlot: slotName(slotIdx[e.v]),
			}); err != nil {
				t.Fatalf("unexpected connect error: %v", err)
			}
			slotIdx[e.v]++
		}

		if err := g2.Compile(); err != nil {
			t.Fatalf("trial %d: unexpected compile error: %v", trial, err)
		}

		pos := make(map[string]int)
		for wi, w := range g2.Waves() {
			for _, name := range w {
				pos[name] = wi
			}
		}
		for _, e := range edges {
			u, v := nodes2[e.u], nodes2[e.v]
			if pos[u] > pos[v] {
				t.Fatalf("trial %d: edge %s->%s violates topological order: waves %d > %d", trial, u, v, pos[u], pos[v])
			}
		}
	}
}

func slotLabel(i int) string {
	return "n" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
