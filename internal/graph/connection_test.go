package graph

import "testing"

func TestConnectRejectsIncompatibleTypes(t *testing.T) {
	g := testGraph()
	producerType := &Type{
		Name:    "producer",
		Outputs: []SlotSpec{{Name: "out", Type: "alpha", Mutability: MutabilityWO}},
		Compile: func(c *Context) error { return nil },
	}
	consumer := &Type{
		Name:   "consumer",
		Inputs: []SlotSpec{{Name: "in", Type: "beta", Mutability: MutabilityRO}},
	}
	if _, err := g.AddNode("p", producerType); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := g.AddNode("c", consumer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := g.Connect(Connection{SourceNode: "p", SourceSlot: "out", SinkNode: "c", SinkSlot: "in"})
	if err == nil {
		t.Fatalf("expected type-incompatible connection to be rejected")
	}
}

func TestConnectRejectsUnknownSlots(t *testing.T) {
	g := testGraph()
	if _, err := g.AddNode("p", passthroughType(MutabilityWO)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := g.AddNode("c", consumerType(1, MutabilityRO)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Connect(Connection{SourceNode: "p", SourceSlot: "missing", SinkNode: "c", SinkSlot: "in0"}); err == nil {
		t.Fatalf("expected error for unknown source slot")
	}
	if err := g.Connect(Connection{SourceNode: "p", SourceSlot: "out", SinkNode: "c", SinkSlot: "missing"}); err == nil {
		t.Fatalf("expected error for unknown sink slot")
	}
	if err := g.Connect(Connection{SourceNode: "nope", SourceSlot: "out", SinkNode: "c", SinkSlot: "in0"}); err == nil {
		t.Fatalf("expected error for unknown source node")
	}
}

func TestDeferredConnectionsResolveInRegistrationOrder(t *testing.T) {
	g := testGraph()
	if _, err := g.AddNode("p", passthroughType(MutabilityWO)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := g.AddNode("c", consumerType(1, MutabilityRO)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resolveOrder []string
	g.ConnectDeferred("first", func(gr *Graph) error {
		resolveOrder = append(resolveOrder, "first")
		return gr.Connect(Connection{SourceNode: "p", SourceSlot: "out", SinkNode: "c", SinkSlot: "in0"})
	})
	g.ConnectDeferred("second", func(gr *Graph) error {
		resolveOrder = append(resolveOrder, "second")
		return nil
	})

	if err := g.Compile(); err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	if len(resolveOrder) != 2 || resolveOrder[0] != "first" || resolveOrder[1] != "second" {
		t.Fatalf("deferred connections resolved out of order: %v", resolveOrder)
	}
}

func TestDeferredConnectionFailureAbortsCompile(t *testing.T) {
	g := testGraph()
	if _, err := g.AddNode("p", passthroughType(MutabilityWO)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g.ConnectDeferred("broken", func(gr *Graph) error {
		return corerrTestError{}
	})
	if err := g.Compile(); err == nil {
		t.Fatalf("expected compile to fail when a deferred connection errors")
	}
}

type corerrTestError struct{}

func (corerrTestError) Error() string { return "deferred connection intentionally failed" }
