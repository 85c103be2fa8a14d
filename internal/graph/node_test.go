package graph

import (
	"context"
	"testing"

	"github.com/spaghettifunk/vixen/internal/corerr"
)

func TestInstanceLifecycleStateTransitions(t *testing.T) {
	g := testGraph()
	n, err := g.AddNode("a", passthroughType(MutabilityWO))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.State() != StateUninit {
		t.Fatalf("new instance state = %v, want Uninit", n.State())
	}
	if err := n.runSetup(context.Background(), g, nil); err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	if n.State() != StateReady {
		t.Fatalf("state after setup = %v, want Ready", n.State())
	}
	if err := n.runCompile(context.Background(), g, nil); err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	if n.State() != StateValid {
		t.Fatalf("state after compile = %v, want Valid", n.State())
	}

	n.MarkDirty()
	if n.State() != StateDirty {
		t.Fatalf("state after MarkDirty = %v, want Dirty", n.State())
	}

	if err := n.runCompile(context.Background(), g, nil); err != nil {
		t.Fatalf("unexpected recompile error: %v", err)
	}
	if n.State() != StateValid {
		t.Fatalf("state after recompile = %v, want Valid", n.State())
	}

	n.runCleanup(context.Background(), g)
	if n.State() != StateDestroyed {
		t.Fatalf("state after cleanup = %v, want Destroyed", n.State())
	}
	// Cleanup must be idempotent; a second call should not panic or change
	// anything observable.
	n.runCleanup(context.Background(), g)
	if n.State() != StateDestroyed {
		t.Fatalf("state after second cleanup = %v, want Destroyed", n.State())
	}
}

func TestMarkDirtyOnlyAffectsValidNodes(t *testing.T) {
	g := testGraph()
	n, _ := g.AddNode("a", passthroughType(MutabilityWO))
	n.MarkDirty()
	if n.State() != StateUninit {
		t.Fatalf("MarkDirty on an Uninit node changed state to %v", n.State())
	}
}

func TestCleanupHooksRunInLIFOOrder(t *testing.T) {
	g := testGraph()
	n, _ := g.AddNode("a", passthroughType(MutabilityWO))
	var order []int
	n.RegisterCleanupHook(func() { order = append(order, 1) })
	n.RegisterCleanupHook(func() { order = append(order, 2) })
	n.RegisterCleanupHook(func() { order = append(order, 3) })
	n.runCleanup(context.Background(), g)
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Fatalf("cleanup hooks ran in order %v, want [3 2 1]", order)
	}
}

func TestMissingRequiredOutputFailsCompile(t *testing.T) {
	g := testGraph()
	badType := &Type{
		Name:    "badproducer",
		Outputs: []SlotSpec{{Name: "out", Type: "res", Mutability: MutabilityWO}},
		Compile: func(c *Context) error {
			// Never calls SetOutput, violating the required-output invariant.
			return nil
		},
	}
	n, _ := g.AddNode("a", badType)
	if err := n.runSetup(context.Background(), g, nil); err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	err := n.runCompile(context.Background(), g, nil)
	if err == nil {
		t.Fatalf("expected compile to fail on missing required output")
	}
	if _, ok := corerr.As[*corerr.MissingDependencyError](err); !ok {
		t.Fatalf("expected a MissingDependencyError, got %v (%T)", err, err)
	}
}

func TestNullableOutputMayBeLeftUnset(t *testing.T) {
	g := testGraph()
	okType := &Type{
		Name:    "nullableproducer",
		Outputs: []SlotSpec{{Name: "out", Type: "res", Mutability: MutabilityWO, Nullable: true}},
		Compile: func(c *Context) error { return nil },
	}
	n, _ := g.AddNode("a", okType)
	if err := n.runSetup(context.Background(), g, nil); err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	if err := n.runCompile(context.Background(), g, nil); err != nil {
		t.Fatalf("unexpected compile error for nullable unset output: %v", err)
	}
}
