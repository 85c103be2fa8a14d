package frame

import (
	"context"

	"github.com/spaghettifunk/vixen/internal/cache"
	"github.com/spaghettifunk/vixen/internal/eventbus"
	"github.com/spaghettifunk/vixen/internal/graph"
	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/memory"
	"github.com/spaghettifunk/vixen/internal/resource"
)

func testGraphForFrame() *graph.Graph {
	deps := graph.Deps{
		Budget: memory.NewBudget(nil),
		Caches: cache.NewRegistry(),
		Queue:  lifetime.NewDeferredQueue(2),
	}
	return graph.New(context.Background(), eventbus.New(0), deps)
}

// framePassthroughType is a minimal node type that produces one output by
// allocating a dummy buffer resource, enough to drive a compiled execution
// plan through the frame scheduler without any concrete GPU API.
func framePassthroughType() *graph.Type {
	return &graph.Type{
		Name:    "passthrough",
		Outputs: []graph.SlotSpec{{Name: "out", Type: "res", Mutability: graph.MutabilityWO}},
		Compile: func(c *graph.Context) error {
			v, err := resource.Make(&resource.BufferDescriptor{Size: 64})
			if err != nil {
				return err
			}
			c.SetOutput("out", lifetime.NewShared(c.NodeName(), v, nil, func(uint64) {}))
			return nil
		},
	}
}
