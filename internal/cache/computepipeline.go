package cache

import (
	"context"

	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// ComputePipelineCache caches built compute pipelines keyed by shader bundle
// hash plus specialization constants. Compute pipeline builds are the most
// frequent of the pipeline caches (a dispatch node rebuilds on every shader
// hot-reload), so it gets its own namespace rather than sharing one with
// graphics pipelines.
type ComputePipelineCache struct{ c *Cache }

func NewComputePipelineCache(reg *Registry, budgetBytes uint64) *ComputePipelineCache {
	return &ComputePipelineCache{c: reg.For(TagComputePipeline, budgetBytes)}
}

func (l *ComputePipelineCache) Get(ctx context.Context, desc resource.Descriptor, build Creator) (*lifetime.Shared, error) {
	key, err := KeyOf(TagComputePipeline, desc)
	if err != nil {
		return nil, err
	}
	return l.c.GetOrCreate(ctx, key, build)
}
