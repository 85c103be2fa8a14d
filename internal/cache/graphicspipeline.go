package cache

import (
	"context"

	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// GraphicsPipelineCache caches built graphics pipelines keyed by shader
// bundle hash, vertex input state, and render pass compatibility.
type GraphicsPipelineCache struct{ c *Cache }

func NewGraphicsPipelineCache(reg *Registry, budgetBytes uint64) *GraphicsPipelineCache {
	return &GraphicsPipelineCache{c: reg.For(TagGraphicsPipeline, budgetBytes)}
}

func (l *GraphicsPipelineCache) Get(ctx context.Context, desc resource.Descriptor, build Creator) (*lifetime.Shared, error) {
	key, err := KeyOf(TagGraphicsPipeline, desc)
	if err != nil {
		return nil, err
	}
	return l.c.GetOrCreate(ctx, key, build)
}
