package cache

import (
	"context"

	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// PipelineLayoutCache caches pipeline layouts keyed by their push-constant
// range and descriptor set layout composition.
type PipelineLayoutCache struct{ c *Cache }

func NewPipelineLayoutCache(reg *Registry, budgetBytes uint64) *PipelineLayoutCache {
	return &PipelineLayoutCache{c: reg.For(TagPipelineLayout, budgetBytes)}
}

func (l *PipelineLayoutCache) Get(ctx context.Context, desc resource.Descriptor, build Creator) (*lifetime.Shared, error) {
	key, err := KeyOf(TagPipelineLayout, desc)
	if err != nil {
		return nil, err
	}
	return l.c.GetOrCreate(ctx, key, build)
}
