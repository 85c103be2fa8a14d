package cache

import (
	"context"

	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// DescriptorSetLayoutCache caches built descriptor set layouts keyed by the
// content hash of their binding descriptor (spec.md section 4.4: compiled
// pipeline state is cached across frames and across graph recompiles).
type DescriptorSetLayoutCache struct{ c *Cache }

// NewDescriptorSetLayoutCache wraps reg's descriptor-set-layout namespace.
func NewDescriptorSetLayoutCache(reg *Registry, budgetBytes uint64) *DescriptorSetLayoutCache {
	return &DescriptorSetLayoutCache{c: reg.For(TagDescriptorSetLayout, budgetBytes)}
}

// Get returns the cached layout for desc, building it via build on a miss.
func (l *DescriptorSetLayoutCache) Get(ctx context.Context, desc resource.Descriptor, build Creator) (*lifetime.Shared, error) {
	key, err := KeyOf(TagDescriptorSetLayout, desc)
	if err != nil {
		return nil, err
	}
	return l.c.GetOrCreate(ctx, key, build)
}
