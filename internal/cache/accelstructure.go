package cache

import (
	"context"

	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// AccelStructureCache caches built acceleration structures (BVH/TLAS-style
// voxel bricking trees, per spec.md's render-graph leaf nodes) keyed by
// geometry descriptor content hash. These are typically the most expensive
// cache misses in the registry, which is why single-flight get_or_create
// matters most here: a scene switch should never trigger N redundant
// builds from N waves racing to resolve the same geometry input.
type AccelStructureCache struct{ c *Cache }

func NewAccelStructureCache(reg *Registry, budgetBytes uint64) *AccelStructureCache {
	return &AccelStructureCache{c: reg.For(TagAccelStructure, budgetBytes)}
}

func (l *AccelStructureCache) Get(ctx context.Context, desc resource.Descriptor, build Creator) (*lifetime.Shared, error) {
	key, err := KeyOf(TagAccelStructure, desc)
	if err != nil {
		return nil, err
	}
	return l.c.GetOrCreate(ctx, key, build)
}
