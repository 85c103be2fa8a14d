package cache

import (
	"context"

	"github.com/spaghettifunk/vixen/internal/lifetime"
)

// SceneCache caches parsed/uploaded scene data keyed by the hash of its
// source bytes, so re-running a benchmark against an unchanged scene file
// never re-parses or re-uploads it.
type SceneCache struct{ c *Cache }

func NewSceneCache(reg *Registry, budgetBytes uint64) *SceneCache {
	return &SceneCache{c: reg.For(TagScene, budgetBytes)}
}

// Get returns the cached scene built from source, building it via build on
// a miss.
func (l *SceneCache) Get(ctx context.Context, source []byte, build Creator) (*lifetime.Shared, error) {
	key := KeyOfBytes(TagScene, source)
	return l.c.GetOrCreate(ctx, key, build)
}
