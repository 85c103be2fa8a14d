package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/spaghettifunk/vixen/internal/corelog"
	"github.com/spaghettifunk/vixen/internal/corerr"
	"github.com/spaghettifunk/vixen/internal/lifetime"
)

// entry pairs a cached Shared with the byte cost it counts against its
// cache's budget, so eviction can reason about bytes rather than item
// count (spec.md section 4.4: "LRU eviction under byte budget").
type entry struct {
	shared *lifetime.Shared
	bytes  uint64
}

// Cache is one type-tagged namespace of the registry: single-flighted
// get-or-create over a byte-budgeted LRU. A pinned entry (RefCount() > 0
// beyond the cache's own hold) is never evicted even if it becomes the
// least-recently-used item (spec.md section 4.4: "pinned while
// referenced").
type Cache struct {
	tag      TypeTag
	budget   uint64
	mu       sync.Mutex
	used     uint64
	order    *lru.Cache[Key, *entry]
	flight   singleflight.Group
	evicted  uint64 // count, for diagnostics/tests
}

// New constructs a Cache for tag with the given byte budget. capacityHint
// bounds the underlying LRU's slot count (a generous overestimate is fine;
// real eviction is governed by budget, not slot count).
func New(tag TypeTag, budgetBytes uint64, capacityHint int) *Cache {
	if capacityHint <= 0 {
		capacityHint = 256
	}
	c := &Cache{tag: tag, budget: budgetBytes}
	order, err := lru.New[Key, *entry](capacityHint)
	if err != nil {
		// Only returns an error for a non-positive size, which capacityHint
		// is guarded against above.
		panic(err)
	}
	c.order = order
	return c
}

// Creator builds the Shared for a cache miss. It must not itself call back
// into the same Cache for the same key (no reentrant get_or_create).
type Creator func(ctx context.Context) (*lifetime.Shared, uint64, error)

// GetOrCreate returns the cached Shared for key, building it via create
// exactly once even under concurrent callers requesting the same key
// (spec.md section 4.4 property 5, single-flight). The returned Shared has
// already been Cloned for the caller; callers own a reference and must
// Drop it when done.
func (c *Cache) GetOrCreate(ctx context.Context, key Key, create Creator) (*lifetime.Shared, error) {
	c.mu.Lock()
	if e, ok := c.order.Get(key); ok {
		c.mu.Unlock()
		return e.shared.Clone(), nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(key.String(), func() (interface{}, error) {
		// Re-check under the single-flight group in case another caller's
		// in-flight build finished between our miss above and now.
		c.mu.Lock()
		if e, ok := c.order.Get(key); ok {
			c.mu.Unlock()
			return e.shared, nil
		}
		c.mu.Unlock()

		shared, bytes, err := create(ctx)
		if err != nil {
			return nil, corerr.CacheBuildFailed(key.String(), err)
		}

		c.mu.Lock()
		c.order.Add(key, &entry{shared: shared, bytes: bytes})
		c.used += bytes
		c.mu.Unlock()

		return shared, nil
	})
	if err != nil {
		return nil, err
	}
	// Clone before evicting so the caller's reference pins the entry.
	s := v.(*lifetime.Shared).Clone()
	c.evictUnderBudget()
	return s, nil
}

// evictUnderBudget drops least-recently-used entries until the cache is
// within budget or every remaining entry is pinned. Pinned entries
// (RefCount() > 1, i.e. held by someone beyond the cache's own reference)
// are left in place: they are skipped for the rest of the current pass by
// moving them to most-recently-used. If a full pass over the cache evicts
// nothing, the remaining entries are all pinned and we stop rather than
// spin forever re-touching the same two-or-more pinned entries.
func (c *Cache) evictUnderBudget() {
	c.mu.Lock()
	defer c.mu.Unlock()

	skipped := 0
	for c.used > c.budget {
		key, e, ok := c.order.GetOldest()
		if !ok {
			return
		}
		if e.shared.RefCount() > 1 {
			// Pinned: move it to most-recently-used so this pass makes
			// progress against the next-oldest entry instead of spinning.
			c.order.Get(key)
			skipped++
			if skipped >= c.order.Len() {
				// Every remaining entry has been visited and skipped this
				// pass; all of them are pinned, so stop rather than spin.
				return
			}
			continue
		}
		c.order.Remove(key)
		c.used -= e.bytes
		c.evicted++
		frameIndex := uint64(0)
		e.shared.Drop(frameIndex)
		corelog.Debug("cache %s evicted %s (%d bytes)", c.tag, key, e.bytes)
		skipped = 0
	}
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Used reports current accounted byte usage.
func (c *Cache) Used() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Evicted reports how many entries have been evicted over the cache's
// lifetime, for tests asserting eviction actually happened.
func (c *Cache) Evicted() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evicted
}

// Registry is the process-scoped map from TypeTag to its Cache, mirroring
// spec.md section 4.4's "process-scoped registry keyed by resource type".
type Registry struct {
	mu     sync.Mutex
	caches map[TypeTag]*Cache
}

// NewRegistry constructs an empty registry. Caches are created lazily on
// first use via For.
func NewRegistry() *Registry {
	return &Registry{caches: make(map[TypeTag]*Cache)}
}

// For returns the Cache for tag, creating it with budgetBytes if it does
// not already exist. Subsequent calls with a different budgetBytes value
// do not resize an already-created cache.
func (r *Registry) For(tag TypeTag, budgetBytes uint64) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.caches[tag]
	if !ok {
		c = New(tag, budgetBytes, 256)
		r.caches[tag] = c
	}
	return c
}
