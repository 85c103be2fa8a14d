package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spaghettifunk/vixen/internal/lifetime"
	"github.com/spaghettifunk/vixen/internal/resource"
)

func newTestEntryShared(t *testing.T) (*lifetime.Shared, uint64) {
	t.Helper()
	v, err := resource.Make(&resource.BufferDescriptor{Size: 1024})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return lifetime.NewShared("entry", v, nil, func(uint64) {}), 1024
}

func TestGetOrCreateBuildsExactlyOnceUnderConcurrency(t *testing.T) {
	reg := NewRegistry()
	c := reg.For(TagComputePipeline, 1<<30)
	desc := &resource.BufferDescriptor{Size: 4096}
	key, err := KeyOf(TagComputePipeline, desc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var builds int32
	create := func(ctx context.Context) (*lifetime.Shared, uint64, error) {
		atomic.AddInt32(&builds, 1)
		s, bytes := newTestEntryShared(t)
		return s, bytes, nil
	}

	const n = 64
	var wg sync.WaitGroup
	results := make([]*lifetime.Shared, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := c.GetOrCreate(context.Background(), key, create)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[i] = s
		}(i)
	}
	wg.Wait()

	if builds != 1 {
		t.Fatalf("builds = %d, want exactly 1 for %d concurrent callers", builds, n)
	}
	for i, s := range results {
		if s == nil {
			t.Fatalf("result %d is nil", i)
		}
	}
}

func TestGetOrCreatePropagatesCreatorError(t *testing.T) {
	reg := NewRegistry()
	c := reg.For(TagScene, 1<<20)
	key := KeyOfBytes(TagScene, []byte("scene-a"))

	boom := func(ctx context.Context) (*lifetime.Shared, uint64, error) {
		return nil, 0, context.DeadlineExceeded
	}
	_, err := c.GetOrCreate(context.Background(), key, boom)
	if err == nil {
		t.Fatalf("expected error from failing creator")
	}
}

func TestEvictionRespectsByteBudget(t *testing.T) {
	reg := NewRegistry()
	c := reg.For(TagPipelineLayout, 2048) // fits at most two 1024-byte entries

	makeEntry := func(tag string) Creator {
		return func(ctx context.Context) (*lifetime.Shared, uint64, error) {
			s, bytes := newTestEntryShared(t)
			return s, bytes, nil
		}
	}

	for i := 0; i < 5; i++ {
		key := KeyOfBytes(TagPipelineLayout, []byte{byte(i)})
		s, err := c.GetOrCreate(context.Background(), key, makeEntry("x"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s.Drop(0)
	}

	if c.Used() > 2048 {
		t.Fatalf("Used() = %d, want <= 2048 after eviction", c.Used())
	}
	if c.Evicted() == 0 {
		t.Fatalf("expected at least one eviction once the budget was exceeded")
	}
}

func TestPinnedEntrySurvivesEviction(t *testing.T) {
	reg := NewRegistry()
	c := reg.For(TagDescriptorSetLayout, 1024) // room for exactly one entry

	pinnedKey := KeyOfBytes(TagDescriptorSetLayout, []byte("pinned"))
	pinned, err := c.GetOrCreate(context.Background(), pinnedKey, func(ctx context.Context) (*lifetime.Shared, uint64, error) {
		s, bytes := newTestEntryShared(t)
		return s, bytes, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pinned.Drop(0)

	for i := 0; i < 3; i++ {
		key := KeyOfBytes(TagDescriptorSetLayout, []byte{byte(100 + i)})
		if _, err := c.GetOrCreate(context.Background(), key, func(ctx context.Context) (*lifetime.Shared, uint64, error) {
			s, bytes := newTestEntryShared(t)
			return s, bytes, nil
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if pinned.RefCount() < 2 {
		t.Fatalf("pinned entry should still be referenced by both the caller and the cache")
	}
}

// TestEvictUnderBudgetStopsWhenEveryEntryIsPinned guards against a regression
// where evictUnderBudget would spin forever re-touching two or more pinned,
// over-budget entries instead of recognizing a full pass evicted nothing.
// A stuck evictUnderBudget would hang this test until the suite's timeout.
func TestEvictUnderBudgetStopsWhenEveryEntryIsPinned(t *testing.T) {
	reg := NewRegistry()
	c := reg.For(TagScene, 1024) // both entries together exceed this budget

	var held []*lifetime.Shared
	for i := 0; i < 2; i++ {
		key := KeyOfBytes(TagScene, []byte{byte(i)})
		s, err := c.GetOrCreate(context.Background(), key, func(ctx context.Context) (*lifetime.Shared, uint64, error) {
			s, bytes := newTestEntryShared(t)
			return s, bytes, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		held = append(held, s)
	}
	defer func() {
		for _, s := range held {
			s.Drop(0)
		}
	}()

	done := make(chan struct{})
	go func() {
		c.evictUnderBudget()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("evictUnderBudget did not return with two fully-pinned over-budget entries")
	}

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want both pinned entries left in place", c.Len())
	}
}
