// Package cache implements the content-addressed cache registry: one
// process-scoped registry keyed by resource type, each backed by an LRU
// under a hard byte budget, with single-flight creation so concurrent
// lookups for the same key build the underlying resource exactly once.
package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/spaghettifunk/vixen/internal/resource"
)

// TypeTag names one of the cacheable GPU object kinds (spec.md section
// 4.4): each tag owns an independent LRU/byte-budget namespace so, e.g.,
// evicting pipelines never touches descriptor set layouts.
type TypeTag string

const (
	TagDescriptorSetLayout TypeTag = "descriptor-set-layout"
	TagPipelineLayout      TypeTag = "pipeline-layout"
	TagComputePipeline     TypeTag = "compute-pipeline"
	TagGraphicsPipeline    TypeTag = "graphics-pipeline"
	TagScene               TypeTag = "scene"
	TagAccelStructure      TypeTag = "accel-structure"
)

// Key is the stable, deterministic identity of a cache entry: the content
// hash of its descriptor plus the tag, so collisions across tags (two
// different object kinds hashing the same bytes) can never alias.
type Key struct {
	Tag  TypeTag
	Hash uint64
}

func (k Key) String() string { return fmt.Sprintf("%s:%016x", k.Tag, k.Hash) }

// KeyOf derives a deterministic cache key from a descriptor's content hash.
// Descriptors are responsible for sorting their own collections and
// bit-casting floats before hashing (spec.md section 4.4); KeyOf only mixes
// the tag in so identical bytes under different tags never collide.
func KeyOf(tag TypeTag, desc resource.Descriptor) (Key, error) {
	h, err := desc.ContentHash()
	if err != nil {
		return Key{}, fmt.Errorf("cache: hash descriptor for key: %w", err)
	}
	return Key{Tag: tag, Hash: mix(tag, h)}, nil
}

// KeyOfBytes derives a key directly from an already-serialized byte blob
// (used by caches whose identity is not a resource.Descriptor, e.g. a scene
// keyed by its source file content).
func KeyOfBytes(tag TypeTag, b []byte) Key {
	return Key{Tag: tag, Hash: mix(tag, xxhash.Sum64(b))}
}

func mix(tag TypeTag, h uint64) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(string(tag))
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(h >> (8 * i))
	}
	_, _ = d.Write(buf[:])
	return d.Sum64()
}
