package util

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const stripeCount = 64

// Stripes serializes check-then-set sequences per key for in-process providers
// without one global lock. The zero value is ready to use.
type Stripes struct {
	mu [stripeCount]sync.Mutex
}

func (s *Stripes) For(key string) *sync.Mutex {
	return &s.mu[xxhash.Sum64String(key)%stripeCount]
}

// CompositeKey flattens a hash field into a single key for stores without hashes.
// 0x1f (unit separator) never appears in shard or field keys.
func CompositeKey(shardKey, field string) string {
	return shardKey + "\x1f" + field
}
