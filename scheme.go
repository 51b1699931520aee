package dualstore

import (
	"fmt"
	"strings"
)

// StorageScheme selects the tier a tenant's records are served from. The zero value is
// not a valid scheme; it is rejected with ErrUnknownScheme so a missing tenant setting
// fails loudly instead of silently picking a tier.
type StorageScheme uint8

const (
	// DurableOnly serves every operation from the DurableStore. No Port call is made.
	DurableOnly StorageScheme = iota + 1
	// CacheAccelerated writes to the cache tier (with a change record for catch-up) and
	// reads from it with durable fallback.
	CacheAccelerated
)

func (s StorageScheme) String() string {
	switch s {
	case DurableOnly:
		return "durable_only"
	case CacheAccelerated:
		return "cache_accelerated"
	default:
		return fmt.Sprintf("StorageScheme(%d)", uint8(s))
	}
}

// ParseStorageScheme accepts the canonical names and the legacy
// "postgres_only" / "redis_kv" spellings, case-insensitively.
func ParseStorageScheme(v string) (StorageScheme, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "durable_only", "postgres_only":
		return DurableOnly, nil
	case "cache_accelerated", "redis_kv":
		return CacheAccelerated, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownScheme, v)
	}
}

func (s StorageScheme) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownScheme, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *StorageScheme) UnmarshalText(b []byte) error {
	v, err := ParseStorageScheme(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s StorageScheme) Valid() bool { return s == DurableOnly || s == CacheAccelerated }

// route is the single tier decision point of every Store operation.
func route[T any](s StorageScheme, durable, cached func() (T, error)) (T, error) {
	switch s {
	case DurableOnly:
		return durable()
	case CacheAccelerated:
		return cached()
	default:
		var zero T
		return zero, fmt.Errorf("%w: %d", ErrUnknownScheme, uint8(s))
	}
}
