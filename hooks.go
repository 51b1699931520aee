package dualstore

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The store calls them on hot paths.
type Hooks interface {
	// A cache read did not produce a value and the durable store was consulted.
	// reason ∈ {"miss", "backend_error", "corrupt", "value_decode"}
	CacheReadFallback(op, shardKey, reason string)

	// SetNX reported the field already existed.
	DuplicateInsert(entity, shardKey string)

	// A cache write (insert or update) failed and was surfaced to the caller.
	CacheWriteFailed(op, shardKey string, err error)

	// The durable store returned a record whose id differs from the requested one.
	IdentityMismatch(entity, requested, returned string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CacheReadFallback(string, string, string) {}
func (NopHooks) DuplicateInsert(string, string)           {}
func (NopHooks) CacheWriteFailed(string, string, error)   {}
func (NopHooks) IdentityMismatch(string, string, string)  {}
