// Package dualstore implements a dual-backend consistency adapter: one record kind served
// either purely from a durable relational store, or from a key-value cache tier that the
// durable store catches up with asynchronously. The tier is chosen per call from the
// tenant's StorageScheme.
//
// Components:
//   - provider.Port: hash-field primitives (SetNX, HSet, HGet) scoped to a shard key. Every
//     write carries a changelog.Record the port queues for durable catch-up.
//   - DurableStore[R, N, C]: CRUD by identity against the relational store.
//   - Codec[R]: (de)serializes records for the cache tier.
//   - Store[R, N, C]: the adapter. Inserts are exclusive through SetNX, updates are
//     last-writer-wins field sets, reads fall back from cache to durable store.
//
// Keys:
//
//	mid_<tenant>_<prefix>_<record>  - shard key (hash)
//	<prefix>_<record>               - field key inside the shard
//
// Write pattern (CacheAccelerated):
//
//	created, err := store.Insert(ctx, n, dualstore.CacheAccelerated)
//	// errors.Is(err, dualstore.ErrDuplicateEntity) when the field already existed
//	next, err := store.Update(ctx, created, change, dualstore.CacheAccelerated)
package dualstore
