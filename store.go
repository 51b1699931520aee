package dualstore

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/dualstore/changelog"
	c "github.com/unkn0wn-root/dualstore/codec"
	"github.com/unkn0wn-root/dualstore/internal/util"
	"github.com/unkn0wn-root/dualstore/internal/wire"
	pr "github.com/unkn0wn-root/dualstore/provider"
)

// Store serves one record kind from the durable store or the cache tier, chosen per call
// by the tenant's StorageScheme. A Store holds no mutable state and is safe for
// concurrent use; insert exclusivity comes from the Port's SetNX.
type Store[R Record, N NewRecord[R], C Changeset[R]] struct {
	entity  string
	prefix  string
	cache   pr.Port
	durable DurableStore[R, N, C]
	codec   c.Codec[R]
	log     Logger
	hooks   Hooks
	now     func() time.Time
}

// Entity returns the entity name used in errors and change records.
func (s *Store[R, N, C]) Entity() string { return s.entity }

// Close closes the cache port. The durable store is owned by the caller.
func (s *Store[R, N, C]) Close(ctx context.Context) error { return s.cache.Close(ctx) }

// Insert creates a record. Under CacheAccelerated the record is materialized locally and
// written with SetNX; an existing field yields *DuplicateEntityError carrying the shard key.
// Cache failures are returned as *CacheBackendError and never retried against the durable
// store.
func (s *Store[R, N, C]) Insert(ctx context.Context, n N, scheme StorageScheme) (R, error) {
	return route(scheme,
		func() (R, error) {
			r, err := s.durable.Insert(ctx, n)
			if err != nil {
				var zero R
				return zero, durableErr("insert", s.entity, n.Identity(), err)
			}
			return r, nil
		},
		func() (R, error) { return s.insertCached(ctx, n) },
	)
}

func (s *Store[R, N, C]) insertCached(ctx context.Context, n N) (R, error) {
	var zero R
	id := n.Identity()
	shard, field := s.keys(id)

	record := n.Materialize(s.now())
	value, err := s.encode(record)
	if err != nil {
		return zero, err
	}
	change, err := changelog.NewInsert(s.entity, shard, n)
	if err != nil {
		return zero, &SerializationError{Entity: s.entity, Err: err}
	}

	reply, err := s.cache.SetNX(ctx, shard, field, value, change)
	if err != nil {
		s.writeFailed("insert", shard, err)
		return zero, &CacheBackendError{Op: "insert", Key: shard, Err: err}
	}
	switch reply {
	case pr.KeySet:
		return record, nil
	case pr.KeyNotSet:
		s.hooks.DuplicateInsert(s.entity, shard)
		s.log.Debug("insert found existing field", Fields{"entity": s.entity, "shard": shard, "field": field})
		return zero, &DuplicateEntityError{Entity: s.entity, Key: shard}
	default:
		err := errors.New("unexpected setnx reply " + reply.String())
		s.writeFailed("insert", shard, err)
		return zero, &CacheBackendError{Op: "insert", Key: shard, Err: err}
	}
}

// Update applies change to this. Under CacheAccelerated the new record is computed
// locally and written with HSet; the change record carries this (pre-mutation) and the
// changeset. Concurrent updates of one record are last-writer-wins.
func (s *Store[R, N, C]) Update(ctx context.Context, this R, change C, scheme StorageScheme) (R, error) {
	return route(scheme,
		func() (R, error) {
			r, err := s.durable.Update(ctx, this, change)
			if err != nil {
				var zero R
				return zero, durableErr("update", s.entity, this.Identity(), err)
			}
			return r, nil
		},
		func() (R, error) { return s.updateCached(ctx, this, change) },
	)
}

func (s *Store[R, N, C]) updateCached(ctx context.Context, this R, change C) (R, error) {
	var zero R
	shard, field := s.keys(this.Identity())

	// capture the pre-mutation record before the cache is touched
	rec, err := changelog.NewUpdate(s.entity, shard, this, change.Variant(), change)
	if err != nil {
		return zero, &SerializationError{Entity: s.entity, Err: err}
	}
	next := change.Apply(this)
	value, err := s.encode(next)
	if err != nil {
		return zero, err
	}

	if err := s.cache.HSet(ctx, shard, field, value, rec); err != nil {
		s.writeFailed("update", shard, err)
		return zero, &CacheBackendError{Op: "update", Key: shard, Err: err}
	}
	return next, nil
}

// FindByIdentity returns the record or a *NotFoundError. Under CacheAccelerated a cache
// hit is returned as is; a miss or any cache failure reads through to the durable store,
// whose outcome is final.
func (s *Store[R, N, C]) FindByIdentity(ctx context.Context, id Identity, scheme StorageScheme) (R, error) {
	durable := func() (R, error) {
		r, err := s.durable.FindByIdentity(ctx, id)
		if err != nil {
			var zero R
			return zero, durableErr("find", s.entity, id, err)
		}
		return r, nil
	}
	return route(scheme, durable, func() (R, error) {
		if r, ok := s.lookup(ctx, "find", id); ok {
			return r, nil
		}
		return durable()
	})
}

// optional carries FindOptionalByIdentity results through route.
type optional[R any] struct {
	v  R
	ok bool
}

// FindOptionalByIdentity is FindByIdentity with an empty result instead of not-found.
// A record returned by the durable store whose identity differs from id is discarded.
func (s *Store[R, N, C]) FindOptionalByIdentity(ctx context.Context, id Identity, scheme StorageScheme) (R, bool, error) {
	durable := func() (optional[R], error) {
		r, ok, err := s.durable.FindOptionalByIdentity(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return optional[R]{}, nil
			}
			return optional[R]{}, durableErr("find_optional", s.entity, id, err)
		}
		if !ok {
			return optional[R]{}, nil
		}
		if got := r.Identity(); got != id {
			s.hooks.IdentityMismatch(s.entity, id.String(), got.String())
			s.log.Warn("durable store returned a different record", Fields{
				"entity": s.entity, "requested": id.String(), "returned": got.String(),
			})
			return optional[R]{}, nil
		}
		return optional[R]{v: r, ok: true}, nil
	}
	res, err := route(scheme, durable, func() (optional[R], error) {
		if r, ok := s.lookup(ctx, "find_optional", id); ok {
			return optional[R]{v: r, ok: true}, nil
		}
		return durable()
	})
	return res.v, res.ok, err
}

// lookup reads the cache tier. ok=false means "consult the durable store"; the reason is
// reported to hooks and never returned.
func (s *Store[R, N, C]) lookup(ctx context.Context, op string, id Identity) (R, bool) {
	var zero R
	shard, field := s.keys(id)

	raw, ok, err := s.cache.HGet(ctx, shard, field)
	if err != nil {
		s.fallback(op, shard, "backend_error", err)
		return zero, false
	}
	if !ok {
		s.fallback(op, shard, "miss", nil)
		return zero, false
	}
	payload, err := wire.DecodeRecord(raw)
	if err != nil {
		s.fallback(op, shard, "corrupt", err)
		return zero, false
	}
	r, err := s.codec.Decode(payload)
	if err != nil {
		s.fallback(op, shard, "value_decode", err)
		return zero, false
	}
	return r, true
}

func (s *Store[R, N, C]) fallback(op, shard, reason string, err error) {
	s.hooks.CacheReadFallback(op, shard, reason)
	f := Fields{"entity": s.entity, "op": op, "shard": shard, "reason": reason}
	if err == nil {
		s.log.Debug("cache read fell back to durable store", f)
		return
	}
	f["err"] = err
	s.log.Warn("cache read failed, falling back to durable store", f)
}

func (s *Store[R, N, C]) writeFailed(op, shard string, err error) {
	s.hooks.CacheWriteFailed(op, shard, err)
	s.log.Error("cache write failed", Fields{"entity": s.entity, "op": op, "shard": shard, "err": err})
}

func (s *Store[R, N, C]) encode(r R) ([]byte, error) {
	payload, err := s.codec.Encode(r)
	if err != nil {
		return nil, &SerializationError{Entity: s.entity, Err: err}
	}
	return wire.EncodeRecord(payload), nil
}

func (s *Store[R, N, C]) keys(id Identity) (shard, field string) {
	return util.ShardKey(s.prefix, id.TenantID, id.RecordID), util.FieldKey(s.prefix, id.RecordID)
}
