package dualstore

import (
	"context"
	"errors"
	"time"

	c "github.com/unkn0wn-root/dualstore/codec"
	pr "github.com/unkn0wn-root/dualstore/provider"
)

// DurableStore is the relational system of record. Implementations report a missing row
// from FindByIdentity as ErrNotFound (or a *NotFoundError) and a unique violation on
// Insert as ErrDuplicateEntity (or a *DuplicateEntityError).
type DurableStore[R Record, N NewRecord[R], C Changeset[R]] interface {
	Insert(ctx context.Context, n N) (R, error)
	Update(ctx context.Context, this R, change C) (R, error)
	FindByIdentity(ctx context.Context, id Identity) (R, error)
	// FindOptionalByIdentity returns (zero, false, nil) when nothing matches.
	FindOptionalByIdentity(ctx context.Context, id Identity) (R, bool, error)
}

// Options configure a Store. Entity, Cache and Durable are required.
type Options[R Record, N NewRecord[R], C Changeset[R]] struct {
	// Required
	Entity  string // used in errors, logs and change records. e.g. "payouts"
	Cache   pr.Port
	Durable DurableStore[R, N, C]

	KeyPrefix string           // shard/field key prefix; "" => Entity
	Codec     c.Codec[R]       // cache value codec; nil => JSON
	Logger    Logger           // if nil, NopLogger is used
	Hooks     Hooks            // if nil, NopHooks is used
	Clock     func() time.Time // nil => UTC now truncated to microseconds
}

func New[R Record, N NewRecord[R], C Changeset[R]](opts Options[R, N, C]) (*Store[R, N, C], error) {
	if opts.Entity == "" {
		return nil, errors.New("dualstore: entity is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("dualstore: cache port is required")
	}
	if opts.Durable == nil {
		return nil, errors.New("dualstore: durable store is required")
	}

	s := &Store[R, N, C]{
		entity:  opts.Entity,
		prefix:  coalesce(opts.KeyPrefix, opts.Entity),
		cache:   opts.Cache,
		durable: opts.Durable,
		now:     opts.Clock,
	}

	// defaults
	s.codec = coalesce[c.Codec[R]](opts.Codec, c.JSON[R]{})
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	if s.now == nil {
		s.now = defaultClock
	}
	return s, nil
}
