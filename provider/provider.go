// Package provider defines the cache-tier operations consumed by dualstore.
//
// A Port stores opaque values in hash fields grouped by shard key. Implementations MUST be
// byte-for-byte transparent: HGet returns exactly the []byte previously written to the
// field. Every write carries a changelog.Record; the Port queues it for durable catch-up
// only when the write took effect (SetNX: only on KeySet).
//
// Important: the keyspace "mid_<tenant>_<prefix>_..." is owned by dualstore. External
// code MUST NOT write fields under these shard keys; foreign values are treated as
// corrupt and read through to the durable store.
package provider

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/dualstore/changelog"
)

// SetNXReply is the outcome of a set-if-absent.
type SetNXReply uint8

const (
	// KeySet means the field did not exist and now holds the value.
	KeySet SetNXReply = iota + 1
	// KeyNotSet means the field already existed and was left untouched.
	KeyNotSet
)

func (r SetNXReply) String() string {
	switch r {
	case KeySet:
		return "key_set"
	case KeyNotSet:
		return "key_not_set"
	default:
		return "unknown"
	}
}

// ErrRejected is returned when an in-process store refused a write under memory
// pressure. The value is not stored and no change record was queued.
var ErrRejected = errors.New("provider: write rejected")

// Port is the narrow hash-field API of the cache tier. Must be safe for concurrent use.
type Port interface {
	// SetNX sets field only if it does not exist. Exactly one concurrent caller per
	// (shardKey, field) observes KeySet.
	SetNX(ctx context.Context, shardKey, field string, value []byte, change changelog.Record) (SetNXReply, error)

	// HSet sets field unconditionally.
	HSet(ctx context.Context, shardKey, field string, value []byte, change changelog.Record) error

	// HGet returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	HGet(ctx context.Context, shardKey, field string) ([]byte, bool, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
