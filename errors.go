package dualstore

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Every typed error below matches exactly one of them.
var (
	ErrDuplicateEntity = errors.New("dualstore: duplicate entity")
	ErrNotFound        = errors.New("dualstore: not found")
	ErrCacheBackend    = errors.New("dualstore: cache backend failure")
	ErrDurableStore    = errors.New("dualstore: durable store failure")
	ErrSerialization   = errors.New("dualstore: serialization failed")
	ErrUnknownScheme   = errors.New("dualstore: unknown storage scheme")
)

// DuplicateEntityError is returned when an insert hits a key already present in the
// active tier. Key is the shard key under CacheAccelerated.
type DuplicateEntityError struct {
	Entity string
	Key    string
}

func (e *DuplicateEntityError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("duplicate %s", e.Entity)
	}
	return fmt.Sprintf("duplicate %s: key %q already exists", e.Entity, e.Key)
}

func (e *DuplicateEntityError) Is(target error) bool { return target == ErrDuplicateEntity }

// NotFoundError is returned by identity lookups that found nothing in the durable store.
type NotFoundError struct {
	Entity string
	Key    string
	Err    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
func (e *NotFoundError) Unwrap() error        { return e.Err }

// CacheBackendError wraps any Port failure other than the "already exists" outcome.
type CacheBackendError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheBackendError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheBackendError) Is(target error) bool { return target == ErrCacheBackend }
func (e *CacheBackendError) Unwrap() error        { return e.Err }

// DurableStoreError wraps a DurableStore failure that is neither a duplicate nor a miss.
type DurableStoreError struct {
	Op  string
	Err error
}

func (e *DurableStoreError) Error() string {
	return fmt.Sprintf("durable %s: %v", e.Op, e.Err)
}

func (e *DurableStoreError) Is(target error) bool { return target == ErrDurableStore }
func (e *DurableStoreError) Unwrap() error        { return e.Err }

// SerializationError reports a failure encoding a record, a new record or a changeset.
type SerializationError struct {
	Entity string
	Err    error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Entity, e.Err)
}

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }
func (e *SerializationError) Unwrap() error        { return e.Err }

// durableErr keeps duplicate and not-found outcomes reported by the durable store intact
// and wraps everything else.
func durableErr(op, entity string, id Identity, err error) error {
	var dup *DuplicateEntityError
	if errors.As(err, &dup) {
		return err
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	if errors.Is(err, ErrDuplicateEntity) {
		return &DuplicateEntityError{Entity: entity, Key: id.String()}
	}
	if errors.Is(err, ErrNotFound) {
		return &NotFoundError{Entity: entity, Key: id.String(), Err: err}
	}
	return &DurableStoreError{Op: op, Err: err}
}
