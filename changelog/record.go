// Package changelog builds the durable catch-up payloads emitted for every mutation made
// through the cache tier, and the sinks that queue them for the drainer.
//
// A Record is self-contained: an insert carries the insertable new record, an update
// carries the record as it was before the mutation together with the changeset, so a
// replay engine can recompute the result on its own and detect drift.
package changelog

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

func (o Op) Valid() bool { return o == OpInsert || o == OpUpdate }

// Record describes one mutation. Construct with NewInsert or NewUpdate. Records are
// values; the raw JSON members are never modified after construction.
type Record struct {
	ID       uuid.UUID `json:"id"`
	Op       Op        `json:"op"`
	Entity   string    `json:"entity"`
	ShardKey string    `json:"shard_key"`

	// Insert
	Insertable json.RawMessage `json:"insertable,omitempty"`

	// Update
	Orig       json.RawMessage `json:"orig,omitempty"`
	Variant    string          `json:"variant,omitempty"`
	UpdateData json.RawMessage `json:"update_data,omitempty"`
}

// NewInsert describes "insert this record". insertable is typically the NewRecord the
// caller passed in, not the materialized record.
func NewInsert(entity, shardKey string, insertable any) (Record, error) {
	raw, err := json.Marshal(insertable)
	if err != nil {
		return Record{}, fmt.Errorf("changelog: encode insertable %s: %w", entity, err)
	}
	return Record{
		ID:         uuid.New(),
		Op:         OpInsert,
		Entity:     entity,
		ShardKey:   shardKey,
		Insertable: raw,
	}, nil
}

// NewUpdate describes "apply change (variant) to orig". orig must be the pre-mutation
// snapshot.
func NewUpdate(entity, shardKey string, orig any, variant string, change any) (Record, error) {
	o, err := json.Marshal(orig)
	if err != nil {
		return Record{}, fmt.Errorf("changelog: encode orig %s: %w", entity, err)
	}
	u, err := json.Marshal(change)
	if err != nil {
		return Record{}, fmt.Errorf("changelog: encode %s update %s: %w", entity, variant, err)
	}
	return Record{
		ID:         uuid.New(),
		Op:         OpUpdate,
		Entity:     entity,
		ShardKey:   shardKey,
		Orig:       o,
		Variant:    variant,
		UpdateData: u,
	}, nil
}

// Validate reports whether r carries the members its Op requires.
func (r Record) Validate() error {
	switch r.Op {
	case OpInsert:
		if len(r.Insertable) == 0 {
			return fmt.Errorf("changelog: insert %s without insertable", r.Entity)
		}
	case OpUpdate:
		if len(r.Orig) == 0 || len(r.UpdateData) == 0 || r.Variant == "" {
			return fmt.Errorf("changelog: update %s missing orig, variant or update_data", r.Entity)
		}
	default:
		return fmt.Errorf("changelog: unknown op %q", r.Op)
	}
	if r.Entity == "" || r.ShardKey == "" {
		return fmt.Errorf("changelog: record without entity or shard key")
	}
	return nil
}
