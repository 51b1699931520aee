package dualstore

import "time"

// Identity is the composite key of every record kind served by a Store.
type Identity struct {
	TenantID string
	RecordID string
}

func (id Identity) String() string { return id.TenantID + "/" + id.RecordID }

// Record is a fully-populated domain entity.
type Record interface {
	Identity() Identity
}

// NewRecord is the minimal input of an insert. Materialize fills every defaulted
// field (timestamps) from now.
type NewRecord[R any] interface {
	Identity() Identity
	Materialize(now time.Time) R
}

// Changeset is one variant of a closed update set. Apply must be pure and must not
// change the record's identity. Variant names the variant in change records.
type Changeset[R any] interface {
	Apply(R) R
	Variant() string
}
