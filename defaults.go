package dualstore

import "time"

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// defaultClock matches the microsecond precision of the durable store so a record
// materialized for the cache compares equal to the row the drainer later writes.
func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
