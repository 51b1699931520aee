package util

import "strings"

// ShardKey groups every field of one tenant and record into a single hash:
// mid_<tenant>_<prefix>_<record>.
func ShardKey(prefix, tenantID, recordID string) string {
	var b strings.Builder
	b.Grow(4 + len(tenantID) + 1 + len(prefix) + 1 + len(recordID))
	b.WriteString("mid_")
	b.WriteString(tenantID)
	b.WriteByte('_')
	b.WriteString(prefix)
	b.WriteByte('_')
	b.WriteString(recordID)
	return b.String()
}

// FieldKey identifies one record inside its shard: <prefix>_<record>.
func FieldKey(prefix, recordID string) string {
	return prefix + "_" + recordID
}
