// Package codec converts values to and from the bytes stored in the cache tier and in
// change-log sinks.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
