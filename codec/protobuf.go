package codec

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Protobuf encodes messages with deterministic proto.Marshal so equal messages produce
// equal bytes. The zero value works for generated message pointers; NewProtobuf is only
// needed when messages must come from a custom constructor.
type Protobuf[T proto.Message] struct {
	new func() T
}

var _ Codec[*structpb.Struct] = Protobuf[*structpb.Struct]{}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

// NewStruct returns the codec for google.protobuf.Struct, the envelope change records
// travel in when a drainer consumes protobuf.
func NewStruct() Protobuf[*structpb.Struct] {
	return NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.message()
	err := proto.Unmarshal(b, m)
	return m, err
}

func (c Protobuf[T]) message() T {
	if c.new != nil {
		return c.new()
	}
	var zero T
	return zero.ProtoReflect().New().Interface().(T)
}
