package changelog

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/dualstore/codec"
)

// JSONCodec is the default encoding of records in sinks and drainer streams.
var JSONCodec codec.Codec[Record] = codec.JSON[Record]{}

// StructCodec encodes records as a google.protobuf.Struct, for drainers that consume
// protobuf. Numbers inside the payloads travel as doubles. Construct with NewStructCodec.
type StructCodec struct {
	pb codec.Protobuf[*structpb.Struct]
}

var _ codec.Codec[Record] = StructCodec{}

func NewStructCodec() StructCodec {
	return StructCodec{pb: codec.NewStruct()}
}

func (c StructCodec) Encode(r Record) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("changelog: struct encode: %w", err)
	}
	return c.pb.Encode(s)
}

func (c StructCodec) Decode(b []byte) (Record, error) {
	s, err := c.pb.Decode(b)
	if err != nil {
		return Record{}, err
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return Record{}, err
	}
	var r Record
	err = json.Unmarshal(raw, &r)
	return r, err
}
