package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is wrapped by LimitCodec when a payload exceeds its bound.
var ErrTooLarge = errors.New("codec: payload too large")

// LimitCodec bounds payload sizes around Inner. A bound <= 0 disables that check.
//
// MaxDecode protects readers against oversized values in a shared cache; MaxEncode keeps
// writers under the backend's item limit (1 MiB on a default memcached).
type LimitCodec[V any] struct {
	Inner     Codec[V]
	MaxEncode int
	MaxDecode int
}

func (c LimitCodec[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.MaxEncode > 0 && len(b) > c.MaxEncode {
		return nil, fmt.Errorf("%w: encoded %d > %d", ErrTooLarge, len(b), c.MaxEncode)
	}
	return b, nil
}

func (c LimitCodec[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
