package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

var errNoConstructor = errors.New("codec: Protobuf needs a message constructor; use NewProtobuf")

// Protobuf stores a proto.Message, e.g. a settings schema shared with other
// services. Encoding is deterministic so an unchanged message rewrites the
// same bytes. Decode returns a fresh message per call and keeps unknown
// fields, so a round trip through an older schema does not lose data.
type Protobuf[T proto.Message] struct {
	new func() T
}

// NewProtobuf takes the constructor of the concrete message,
// e.g. func() *settingspb.Theme { return &settingspb.Theme{} }.
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	if c.new == nil {
		var zero T
		return zero, errNoConstructor
	}
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
