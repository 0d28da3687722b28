// Package codec turns composite setting values into bytes and back.
// A codec-backed setting (prefs.Encoded) stores its payload as a raw-bytes
// primitive, so any of these can carry records, enums or protobuf messages.
package codec

// Codec is the byte form of one setting value. Encode errors fail the write;
// Decode errors make the setting report a decode failure and serve its default.
// Implementations must be safe for concurrent use.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Func builds a Codec from two funcs, for one-off formats that do not
// deserve a named type.
type Func[V any] struct {
	Enc func(V) ([]byte, error)
	Dec func([]byte) (V, error)
}

func (f Func[V]) Encode(v V) ([]byte, error) { return f.Enc(v) }
func (f Func[V]) Decode(b []byte) (V, error) { return f.Dec(b) }
