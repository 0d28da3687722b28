package prefs

import (
	"github.com/unkn0wn-root/prefs/codec"
	"github.com/unkn0wn-root/prefs/internal/wire"
)

func Bool(r *Registry, key string, def bool) *Setting[bool] {
	return Define(r, Definition[bool, bool]{Key: key, Default: def})
}

func String(r *Registry, key string, def string) *Setting[string] {
	return Define(r, Definition[string, string]{Key: key, Default: def})
}

func Float(r *Registry, key string, def float64) *Setting[float64] {
	return Define(r, Definition[float64, float64]{Key: key, Default: def})
}

// StringSet stores members sorted; read order is not insertion order.
func StringSet(r *Registry, key string, def []string) *Setting[[]string] {
	return Define(r, Definition[[]string, []string]{Key: key, Default: def})
}

// Int64 reads a legacy float under the key as its truncation.
func Int64(r *Registry, key string, def int64) *Setting[int64] {
	return Define(r, Definition[int64, int64]{Key: key, Default: def, CoerceNumeric: true})
}

// Int is Int64 narrowed to int.
func Int(r *Registry, key string, def int) *Setting[int] {
	return Define(r, Definition[int, int64]{
		Key:           key,
		Default:       def,
		Parse:         func(v int64) (int, error) { return int(v), nil },
		Serialize:     func(v int) int64 { return int64(v) },
		CoerceNumeric: true,
	})
}

// Object stores T as the string produced by format. A parse error makes Get
// serve def.
func Object[T any](r *Registry, key string, def T, parse func(string) (T, error), format func(T) string) *Setting[T] {
	return Define(r, Definition[T, string]{Key: key, Default: def, Parse: parse, Serialize: format})
}

// Encoded stores T as raw bytes produced by c. An Encode error fails Set.
func Encoded[T any](r *Registry, key string, def T, c codec.Codec[T]) *Setting[T] {
	return newSetting(r, key, def, nil,
		func(v T) (wire.Value, error) {
			b, err := c.Encode(v)
			if err != nil {
				return wire.Value{}, err
			}
			return wire.Bytes(b), nil
		},
		func(w wire.Value) (T, bool, error) {
			var zero T
			if w.Kind != wire.KindBytes {
				return zero, false, nil
			}
			v, err := c.Decode(w.Bytes)
			return v, true, err
		})
}
