package prefs

import (
	"errors"
	"fmt"
	"math"

	"github.com/unkn0wn-root/prefs/internal/wire"
)

// Primitive is the set of types a store can hold natively.
type Primitive interface {
	string | bool | int64 | float64 | []string | []byte
}

var errIntRange = errors.New("stored float does not fit in int64")

func toWire[K Primitive](k K) wire.Value {
	switch v := any(k).(type) {
	case string:
		return wire.String(v)
	case bool:
		return wire.Bool(v)
	case int64:
		return wire.Int(v)
	case float64:
		return wire.Float(v)
	case []string:
		return wire.StringSet(v)
	case []byte:
		return wire.Bytes(v)
	}
	panic(fmt.Sprintf("prefs: unsupported primitive %T", k))
}

// fromWire converts v to K. ok is false when the stored kind does not fit K,
// which callers treat as unset. With coerce an int64 accepts a stored float,
// truncated toward zero.
func fromWire[K Primitive](v wire.Value, coerce bool) (k K, ok bool, err error) {
	switch p := any(&k).(type) {
	case *string:
		if v.Kind != wire.KindString {
			return k, false, nil
		}
		*p = v.Str
	case *bool:
		if v.Kind != wire.KindBool {
			return k, false, nil
		}
		*p = v.Bool
	case *int64:
		switch {
		case v.Kind == wire.KindInt:
			*p = v.Int
		case v.Kind == wire.KindFloat && coerce:
			t := math.Trunc(v.Float)
			if math.IsNaN(t) || t < math.MinInt64 || t >= math.MaxInt64 {
				return k, false, errIntRange
			}
			*p = int64(t)
		default:
			return k, false, nil
		}
	case *float64:
		if v.Kind != wire.KindFloat {
			return k, false, nil
		}
		*p = v.Float
	case *[]string:
		if v.Kind != wire.KindStringSet {
			return k, false, nil
		}
		*p = v.Set
	case *[]byte:
		if v.Kind != wire.KindBytes {
			return k, false, nil
		}
		*p = v.Bytes
	}
	return k, true, nil
}
