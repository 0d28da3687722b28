package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"sort"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("prefs: corrupt entry")
	magic4     = [...]byte{'P', 'R', 'E', 'F'}
)

// Kind tags the primitive stored in a frame.
type Kind byte

const (
	KindString Kind = iota + 1
	KindBool
	KindInt
	KindFloat
	KindStringSet
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindStringSet:
		return "string_set"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Value is a decoded primitive. Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Str   string
	Bool  bool
	Int   int64
	Float float64
	Set   []string
	Bytes []byte
}

func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value          { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value      { return Value{Kind: KindFloat, Float: f} }
func StringSet(s []string) Value { return Value{Kind: KindStringSet, Set: s} }
func Bytes(b []byte) Value       { return Value{Kind: KindBytes, Bytes: b} }

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

func header(buf *bytes.Buffer, k Kind) {
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(byte(k))
}

// Encode frames v:
//
//	magic(4) | ver(1) | kind(1) | body
//
// body by kind:
//
//	string, bytes: vlen(u32 be) | payload(vlen)
//	bool:          1 byte (0|1)
//	int:           i64 be
//	float:         IEEE-754 bits u64 be
//	string_set:    n(u32 be) | (vlen(u32 be) | payload(vlen)) * n, members sorted
func Encode(v Value) []byte {
	var buf bytes.Buffer
	var u8 [8]byte
	var u4 [4]byte

	switch v.Kind {
	case KindString:
		buf.Grow(6 + 4 + len(v.Str))
		header(&buf, v.Kind)
		binary.BigEndian.PutUint32(u4[:], uint32(len(v.Str)))
		buf.Write(u4[:])
		buf.WriteString(v.Str)
	case KindBytes:
		buf.Grow(6 + 4 + len(v.Bytes))
		header(&buf, v.Kind)
		binary.BigEndian.PutUint32(u4[:], uint32(len(v.Bytes)))
		buf.Write(u4[:])
		buf.Write(v.Bytes)
	case KindBool:
		header(&buf, v.Kind)
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindInt:
		header(&buf, v.Kind)
		binary.BigEndian.PutUint64(u8[:], uint64(v.Int))
		buf.Write(u8[:])
	case KindFloat:
		header(&buf, v.Kind)
		binary.BigEndian.PutUint64(u8[:], math.Float64bits(v.Float))
		buf.Write(u8[:])
	case KindStringSet:
		members := make([]string, len(v.Set))
		copy(members, v.Set)
		sort.Strings(members)
		header(&buf, v.Kind)
		binary.BigEndian.PutUint32(u4[:], uint32(len(members)))
		buf.Write(u4[:])
		for _, m := range members {
			binary.BigEndian.PutUint32(u4[:], uint32(len(m)))
			buf.Write(u4[:])
			buf.WriteString(m)
		}
	default:
		panic("prefs: unknown wire kind")
	}
	return buf.Bytes()
}

// Decode parses a frame produced by Encode. Trailing bytes are rejected.
func Decode(b []byte) (Value, error) {
	const hdr = 4 + 1 + 1
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Value{}, ErrCorrupt
	}
	k := Kind(b[5])
	body := b[hdr:]

	switch k {
	case KindString, KindBytes:
		p, rest, err := readChunk(body)
		if err != nil || len(rest) != 0 {
			return Value{}, ErrCorrupt
		}
		if k == KindString {
			return String(string(p)), nil
		}
		return Bytes(append([]byte(nil), p...)), nil
	case KindBool:
		if len(body) != 1 || body[0] > 1 {
			return Value{}, ErrCorrupt
		}
		return Bool(body[0] == 1), nil
	case KindInt:
		if len(body) != 8 {
			return Value{}, ErrCorrupt
		}
		return Int(int64(binary.BigEndian.Uint64(body))), nil
	case KindFloat:
		if len(body) != 8 {
			return Value{}, ErrCorrupt
		}
		return Float(math.Float64frombits(binary.BigEndian.Uint64(body))), nil
	case KindStringSet:
		if len(body) < 4 {
			return Value{}, ErrCorrupt
		}
		n := int(binary.BigEndian.Uint32(body[:4]))
		rest := body[4:]
		// every member needs at least its 4-byte length prefix
		if n < 0 || n > len(rest)/4 {
			return Value{}, ErrCorrupt
		}
		set := make([]string, 0, n)
		for i := 0; i < n; i++ {
			var p []byte
			var err error
			p, rest, err = readChunk(rest)
			if err != nil {
				return Value{}, ErrCorrupt
			}
			set = append(set, string(p))
		}
		if len(rest) != 0 {
			return Value{}, ErrCorrupt
		}
		return StringSet(set), nil
	default:
		return Value{}, ErrCorrupt
	}
}

func readChunk(b []byte) (payload, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[:4]))
	b = b[4:]
	if vlen < 0 || vlen > len(b) { // overflow-safe bound check
		return nil, nil, ErrCorrupt
	}
	return b[:vlen], b[vlen:], nil
}
