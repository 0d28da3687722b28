package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"testing"
)

func mustDecode(t *testing.T, b []byte) Value {
	t.Helper()
	v, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return v
}

func TestScalarsRoundTrip(t *testing.T) {
	cases := []Value{
		String(""),
		String("hello"),
		Bool(true),
		Bool(false),
		Int(0),
		Int(math.MinInt64),
		Int(math.MaxInt64),
		Float(75.0),
		Float(-0.5),
		Bytes(nil),
		Bytes([]byte{0, 1, 2}),
	}
	for _, in := range cases {
		got := mustDecode(t, Encode(in))
		if got.Kind != in.Kind {
			t.Fatalf("kind mismatch: got %v want %v", got.Kind, in.Kind)
		}
		if got.Str != in.Str || got.Bool != in.Bool || got.Int != in.Int || got.Float != in.Float {
			t.Fatalf("value mismatch: got=%+v want=%+v", got, in)
		}
		if !bytes.Equal(got.Bytes, in.Bytes) {
			t.Fatalf("bytes mismatch: got %x want %x", got.Bytes, in.Bytes)
		}
	}
}

func TestStringSetSortedAndRoundTrip(t *testing.T) {
	in := []string{"b", "a", "", "c"}
	got := mustDecode(t, Encode(StringSet(in)))
	want := []string{"", "a", "b", "c"}
	if !reflect.DeepEqual(got.Set, want) {
		t.Fatalf("set: got %q want %q", got.Set, want)
	}
	if in[0] != "b" {
		t.Fatalf("input mutated: %q", in)
	}

	empty := mustDecode(t, Encode(StringSet(nil)))
	if empty.Kind != KindStringSet || len(empty.Set) != 0 {
		t.Fatalf("empty set: %+v", empty)
	}
}

func TestDecodeBytesDoesNotAlias(t *testing.T) {
	enc := Encode(Bytes([]byte("Z")))
	v := mustDecode(t, enc)
	v.Bytes[0] = 'Q'
	if v2 := mustDecode(t, enc); v2.Bytes[0] != 'Z' {
		t.Fatalf("decoded bytes alias the frame")
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	for _, v := range []Value{String("x"), Bool(true), Int(7), Float(1), StringSet([]string{"a"})} {
		enc := append(Encode(v), 0xDE, 0xAD)
		if _, err := Decode(enc); err == nil {
			t.Fatalf("expected error on trailing bytes for %v", v.Kind)
		}
	}
}

func TestCorruptHeadersAndLengths(t *testing.T) {
	enc := Encode(String("abc"))

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Decode(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := Decode(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = 0x7F
	if _, err := Decode(badKind); err == nil {
		t.Fatalf("expected error on unknown kind")
	}

	// vlen at offset 6..9 (4 magic +1 ver +1 kind)
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[6:10], uint32(len("abc")+1))
	if _, err := Decode(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	if _, err := Decode(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}

	badBool := Encode(Bool(true))
	badBool[6] = 2
	if _, err := Decode(badBool); err == nil {
		t.Fatalf("expected error on bool byte > 1")
	}
}

func TestStringSetBogusCount(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{'P', 'R', 'E', 'F'})
	buf.WriteByte(version)
	buf.WriteByte(byte(KindStringSet))
	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], ^uint32(0))
	buf.Write(u4[:])
	if _, err := Decode(buf.Bytes()); err == nil {
		t.Fatalf("expected error on bogus n with insufficient bytes")
	}
}

func TestForeignBytesAreCorrupt(t *testing.T) {
	for _, b := range [][]byte{nil, []byte("true"), []byte(`{"a":"1"}`)} {
		if _, err := Decode(b); err != ErrCorrupt {
			t.Fatalf("Decode(%q) err=%v, want ErrCorrupt", b, err)
		}
	}
}
