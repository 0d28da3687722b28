package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newBuf() (*bytes.Buffer, *slog.Logger) {
	var buf bytes.Buffer
	return &buf, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestSampling(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{DecodeEvery: 3})
	for i := 0; i < 9; i++ {
		h.DecodeFailed("volume", errors.New("bad"))
	}
	if n := strings.Count(buf.String(), "prefs.decode_failed"); n != 3 {
		t.Fatalf("logged %d decode failures want 3", n)
	}
}

func TestRedaction(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{Redact: HashKey})
	h.WriteFailed("user:alice:token", errors.New("x"))
	out := buf.String()
	if strings.Contains(out, "alice") {
		t.Fatalf("key leaked: %q", out)
	}
	if !strings.Contains(out, "key="+HashKey("user:alice:token")) {
		t.Fatalf("hashed key missing: %q", out)
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	h := New(nil, Options{})
	h.DecodeFailed("k", nil)
	h.ReadFailed("k", nil)
	h.WriteFailed("k", nil)
	h.SubscriberFailed("k", nil)
	h.BatchFlushed(1)
}
