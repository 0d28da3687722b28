package ristretto

import (
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/prefs/store"
)

func TestInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error on zero config")
	}
}

func TestCommitAndGet(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{NumCounters: 1000, MaxCost: 100, BufferItems: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close(ctx)

	var events []string
	s.Subscribe(func(k string) { events = append(events, k) })

	if err := s.Commit(ctx, []store.Mutation{store.Put("volume", []byte("75"))}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if b, ok, err := s.Get(ctx, "volume"); err != nil || !ok || string(b) != "75" {
		t.Fatalf("Get: %q ok=%v err=%v", b, ok, err)
	}
	if err := s.Commit(ctx, []store.Mutation{store.Del("volume")}); err != nil {
		t.Fatalf("Commit del: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "volume"); ok {
		t.Fatalf("volume should be deleted")
	}
	if len(events) != 2 {
		t.Fatalf("events=%q", events)
	}
}

func TestOversizedPutIsRejected(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{
		NumCounters: 100,
		MaxCost:     10,
		BufferItems: 64,
		Cost:        func(_ string, v []byte) int64 { return int64(len(v)) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close(ctx)

	notified := false
	s.Subscribe(func(string) { notified = true })

	err = s.Commit(ctx, []store.Mutation{store.Put("big", make([]byte, 64))})
	if !errors.Is(err, store.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if _, ok, _ := s.Get(ctx, "big"); ok {
		t.Fatalf("rejected put must not be visible")
	}
	if notified {
		t.Fatalf("rejected commit must not notify")
	}
}
