package store

import (
	"reflect"
	"testing"
)

func TestWatchersCancelIsIdempotent(t *testing.T) {
	var w Watchers
	calls := 0
	cancel := w.Add(func(string) { calls++ })
	w.Notify("a")
	cancel()
	cancel()
	w.Notify("b")
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
	if w.Len() != 0 {
		t.Fatalf("Len=%d want 0", w.Len())
	}
}

func TestWatchersSnapshotDuringNotify(t *testing.T) {
	var w Watchers
	var order []string
	var cancelB func()
	w.Add(func(k string) {
		order = append(order, "a:"+k)
		cancelB() // removed mid-round: must not run for this key
		w.Add(func(k string) { order = append(order, "late:"+k) })
	})
	cancelB = w.Add(func(k string) { order = append(order, "b:"+k) })

	w.Notify("x")
	want := []string{"a:x"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("order=%q want %q", order, want)
	}
}

func TestChangedKeysDedup(t *testing.T) {
	got := ChangedKeys([]Mutation{Put("a", nil), Del("b"), Put("a", []byte("x"))})
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("got %q", got)
	}
}
