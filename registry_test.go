package prefs

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/unkn0wn-root/prefs/internal/wire"
	"github.com/unkn0wn-root/prefs/store"
	"github.com/unkn0wn-root/prefs/store/memory"
)

func TestUntrackedKeysAreIgnored(t *testing.T) {
	st := memory.New()
	_, h := newTestRegistry(t, st, nil)
	putRaw(t, st, "nobody", wire.Encode(wire.Bool(true)))
	if d, rd, w, s := h.counts(); d+rd+w+s != 0 {
		t.Fatalf("untracked key produced reports")
	}
}

func TestBatchNotifiesOncePerSetting(t *testing.T) {
	r, h := newTestRegistry(t, memory.New(), nil)
	ctx := context.Background()
	a := Int(r, "a", 0)
	b := Int(r, "b", 0)
	untouched := Int(r, "c", 0)

	var ra, rb, rc recorder[int]
	a.Subscribe(ra.add)
	b.Subscribe(rb.add)
	untouched.Subscribe(rc.add)

	err := r.Batch(ctx, func(ctx context.Context) error {
		for i := 1; i <= 3; i++ {
			if err := a.Set(ctx, i); err != nil {
				return err
			}
		}
		if err := b.Set(ctx, 10); err != nil {
			return err
		}
		if got := a.Get(ctx); got != 3 {
			t.Errorf("Get inside batch=%d want 3", got)
		}
		if got := ra.values(); len(got) != 1 {
			t.Errorf("notified inside batch: %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}

	if got := ra.values(); !reflect.DeepEqual(got, []int{0, 3}) {
		t.Fatalf("a notifications %v want [0 3]", got)
	}
	if got := rb.values(); !reflect.DeepEqual(got, []int{0, 10}) {
		t.Fatalf("b notifications %v want [0 10]", got)
	}
	if got := rc.values(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("untouched setting notified: %v", got)
	}
	if !reflect.DeepEqual(h.batches, []int{2}) {
		t.Fatalf("batches=%v want [2]", h.batches)
	}
}

func TestNestedBatchFlushesAtOutermostExit(t *testing.T) {
	r, _ := newTestRegistry(t, memory.New(), nil)
	ctx := context.Background()
	s := Bool(r, "b", false)
	calls := 0
	s.Watch(func() { calls++ })

	_ = r.Batch(ctx, func(ctx context.Context) error {
		_ = r.Batch(ctx, func(ctx context.Context) error {
			return s.Set(ctx, true)
		})
		if calls != 0 {
			t.Errorf("inner scope flushed early")
		}
		return s.Set(ctx, false)
	})
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}

func TestBatchFlushesWhenFnPanics(t *testing.T) {
	r, _ := newTestRegistry(t, memory.New(), nil)
	ctx := context.Background()
	s := Bool(r, "b", false)
	calls := 0
	s.Watch(func() { calls++ })

	func() {
		defer func() { _ = recover() }()
		_ = r.Batch(ctx, func(ctx context.Context) error {
			_ = s.Set(ctx, true)
			panic("abort")
		})
	}()
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
	// suppression must be over
	_ = s.Set(ctx, false)
	if calls != 2 {
		t.Fatalf("calls=%d want 2", calls)
	}
}

func TestEditCommitsAtomically(t *testing.T) {
	st := newFaultyStore()
	r, h := newTestRegistry(t, st, nil)
	ctx := context.Background()
	name := String(r, "name", "")
	age := Int(r, "age", 0)
	var onSet []int
	score := Define(r, Definition[int64, int64]{Key: "score", OnSet: func(v int64) { onSet = append(onSet, int(v)) }})

	var rn recorder[string]
	name.Subscribe(rn.add)

	err := r.Edit(ctx, func(tx *Txn) error {
		if err := name.Stage(tx, "ada"); err != nil {
			return err
		}
		if err := age.Stage(tx, 36); err != nil {
			return err
		}
		return score.Stage(tx, 7)
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if name.Get(ctx) != "ada" || age.Get(ctx) != 36 || score.Get(ctx) != 7 {
		t.Fatalf("edit not applied")
	}
	if got := rn.values(); !reflect.DeepEqual(got, []string{"", "ada"}) {
		t.Fatalf("name notifications %v", got)
	}
	if !reflect.DeepEqual(onSet, []int{7}) {
		t.Fatalf("OnSet=%v want [7]", onSet)
	}
	if st.commits != 1 {
		t.Fatalf("commits=%d want 1", st.commits)
	}
	if !reflect.DeepEqual(h.batches, []int{3}) {
		t.Fatalf("batches=%v want [3]", h.batches)
	}
}

func TestEditFailureWritesNothing(t *testing.T) {
	st := newFaultyStore()
	r, h := newTestRegistry(t, st, nil)
	ctx := context.Background()
	a := Int(r, "a", 1)
	b := Int(r, "b", 2)

	st.failCommits(store.ErrRejected)
	err := r.Edit(ctx, func(tx *Txn) error {
		_ = a.Stage(tx, 10)
		return b.Stage(tx, 20)
	})
	var werr *WriteError
	if !errors.As(err, &werr) || !errors.Is(err, ErrRejected) {
		t.Fatalf("err=%v want *WriteError wrapping ErrRejected", err)
	}
	if !reflect.DeepEqual(werr.Keys, []string{"a", "b"}) {
		t.Fatalf("keys=%v", werr.Keys)
	}
	if a.Get(ctx) != 1 || b.Get(ctx) != 2 {
		t.Fatalf("failed edit changed values")
	}
	if _, _, w, _ := h.counts(); w != 2 {
		t.Fatalf("write failures=%d want 2", w)
	}
}

func TestEditFnErrorAborts(t *testing.T) {
	st := newFaultyStore()
	r, _ := newTestRegistry(t, st, nil)
	a := Int(r, "a", 1)
	boom := errors.New("boom")

	err := r.Edit(context.Background(), func(tx *Txn) error {
		_ = a.Stage(tx, 5)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
	if st.commits != 0 {
		t.Fatalf("aborted edit committed")
	}
}

func TestStageRejectsForeignRegistry(t *testing.T) {
	r1, _ := newTestRegistry(t, memory.New(), nil)
	r2, _ := newTestRegistry(t, memory.New(), nil)
	s := Int(r1, "a", 0)

	defer func() {
		if _, ok := recover().(*MisuseError); !ok {
			t.Fatalf("expected *MisuseError panic")
		}
	}()
	_ = r2.Edit(context.Background(), func(tx *Txn) error { return s.Stage(tx, 1) })
}

func TestExternalClearRevertsToDefault(t *testing.T) {
	st := memory.New()
	r, _ := newTestRegistry(t, st, nil)
	ctx := context.Background()
	s := String(r, "s", "dflt")

	var rec recorder[string]
	s.Subscribe(rec.add)
	_ = s.Set(ctx, "x")
	if err := st.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := s.Get(ctx); got != "dflt" {
		t.Fatalf("got %q want default", got)
	}
	if got := rec.values(); !reflect.DeepEqual(got, []string{"dflt", "x", "dflt"}) {
		t.Fatalf("notifications %q", got)
	}
}

func TestSubscriberMayQueueWrites(t *testing.T) {
	r, _ := newTestRegistry(t, memory.New(), func(o *Options) { o.WriteQueue = 2 })
	ctx := context.Background()
	src := Int(r, "src", 0)
	mirror := Int(r, "mirror", 0)

	// runs on the write worker for src's async writes
	src.Watch(func() { mirror.SetAsync(src.Get(ctx) * 10) })

	if err := <-src.SetAsync(4); err != nil {
		t.Fatalf("SetAsync: %v", err)
	}
	mustFlush(t, r)
	if got := mirror.Get(ctx); got != 40 {
		t.Fatalf("mirror=%d want 40", got)
	}
}

func TestNilLoggerAndHooksFallBackToNop(t *testing.T) {
	r, err := New(Options{Store: memory.New()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close(context.Background())
	if _, ok := r.log.(NopLogger); !ok {
		t.Fatalf("logger = %T, want NopLogger", r.log)
	}
	if _, ok := r.hooks.(NopHooks); !ok {
		t.Fatalf("hooks = %T, want NopHooks", r.hooks)
	}
	if got := orDefault(0, defaultWriteQueue); got != defaultWriteQueue {
		t.Fatalf("orDefault(0) = %d", got)
	}
	if got := orDefault(5, defaultWriteQueue); got != 5 {
		t.Fatalf("orDefault(5) = %d", got)
	}
}
