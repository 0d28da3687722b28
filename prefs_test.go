package prefs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/unkn0wn-root/prefs/store"
	"github.com/unkn0wn-root/prefs/store/memory"
)

// faultyStore is a memory store whose reads and commits can be made to fail.
type faultyStore struct {
	*memory.Store

	mu        sync.Mutex
	commitErr error
	getErr    error
	commits   int
}

var _ store.Store = (*faultyStore)(nil)

func newFaultyStore() *faultyStore { return &faultyStore{Store: memory.New()} }

func (f *faultyStore) failCommits(err error) {
	f.mu.Lock()
	f.commitErr = err
	f.mu.Unlock()
}

func (f *faultyStore) failGets(err error) {
	f.mu.Lock()
	f.getErr = err
	f.mu.Unlock()
}

func (f *faultyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return f.Store.Get(ctx, key)
}

func (f *faultyStore) Commit(ctx context.Context, muts []store.Mutation) error {
	f.mu.Lock()
	err := f.commitErr
	f.commits++
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Commit(ctx, muts)
}

type recHooks struct {
	mu         sync.Mutex
	decode     []error
	read       []error
	write      []error
	subscriber []error
	batches    []int
}

var _ Hooks = (*recHooks)(nil)

func (h *recHooks) DecodeFailed(_ string, err error) {
	h.mu.Lock()
	h.decode = append(h.decode, err)
	h.mu.Unlock()
}

func (h *recHooks) ReadFailed(_ string, err error) {
	h.mu.Lock()
	h.read = append(h.read, err)
	h.mu.Unlock()
}

func (h *recHooks) WriteFailed(_ string, err error) {
	h.mu.Lock()
	h.write = append(h.write, err)
	h.mu.Unlock()
}

func (h *recHooks) SubscriberFailed(_ string, err error) {
	h.mu.Lock()
	h.subscriber = append(h.subscriber, err)
	h.mu.Unlock()
}

func (h *recHooks) BatchFlushed(n int) {
	h.mu.Lock()
	h.batches = append(h.batches, n)
	h.mu.Unlock()
}

func (h *recHooks) counts() (decode, read, write, subscriber int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.decode), len(h.read), len(h.write), len(h.subscriber)
}

func newTestRegistry(t *testing.T, st store.Store, mod func(*Options)) (*Registry, *recHooks) {
	t.Helper()
	h := &recHooks{}
	opts := Options{Store: st, Hooks: h}
	if mod != nil {
		mod(&opts)
	}
	r, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, h
}

// recorder collects values delivered to a subscriber.
type recorder[T any] struct {
	mu  sync.Mutex
	got []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.got = append(r.got, v)
	r.mu.Unlock()
}

func (r *recorder[T]) values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.got...)
}

func mustFlush(t *testing.T, r *Registry) {
	t.Helper()
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without a store")
	}
}

func TestCloseIsIdempotentAndRejectsWrites(t *testing.T) {
	st := newFaultyStore()
	r, _ := newTestRegistry(t, st, nil)
	s := Bool(r, "flag", false)
	ctx := context.Background()

	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	err := s.Set(ctx, true)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Set after Close err=%v want ErrClosed", err)
	}
	var werr *WriteError
	if !errors.As(err, &werr) || len(werr.Keys) != 1 || werr.Keys[0] != "flag" {
		t.Fatalf("expected *WriteError for flag, got %#v", err)
	}
	if err := <-s.SetAsync(true); !errors.Is(err, ErrClosed) {
		t.Fatalf("SetAsync after Close err=%v want ErrClosed", err)
	}
	if err := r.Flush(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Flush after Close err=%v want ErrClosed", err)
	}
}

func TestCloseStoreOption(t *testing.T) {
	st := memory.New()
	r, err := New(Options{Store: st, CloseStore: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := st.Get(context.Background(), "x"); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("store still open: err=%v", err)
	}
}
