package prefs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/prefs/internal/util"
	"github.com/unkn0wn-root/prefs/internal/worker"
	"github.com/unkn0wn-root/prefs/store"
)

const defaultWriteQueue = 1024

// entry is what the registry routes a store event to.
type entry interface {
	key() string
	invalidate()
	dispatch()
}

// Registry owns the store handle, routes change events to settings and
// serializes asynchronous writes.
type Registry struct {
	store        store.Store
	ns           string
	log          Logger
	hooks        Hooks
	writeTimeout time.Duration
	closeStore   bool

	mu      sync.RWMutex
	entries map[string]entry

	batchMu sync.Mutex
	depth   int
	pending []entry
	queued  map[string]struct{}

	// one worker: async writes land in submit order
	writes *worker.Queue

	bg     context.Context
	stop   context.CancelFunc
	unsub  func()
	closed atomic.Bool
	once   sync.Once
}

func newRegistry(opts Options) *Registry {
	bg, stop := context.WithCancel(context.Background())
	r := &Registry{
		store:        opts.Store,
		ns:           opts.Namespace,
		log:          orDefault[Logger](opts.Logger, NopLogger{}),
		hooks:        orDefault[Hooks](opts.Hooks, NopHooks{}),
		writeTimeout: opts.WriteTimeout,
		closeStore:   opts.CloseStore,
		entries:      make(map[string]entry),
		queued:       make(map[string]struct{}),
		writes:       worker.New(1, orDefault(opts.WriteQueue, defaultWriteQueue)),
		bg:           bg,
		stop:         stop,
	}
	r.unsub = opts.Store.Subscribe(r.onStoreChanged)
	return r
}

func (r *Registry) storageKey(key string) string { return util.StorageKey(r.ns, key) }

func (r *Registry) register(e entry) {
	r.mu.Lock()
	_, dup := r.entries[e.key()]
	r.entries[e.key()] = e
	r.mu.Unlock()
	if dup {
		r.log.Warn("setting key registered twice; the last registration receives change events",
			Fields{"key": e.key()})
	}
}

// onStoreChanged is the store subscription. Unknown keys are ignored;
// a known key is invalidated before any of its subscribers run.
func (r *Registry) onStoreChanged(storageKey string) {
	key, ok := util.UserKey(r.ns, storageKey)
	if !ok {
		return
	}
	r.mu.RLock()
	e := r.entries[key]
	r.mu.RUnlock()
	if e == nil {
		return
	}

	r.batchMu.Lock()
	if r.depth > 0 {
		if _, seen := r.queued[key]; !seen {
			r.queued[key] = struct{}{}
			r.pending = append(r.pending, e)
		}
		r.batchMu.Unlock()
		return
	}
	r.batchMu.Unlock()

	e.invalidate()
	e.dispatch()
}

// Batch runs fn with change notifications suppressed. When the outermost
// scope exits, every setting that changed meanwhile is invalidated and
// notified exactly once. The scope is registry-wide: changes made by other
// goroutines while it is open are coalesced too.
func (r *Registry) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	r.batchMu.Lock()
	r.depth++
	r.batchMu.Unlock()
	defer r.endBatch()
	return fn(ctx)
}

func (r *Registry) endBatch() {
	r.batchMu.Lock()
	r.depth--
	if r.depth > 0 {
		r.batchMu.Unlock()
		return
	}
	pending := r.pending
	r.pending = nil
	clear(r.queued)
	r.batchMu.Unlock()

	if len(pending) == 0 {
		return
	}
	// invalidate all first: a subscriber may read a sibling setting
	for _, e := range pending {
		e.invalidate()
	}
	for _, e := range pending {
		e.dispatch()
	}
	r.hooks.BatchFlushed(len(pending))
	r.log.Debug("batch flushed", Fields{"settings": len(pending)})
}

// Edit stages writes with fn and commits them atomically inside a batch scope,
// so subscribers see one notification per changed setting. If fn returns an
// error nothing is written.
func (r *Registry) Edit(ctx context.Context, fn func(tx *Txn) error) error {
	tx := &Txn{reg: r}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.muts) == 0 {
		return nil
	}
	return r.Batch(ctx, func(ctx context.Context) error {
		if err := r.commit(ctx, tx.muts); err != nil {
			return r.writeFailed(tx.keys, err)
		}
		for _, e := range tx.entries {
			e.invalidate()
		}
		for _, f := range tx.after {
			f()
		}
		return nil
	})
}

func (r *Registry) commit(ctx context.Context, muts []store.Mutation) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.store.Commit(ctx, muts)
}

// enqueue runs f on the write worker with a fresh context.
// It reports false once the registry is closing.
func (r *Registry) enqueue(f func(ctx context.Context)) bool {
	return r.writes.Submit(func() {
		ctx := context.Background()
		if r.writeTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.writeTimeout)
			defer cancel()
		}
		f(ctx)
	})
}

// Flush waits until every asynchronous write queued before the call has
// finished. Do not call it from a subscriber: subscribers may run on the
// write worker.
func (r *Registry) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !r.writes.Submit(func() { close(done) }) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains queued writes, detaches from the store's change stream and,
// with Options.CloseStore, closes the store. Safe to call multiple times.
// Do not call it from a subscriber: it waits for the write worker, which
// may be the goroutine running the subscriber.
func (r *Registry) Close(ctx context.Context) error {
	var err error
	r.once.Do(func() {
		r.writes.Close()
		r.closed.Store(true)
		r.unsub()
		r.stop()
		if r.closeStore {
			err = r.store.Close(ctx)
		}
		r.log.Debug("registry closed", Fields{"namespace": r.ns})
	})
	return err
}

func (r *Registry) decodeFailed(key string, err error) {
	derr := &DecodeError{Key: key, Err: err}
	r.hooks.DecodeFailed(key, derr)
	r.log.Warn("stored value did not decode; serving default", Fields{"key": key, "err": err})
}

func (r *Registry) readFailed(key string, err error) {
	r.hooks.ReadFailed(key, err)
	r.log.Warn("store read failed; serving default", Fields{"key": key, "err": err})
}

func (r *Registry) writeFailed(keys []string, err error) error {
	werr := &WriteError{Keys: keys, Err: err}
	for _, k := range keys {
		r.hooks.WriteFailed(k, werr)
	}
	r.log.Error("store write failed", Fields{"keys": keys, "err": err})
	return werr
}

func (r *Registry) subscriberFailed(key string) func(any) {
	return func(p any) {
		serr := &SubscriberError{Key: key, Panic: p}
		r.hooks.SubscriberFailed(key, serr)
		r.log.Error("subscriber panicked", Fields{"key": key, "panic": p})
	}
}
