package prefs

import (
	"context"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/prefs/internal/wire"
	"github.com/unkn0wn-root/prefs/store"
)

// Definition declares a setting stored as the primitive K and exposed as T.
//
// Parse and Serialize may be nil only when T and K are the same type.
// Parse may fail or panic; either way Get serves Default and reports a DecodeError.
type Definition[T any, K Primitive] struct {
	Key       string
	Default   T
	Parse     func(K) (T, error)
	Serialize func(T) K

	// OnSet runs after a successful durable write made through this setting.
	// Changes made by other writers do not call it.
	OnSet func(T)

	// CoerceNumeric lets an int64-backed setting read a value stored as a
	// float, truncated toward zero.
	CoerceNumeric bool
}

// Setting is a typed, cached, observable view of one store key.
// Safe for concurrent use.
type Setting[T any] struct {
	reg    *Registry
	name   string
	skey   string
	def    T
	encode func(T) (wire.Value, error)
	decode func(wire.Value) (T, bool, error)
	onSet  func(T)

	subs Notifier[T]

	mu     sync.Mutex
	loaded bool
	cached T
	gen    uint64 // bumped by every invalidation
}

var _ Source[int64] = (*Setting[int64])(nil)

// Define declares a setting and registers it with r. A second setting with the
// same key replaces the first for change routing.
func Define[T any, K Primitive](r *Registry, d Definition[T, K]) *Setting[T] {
	parse, serialize := d.Parse, d.Serialize
	if parse == nil {
		if _, ok := any(*new(K)).(T); !ok {
			panic(&MisuseError{Key: d.Key, Op: "New", Reason: fmt.Sprintf("Parse is required to read %T as %T", *new(K), *new(T))})
		}
		parse = func(k K) (T, error) { return any(k).(T), nil }
	}
	if serialize == nil {
		if _, ok := any(*new(T)).(K); !ok {
			panic(&MisuseError{Key: d.Key, Op: "New", Reason: fmt.Sprintf("Serialize is required to store %T as %T", *new(T), *new(K))})
		}
		serialize = func(t T) K { return any(t).(K) }
	}
	coerce := d.CoerceNumeric
	return newSetting(r, d.Key, d.Default, d.OnSet,
		func(v T) (wire.Value, error) { return toWire(serialize(v)), nil },
		func(w wire.Value) (T, bool, error) {
			k, ok, err := fromWire[K](w, coerce)
			if err != nil || !ok {
				var zero T
				return zero, ok, err
			}
			t, err := parse(k)
			return t, true, err
		})
}

func newSetting[T any](r *Registry, key string, def T, onSet func(T),
	encode func(T) (wire.Value, error), decode func(wire.Value) (T, bool, error)) *Setting[T] {
	if r == nil {
		panic(&MisuseError{Key: key, Op: "New", Reason: "nil registry"})
	}
	if key == "" {
		panic(&MisuseError{Op: "New", Reason: "empty key"})
	}
	s := &Setting[T]{
		reg:    r,
		name:   key,
		skey:   r.storageKey(key),
		def:    def,
		encode: encode,
		decode: decode,
		onSet:  onSet,
	}
	s.subs.recovered = r.subscriberFailed(key)
	r.register(s)
	return s
}

// Key returns the setting's key without the registry namespace.
func (s *Setting[T]) Key() string { return s.name }

// Default returns the value served when the key is unset or undecodable.
func (s *Setting[T]) Default() T { return s.def }

func (s *Setting[T]) key() string         { return s.name }
func (s *Setting[T]) registry() *Registry { return s.reg }

// Get returns the current value. It never fails: an unset key, a kind
// mismatch or undecodable bytes read as the default, and a failed store read
// serves the default without caching it.
func (s *Setting[T]) Get(ctx context.Context) T {
	s.mu.Lock()
	if s.loaded {
		v := s.cached
		s.mu.Unlock()
		return v
	}
	gen := s.gen
	s.mu.Unlock()

	v, cacheable := s.load(ctx)
	if cacheable {
		s.mu.Lock()
		// an invalidation since the snapshot means v may predate the latest write
		if s.gen == gen {
			s.cached = v
			s.loaded = true
		}
		s.mu.Unlock()
	}
	return v
}

func (s *Setting[T]) load(ctx context.Context) (T, bool) {
	raw, ok, err := s.reg.store.Get(ctx, s.skey)
	if err != nil {
		s.reg.readFailed(s.name, err)
		return s.def, false
	}
	if !ok {
		return s.def, true
	}
	w, err := wire.Decode(raw)
	if err != nil {
		s.reg.decodeFailed(s.name, err)
		return s.def, true
	}
	v, ok, err := s.safeDecode(w)
	if err != nil {
		s.reg.decodeFailed(s.name, err)
		return s.def, true
	}
	if !ok {
		s.reg.log.Debug("stored kind does not match setting; serving default",
			Fields{"key": s.name, "kind": w.Kind.String()})
		return s.def, true
	}
	return v, true
}

func (s *Setting[T]) safeDecode(w wire.Value) (v T, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero T
			v, ok, err = zero, false, fmt.Errorf("parse panicked: %v", p)
		}
	}()
	return s.decode(w)
}

func (s *Setting[T]) invalidate() {
	s.mu.Lock()
	s.loaded = false
	var zero T
	s.cached = zero
	s.gen++
	s.mu.Unlock()
}

func (s *Setting[T]) dispatch() {
	s.subs.fireFrom(s.current)
}

func (s *Setting[T]) current() T { return s.Get(s.reg.bg) }

func (s *Setting[T]) mutation(v T) (store.Mutation, error) {
	w, err := s.encode(v)
	if err != nil {
		return store.Mutation{}, err
	}
	return store.Put(s.skey, wire.Encode(w)), nil
}

// Set writes v durably. When it returns nil, every later Get returns v until
// another write lands. Concurrent writers race with last-write-wins.
func (s *Setting[T]) Set(ctx context.Context, v T) error {
	m, err := s.mutation(v)
	if err != nil {
		return s.reg.writeFailed([]string{s.name}, fmt.Errorf("encode: %w", err))
	}
	return s.commit(ctx, m, v)
}

// Reset deletes the stored value so Get serves the default again.
func (s *Setting[T]) Reset(ctx context.Context) error {
	return s.commit(ctx, store.Del(s.skey), s.def)
}

func (s *Setting[T]) commit(ctx context.Context, m store.Mutation, v T) error {
	if err := s.reg.commit(ctx, []store.Mutation{m}); err != nil {
		return s.reg.writeFailed([]string{s.name}, err)
	}
	// drop what a concurrent load may have cached before the commit landed
	s.invalidate()
	if s.onSet != nil {
		s.onSet(v)
	}
	return nil
}

// SetAsync queues Set on the registry's ordered write worker. The channel
// receives exactly one value: nil once v is durable, or the write error.
//
// SetAsync blocks while the write queue is full. Subscribers may run on the
// write worker: a subscriber may call SetAsync but must not wait on the
// channel, and must not queue more writes than Options.WriteQueue holds.
func (s *Setting[T]) SetAsync(v T) <-chan error {
	done := make(chan error, 1)
	s.setAsync(v, func(err error) { done <- err })
	return done
}

func (s *Setting[T]) setAsync(v T, done func(error)) {
	ok := s.reg.enqueue(func(ctx context.Context) {
		done(s.Set(ctx, v))
	})
	if !ok {
		done(s.reg.writeFailed([]string{s.name}, ErrClosed))
	}
}

// Stage adds a write of v to tx. It is committed with the rest of tx by Registry.Edit.
func (s *Setting[T]) Stage(tx *Txn, v T) error {
	if tx.reg != s.reg {
		panic(&MisuseError{Key: s.name, Op: "Stage", Reason: "setting belongs to another registry"})
	}
	m, err := s.mutation(v)
	if err != nil {
		return fmt.Errorf("prefs: encode %q: %w", s.name, err)
	}
	var after func()
	if s.onSet != nil {
		after = func() { s.onSet(v) }
	}
	tx.add(m, s, after)
	return nil
}

// Subscribe calls fn with the current value right away, then after every change.
func (s *Setting[T]) Subscribe(fn func(T)) *Subscription {
	return s.subs.subscribeCurrent(fn, s.current)
}

// Watch calls fn after every change. Unlike Subscribe there is no initial call.
func (s *Setting[T]) Watch(fn func()) *Subscription {
	return s.subs.Subscribe(func(T) { fn() })
}

// Values streams the current value followed by every change until ctx is done,
// then closes the channel. A slow reader only ever sees the latest value.
func (s *Setting[T]) Values(ctx context.Context) <-chan T {
	return stream(ctx, s.Subscribe)
}
