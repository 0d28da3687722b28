package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/unkn0wn-root/prefs/internal/wire"
	"github.com/unkn0wn-root/prefs/store"
)

// MapDefinition declares a keyed collection persisted as one JSON object of
// strings. Format funcs default to fmt.Sprint; Parse funcs may be nil only
// when the matching type is string.
type MapDefinition[K comparable, V any] struct {
	Key         string
	FormatKey   func(K) string
	ParseKey    func(string) (K, error)
	FormatValue func(V) string
	ParseValue  func(string) (V, error)
}

// MapSetting holds a map in memory and rewrites the whole blob on every
// mutation. The store is read once, by NewMap; later writes to the key by
// other processes are not picked up until the next NewMap.
type MapSetting[K comparable, V any] struct {
	reg  *Registry
	name string
	skey string

	formatKey   func(K) string
	parseKey    func(string) (K, error)
	formatValue func(V) string
	parseValue  func(string) (V, error)

	// wmu orders blob rewrites; mu guards m, busy and deferred
	wmu      sync.Mutex
	mu       sync.RWMutex
	m        map[K]V
	busy     bool // a commit of ours is in flight
	deferred bool // a change event arrived while busy

	subs Notifier[map[K]V]
}

var _ Source[map[string]string] = (*MapSetting[string, string])(nil)

// StringMap declares a map of strings to strings.
func StringMap(ctx context.Context, r *Registry, key string) *MapSetting[string, string] {
	return NewMap(ctx, r, MapDefinition[string, string]{Key: key})
}

// NewMap loads the blob under d.Key and registers the map with r. Entries
// that fail to parse are dropped and reported.
func NewMap[K comparable, V any](ctx context.Context, r *Registry, d MapDefinition[K, V]) *MapSetting[K, V] {
	if r == nil {
		panic(&MisuseError{Key: d.Key, Op: "NewMap", Reason: "nil registry"})
	}
	if d.Key == "" {
		panic(&MisuseError{Op: "NewMap", Reason: "empty key"})
	}
	s := &MapSetting[K, V]{
		reg:         r,
		name:        d.Key,
		skey:        r.storageKey(d.Key),
		formatKey:   d.FormatKey,
		parseKey:    d.ParseKey,
		formatValue: d.FormatValue,
		parseValue:  d.ParseValue,
	}
	if s.formatKey == nil {
		s.formatKey = func(k K) string { return fmt.Sprint(k) }
	}
	if s.formatValue == nil {
		s.formatValue = func(v V) string { return fmt.Sprint(v) }
	}
	if s.parseKey == nil {
		s.parseKey = identityParse[K](d.Key, "ParseKey")
	}
	if s.parseValue == nil {
		s.parseValue = identityParse[V](d.Key, "ParseValue")
	}
	s.subs.recovered = r.subscriberFailed(d.Key)
	s.m = s.load(ctx)
	r.register(s)
	return s
}

func identityParse[T any](key, field string) func(string) (T, error) {
	if _, ok := any("").(T); !ok {
		panic(&MisuseError{Key: key, Op: "NewMap", Reason: fmt.Sprintf("%s is required for %T", field, *new(T))})
	}
	return func(s string) (T, error) { return any(s).(T), nil }
}

func (s *MapSetting[K, V]) load(ctx context.Context) map[K]V {
	out := make(map[K]V)
	raw, ok, err := s.reg.store.Get(ctx, s.skey)
	if err != nil {
		s.reg.readFailed(s.name, err)
		return out
	}
	if !ok {
		return out
	}
	w, err := wire.Decode(raw)
	if err != nil {
		s.reg.decodeFailed(s.name, err)
		return out
	}
	if w.Kind != wire.KindString {
		s.reg.log.Debug("stored kind does not match map setting; starting empty",
			Fields{"key": s.name, "kind": w.Kind.String()})
		return out
	}
	var flat map[string]string
	if err := json.Unmarshal([]byte(w.Str), &flat); err != nil {
		s.reg.decodeFailed(s.name, err)
		return out
	}
	for fk, fv := range flat {
		k, err := s.parseKey(fk)
		if err != nil {
			s.reg.decodeFailed(s.name, fmt.Errorf("entry key %q: %w", fk, err))
			continue
		}
		v, err := s.parseValue(fv)
		if err != nil {
			s.reg.decodeFailed(s.name, fmt.Errorf("entry %q: %w", fk, err))
			continue
		}
		out[k] = v
	}
	return out
}

func (s *MapSetting[K, V]) Key() string         { return s.name }
func (s *MapSetting[K, V]) key() string         { return s.name }
func (s *MapSetting[K, V]) registry() *Registry { return s.reg }

// Get returns a copy of the whole map. It never reads the store.
func (s *MapSetting[K, V]) Get(context.Context) map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.m)
}

// Lookup returns the value under k.
func (s *MapSetting[K, V]) Lookup(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[k]
	return v, ok
}

func (s *MapSetting[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Put stores v under k and rewrites the blob.
func (s *MapSetting[K, V]) Put(ctx context.Context, k K, v V) error {
	return s.mutate(ctx, func(m map[K]V) { m[k] = v })
}

// Remove deletes k and rewrites the blob. Removing a missing key still writes.
func (s *MapSetting[K, V]) Remove(ctx context.Context, k K) error {
	return s.mutate(ctx, func(m map[K]V) { delete(m, k) })
}

// Clear empties the map; the stored blob becomes "{}".
func (s *MapSetting[K, V]) Clear(ctx context.Context) error {
	return s.mutate(ctx, func(m map[K]V) { clear(m) })
}

// Set always panics with a *MisuseError: a map setting is only mutated key by key.
func (s *MapSetting[K, V]) Set(context.Context, map[K]V) error {
	panic(s.misuse("Set"))
}

func (s *MapSetting[K, V]) setAsync(map[K]V, func(error)) {
	panic(s.misuse("Write"))
}

func (s *MapSetting[K, V]) misuse(op string) *MisuseError {
	return &MisuseError{Key: s.name, Op: op, Reason: "map settings support only Put, Remove and Clear"}
}

// mutate applies fn to a copy, publishes the copy and commits it. The map is
// published before the commit so a concurrent reader sees it; a failed commit
// restores the previous map. Change events raised by the commit are delivered
// after wmu is released, so subscribers may mutate the map again.
func (s *MapSetting[K, V]) mutate(ctx context.Context, fn func(map[K]V)) error {
	s.wmu.Lock()
	s.mu.Lock()
	prev := s.m
	next := maps.Clone(prev)
	fn(next)
	s.m = next
	s.busy = true
	s.mu.Unlock()

	m, err := s.mutation(next)
	if err == nil {
		err = s.reg.commit(ctx, []store.Mutation{m})
	}

	s.mu.Lock()
	if err != nil {
		s.m = prev
	}
	s.busy = false
	notify := s.deferred
	s.deferred = false
	s.mu.Unlock()
	s.wmu.Unlock()

	if notify {
		s.subs.fireFrom(s.current)
	}
	if err != nil {
		return s.reg.writeFailed([]string{s.name}, err)
	}
	return nil
}

func (s *MapSetting[K, V]) mutation(m map[K]V) (store.Mutation, error) {
	flat := make(map[string]string, len(m))
	for k, v := range m {
		flat[s.formatKey(k)] = s.formatValue(v)
	}
	b, err := json.Marshal(flat)
	if err != nil {
		return store.Mutation{}, fmt.Errorf("encode: %w", err)
	}
	return store.Put(s.skey, wire.Encode(wire.String(string(b)))), nil
}

// Subscribe calls fn with a copy of the map now and after every change.
// Subscribers of one change share the copy and must not modify it.
func (s *MapSetting[K, V]) Subscribe(fn func(map[K]V)) *Subscription {
	return s.subs.subscribeCurrent(fn, s.current)
}

// Watch calls fn after every change, without an initial call.
func (s *MapSetting[K, V]) Watch(fn func()) *Subscription {
	return s.subs.Subscribe(func(map[K]V) { fn() })
}

// the in-memory map is authoritative: nothing to drop
func (s *MapSetting[K, V]) invalidate() {}

func (s *MapSetting[K, V]) dispatch() {
	s.mu.Lock()
	if s.busy {
		s.deferred = true
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.subs.fireFrom(s.current)
}

func (s *MapSetting[K, V]) current() map[K]V { return s.Get(s.reg.bg) }
