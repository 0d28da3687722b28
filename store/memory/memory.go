// Package memory is an in-process store. Reads and writes never block on I/O,
// which makes it the reference for the synchronous scheduling model and the
// default store in tests.
package memory

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/prefs/store"
)

type Store struct {
	mu     sync.RWMutex
	m      map[string][]byte
	closed bool

	watchers store.Watchers
}

var _ store.Store = (*Store)(nil)

func New() *Store { return &Store{m: make(map[string][]byte)} }

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, store.ErrClosed
	}
	b, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

// Commit applies muts under one lock; watchers run after the lock is released
// so they can read the new values.
func (s *Store) Commit(ctx context.Context, muts []store.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}
	for _, m := range muts {
		if m.Delete {
			delete(s.m, m.Key)
			continue
		}
		s.m[m.Key] = append([]byte(nil), m.Value...)
	}
	s.mu.Unlock()

	s.watchers.Notify(store.ChangedKeys(muts)...)
	return nil
}

// Clear removes every key and reports each removal.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	s.m = make(map[string][]byte)
	s.mu.Unlock()

	s.watchers.Notify(keys...)
	return nil
}

// Keys returns the stored keys in no particular order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	return out
}

func (s *Store) Subscribe(fn func(key string)) func() { return s.watchers.Add(fn) }

func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
