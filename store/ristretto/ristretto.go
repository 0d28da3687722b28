// Package ristretto keeps settings in a cost-bounded dgraph-io/ristretto cache.
// The cache may refuse or evict entries under pressure: a refused write surfaces
// as store.ErrRejected (and the commit is undone), an evicted key simply reads
// as unset, so settings fall back to their defaults.
package ristretto

import (
	"bytes"
	"context"
	"errors"
	"sync"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/prefs/store"
)

type Store struct {
	mu   sync.RWMutex
	c    *rc.Cache
	cost func(key string, value []byte) int64

	watchers store.Watchers
}

var _ store.Store = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// Cost per entry; nil => 1 per key.
	Cost func(key string, value []byte) int64
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	cost := cfg.Cost
	if cost == nil {
		cost = func(string, []byte) int64 { return 1 }
	}
	return &Store{c: c, cost: cost}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(key)
}

func (s *Store) get(key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		s.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Commit applies muts, waits for ristretto's buffers to drain and verifies each
// put was admitted. A refused put undoes the whole commit.
func (s *Store) Commit(ctx context.Context, muts []store.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	undo := make([]store.Mutation, 0, len(muts))
	for _, m := range muts {
		if prev, ok, _ := s.get(m.Key); ok {
			undo = append(undo, store.Put(m.Key, prev))
		} else {
			undo = append(undo, store.Del(m.Key))
		}
		if m.Delete {
			s.c.Del(m.Key)
			continue
		}
		val := append([]byte(nil), m.Value...)
		if !s.c.SetWithTTL(m.Key, val, s.cost(m.Key, val), 0) {
			s.rollback(undo)
			s.mu.Unlock()
			return store.ErrRejected
		}
	}
	s.c.Wait()
	for _, m := range muts {
		if m.Delete {
			continue
		}
		if got, ok, _ := s.get(m.Key); !ok || !bytes.Equal(got, m.Value) {
			s.rollback(undo)
			s.mu.Unlock()
			return store.ErrRejected
		}
	}
	s.mu.Unlock()

	s.watchers.Notify(store.ChangedKeys(muts)...)
	return nil
}

// rollback replays undo in reverse. Caller holds mu.
func (s *Store) rollback(undo []store.Mutation) {
	for i := len(undo) - 1; i >= 0; i-- {
		u := undo[i]
		if u.Delete {
			s.c.Del(u.Key)
		} else {
			s.c.SetWithTTL(u.Key, u.Value, s.cost(u.Key, u.Value), 0)
		}
	}
	s.c.Wait()
}

func (s *Store) Subscribe(fn func(key string)) func() { return s.watchers.Add(fn) }

func (s *Store) Close(_ context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes ristretto counters (nil unless Config.Metrics).
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }
