// Package bigcache keeps settings in an allegro/bigcache shard map. Entries live
// off the Go heap, which suits large registries of blob-valued settings.
// BigCache evicts by LifeWindow; pass a long window (or 0 CleanWindow) when the
// store must keep values for the whole process.
package bigcache

import (
	"context"
	"errors"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/prefs/store"
)

type Store struct {
	// mu makes multi-key commits atomic with respect to Get.
	mu sync.RWMutex
	c  *bc.BigCache

	watchers store.Watchers
}

var _ store.Store = (*Store)(nil)

type Config struct {
	LifeWindow         time.Duration // 0 => 100 years
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

const foreverish = 100 * 365 * 24 * time.Hour

func New(cfg Config) (*Store, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = foreverish
	}
	conf := bc.DefaultConfig(life)
	conf.CleanWindow = cfg.CleanWindow
	conf.Verbose = false
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Commit writes every mutation or, if one fails, restores the keys already
// touched to their previous state.
func (s *Store) Commit(ctx context.Context, muts []store.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	undo := make([]store.Mutation, 0, len(muts))
	for _, m := range muts {
		prev, err := s.c.Get(m.Key)
		switch {
		case errors.Is(err, bc.ErrEntryNotFound):
			undo = append(undo, store.Del(m.Key))
		case err != nil:
			s.rollback(undo)
			s.mu.Unlock()
			return err
		default:
			undo = append(undo, store.Put(m.Key, prev))
		}

		if m.Delete {
			err = s.c.Delete(m.Key)
			if errors.Is(err, bc.ErrEntryNotFound) {
				err = nil
			}
		} else {
			err = s.c.Set(m.Key, m.Value)
		}
		if err != nil {
			s.rollback(undo)
			s.mu.Unlock()
			return err
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
			_ = s.c.Delete(u.Key)
		} else {
			_ = s.c.Set(u.Key, u.Value)
		}
	}
}

func (s *Store) Subscribe(fn func(key string)) func() { return s.watchers.Add(fn) }

func (s *Store) Close(_ context.Context) error {
	return s.c.Close()
}
