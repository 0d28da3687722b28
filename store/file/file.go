// Package file keeps settings in memory and flushes them lazily to one
// msgpack-encoded file. It is the synchronous store model: reads and commits
// touch only memory, and the file is rewritten (temp file + rename) after
// FlushDelay. With Watch enabled an fsnotify watcher reloads the file when
// another process replaces it, and reports every key whose bytes changed.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/prefs/store"
)

const defaultFlushDelay = 200 * time.Millisecond

type Config struct {
	Path string
	// FlushDelay batches commits into one file write. 0 => 200ms;
	// negative => write the file inside every Commit.
	FlushDelay time.Duration
	// Watch reloads the file on external modification.
	Watch bool
	// OnError receives background flush, reload and watcher errors.
	OnError func(error)
}

type Store struct {
	path       string
	flushDelay time.Duration
	onErr      func(error)

	mu      sync.RWMutex
	m       map[string][]byte
	version uint64 // bumped on every local commit
	flushed uint64 // version last written to disk
	timer   *time.Timer
	closed  bool

	// flushMu serializes file writes.
	flushMu sync.Mutex
	// syncMu serializes commits when FlushDelay < 0.
	syncMu sync.Mutex

	watchers store.Watchers

	fsw       *fsnotify.Watcher
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ store.Store = (*Store)(nil)

func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("file store: path is required")
	}
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file store: create directory: %w", err)
	}

	s := &Store{
		path:       path,
		flushDelay: cfg.FlushDelay,
		onErr:      cfg.OnError,
		m:          make(map[string][]byte),
	}
	if s.flushDelay == 0 {
		s.flushDelay = defaultFlushDelay
	}
	if s.onErr == nil {
		s.onErr = func(error) {}
	}

	m, err := readFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("file store: load %s: %w", path, err)
	}
	if m != nil {
		s.m = m
	}

	if cfg.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("file store: create watcher: %w", err)
		}
		// watch the directory: writers replace the file by rename
		if err := w.Add(filepath.Dir(path)); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("file store: watch %s: %w", filepath.Dir(path), err)
		}
		s.fsw = w
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go s.watch()
	}
	return s, nil
}

func readFile(path string) (map[string][]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := make(map[string][]byte)
	if len(b) == 0 {
		return m, nil
	}
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, store.ErrClosed
	}
	b, ok := s.m[key]
	return b, ok, nil
}

func (s *Store) Commit(ctx context.Context, muts []store.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lazy := s.flushDelay > 0
	if !lazy {
		// one synchronous commit at a time, so a failed flush can be undone
		s.syncMu.Lock()
		defer s.syncMu.Unlock()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}
	var prev []priorValue
	if !lazy {
		prev = make([]priorValue, 0, len(muts))
		for _, m := range muts {
			old, had := s.m[m.Key]
			prev = append(prev, priorValue{key: m.Key, val: old, had: had})
		}
	}
	prevVersion := s.version
	for _, m := range muts {
		if m.Delete {
			delete(s.m, m.Key)
		} else {
			s.m[m.Key] = append([]byte(nil), m.Value...)
		}
	}
	s.version++
	if lazy && s.timer == nil {
		s.timer = time.AfterFunc(s.flushDelay, s.flushFromTimer)
	}
	s.mu.Unlock()

	if !lazy {
		if err := s.Flush(ctx); err != nil {
			s.mu.Lock()
			// restore in reverse so a key mutated twice gets its original value
			for i := len(prev) - 1; i >= 0; i-- {
				p := prev[i]
				if p.had {
					s.m[p.key] = p.val
				} else {
					delete(s.m, p.key)
				}
			}
			s.version = prevVersion
			s.mu.Unlock()
			return err
		}
	}
	s.watchers.Notify(store.ChangedKeys(muts)...)
	return nil
}

type priorValue struct {
	key string
	val []byte
	had bool
}

func (s *Store) flushFromTimer() {
	s.mu.Lock()
	s.timer = nil
	s.mu.Unlock()
	if err := s.Flush(context.Background()); err != nil {
		s.onErr(fmt.Errorf("file store: flush: %w", err))
	}
}

// Flush writes pending commits to disk now.
func (s *Store) Flush(_ context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	if s.version == s.flushed {
		s.mu.RUnlock()
		return nil
	}
	version := s.version
	b, err := msgpack.Marshal(s.m)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prefs-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	s.mu.Lock()
	if version > s.flushed {
		s.flushed = version
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) Subscribe(fn func(key string)) func() { return s.watchers.Add(fn) }

func (s *Store) watch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return

		case event, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				s.reload()
			}

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			s.onErr(fmt.Errorf("file store: watcher: %w", err))
		}
	}
}

// reload adopts the file's content when no local commit is pending. With a
// pending commit the next flush overwrites the file anyway (last write wins).
func (s *Store) reload() {
	m, err := readFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		m = map[string][]byte{}
	} else if err != nil {
		// a writer may still be mid-way; the next event retries
		s.onErr(fmt.Errorf("file store: reload: %w", err))
		return
	}

	s.mu.Lock()
	if s.closed || s.version != s.flushed {
		s.mu.Unlock()
		return
	}
	var changed []string
	for k, v := range m {
		if old, ok := s.m[k]; !ok || !bytes.Equal(old, v) {
			changed = append(changed, k)
		}
	}
	for k := range s.m {
		if _, ok := m[k]; !ok {
			changed = append(changed, k)
		}
	}
	s.m = m
	s.mu.Unlock()

	s.watchers.Notify(changed...)
}

// Close stops the watcher and flushes pending commits.
func (s *Store) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			_ = s.fsw.Close()
			s.wg.Wait()
		}
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.mu.Unlock()

		err = s.Flush(ctx)

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
	return err
}
