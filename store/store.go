// Package store defines the persistence abstraction used by prefs.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was last committed for a key (no prepended/appended metadata,
// no re-encoding). prefs frames typed primitives itself, so a store never needs
// to know whether a key holds a bool, a number or a JSON blob.
//
// Every committed mutation must be reported to subscribers, one call per changed
// key. Stores that can observe foreign writers (another process, an edited file,
// a shared Redis) report those too.
package store

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/prefs/internal/fanout"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
	// ErrRejected is returned when the store refused a write under pressure.
	ErrRejected = errors.New("store: write rejected")
)

// Mutation is one entry of an atomic Commit.
type Mutation struct {
	Key    string
	Value  []byte
	Delete bool
}

// Put returns a mutation that stores value under key.
func Put(key string, value []byte) Mutation { return Mutation{Key: key, Value: value} }

// Del returns a mutation that removes key.
func Del(key string) Mutation { return Mutation{Key: key, Delete: true} }

// Store is a byte store with atomic multi-key commits and a change stream.
// Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Commit applies all mutations atomically: either every mutation is
	// visible to subsequent reads or none is.
	Commit(ctx context.Context, muts []Mutation) error

	// Subscribe registers fn for change events. fn may be called from any
	// goroutine. The returned cancel func is idempotent.
	Subscribe(fn func(key string)) (cancel func())

	// Close releases resources.
	Close(ctx context.Context) error
}

// Watchers is the change-stream fan-out shared by the stores in this module.
// Each key is delivered over a stable snapshot of callbacks, so a callback may
// subscribe or cancel from inside a notification.
type Watchers struct {
	l fanout.List[string]
}

// Add registers fn and returns its idempotent cancel func.
func (w *Watchers) Add(fn func(key string)) (cancel func()) { return w.l.Add(fn) }

// Len reports the number of live watchers.
func (w *Watchers) Len() int { return w.l.Len() }

// Notify calls every watcher once per key.
func (w *Watchers) Notify(keys ...string) {
	for _, k := range keys {
		w.l.Fire(k, nil)
	}
}

// ChangedKeys returns the keys of muts in order, without duplicates.
func ChangedKeys(muts []Mutation) []string {
	seen := make(map[string]struct{}, len(muts))
	out := make([]string, 0, len(muts))
	for _, m := range muts {
		if _, ok := seen[m.Key]; ok {
			continue
		}
		seen[m.Key] = struct{}{}
		out = append(out, m.Key)
	}
	return out
}
