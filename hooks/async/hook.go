// Package asynchook moves hook calls off the registry's goroutines.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{DecodeEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	reg, _ := prefs.New(prefs.Options{Store: st, Hooks: hooks})
package asynchook

import (
	"sync/atomic"

	"github.com/unkn0wn-root/prefs"
	"github.com/unkn0wn-root/prefs/internal/worker"
)

// Hooks forwards events to inner on a worker pool. Events that find the
// queue full are dropped and counted.
type Hooks struct {
	inner   prefs.Hooks
	q       *worker.Queue
	dropped atomic.Uint64
}

var _ prefs.Hooks = (*Hooks)(nil)

func New(inner prefs.Hooks, workers, qlen int) *Hooks {
	return &Hooks{inner: inner, q: worker.New(workers, qlen)}
}

// Close delivers queued events and stops the workers. Safe to call multiple times.
func (h *Hooks) Close() { h.q.Close() }

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if !h.q.TrySubmit(f) {
		h.dropped.Add(1)
	}
}

func (h *Hooks) DecodeFailed(k string, err error) { h.try(func() { h.inner.DecodeFailed(k, err) }) }
func (h *Hooks) ReadFailed(k string, err error)   { h.try(func() { h.inner.ReadFailed(k, err) }) }
func (h *Hooks) WriteFailed(k string, err error)  { h.try(func() { h.inner.WriteFailed(k, err) }) }
func (h *Hooks) BatchFlushed(n int)               { h.try(func() { h.inner.BatchFlushed(n) }) }
func (h *Hooks) SubscriberFailed(k string, err error) {
	h.try(func() { h.inner.SubscriberFailed(k, err) })
}
