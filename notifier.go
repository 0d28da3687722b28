package prefs

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/prefs/internal/fanout"
)

// Subscription is the handle returned by Subscribe. Unsubscribe is idempotent
// and may be called from inside the subscriber itself.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *Subscription { return &Subscription{cancel: cancel} }

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Notifier fans a value out to its subscribers. Every Subscribe call yields
// its own subscription, even for the same func. A fire walks the set as it was
// when fire started; a subscriber removed meanwhile is skipped. A panicking
// subscriber is reported and delivery continues. The zero value is ready to use.
//
// Each fire is numbered. A subscriber never receives a value numbered lower
// than one it already received, so a replay racing a fire cannot overwrite
// the newer value.
type Notifier[T any] struct {
	list      fanout.List[event[T]]
	seq       atomic.Uint64
	recovered func(any)
}

type event[T any] struct {
	v   T
	seq uint64
}

// Subscribe registers fn for future changes. There is no initial call.
func (n *Notifier[T]) Subscribe(fn func(T)) *Subscription {
	return newSubscription(n.list.Add(ordered(fn)))
}

// subscribeCurrent registers fn and calls it with current(), unless a newer
// fire reaches fn first.
func (n *Notifier[T]) subscribeCurrent(fn func(T), current func() T) *Subscription {
	deliver := ordered(fn)
	// snapshot before reading: current() is at least as new as fire #seq
	seq := n.seq.Load()
	sub := newSubscription(n.list.Add(deliver))
	fanout.Call(deliver, event[T]{v: current(), seq: seq}, n.report)
	return sub
}

// Len reports the number of live subscribers.
func (n *Notifier[T]) Len() int { return n.list.Len() }

// fireFrom numbers the fire before reading the value, so a later number
// always carries a value read later.
func (n *Notifier[T]) fireFrom(get func() T) {
	seq := n.seq.Add(1)
	n.list.Fire(event[T]{v: get(), seq: seq}, n.report)
}

func (n *Notifier[T]) report(p any) {
	if n.recovered != nil {
		n.recovered(p)
	}
}

// ordered drops events older than the newest one already delivered.
func ordered[T any](fn func(T)) func(event[T]) {
	var last atomic.Uint64
	return func(e event[T]) {
		for {
			cur := last.Load()
			if e.seq < cur {
				return
			}
			if last.CompareAndSwap(cur, e.seq) {
				break
			}
		}
		fn(e.v)
	}
}
