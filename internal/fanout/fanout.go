// Package fanout is a copy-on-write subscriber list. Fire walks the snapshot
// taken when it starts: a subscriber added mid-round waits for the next Fire,
// and one cancelled mid-round is skipped for the rest of the round.
package fanout

import (
	"sync"
	"sync/atomic"
)

type List[T any] struct {
	mu   sync.Mutex
	next uint64
	subs atomic.Pointer[[]*sub[T]]
}

type sub[T any] struct {
	id     uint64
	fn     func(T)
	active atomic.Bool
}

// Add registers fn. The returned cancel func is idempotent.
func (l *List[T]) Add(fn func(T)) (cancel func()) {
	l.mu.Lock()
	l.next++
	s := &sub[T]{id: l.next, fn: fn}
	s.active.Store(true)
	cur := l.snapshot()
	next := make([]*sub[T], 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, s)
	l.subs.Store(&next)
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(s) })
	}
}

func (l *List[T]) Len() int { return len(l.snapshot()) }

// Fire calls every live subscriber with v. When recovered is non-nil a
// panicking subscriber is recovered, handed to recovered, and delivery
// continues with the next one.
func (l *List[T]) Fire(v T, recovered func(any)) {
	for _, s := range l.snapshot() {
		if !s.active.Load() {
			continue
		}
		if recovered == nil {
			s.fn(v)
			continue
		}
		Call(s.fn, v, recovered)
	}
}

// Call runs fn(v), routing a panic to recovered.
func Call[T any](fn func(T), v T, recovered func(any)) {
	defer func() {
		if p := recover(); p != nil {
			recovered(p)
		}
	}()
	fn(v)
}

func (l *List[T]) snapshot() []*sub[T] {
	if p := l.subs.Load(); p != nil {
		return *p
	}
	return nil
}

func (l *List[T]) remove(s *sub[T]) {
	s.active.Store(false)
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.snapshot()
	next := make([]*sub[T], 0, len(cur))
	for _, x := range cur {
		if x.id != s.id {
			next = append(next, x)
		}
	}
	l.subs.Store(&next)
}
