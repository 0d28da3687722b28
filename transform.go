package prefs

import "sync"

type derived[T, R any] struct {
	parent Controller[T]
	get    func(T) R
	set    func(R) T
}

// Transform presents parent as a Controller[R]. It observes parent's mirror
// and writes through parent, so it adds no store subscription. Closing it is
// a no-op; close the parent.
func Transform[T, R any](parent Controller[T], get func(T) R, set func(R) T) Controller[R] {
	return &derived[T, R]{parent: parent, get: get, set: set}
}

// Not is the boolean negation of c.
func Not(c Controller[bool]) Controller[bool] {
	neg := func(b bool) bool { return !b }
	return Transform(c, neg, neg)
}

func (d *derived[T, R]) Read() R   { return d.get(d.parent.Read()) }
func (d *derived[T, R]) Write(v R) { d.parent.Write(d.set(v)) }
func (d *derived[T, R]) Close()    {}
func (d *derived[T, R]) Subscribe(fn func(R)) *Subscription {
	return d.parent.Subscribe(func(v T) { fn(d.get(v)) })
}

// Cell is a Controller over a plain in-memory value, for views that take a
// Controller but have nothing to persist.
type Cell[T any] struct {
	mu   sync.Mutex
	v    T
	subs Notifier[T]
}

var _ Controller[int] = (*Cell[int])(nil)

func NewCell[T any](v T) *Cell[T] { return &Cell[T]{v: v} }

func (c *Cell[T]) Read() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *Cell[T]) Write(v T) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
	c.subs.fireFrom(c.Read)
}

func (c *Cell[T]) Subscribe(fn func(T)) *Subscription {
	return c.subs.subscribeCurrent(fn, c.Read)
}

func (c *Cell[T]) Close() {}

type funcController[T any] struct {
	read  func() T
	write func(T)
	subs  Notifier[T]
}

// Func adapts a getter/setter pair owned elsewhere. Subscribers get the
// value read at subscribe time, plus every value written through the controller.
func Func[T any](read func() T, write func(T)) Controller[T] {
	return &funcController[T]{read: read, write: write}
}

func (f *funcController[T]) Read() T { return f.read() }

func (f *funcController[T]) Write(v T) {
	f.write(v)
	f.subs.fireFrom(f.read)
}

func (f *funcController[T]) Subscribe(fn func(T)) *Subscription {
	return f.subs.subscribeCurrent(fn, f.read)
}

func (f *funcController[T]) Close() {}
