package prefs

import (
	"context"
	"sync"
)

// Source is anything a controller can bind to: a *Setting or a *MapSetting.
type Source[T any] interface {
	Key() string
	Get(ctx context.Context) T
	Subscribe(fn func(T)) *Subscription

	setAsync(v T, done func(error))
	registry() *Registry
}

// Controller is the surface rendering code consumes: a synchronous read of
// a mirrored value, a write entry point, and observation of the mirror.
type Controller[T any] interface {
	// Read returns the mirrored value. It never touches the store.
	Read() T
	Write(v T)
	// Subscribe calls fn with the mirrored value now and after every change.
	Subscribe(fn func(T)) *Subscription
	// Close detaches the controller. Safe to call multiple times.
	Close()
}

type ControllerOption func(*controllerConfig)

type controllerConfig struct {
	exec    func(func())
	onError func(error)
}

// WithExecutor runs every mirror update through exec, e.g. a func that posts
// to the UI thread. Store notifications and write completions arrive on
// arbitrary goroutines.
func WithExecutor(exec func(func())) ControllerOption {
	return func(c *controllerConfig) { c.exec = exec }
}

// WithErrorHandler receives a write error after the mirror has rolled back.
func WithErrorHandler(fn func(error)) ControllerOption {
	return func(c *controllerConfig) { c.onError = fn }
}

// SettingController mirrors one source for a UI binding. Write updates the
// mirror at once and persists in the background; if the write fails the
// mirror returns to what the store holds.
type SettingController[T any] struct {
	src     Source[T]
	exec    func(func())
	onError func(error)

	mu      sync.Mutex
	bound   bool
	mirror  T
	pending int // writes issued but not settled

	observers Notifier[T]
	sub       *Subscription
	once      sync.Once
}

var _ Controller[bool] = (*SettingController[bool])(nil)

// Bind creates a controller bound to src. Its mirror starts at src's current
// value. Call Close when the observing view goes away.
func Bind[T any](src Source[T], opts ...ControllerOption) *SettingController[T] {
	cfg := controllerConfig{
		exec:    func(f func()) { f() },
		onError: func(error) {},
	}
	for _, o := range opts {
		o(&cfg)
	}
	reg := src.registry()
	c := &SettingController[T]{
		src:     src,
		exec:    cfg.exec,
		onError: cfg.onError,
		bound:   true,
		mirror:  src.Get(reg.bg),
	}
	c.observers.recovered = reg.subscriberFailed(src.Key())
	c.sub = src.Subscribe(func(v T) {
		c.exec(func() { c.external(v) })
	})
	return c
}

func (c *SettingController[T]) Read() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mirror
}

// Write updates the mirror and persists v through the source's write queue.
// From a subscriber the limits of Setting.SetAsync apply.
func (c *SettingController[T]) Write(v T) {
	c.mu.Lock()
	if !c.bound {
		c.mu.Unlock()
		c.src.registry().log.Warn("write through a closed controller ignored", Fields{"key": c.src.Key()})
		return
	}
	c.mirror = v
	c.pending++
	c.mu.Unlock()
	c.observers.fireFrom(c.Read)

	reg := c.src.registry()
	c.src.setAsync(v, func(err error) {
		// read on the calling goroutine; exec may be the UI thread
		cur := c.src.Get(reg.bg)
		c.exec(func() { c.settle(cur, err) })
	})
}

func (c *SettingController[T]) Subscribe(fn func(T)) *Subscription {
	return c.observers.subscribeCurrent(fn, c.Read)
}

func (c *SettingController[T]) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.bound = false
		c.mu.Unlock()
		c.sub.Unsubscribe()
	})
}

// external applies a store notification. While writes are in flight the
// last settle decides the mirror.
func (c *SettingController[T]) external(v T) {
	c.mu.Lock()
	if !c.bound || c.pending > 0 {
		c.mu.Unlock()
		return
	}
	c.mirror = v
	c.mu.Unlock()
	c.observers.fireFrom(c.Read)
}

func (c *SettingController[T]) settle(cur T, err error) {
	c.mu.Lock()
	c.pending--
	if !c.bound || c.pending > 0 {
		c.mu.Unlock()
		if err != nil {
			c.onError(err)
		}
		return
	}
	c.mirror = cur
	c.mu.Unlock()

	if err != nil {
		c.src.registry().log.Debug("controller rolled back after failed write", Fields{"key": c.src.Key()})
		c.onError(err)
	}
	c.observers.fireFrom(c.Read)
}
