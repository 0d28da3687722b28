package prefs

import (
	"context"
	"sync"
)

// stream adapts a replaying subscribe func to a conflating channel.
func stream[T any](ctx context.Context, subscribe func(func(T)) *Subscription) <-chan T {
	out := make(chan T, 1)
	var (
		mu     sync.Mutex
		closed bool
	)
	push := func(v T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- v:
		default:
			// only pushes fill out, and they hold mu: after the drain the send cannot block
			select {
			case <-out:
			default:
			}
			out <- v
		}
	}
	sub := subscribe(push)
	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out
}
