package worker

import "sync"

// Queue runs submitted funcs on a fixed pool of goroutines. With one worker,
// funcs run strictly in submit order. Submit blocks while the queue is full.
type Queue struct {
	q    chan func()
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

func New(workers, qlen int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	w := &Queue{q: make(chan func(), qlen)}
	w.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer w.wg.Done()
			for f := range w.q {
				f()
			}
		}()
	}
	return w
}

// Submit enqueues f. It returns false once the queue is closed.
func (w *Queue) Submit(f func()) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	w.q <- f
	return true
}

// TrySubmit enqueues f unless the queue is full or closed.
func (w *Queue) TrySubmit(f func()) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.q <- f:
		return true
	default:
		return false
	}
}

// Close stops accepting work and waits for queued funcs to finish.
// Safe to call multiple times.
func (w *Queue) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.q)
		w.mu.Unlock()
		w.wg.Wait()
	})
}
