// Package serial runs event handlers one at a time, in post order, without a
// dedicated goroutine.
//
// The goroutine that posts into an idle queue drains it: it runs the handler
// for its own event and for every event posted meanwhile, including events
// posted by the handler itself. Posting from another goroutine while a drain
// is in progress only enqueues. Handlers therefore never run concurrently and
// may safely post back into their own queue.
package serial

import "sync"

// Queue serializes events of type E through a single handler.
type Queue[E any] struct {
	handle func(E)

	mu       sync.Mutex
	pending  []E
	draining bool
}

func New[E any](handle func(E)) *Queue[E] {
	return &Queue[E]{handle: handle}
}

// Post enqueues ev and drains the queue if no other goroutine is draining.
func (q *Queue[E]) Post(ev E) {
	q.mu.Lock()
	q.pending = append(q.pending, ev)
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	q.drain()
}

func (q *Queue[E]) drain() {
	defer func() {
		if r := recover(); r != nil {
			q.mu.Lock()
			q.pending = nil
			q.draining = false
			q.mu.Unlock()
			panic(r)
		}
	}()

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		ev := q.pending[0]
		var zero E
		q.pending[0] = zero
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.handle(ev)
	}
}
