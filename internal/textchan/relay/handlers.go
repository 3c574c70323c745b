package relay

import (
	"slices"
	"sync"
)

// handlers is a set of callbacks that can be removed individually.
type handlers[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

func (h *handlers[T]) add(fn func(T)) (remove func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fns == nil {
		h.fns = make(map[int]func(T))
	}
	id := h.next
	h.next++
	h.fns[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.fns, id)
		h.mu.Unlock()
	}
}

// snapshot returns the callbacks in registration order.
func (h *handlers[T]) snapshot() []func(T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]int, 0, len(h.fns))
	for id := range h.fns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(T), 0, len(ids))
	for _, id := range ids {
		out = append(out, h.fns[id])
	}
	return out
}

// queue is an unbounded FIFO of callbacks run by the dispatcher goroutine,
// so the read loop never blocks on a handler that is itself waiting for a
// response.
type queue struct {
	mu     sync.Mutex
	items  []func()
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
