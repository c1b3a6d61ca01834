package queue

import (
	"sync"
)

// Queue is a generic thread-safe FIFO that hands items out in batches.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	pushed uint64
}

// New creates a new empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
	}
}

// Push appends items to the queue.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	q.pushed += uint64(len(items))
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pushed returns how many items have ever been pushed.
func (q *Queue[T]) Pushed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed
}

// TakeBatch removes and returns up to limit items from the front, oldest
// first. limit <= 0 takes everything.
func (q *Queue[T]) TakeBatch(limit int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if limit > 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return nil
	}
	batch := make([]T, n)
	copy(batch, q.items[:n])

	rest := copy(q.items, q.items[n:])
	clear(q.items[rest:])
	q.items = q.items[:rest]
	return batch
}

// PushFront returns items to the front of the queue, ahead of anything
// pushed since they were taken.
func (q *Queue[T]) PushFront(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(append(make([]T, 0, len(items)+len(q.items)), items...), q.items...)
}
