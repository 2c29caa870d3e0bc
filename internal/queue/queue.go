package queue

import (
	"context"
)

// DefaultCapacity is the capacity used when a non-positive size is requested
const DefaultCapacity = 20

// Queue is a fixed-capacity FIFO safe for concurrent producers and consumers.
// Push blocks while the queue is full, Pop blocks while it is empty; both
// give up when their context is done.
type Queue[T any] struct {
	items chan T
}

// New creates a queue holding at most capacity items
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{items: make(chan T, capacity)}
}

// Push appends item, waiting for a free slot. It returns ctx.Err() if the
// context ends first, in which case the item was not enqueued.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	// Fast path so a cancelled context never hides an available slot
	select {
	case q.items <- item:
		return nil
	default:
	}

	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush appends item only if a slot is free
func (q *Queue[T]) TryPush(item T) bool {
	select {
	case q.items <- item:
		return true
	default:
		return false
	}
}

// Pop removes the oldest item, waiting until one is available or ctx ends
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	select {
	case item := <-q.items:
		return item, nil
	default:
	}

	select {
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryPop removes the oldest item if there is one
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case item := <-q.items:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}
