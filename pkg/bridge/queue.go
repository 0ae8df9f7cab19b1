package bridge

import "errors"

// ErrQueueFull is returned by Push when the queue is at capacity.
var ErrQueueFull = errors.New("queue full")

// Queue is a bounded FIFO. Push never blocks: at capacity the item is
// rejected with ErrQueueFull and the caller decides whether to drop it.
type Queue[T any] struct {
	ch chan T
}

func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{ch: make(chan T, capacity)}
}

func (q *Queue[T]) Push(item T) error {
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// TryPop removes and returns the oldest item, reporting false when the
// queue is empty.
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case item := <-q.ch:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

func (q *Queue[T]) Len() int { return len(q.ch) }

func (q *Queue[T]) Cap() int { return cap(q.ch) }
