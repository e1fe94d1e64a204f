// Package queue provides the bounded in-memory queues connecting the
// pipeline stages.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO with context-aware blocking operations. A full
// queue blocks producers, which is what gives the pipeline backpressure.
type Queue[T any] struct {
	ch      chan T
	closeMu sync.Mutex
	closed  bool
}

// New constructs a queue with the provided capacity.
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		ch: make(chan T, capacity),
	}
}

// Enqueue pushes an item, blocking while the queue is full, or returns if
// the context ends first. Enqueueing on a closed queue returns ErrClosed.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) (err error) {
	// The send below panics if Close won a race against this producer;
	// surface that as ErrClosed instead.
	defer func() {
		if recover() != nil {
			err = ErrClosed
		}
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, blocking while the queue is empty. It
// returns ErrClosed once the queue is closed and every buffered item has
// been consumed.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return zero, ErrClosed
		}
		return item, nil
	}
}

// Close marks the end of input. Buffered items remain consumable. Close is
// idempotent.
func (q *Queue[T]) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
