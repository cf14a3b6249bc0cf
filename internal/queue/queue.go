// Package queue provides the bounded FIFO channels that sit between the
// upstream relays and the front-ends.
//
// A Queue has one producer role and one consumer role. Push never blocks:
// when the queue is full the oldest item is evicted so that a slow consumer
// cannot stall frame reception. Pop blocks until an item arrives, the
// context ends or the queue is closed.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Push and Pop once the queue has been closed.
var ErrClosed = errors.New("queue closed")

// DropFunc is called with each item evicted to make room for a newer one.
// It runs while the push lock is held and must not push to the same queue.
type DropFunc[T any] func(item T)

// Queue is a bounded FIFO with drop-oldest overflow.
type Queue[T any] struct {
	items   chan T
	done    chan struct{}
	once    sync.Once
	pushMu  sync.Mutex
	onDrop  DropFunc[T]
	dropped atomic.Uint64
}

// New creates a Queue holding at most capacity items.
// A capacity below one is treated as one.
func New[T any](capacity int, onDrop DropFunc[T]) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items:  make(chan T, capacity),
		done:   make(chan struct{}),
		onDrop: onDrop,
	}
}

// Push enqueues item without blocking, evicting the oldest item when full.
func (q *Queue[T]) Push(item T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	q.pushMu.Lock()
	defer q.pushMu.Unlock()

	for {
		select {
		case q.items <- item:
			return nil
		default:
		}

		select {
		case old := <-q.items:
			q.dropped.Add(1)
			if q.onDrop != nil {
				q.onDrop(old)
			}
		default:
			// The consumer took an item in between; retry the send.
		}
	}
}

// Pop removes and returns the oldest item, blocking while the queue is empty.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	select {
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.done:
		return zero, ErrClosed
	}
}

// PopTimeout is like Pop but gives up after d. The boolean result is false
// when the wait timed out without an item.
func (q *Queue[T]) PopTimeout(ctx context.Context, d time.Duration) (T, bool, error) {
	var zero T

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case item := <-q.items:
		return item, true, nil
	case <-timer.C:
		return zero, false, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case <-q.done:
		return zero, false, ErrClosed
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}

// Dropped returns how many items have been evicted since creation.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

// Close wakes blocked consumers and rejects further pushes.
// Items still queued are discarded with the queue.
func (q *Queue[T]) Close() {
	q.once.Do(func() {
		close(q.done)
	})
}
