// Package memory provides a channel-backed work queue for tests and
// single-process deployments.
package memory

import (
	"context"
	"errors"

	"github.com/diskseek/diskseek/internal/search"
)

// ErrQueueFull is returned when the buffer has no room left.
var ErrQueueFull = errors.New("work queue full")

// Queue is a bounded in-process implementation of search.Queue.
type Queue struct {
	ch chan search.WorkItem
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan search.WorkItem, capacity)}
}

// Enqueue adds an item without blocking.
func (q *Queue) Enqueue(ctx context.Context, item search.WorkItem) error {
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until an item arrives or the context ends.
func (q *Queue) Dequeue(ctx context.Context) (search.WorkItem, error) {
	select {
	case item := <-q.ch:
		return item, nil
	case <-ctx.Done():
		return search.WorkItem{}, ctx.Err()
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int {
	return len(q.ch)
}
