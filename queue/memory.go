package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryQueue is a channel-backed queue for tests and single-process setups.
type MemoryQueue struct {
	ch     chan uuid.UUID
	once   sync.Once
	closed chan struct{}
}

// NewMemoryQueue creates an in-memory queue with the given buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{
		ch:     make(chan uuid.UUID, size),
		closed: make(chan struct{}),
	}
}

// Publish enqueues a run for execution.
func (q *MemoryQueue) Publish(ctx context.Context, runID uuid.UUID) error {
	select {
	case q.ch <- runID:
		return nil
	case <-q.closed:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe feeds queued runs to the handler until the context ends.
func (q *MemoryQueue) Subscribe(ctx context.Context, handler Handler) error {
	go func() {
		for {
			select {
			case runID := <-q.ch:
				_ = handler(ctx, runID)
			case <-q.closed:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Close stops delivery.
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}
