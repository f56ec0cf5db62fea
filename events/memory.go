package events

import (
	"context"
	"sync"
)

// MemoryEmitter records emitted events in memory. Used in tests and as a
// stand-in when no broker is configured.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryEmitter creates an in-memory emitter.
func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

// Emit records the event.
func (e *MemoryEmitter) Emit(ctx context.Context, event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

// Events returns a copy of everything emitted so far.
func (e *MemoryEmitter) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// Close is a no-op.
func (e *MemoryEmitter) Close() error {
	return nil
}
