// Package queue dispatches run instances to workers. Delivery is
// at-least-once: a message may reach more than one worker or the same worker
// twice, and consumers rely on the store's guarded claim to keep execution
// single-shot.
package queue

import (
	"context"

	"github.com/google/uuid"
)

// Handler processes one dispatched run ID.
type Handler func(ctx context.Context, runID uuid.UUID) error

// Queue carries run dispatch messages from the coordinator to workers.
type Queue interface {
	// Publish enqueues a run for execution.
	Publish(ctx context.Context, runID uuid.UUID) error

	// Subscribe delivers dispatched runs to the handler until the context
	// ends. Workers in the same group share the stream; each message goes
	// to one member.
	Subscribe(ctx context.Context, handler Handler) error

	Close() error
}
