package testrun

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows a test run listing. Zero values mean "no constraint".
type Filter struct {
	Status Status
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}

// UpdateSetter mutates a test run during an update.
type UpdateSetter func(*TestRun) error

// Store defines the interface for test run data operations.
type Store interface {
	Create(ctx context.Context, tr *TestRun) error
	CreateBatch(ctx context.Context, runs []*TestRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*TestRun, error)
	List(ctx context.Context, filter Filter) ([]*TestRun, error)
	Count(ctx context.Context, filter Filter) (int, error)
	Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error

	// Claim atomically transitions a run from pending to running. It
	// returns false without error when the run is no longer pending, so a
	// redelivered dispatch message is a no-op.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)

	// Complete transitions a running run to a terminal status.
	Complete(ctx context.Context, id uuid.UUID, status Status, failureReason string) error
}
