package testcase

import (
	"context"

	"github.com/google/uuid"
)

// Store defines the interface for test case persistence operations.
type Store interface {
	// Create creates a new test case in the store.
	Create(ctx context.Context, tc *TestCase) error

	// GetByID retrieves a test case by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*TestCase, error)

	// List retrieves a paginated list of test cases, newest first.
	List(ctx context.Context, limit, offset int) ([]*TestCase, error)

	// Count returns the total number of test cases.
	Count(ctx context.Context) (int, error)

	// Update updates a test case with the given setters.
	Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error

	// CreateParameterSet creates a parameter set owned by a test case.
	CreateParameterSet(ctx context.Context, ps *ParameterSet) error

	// ListParameterSets retrieves a test case's parameter sets in position order.
	ListParameterSets(ctx context.Context, testCaseID uuid.UUID) ([]*ParameterSet, error)

	// GetParameterSet retrieves a parameter set by its ID.
	GetParameterSet(ctx context.Context, id uuid.UUID) (*ParameterSet, error)
}

// UpdateSetter is a function that updates a test case field.
type UpdateSetter func(*TestCase) error
