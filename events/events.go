// Package events publishes run progress so observers can follow a run while
// it executes. Each run has its own subject; subscribers see run_start, one
// step_result per executed step, and run_end.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted over a run's lifetime.
const (
	TypeRunStart   = "run_start"
	TypeStepResult = "step_result"
	TypeRunEnd     = "run_end"
)

// Event is the envelope published for every run progress update.
type Event struct {
	Type      string    `json:"type"`
	RunID     uuid.UUID `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`

	// Step fields, set for step_result events.
	StepIndex        int    `json:"step_index,omitempty"`
	Action           string `json:"action,omitempty"`
	TargetElement    string `json:"target_element,omitempty"`
	ResolverStrategy string `json:"resolver_strategy,omitempty"`
	StepStatus       string `json:"step_status,omitempty"`

	// Run fields, set for run_end events.
	RunStatus     string `json:"run_status,omitempty"`
	VisualStatus  string `json:"visual_status,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Emitter publishes run progress events. Emission is best-effort: the run
// coordinator never fails a run because an event could not be delivered.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
	Close() error
}

// NewRunStart builds a run_start event.
func NewRunStart(runID uuid.UUID) Event {
	return Event{Type: TypeRunStart, RunID: runID, Timestamp: time.Now()}
}

// NewStepResult builds a step_result event.
func NewStepResult(runID uuid.UUID, stepIndex int, action, target, strategy, status string) Event {
	return Event{
		Type:             TypeStepResult,
		RunID:            runID,
		Timestamp:        time.Now(),
		StepIndex:        stepIndex,
		Action:           action,
		TargetElement:    target,
		ResolverStrategy: strategy,
		StepStatus:       status,
	}
}

// NewRunEnd builds a run_end event.
func NewRunEnd(runID uuid.UUID, runStatus, visualStatus, failureReason string) Event {
	return Event{
		Type:          TypeRunEnd,
		RunID:         runID,
		Timestamp:     time.Now(),
		RunStatus:     runStatus,
		VisualStatus:  visualStatus,
		FailureReason: failureReason,
	}
}
