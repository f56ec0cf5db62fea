package testrun

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrTestRunNotFound is returned when a test run is not found.
	ErrTestRunNotFound = errors.New("test run not found")

	// ErrInvalidTestCaseID is returned when test_case_id is not set.
	ErrInvalidTestCaseID = errors.New("test_case_id is required")

	// ErrInvalidStatus is returned when status is invalid.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidVisualStatus is returned when visual_status is invalid.
	ErrInvalidVisualStatus = errors.New("invalid visual status")

	// ErrRunNotRunning is returned when mutating a run that is not running.
	ErrRunNotRunning = errors.New("test run is not running")

	// ErrRunAlreadyStarted is returned when starting an already started run.
	ErrRunAlreadyStarted = errors.New("test run already started")

	// ErrOutcomeOutOfOrder is returned when a step outcome does not extend the
	// recorded sequence by exactly one index.
	ErrOutcomeOutOfOrder = errors.New("step outcome out of order")
)

// Status represents the functional status of a test run.
// Transitions are monotonic: pending -> running -> (passed | failed).
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusPassed, StatusFailed:
		return true
	default:
		return false
	}
}

// IsFinal checks if the status is terminal.
func (s Status) IsFinal() bool {
	return s == StatusPassed || s == StatusFailed
}

// VisualStatus represents the visual regression outcome of a run,
// tracked independently of the functional status.
type VisualStatus string

const (
	VisualStatusNA              VisualStatus = "n/a"
	VisualStatusBaselineCreated VisualStatus = "baseline_created"
	VisualStatusPassed          VisualStatus = "passed"
	VisualStatusFailed          VisualStatus = "failed"
)

// IsValid checks if the visual status is valid.
func (v VisualStatus) IsValid() bool {
	switch v {
	case VisualStatusNA, VisualStatusBaselineCreated, VisualStatusPassed, VisualStatusFailed:
		return true
	default:
		return false
	}
}

// FailureCode classifies why a step or run failed. Codes are embedded in
// human-readable failure reasons so callers can distinguish them.
type FailureCode string

const (
	CodeLocatorNotFound       FailureCode = "LOCATOR_NOT_FOUND"
	CodeInteractionTimeout    FailureCode = "INTERACTION_TIMEOUT"
	CodeInvalidParameter      FailureCode = "INVALID_PARAMETER"
	CodeBrowserSessionCrash   FailureCode = "BROWSER_SESSION_CRASH"
	CodeVisualComparisonError FailureCode = "VISUAL_COMPARISON_ERROR"
)

// StepOutcome records how one step of a run instance went.
type StepOutcome struct {
	StepIndex int `json:"step_index"`

	// ResolvedLocatorStrategy is the resolver strategy tag (primary,
	// fallback_text, fallback_attribute, not_found).
	ResolvedLocatorStrategy string `json:"resolved_locator_strategy"`

	Status    Status `json:"status"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Reason    string `json:"reason,omitempty"`
}

// StepOutcomes is the ordered per-step record, stored as a JSON column.
type StepOutcomes []StepOutcome

// Value implements the driver.Valuer interface for database storage.
func (o StepOutcomes) Value() (driver.Value, error) {
	if o == nil {
		return json.Marshal([]StepOutcome{})
	}
	return json.Marshal(o)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (o *StepOutcomes) Scan(value interface{}) error {
	if value == nil {
		*o = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan StepOutcomes: not a byte slice")
	}

	return json.Unmarshal(bytes, o)
}

// ArtifactRefs lists blob-store paths of screenshots captured during a run.
type ArtifactRefs []string

// Value implements the driver.Valuer interface for database storage.
func (a ArtifactRefs) Value() (driver.Value, error) {
	if a == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (a *ArtifactRefs) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan ArtifactRefs: not a byte slice")
	}

	return json.Unmarshal(bytes, a)
}

// TestRun is one concrete execution of a test case against one parameter set.
type TestRun struct {
	ID             uuid.UUID    `json:"id" gorm:"type:char(36);primaryKey"`
	TestCaseID     uuid.UUID    `json:"test_case_id" gorm:"type:char(36);not null;index:idx_test_runs_test_case_id"`
	ParameterSetID *uuid.UUID   `json:"parameter_set_id,omitempty" gorm:"type:char(36)"`
	Status         Status       `json:"status" gorm:"type:varchar(20);not null;default:'pending';index:idx_test_runs_status"`
	VisualStatus   VisualStatus `json:"visual_status" gorm:"type:varchar(20);not null;default:'n/a'"`
	StepOutcomes   StepOutcomes `json:"step_outcomes" gorm:"type:json"`
	FailureReason  string       `json:"failure_reason,omitempty" gorm:"type:text"`
	ArtifactRefs   ArtifactRefs `json:"artifact_refs,omitempty" gorm:"type:json"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at" gorm:"index:idx_test_runs_created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating a new test run
func (tr *TestRun) BeforeCreate(tx *gorm.DB) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	return nil
}

// Validate checks if the test run has valid required fields.
func (tr *TestRun) Validate() error {
	if tr.TestCaseID == uuid.Nil {
		return ErrInvalidTestCaseID
	}
	if !tr.Status.IsValid() {
		return ErrInvalidStatus
	}
	if !tr.VisualStatus.IsValid() {
		return ErrInvalidVisualStatus
	}
	return nil
}

// Start moves the run from pending to running and stamps started_at.
func (tr *TestRun) Start() error {
	if tr.Status != StatusPending {
		return ErrRunAlreadyStarted
	}
	now := time.Now()
	tr.StartedAt = &now
	tr.Status = StatusRunning
	return nil
}

// Complete moves a running run to a terminal status. Non-passed completions
// carry a human-readable failure reason.
func (tr *TestRun) Complete(status Status, failureReason string) error {
	if tr.Status != StatusRunning {
		return ErrRunNotRunning
	}
	if !status.IsFinal() {
		return ErrInvalidStatus
	}
	now := time.Now()
	tr.CompletedAt = &now
	tr.Status = status
	tr.FailureReason = failureReason
	return nil
}

// RecordOutcome appends one step outcome. Outcomes must arrive in index
// order with no gaps or duplicates: the recorded indices are always exactly
// the executed step prefix.
func (tr *TestRun) RecordOutcome(outcome StepOutcome) error {
	if tr.Status != StatusRunning {
		return ErrRunNotRunning
	}
	if outcome.StepIndex != len(tr.StepOutcomes)+1 {
		return fmt.Errorf("%w: got index %d, expected %d",
			ErrOutcomeOutOfOrder, outcome.StepIndex, len(tr.StepOutcomes)+1)
	}
	tr.StepOutcomes = append(tr.StepOutcomes, outcome)
	return nil
}
