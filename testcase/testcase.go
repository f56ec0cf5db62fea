package testcase

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
	// ErrTestCaseNotFound is returned when a test case is not found.
	ErrTestCaseNotFound = errors.New("test case not found")

	// ErrInvalidName is returned when a test case name is empty.
	ErrInvalidName = errors.New("test case name is required")

	// ErrInvalidTargetURL is returned when target_url is not set.
	ErrInvalidTargetURL = errors.New("target_url is required")

	// ErrInvalidSteps is returned when the step sequence is malformed.
	ErrInvalidSteps = errors.New("invalid steps")

	// ErrInvalidAction is returned when a step carries an unknown action.
	ErrInvalidAction = errors.New("invalid step action")

	// ErrMissingDataKey is returned when an ENTER_TEXT step has no data_key.
	ErrMissingDataKey = errors.New("data_key is required for ENTER_TEXT steps")

	// ErrInvalidTestCaseID is returned when a parameter set has no owning test case.
	ErrInvalidTestCaseID = errors.New("test_case_id is required")

	// ErrParameterSetNotFound is returned when a parameter set is not found.
	ErrParameterSetNotFound = errors.New("parameter set not found")
)

// Action is the kind of interaction a test step performs.
type Action string

const (
	ActionClick         Action = "CLICK"
	ActionEnterText     Action = "ENTER_TEXT"
	ActionVerifyVisible Action = "VERIFY_VISIBLE"
)

// IsValid checks if the action is a known action type.
func (a Action) IsValid() bool {
	switch a {
	case ActionClick, ActionEnterText, ActionVerifyVisible:
		return true
	default:
		return false
	}
}

// TestStep is one abstract step of a test case. Steps are 1-indexed and
// execute strictly in index order.
type TestStep struct {
	Index         int    `json:"index"`
	Action        Action `json:"action"`
	TargetElement string `json:"target_element"`
	DataKey       string `json:"data_key,omitempty"`
}

// Validate checks a single step in isolation.
func (s TestStep) Validate() error {
	if s.Index < 1 {
		return fmt.Errorf("%w: step index must be >= 1", ErrInvalidSteps)
	}
	if !s.Action.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, s.Action)
	}
	if s.TargetElement == "" {
		return fmt.Errorf("%w: step %d has no target_element", ErrInvalidSteps, s.Index)
	}
	if s.Action == ActionEnterText && s.DataKey == "" {
		return fmt.Errorf("%w: step %d", ErrMissingDataKey, s.Index)
	}
	return nil
}

// Steps is the ordered step sequence, stored as a JSON column.
type Steps []TestStep

// Value implements the driver.Valuer interface for database storage.
func (s Steps) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (s *Steps) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan Steps: not a byte slice")
	}

	return json.Unmarshal(bytes, s)
}

// Validate checks that the sequence is contiguous from 1 with no duplicates
// and that every step is individually valid.
func (s Steps) Validate() error {
	for i, step := range s {
		if err := step.Validate(); err != nil {
			return err
		}
		if step.Index != i+1 {
			return fmt.Errorf("%w: expected index %d at position %d, got %d",
				ErrInvalidSteps, i+1, i, step.Index)
		}
	}
	return nil
}

// TestCase is a structured, executable browser test generated from a
// plain-English objective.
type TestCase struct {
	ID        uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name" gorm:"not null"`
	Objective string    `json:"objective" gorm:"type:text"`
	TargetURL string    `json:"target_url" gorm:"type:varchar(2048);not null"`
	Steps     Steps     `json:"steps" gorm:"type:json"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_test_cases_created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating a new test case
func (tc *TestCase) BeforeCreate(tx *gorm.DB) error {
	if tc.ID == uuid.Nil {
		tc.ID = uuid.New()
	}
	return nil
}

// Validate checks if the test case has valid required fields.
func (tc *TestCase) Validate() error {
	if tc.Name == "" {
		return ErrInvalidName
	}
	if tc.TargetURL == "" {
		return ErrInvalidTargetURL
	}
	if len(tc.Steps) == 0 {
		return fmt.Errorf("%w: a test case needs at least one step", ErrInvalidSteps)
	}
	return tc.Steps.Validate()
}

// Params maps data keys to concrete values, stored as a JSON column.
type Params map[string]string

// Value implements the driver.Valuer interface for database storage.
func (p Params) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal(map[string]string{})
	}
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (p *Params) Scan(value interface{}) error {
	if value == nil {
		*p = make(Params)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan Params: not a byte slice")
	}

	var m map[string]string
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*p = m
	return nil
}

// ParameterSet is one named data set for a test case. Each set produces one
// independent run instance.
type ParameterSet struct {
	ID         uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	TestCaseID uuid.UUID `json:"test_case_id" gorm:"type:char(36);not null;index:idx_parameter_sets_test_case_id"`
	Name       string    `json:"name" gorm:"not null"`
	Position   uint      `json:"position" gorm:"not null;default:0"`
	Values     Params    `json:"values" gorm:"type:json;column:values"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating a new parameter set
func (ps *ParameterSet) BeforeCreate(tx *gorm.DB) error {
	if ps.ID == uuid.Nil {
		ps.ID = uuid.New()
	}
	return nil
}

// Validate checks if the parameter set has valid required fields.
func (ps *ParameterSet) Validate() error {
	if ps.TestCaseID == uuid.Nil {
		return ErrInvalidTestCaseID
	}
	if ps.Name == "" {
		return ErrInvalidName
	}
	return nil
}
