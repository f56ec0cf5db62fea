// Package authoring turns a natural-language test objective into an
// executable step plan. The generator sees the crawled blueprint of the
// target page, so every step it proposes is bound to a logical element ID
// that actually exists.
package authoring

import (
	"context"
	"errors"

	"github.com/iqap-dev/iqap-runner/blueprint"
	"github.com/iqap-dev/iqap-runner/testcase"
)

var (
	// ErrGenerationFailed is returned when the model produces no usable plan.
	ErrGenerationFailed = errors.New("test case generation failed")

	// ErrObjectiveTooLong is returned when the objective exceeds the prompt limit.
	ErrObjectiveTooLong = errors.New("objective too long")

	// ErrEmptyObjective is returned when no objective text is provided.
	ErrEmptyObjective = errors.New("objective is required")

	// ErrUnknownTarget is returned when a generated step references an element
	// that is not in the blueprint.
	ErrUnknownTarget = errors.New("generated step targets unknown element")
)

// DraftParameterSet is a generated data set for one run of the draft.
type DraftParameterSet struct {
	Name   string          `json:"name"`
	Values testcase.Params `json:"values"`
}

// Draft is a generated test case awaiting persistence.
type Draft struct {
	Name          string              `json:"name"`
	Objective     string              `json:"objective"`
	TargetURL     string              `json:"target_url"`
	Steps         testcase.Steps      `json:"steps"`
	ParameterSets []DraftParameterSet `json:"parameter_sets"`
}

// Generator defines the interface for producing step plans from objectives.
// Implementations can use different backends (AWS Bedrock, local templates, etc.)
type Generator interface {
	Generate(ctx context.Context, objective string, bp *blueprint.UIBlueprint) (*Draft, error)
}
