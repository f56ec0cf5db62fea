package authoring

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iqap-dev/iqap-runner/blueprint"
	"github.com/iqap-dev/iqap-runner/testcase"
)

// stripCodeFences removes markdown code fences that models often include
// despite prompt instructions.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if idx := strings.Index(text, "\n"); idx != -1 {
		text = text[idx+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// Plan is the decoded model response: a step sequence plus the data sets to
// run it with.
type Plan struct {
	Steps         testcase.Steps      `json:"steps"`
	ParameterSets []DraftParameterSet `json:"parameter_sets"`
}

// ParsePlan decodes a model response into a validated plan. Every target must
// resolve to a blueprint element, so a hallucinated locator fails generation
// instead of failing the first run, and every data key the steps reference
// must be covered by every parameter set.
func ParsePlan(response []byte, bp *blueprint.UIBlueprint) (*Plan, error) {
	text := stripCodeFences(string(response))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}

	var plan Plan
	decoder := json.NewDecoder(strings.NewReader(text))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if err := plan.Steps.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	known := make(map[string]bool, len(bp.Elements))
	for _, el := range bp.Elements {
		known[el.LogicalID] = true
	}
	for _, step := range plan.Steps {
		if !known[step.TargetElement] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, step.TargetElement)
		}
	}

	dataKeys := make([]string, 0)
	for _, step := range plan.Steps {
		if step.Action == testcase.ActionEnterText {
			dataKeys = append(dataKeys, step.DataKey)
		}
	}
	if len(dataKeys) > 0 && len(plan.ParameterSets) == 0 {
		return nil, fmt.Errorf("%w: steps use data keys but no parameter sets were generated", ErrGenerationFailed)
	}
	for _, ps := range plan.ParameterSets {
		if ps.Name == "" {
			return nil, fmt.Errorf("%w: parameter set without a name", ErrGenerationFailed)
		}
		for _, key := range dataKeys {
			if _, ok := ps.Values[key]; !ok {
				return nil, fmt.Errorf("%w: parameter set %q missing data key %q", ErrGenerationFailed, ps.Name, key)
			}
		}
	}

	return &plan, nil
}
