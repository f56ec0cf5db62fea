package authoring

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/iqap-dev/iqap-runner/blueprint"
)

// MaxObjectiveLength bounds objective text embedded in prompts.
const MaxObjectiveLength = 2000

// SanitizeObjective trims the objective and strips control characters so
// user-provided text cannot smuggle structure into the prompt.
func SanitizeObjective(objective string) (string, error) {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return "", ErrEmptyObjective
	}
	if len(objective) > MaxObjectiveLength {
		return "", ErrObjectiveTooLong
	}

	var result strings.Builder
	for _, r := range objective {
		if unicode.IsControl(r) && r != '\n' {
			continue
		}
		result.WriteRune(r)
	}

	return strings.TrimSpace(result.String()), nil
}

// promptElement is the condensed element view embedded in prompts.
type promptElement struct {
	LogicalID   string `json:"logical_id"`
	Role        string `json:"role"`
	VisibleText string `json:"visible_text,omitempty"`
}

// BuildPrompt constructs the model prompt for generating a step plan. The
// blueprint's elements are embedded so the model can only pick targets that
// exist on the page. XML-style tags keep user data clearly separated from
// instructions.
func BuildPrompt(objective string, bp *blueprint.UIBlueprint) (string, error) {
	sanitized, err := SanitizeObjective(objective)
	if err != nil {
		return "", err
	}

	elements := make([]promptElement, 0, len(bp.Elements))
	for _, el := range bp.Elements {
		elements = append(elements, promptElement{
			LogicalID:   el.LogicalID,
			Role:        el.Role,
			VisibleText: el.VisibleText,
		})
	}

	elementsJSON, err := json.MarshalIndent(elements, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal elements: %w", err)
	}

	prompt := fmt.Sprintf(`Plan a browser test for the following objective against the page described below.

<objective>
%s
</objective>

<page url=%q>
%s
</page>

<requirements>
Return ONLY a JSON object with two fields, "steps" and "parameter_sets". No
markdown formatting, no explanatory text.

Each step is an object with these fields:
- "index": 1-based position, contiguous, starting at 1
- "action": one of "CLICK", "ENTER_TEXT", "VERIFY_VISIBLE"
- "target_element": the logical_id of an element from the page description above
- "data_key": for ENTER_TEXT only, a short symbolic name for the value to type
  (for example "Username"); never put a literal value here

Each parameter set is an object with these fields:
- "name": a short label for the data variant (for example "standard user")
- "values": an object mapping every data_key used by the steps to a concrete value

Rules:
- Use only logical_id values that appear in the page description
- ENTER_TEXT steps must have a data_key; other actions must not
- End with a VERIFY_VISIBLE step that confirms the objective was met
- If any step uses ENTER_TEXT, produce at least one parameter set, and cover
  every data_key in every set; otherwise "parameter_sets" is an empty array
- Produce multiple parameter sets when the objective calls for testing data
  variants
</requirements>`,
		sanitized,
		bp.URL,
		string(elementsJSON),
	)

	return prompt, nil
}
