package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iqap-dev/iqap-runner/blueprint"
)

func sampleBlueprint() *blueprint.UIBlueprint {
	return &blueprint.UIBlueprint{
		URL: "https://shop.example.com/login",
		Elements: []blueprint.ElementDescriptor{
			{
				LogicalID:   "username-field",
				Role:        "input",
				Attributes:  map[string]string{"id": "username-field", "placeholder": "Username"},
				BoundingBox: blueprint.BoundingBox{X: 10, Y: 10, Width: 200, Height: 30},
			},
			{
				LogicalID:   "password-field",
				Role:        "input",
				Attributes:  map[string]string{"id": "password-field", "placeholder": "Password"},
				BoundingBox: blueprint.BoundingBox{X: 10, Y: 50, Width: 200, Height: 30},
			},
			{
				LogicalID:   "submit_3",
				Role:        "button",
				VisibleText: "Login",
				Attributes:  map[string]string{"data-test": "login-btn", "type": "submit"},
				BoundingBox: blueprint.BoundingBox{X: 10, Y: 90, Width: 100, Height: 40},
			},
		},
	}
}

func TestResolve_Primary(t *testing.T) {
	bp := sampleBlueprint()

	res := Resolve("username-field", bp)
	require.True(t, res.Found())
	assert.Equal(t, StrategyPrimary, res.Strategy)
	assert.Equal(t, "username-field", res.Element.LogicalID)
	assert.False(t, res.Ambiguous)
}

func TestResolve_FallbackText(t *testing.T) {
	bp := sampleBlueprint()

	// "login-button" is not a logical ID in the blueprint, but an element
	// with visible text "Login" exists. Text matching is normalized, so the
	// declared target has to equal the text, not contain it.
	res := Resolve("Login", bp)
	require.True(t, res.Found())
	assert.Equal(t, StrategyFallbackText, res.Strategy)
	assert.Equal(t, "submit_3", res.Element.LogicalID)
	assert.True(t, res.Strategy.IsFallback())
}

func TestResolve_FallbackTextCaseAndWhitespace(t *testing.T) {
	bp := &blueprint.UIBlueprint{
		Elements: []blueprint.ElementDescriptor{
			{LogicalID: "cart_0", VisibleText: "  Add   to Cart \n"},
		},
	}

	res := Resolve("add to CART", bp)
	require.True(t, res.Found())
	assert.Equal(t, StrategyFallbackText, res.Strategy)
}

func TestResolve_FallbackAttribute(t *testing.T) {
	bp := sampleBlueprint()

	res := Resolve("login-btn", bp)
	require.True(t, res.Found())
	assert.Equal(t, StrategyFallbackAttribute, res.Strategy)
	assert.Equal(t, "submit_3", res.Element.LogicalID)
}

func TestResolve_TextBeatsAttribute(t *testing.T) {
	bp := &blueprint.UIBlueprint{
		Elements: []blueprint.ElementDescriptor{
			{LogicalID: "a_0", Attributes: map[string]string{"name": "checkout"}},
			{LogicalID: "b_1", VisibleText: "Checkout"},
		},
	}

	res := Resolve("checkout", bp)
	require.True(t, res.Found())
	assert.Equal(t, StrategyFallbackText, res.Strategy)
	assert.Equal(t, "b_1", res.Element.LogicalID)
}

func TestResolve_TieBreaksBySmallestIndex(t *testing.T) {
	bp := &blueprint.UIBlueprint{
		Elements: []blueprint.ElementDescriptor{
			{LogicalID: "first_0", VisibleText: "Details"},
			{LogicalID: "second_1", VisibleText: "Details"},
			{LogicalID: "third_2", VisibleText: "Details"},
		},
	}

	res := Resolve("details", bp)
	require.True(t, res.Found())
	assert.Equal(t, "first_0", res.Element.LogicalID)
	assert.True(t, res.Ambiguous)
	assert.Equal(t, 3, res.Candidates)
}

func TestResolve_NotFound(t *testing.T) {
	bp := sampleBlueprint()

	res := Resolve("no-such-element", bp)
	assert.False(t, res.Found())
	assert.Equal(t, StrategyNotFound, res.Strategy)
	assert.Nil(t, res.Element)
}

func TestResolve_EdgeCases(t *testing.T) {
	t.Run("nil blueprint", func(t *testing.T) {
		res := Resolve("anything", nil)
		assert.Equal(t, StrategyNotFound, res.Strategy)
	})

	t.Run("empty target", func(t *testing.T) {
		res := Resolve("", sampleBlueprint())
		assert.Equal(t, StrategyNotFound, res.Strategy)
	})

	t.Run("empty text never matches empty target", func(t *testing.T) {
		bp := &blueprint.UIBlueprint{
			Elements: []blueprint.ElementDescriptor{
				{LogicalID: "x_0", VisibleText: ""},
			},
		}
		res := Resolve("   ", bp)
		assert.Equal(t, StrategyNotFound, res.Strategy)
	})

	t.Run("primary match never reported as fallback", func(t *testing.T) {
		// An element whose logical ID equals another element's text: the
		// logical ID must win and be tagged primary.
		bp := &blueprint.UIBlueprint{
			Elements: []blueprint.ElementDescriptor{
				{LogicalID: "other_0", VisibleText: "Login"},
				{LogicalID: "Login", VisibleText: "Something else"},
			},
		}
		res := Resolve("Login", bp)
		require.True(t, res.Found())
		assert.Equal(t, StrategyPrimary, res.Strategy)
		assert.Equal(t, "Login", res.Element.LogicalID)
	})
}
