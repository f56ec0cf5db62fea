package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iqap-dev/iqap-runner/blueprint"
	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/resolver"
	"github.com/iqap-dev/iqap-runner/testcase"
)

// fakeSession records interactions and returns scripted results.
type fakeSession struct {
	clicked    []string
	filled     map[string]string
	visible    map[string]bool
	boxes      map[string]blueprint.BoundingBox
	clickErr   error
	fillErr    error
	screenshot []byte
	shotErr    error
	closed     bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		filled:     make(map[string]string),
		visible:    make(map[string]bool),
		boxes:      make(map[string]blueprint.BoundingBox),
		screenshot: []byte("png-bytes"),
	}
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error { return nil }

func (f *fakeSession) Click(ctx context.Context, el *blueprint.ElementDescriptor) error {
	if f.clickErr != nil {
		return f.clickErr
	}
	f.clicked = append(f.clicked, el.LogicalID)
	return nil
}

func (f *fakeSession) Fill(ctx context.Context, el *blueprint.ElementDescriptor, value string) error {
	if f.fillErr != nil {
		return f.fillErr
	}
	f.filled[el.LogicalID] = value
	return nil
}

func (f *fakeSession) IsVisible(ctx context.Context, el *blueprint.ElementDescriptor) (bool, error) {
	return f.visible[el.LogicalID], nil
}

func (f *fakeSession) BoundingBox(ctx context.Context, el *blueprint.ElementDescriptor) (blueprint.BoundingBox, error) {
	return f.boxes[el.LogicalID], nil
}

func (f *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	if f.shotErr != nil {
		return nil, f.shotErr
	}
	return f.screenshot, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func loginBlueprint() *blueprint.UIBlueprint {
	return &blueprint.UIBlueprint{
		URL: "https://www.saucedemo.com",
		Elements: []blueprint.ElementDescriptor{
			{LogicalID: "username-field", Role: "input", Attributes: map[string]string{"id": "user-name"}},
			{LogicalID: "login-button", Role: "button", VisibleText: "Login", Attributes: map[string]string{"id": "login-button"}},
			{LogicalID: "dashboard-header", Role: "heading", VisibleText: "Products"},
		},
	}
}

func TestExecuteStep_Click(t *testing.T) {
	exec := NewExecutor(logger.NewTestLogger())
	ctx := context.Background()
	bp := loginBlueprint()

	t.Run("click via primary locator", func(t *testing.T) {
		session := newFakeSession()
		step := testcase.TestStep{Index: 1, Action: testcase.ActionClick, TargetElement: "login-button"}

		result, err := exec.ExecuteStep(ctx, session, step, bp, nil)
		require.NoError(t, err)
		assert.Equal(t, resolver.StrategyPrimary, result.Strategy)
		assert.Equal(t, []string{"login-button"}, session.clicked)
		assert.Equal(t, []byte("png-bytes"), result.Screenshot)
	})

	t.Run("renamed id heals via visible text", func(t *testing.T) {
		session := newFakeSession()
		step := testcase.TestStep{Index: 1, Action: testcase.ActionClick, TargetElement: "Login"}

		result, err := exec.ExecuteStep(ctx, session, step, bp, nil)
		require.NoError(t, err)
		assert.Equal(t, resolver.StrategyFallbackText, result.Strategy)
		assert.Equal(t, []string{"login-button"}, session.clicked)
	})

	t.Run("unknown target fails with locator not found", func(t *testing.T) {
		session := newFakeSession()
		step := testcase.TestStep{Index: 1, Action: testcase.ActionClick, TargetElement: "signup-button"}

		result, err := exec.ExecuteStep(ctx, session, step, bp, nil)
		assert.ErrorIs(t, err, ErrLocatorNotFound)
		assert.Equal(t, resolver.StrategyNotFound, result.Strategy)
		assert.Empty(t, session.clicked)
	})

	t.Run("interaction timeout propagates", func(t *testing.T) {
		session := newFakeSession()
		session.clickErr = fmt.Errorf("%w: element not enabled", ErrInteractionTimeout)
		step := testcase.TestStep{Index: 1, Action: testcase.ActionClick, TargetElement: "login-button"}

		_, err := exec.ExecuteStep(ctx, session, step, bp, nil)
		assert.ErrorIs(t, err, ErrInteractionTimeout)
	})
}

func TestExecuteStep_EnterText(t *testing.T) {
	exec := NewExecutor(logger.NewTestLogger())
	ctx := context.Background()
	bp := loginBlueprint()
	step := testcase.TestStep{Index: 1, Action: testcase.ActionEnterText, TargetElement: "username-field", DataKey: "Username"}

	t.Run("fills resolved value", func(t *testing.T) {
		session := newFakeSession()
		params := testcase.Params{"Username": "standard_user"}

		_, err := exec.ExecuteStep(ctx, session, step, bp, params)
		require.NoError(t, err)
		assert.Equal(t, "standard_user", session.filled["username-field"])
	})

	t.Run("missing data key is an invalid parameter", func(t *testing.T) {
		session := newFakeSession()

		_, err := exec.ExecuteStep(ctx, session, step, bp, testcase.Params{"Password": "x"})
		assert.ErrorIs(t, err, ErrInvalidParameter)
		assert.Empty(t, session.filled)
	})

	t.Run("empty parameter value is an invalid parameter", func(t *testing.T) {
		session := newFakeSession()

		_, err := exec.ExecuteStep(ctx, session, step, bp, testcase.Params{"Username": ""})
		assert.ErrorIs(t, err, ErrInvalidParameter)
		assert.Empty(t, session.filled)
	})
}

func TestExecuteStep_VerifyVisible(t *testing.T) {
	exec := NewExecutor(logger.NewTestLogger())
	ctx := context.Background()
	bp := loginBlueprint()
	step := testcase.TestStep{Index: 1, Action: testcase.ActionVerifyVisible, TargetElement: "dashboard-header"}

	t.Run("visible element with area passes", func(t *testing.T) {
		session := newFakeSession()
		session.visible["dashboard-header"] = true
		session.boxes["dashboard-header"] = blueprint.BoundingBox{Width: 120, Height: 24}

		_, err := exec.ExecuteStep(ctx, session, step, bp, nil)
		assert.NoError(t, err)
	})

	t.Run("hidden element fails", func(t *testing.T) {
		session := newFakeSession()
		session.visible["dashboard-header"] = false

		_, err := exec.ExecuteStep(ctx, session, step, bp, nil)
		assert.ErrorIs(t, err, ErrNotVisible)
	})

	t.Run("zero-area element fails", func(t *testing.T) {
		session := newFakeSession()
		session.visible["dashboard-header"] = true
		session.boxes["dashboard-header"] = blueprint.BoundingBox{}

		_, err := exec.ExecuteStep(ctx, session, step, bp, nil)
		assert.ErrorIs(t, err, ErrNotVisible)
	})
}

func TestExecuteStep_ScreenshotFailureIsNonFatal(t *testing.T) {
	exec := NewExecutor(logger.NewTestLogger())
	session := newFakeSession()
	session.shotErr = fmt.Errorf("page gone")
	step := testcase.TestStep{Index: 1, Action: testcase.ActionClick, TargetElement: "login-button"}

	result, err := exec.ExecuteStep(context.Background(), session, step, loginBlueprint(), nil)
	require.NoError(t, err)
	assert.Nil(t, result.Screenshot)
}
