// Package executor performs individual test steps against a live browser
// session. Targets are resolved against the page blueprint first, so a step
// can survive a renamed identifier via the resolver's fallback strategies.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iqap-dev/iqap-runner/blueprint"
	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/resolver"
	"github.com/iqap-dev/iqap-runner/testcase"
)

var (
	// ErrLocatorNotFound is returned when no blueprint element matches the
	// step's target at any resolution level.
	ErrLocatorNotFound = errors.New("locator not found")

	// ErrInteractionTimeout is returned when the element resolved but the
	// interaction did not complete in time.
	ErrInteractionTimeout = errors.New("interaction timed out")

	// ErrInvalidParameter is returned when a step references a data key the
	// parameter set does not provide.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrSessionCrashed is returned when the browser session died underneath
	// the step.
	ErrSessionCrashed = errors.New("browser session crashed")

	// ErrNotVisible is returned when a VERIFY_VISIBLE step's element is
	// absent, hidden, or has no renderable area.
	ErrNotVisible = errors.New("element not visible")
)

// Session is one live browser page under automation.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, el *blueprint.ElementDescriptor) error
	Fill(ctx context.Context, el *blueprint.ElementDescriptor, value string) error
	IsVisible(ctx context.Context, el *blueprint.ElementDescriptor) (bool, error)
	BoundingBox(ctx context.Context, el *blueprint.ElementDescriptor) (blueprint.BoundingBox, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// SessionFactory opens a fresh browser session. The coordinator uses it to
// replace a crashed session on retry.
type SessionFactory func(ctx context.Context) (Session, error)

// StepResult describes how one step went.
type StepResult struct {
	Strategy   resolver.Strategy
	Ambiguous  bool
	Elapsed    time.Duration
	Screenshot []byte
}

// Executor runs single steps against a session.
type Executor struct {
	logger logger.Logger
}

// NewExecutor creates a step executor.
func NewExecutor(log logger.Logger) *Executor {
	return &Executor{logger: log}
}

// ExecuteStep resolves the step's target against the blueprint, performs the
// action, and captures a screenshot of the page afterwards. A step that
// errors returns without a screenshot.
func (e *Executor) ExecuteStep(ctx context.Context, session Session, step testcase.TestStep, bp *blueprint.UIBlueprint, params testcase.Params) (StepResult, error) {
	started := time.Now()

	res := resolver.Resolve(step.TargetElement, bp)
	result := StepResult{Strategy: res.Strategy, Ambiguous: res.Ambiguous}
	if !res.Found() {
		result.Elapsed = time.Since(started)
		return result, fmt.Errorf("%w: %q", ErrLocatorNotFound, step.TargetElement)
	}

	if res.Strategy.IsFallback() {
		e.logger.Warn(ctx, "locator resolved via fallback", map[string]interface{}{
			"target":     step.TargetElement,
			"strategy":   string(res.Strategy),
			"matched":    res.Element.LogicalID,
			"ambiguous":  res.Ambiguous,
			"candidates": res.Candidates,
		})
	}

	var err error
	switch step.Action {
	case testcase.ActionClick:
		err = session.Click(ctx, res.Element)

	case testcase.ActionEnterText:
		var value string
		value, err = lookupParam(params, step.DataKey)
		if err == nil {
			err = session.Fill(ctx, res.Element, value)
		}

	case testcase.ActionVerifyVisible:
		err = e.verifyVisible(ctx, session, res.Element)

	default:
		err = fmt.Errorf("%w: unsupported action %q", ErrInvalidParameter, step.Action)
	}

	result.Elapsed = time.Since(started)
	if err != nil {
		return result, err
	}

	if shot, shotErr := session.Screenshot(ctx); shotErr == nil {
		result.Screenshot = shot
	} else {
		e.logger.Warn(ctx, "failed to capture step screenshot", map[string]interface{}{
			"error":  shotErr.Error(),
			"target": step.TargetElement,
		})
	}

	return result, nil
}

// verifyVisible passes only when the element is visible and occupies a
// non-zero area on the page.
func (e *Executor) verifyVisible(ctx context.Context, session Session, el *blueprint.ElementDescriptor) error {
	visible, err := session.IsVisible(ctx, el)
	if err != nil {
		return err
	}
	if !visible {
		return fmt.Errorf("%w: %q", ErrNotVisible, el.LogicalID)
	}

	box, err := session.BoundingBox(ctx, el)
	if err != nil {
		return err
	}
	if box.Area() <= 0 {
		return fmt.Errorf("%w: %q has zero area", ErrNotVisible, el.LogicalID)
	}

	return nil
}

// lookupParam fetches a data key from the run's parameter values. A missing
// key or an empty value is a data problem, not a page problem, and fails
// fast.
func lookupParam(params testcase.Params, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: step has no data key", ErrInvalidParameter)
	}
	value, ok := params[key]
	if !ok {
		return "", fmt.Errorf("%w: data key %q not in parameter set", ErrInvalidParameter, key)
	}
	if value == "" {
		return "", fmt.Errorf("%w: data key %q has an empty value", ErrInvalidParameter, key)
	}
	return value, nil
}
