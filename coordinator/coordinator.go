// Package coordinator owns the lifecycle of run instances: expanding test
// cases into runs, dispatching them to workers, driving step execution, and
// recording outcomes. One coordinator instance serves both the API process
// (expansion, cancellation) and the workers (execution).
package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/iqap-dev/iqap-runner/blueprint"
	"github.com/iqap-dev/iqap-runner/events"
	"github.com/iqap-dev/iqap-runner/executor"
	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/queue"
	"github.com/iqap-dev/iqap-runner/resolver"
	"github.com/iqap-dev/iqap-runner/storage"
	"github.com/iqap-dev/iqap-runner/testcase"
	"github.com/iqap-dev/iqap-runner/testrun"
	"github.com/iqap-dev/iqap-runner/visual"
)

var (
	// ErrAlreadyFinished is returned when cancelling a run that reached a
	// terminal status.
	ErrAlreadyFinished = errors.New("test run already finished")

	// ErrNotCancelable is returned when a running run is not executing on
	// this process and cannot be signalled from here.
	ErrNotCancelable = errors.New("test run is not cancelable from this process")
)

// CanceledReason is recorded on runs failed by an explicit cancel request.
const CanceledReason = "canceled by request"

// crashRetries is how many times a run restarts after a browser crash.
const crashRetries = 1

// Coordinator wires stores, browser sessions, visual checks, and events into
// run execution.
type Coordinator struct {
	runs       testrun.Store
	cases      testcase.Store
	blueprints blueprint.Provider
	executor   *executor.Executor
	sessions   executor.SessionFactory
	checker    *visual.Checker
	artifacts  storage.BlobStorage
	emitter    events.Emitter
	queue      queue.Queue
	logger     logger.Logger

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// Config carries the coordinator's collaborators.
type Config struct {
	Runs       testrun.Store
	Cases      testcase.Store
	Blueprints blueprint.Provider
	Executor   *executor.Executor
	Sessions   executor.SessionFactory
	Checker    *visual.Checker
	Artifacts  storage.BlobStorage
	Emitter    events.Emitter
	Queue      queue.Queue
	Logger     logger.Logger
}

// New creates a coordinator.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		runs:       cfg.Runs,
		cases:      cfg.Cases,
		blueprints: cfg.Blueprints,
		executor:   cfg.Executor,
		sessions:   cfg.Sessions,
		checker:    cfg.Checker,
		artifacts:  cfg.Artifacts,
		emitter:    cfg.Emitter,
		queue:      cfg.Queue,
		logger:     cfg.Logger,
	}
}

// StartRuns expands a test case into pending runs, one per parameter set in
// position order, persists them, and dispatches each for execution. A test
// case without parameter sets yields a single run.
func (c *Coordinator) StartRuns(ctx context.Context, testCaseID uuid.UUID) ([]*testrun.TestRun, error) {
	tc, err := c.cases.GetByID(ctx, testCaseID)
	if err != nil {
		return nil, err
	}

	sets, err := c.cases.ListParameterSets(ctx, testCaseID)
	if err != nil {
		return nil, err
	}

	runs := testrun.Expand(tc, sets)
	if err := c.runs.CreateBatch(ctx, runs); err != nil {
		return nil, err
	}

	for _, run := range runs {
		if err := c.queue.Publish(ctx, run.ID); err != nil {
			// The run stays pending; a dispatcher sweep or manual requeue
			// can pick it up later.
			c.logger.Error(ctx, "failed to dispatch run", map[string]interface{}{
				"error":  err.Error(),
				"run_id": run.ID.String(),
			})
		}
	}

	c.logger.Info(ctx, "test case expanded", map[string]interface{}{
		"test_case_id": testCaseID.String(),
		"runs":         len(runs),
	})

	return runs, nil
}

// HandleDispatch executes one dispatched run. Delivery is at-least-once, so
// the guarded claim makes duplicates harmless.
func (c *Coordinator) HandleDispatch(ctx context.Context, runID uuid.UUID) error {
	claimed, err := c.runs.Claim(ctx, runID)
	if err != nil {
		if errors.Is(err, testrun.ErrTestRunNotFound) {
			c.logger.Warn(ctx, "dispatched run does not exist", map[string]interface{}{
				"run_id": runID.String(),
			})
			return nil
		}
		return err
	}
	if !claimed {
		c.logger.Info(ctx, "run already claimed, skipping", map[string]interface{}{
			"run_id": runID.String(),
		})
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.registerCancel(runID, cancel)
	defer c.unregisterCancel(runID)

	_ = c.emitter.Emit(ctx, events.NewRunStart(runID))

	return c.execute(runCtx, runID)
}

// Cancel stops a run. Pending runs are failed before they execute; running
// runs are signalled between steps; finished runs are left alone.
func (c *Coordinator) Cancel(ctx context.Context, runID uuid.UUID) error {
	run, err := c.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}

	switch {
	case run.Status.IsFinal():
		return ErrAlreadyFinished

	case run.Status == testrun.StatusPending:
		claimed, err := c.runs.Claim(ctx, runID)
		if err != nil {
			return err
		}
		if !claimed {
			// A worker got there first; fall through to the signal path.
			return c.signalCancel(runID)
		}
		if err := c.runs.Complete(ctx, runID, testrun.StatusFailed, CanceledReason); err != nil {
			return err
		}
		_ = c.emitter.Emit(ctx, events.NewRunEnd(runID, string(testrun.StatusFailed), string(run.VisualStatus), CanceledReason))
		return nil

	default:
		return c.signalCancel(runID)
	}
}

func (c *Coordinator) signalCancel(runID uuid.UUID) error {
	c.mu.Lock()
	cancel, ok := c.cancels[runID]
	c.mu.Unlock()
	if !ok {
		return ErrNotCancelable
	}
	cancel()
	return nil
}

func (c *Coordinator) registerCancel(runID uuid.UUID, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancels == nil {
		c.cancels = make(map[uuid.UUID]context.CancelFunc)
	}
	c.cancels[runID] = cancel
}

func (c *Coordinator) unregisterCancel(runID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancels, runID)
}

// execute drives a claimed run to a terminal status. Browser crashes restart
// the run from the first step, once. All store writes and the final
// completion happen on a context detached from the cancel signal: a canceled
// run must still be persisted into a terminal state.
func (c *Coordinator) execute(ctx context.Context, runID uuid.UUID) error {
	storeCtx := context.WithoutCancel(ctx)

	run, err := c.runs.GetByID(storeCtx, runID)
	if err != nil {
		return err
	}

	tc, err := c.cases.GetByID(storeCtx, run.TestCaseID)
	if err != nil {
		return c.finish(storeCtx, run, testrun.StatusFailed, run.VisualStatus,
			fmt.Sprintf("test case lookup failed: %v", err))
	}

	params := testcase.Params{}
	if run.ParameterSetID != nil {
		ps, err := c.cases.GetParameterSet(storeCtx, *run.ParameterSetID)
		if err != nil {
			return c.finish(storeCtx, run, testrun.StatusFailed, run.VisualStatus,
				fmt.Sprintf("%s: parameter set lookup failed: %v", testrun.CodeInvalidParameter, err))
		}
		params = ps.Values
	}

	bp, err := c.blueprints.Get(ctx, tc.TargetURL)
	if err != nil {
		return c.finish(storeCtx, run, testrun.StatusFailed, run.VisualStatus,
			fmt.Sprintf("blueprint crawl failed: %v", err))
	}

	for attempt := 0; ; attempt++ {
		result, err := c.runSteps(ctx, storeCtx, run, tc, bp, params)
		if err != nil {
			return err
		}

		if result.crashed && attempt < crashRetries {
			c.logger.Warn(ctx, "browser session crashed, restarting run", map[string]interface{}{
				"run_id":  run.ID.String(),
				"attempt": attempt + 1,
			})
			if err := c.runs.Update(storeCtx, run.ID, testrun.ResetProgress()); err != nil {
				return err
			}
			run, err = c.runs.GetByID(storeCtx, run.ID)
			if err != nil {
				return err
			}
			continue
		}

		status := testrun.StatusPassed
		if result.failureReason != "" {
			status = testrun.StatusFailed
		}
		return c.finish(storeCtx, run, status, result.visual, result.failureReason)
	}
}

// finish completes the run and emits run_end.
func (c *Coordinator) finish(ctx context.Context, run *testrun.TestRun, status testrun.Status, vs testrun.VisualStatus, reason string) error {
	if vs != run.VisualStatus {
		if err := c.runs.Update(ctx, run.ID, testrun.SetVisualStatus(vs)); err != nil {
			return err
		}
	}
	if err := c.runs.Complete(ctx, run.ID, status, reason); err != nil {
		return err
	}

	c.logger.Info(ctx, "test run finished", map[string]interface{}{
		"run_id":        run.ID.String(),
		"status":        string(status),
		"visual_status": string(vs),
	})

	_ = c.emitter.Emit(ctx, events.NewRunEnd(run.ID, string(status), string(vs), reason))
	return nil
}

// attemptResult summarizes one pass over the steps.
type attemptResult struct {
	failureReason string
	visual        testrun.VisualStatus
	crashed       bool
}

// runSteps opens a session and executes the steps in index order, recording
// an outcome and emitting a step_result for every executed step. The first
// failing step short-circuits the rest. The cancel signal is only consulted
// between steps; an in-flight step runs to completion on storeCtx.
func (c *Coordinator) runSteps(ctx, storeCtx context.Context, run *testrun.TestRun, tc *testcase.TestCase, bp *blueprint.UIBlueprint, params testcase.Params) (attemptResult, error) {
	session, err := c.sessions(storeCtx)
	if err != nil {
		return attemptResult{
			failureReason: fmt.Sprintf("%s: failed to open session: %v", testrun.CodeBrowserSessionCrash, err),
			visual:        run.VisualStatus,
			crashed:       true,
		}, nil
	}
	defer session.Close()

	if err := session.Navigate(storeCtx, tc.TargetURL); err != nil {
		return c.stepFailure(storeCtx, run, tc.Steps[0], executor.StepResult{}, run.VisualStatus,
			fmt.Errorf("navigation failed: %w", err))
	}

	agg := visualAggregate{current: run.VisualStatus}

	for _, step := range tc.Steps {
		if ctx.Err() != nil {
			return attemptResult{failureReason: CanceledReason, visual: agg.currentOrNA()}, nil
		}

		result, execErr := c.executor.ExecuteStep(storeCtx, session, step, bp, params)
		if execErr != nil {
			return c.stepFailure(storeCtx, run, step, result, agg.currentOrNA(), execErr)
		}

		outcome := testrun.StepOutcome{
			StepIndex:               step.Index,
			ResolvedLocatorStrategy: string(result.Strategy),
			Status:                  testrun.StatusPassed,
			ElapsedMS:               result.Elapsed.Milliseconds(),
		}
		setters := []testrun.UpdateSetter{testrun.AppendStepOutcome(outcome)}

		if len(result.Screenshot) > 0 {
			ref, err := c.storeArtifact(storeCtx, run.ID, step.Index, result.Screenshot)
			if err == nil {
				setters = append(setters, testrun.AddArtifactRef(ref))
			}
			agg.observe(c.checkVisual(storeCtx, tc.ID, step.Index, result.Screenshot))
		}

		if err := c.runs.Update(storeCtx, run.ID, setters...); err != nil {
			return attemptResult{}, err
		}

		_ = c.emitter.Emit(storeCtx, events.NewStepResult(run.ID, step.Index, string(step.Action),
			step.TargetElement, string(result.Strategy), string(testrun.StatusPassed)))
	}

	return attemptResult{visual: agg.currentOrNA()}, nil
}

// stepFailure records the failing step's outcome and maps the error onto the
// failure taxonomy.
func (c *Coordinator) stepFailure(ctx context.Context, run *testrun.TestRun, step testcase.TestStep, result executor.StepResult, vs testrun.VisualStatus, execErr error) (attemptResult, error) {
	code := classify(execErr)
	reason := fmt.Sprintf("%s: step %d: %v", code, step.Index, execErr)

	// Failures before resolution ran, like a navigation error, carry no
	// strategy; record them as not_found to stay inside the strategy set.
	strategy := result.Strategy
	if strategy == "" {
		strategy = resolver.StrategyNotFound
	}

	outcome := testrun.StepOutcome{
		StepIndex:               step.Index,
		ResolvedLocatorStrategy: string(strategy),
		Status:                  testrun.StatusFailed,
		ElapsedMS:               result.Elapsed.Milliseconds(),
		Reason:                  reason,
	}
	if err := c.runs.Update(ctx, run.ID, testrun.AppendStepOutcome(outcome)); err != nil {
		// Outcome indices desync on crash retries; the failure reason still
		// lands on the run itself below.
		c.logger.Error(ctx, "failed to record step outcome", map[string]interface{}{
			"error":  err.Error(),
			"run_id": run.ID.String(),
		})
	}

	_ = c.emitter.Emit(ctx, events.NewStepResult(run.ID, step.Index, string(step.Action),
		step.TargetElement, string(strategy), string(testrun.StatusFailed)))

	if vs == "" {
		vs = testrun.VisualStatusNA
	}

	return attemptResult{
		failureReason: reason,
		visual:        vs,
		crashed:       code == testrun.CodeBrowserSessionCrash,
	}, nil
}

// storeArtifact uploads a step screenshot and returns its blob path.
func (c *Coordinator) storeArtifact(ctx context.Context, runID uuid.UUID, stepIndex int, screenshot []byte) (string, error) {
	ref := fmt.Sprintf("runs/%s/step_%d.png", runID.String(), stepIndex)
	if err := c.artifacts.Upload(ctx, ref, bytes.NewReader(screenshot)); err != nil {
		c.logger.Warn(ctx, "failed to store screenshot", map[string]interface{}{
			"error":  err.Error(),
			"run_id": runID.String(),
			"step":   stepIndex,
		})
		return "", err
	}
	return ref, nil
}

// checkVisual compares the screenshot against the step baseline. Comparison
// errors degrade the visual verdict without failing the functional run.
func (c *Coordinator) checkVisual(ctx context.Context, testCaseID uuid.UUID, stepIndex int, screenshot []byte) visual.Outcome {
	result, err := c.checker.Check(ctx, testCaseID, stepIndex, screenshot)
	if err != nil {
		c.logger.Error(ctx, "visual comparison errored", map[string]interface{}{
			"error":        err.Error(),
			"code":         string(testrun.CodeVisualComparisonError),
			"test_case_id": testCaseID.String(),
			"step":         stepIndex,
		})
		return visual.OutcomeFailed
	}
	return result.Outcome
}

// classify maps executor errors onto run failure codes.
func classify(err error) testrun.FailureCode {
	switch {
	case errors.Is(err, executor.ErrLocatorNotFound):
		return testrun.CodeLocatorNotFound
	case errors.Is(err, executor.ErrInvalidParameter):
		return testrun.CodeInvalidParameter
	case errors.Is(err, executor.ErrSessionCrashed):
		return testrun.CodeBrowserSessionCrash
	case errors.Is(err, executor.ErrNotVisible), errors.Is(err, executor.ErrInteractionTimeout):
		return testrun.CodeInteractionTimeout
	default:
		return testrun.CodeInteractionTimeout
	}
}

// visualAggregate folds per-step visual outcomes into a run-level status.
// Any failed comparison fails the run visually; otherwise a created baseline
// marks the run as baseline-creating; otherwise all comparisons passed.
type visualAggregate struct {
	current testrun.VisualStatus
}

func (v *visualAggregate) observe(outcome visual.Outcome) {
	switch outcome {
	case visual.OutcomeFailed:
		v.current = testrun.VisualStatusFailed
	case visual.OutcomeBaselineCreated:
		if v.current != testrun.VisualStatusFailed {
			v.current = testrun.VisualStatusBaselineCreated
		}
	case visual.OutcomePassed:
		if v.current == testrun.VisualStatusNA || v.current == "" {
			v.current = testrun.VisualStatusPassed
		}
	}
}

func (v *visualAggregate) currentOrNA() testrun.VisualStatus {
	if v.current == "" {
		return testrun.VisualStatusNA
	}
	return v.current
}
