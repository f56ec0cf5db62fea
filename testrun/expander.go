package testrun

import (
	"github.com/google/uuid"

	"github.com/iqap-dev/iqap-runner/testcase"
)

// Expand materializes pending run instances for a test case, one per
// parameter set, preserving the input order. A test case with no parameter
// sets still yields exactly one run, carrying no parameter set reference.
func Expand(tc *testcase.TestCase, sets []*testcase.ParameterSet) []*TestRun {
	if len(sets) == 0 {
		return []*TestRun{newPendingRun(tc, nil)}
	}

	runs := make([]*TestRun, 0, len(sets))
	for _, ps := range sets {
		psID := ps.ID
		runs = append(runs, newPendingRun(tc, &psID))
	}
	return runs
}

func newPendingRun(tc *testcase.TestCase, paramSetID *uuid.UUID) *TestRun {
	return &TestRun{
		TestCaseID:     tc.ID,
		ParameterSetID: paramSetID,
		Status:         StatusPending,
		VisualStatus:   VisualStatusNA,
	}
}
