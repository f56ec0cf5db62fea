package testrun

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/testcase"
	"github.com/iqap-dev/iqap-runner/testutil"
)

// setupTestStore creates a test database and test run store for testing.
func setupTestStore(t *testing.T) (*gorm.DB, Store) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &testcase.TestCase{}, &testcase.ParameterSet{}, &TestRun{})

	log := logger.NewTestLogger()
	store := NewMySQLStore(db, log)

	return db, store
}

// createTestRun creates a pending test run with default values.
func createTestRun() *TestRun {
	return &TestRun{
		TestCaseID:   uuid.New(),
		Status:       StatusPending,
		VisualStatus: VisualStatusNA,
	}
}

// createTestCase creates a login test case for expansion tests.
func createTestCase() *testcase.TestCase {
	return &testcase.TestCase{
		ID:        uuid.New(),
		Name:      "Login flow",
		Objective: "Verify a standard user can log in",
		TargetURL: "https://www.saucedemo.com",
		Steps: testcase.Steps{
			{Index: 1, Action: testcase.ActionEnterText, TargetElement: "username-field", DataKey: "Username"},
			{Index: 2, Action: testcase.ActionClick, TargetElement: "login-button"},
			{Index: 3, Action: testcase.ActionVerifyVisible, TargetElement: "dashboard-header"},
		},
	}
}

func passedOutcome(index int) StepOutcome {
	return StepOutcome{
		StepIndex:               index,
		ResolvedLocatorStrategy: "primary",
		Status:                  StatusPassed,
		ElapsedMS:               120,
	}
}
