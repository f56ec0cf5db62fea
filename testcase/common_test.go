package testcase

import (
	"testing"

	"gorm.io/gorm"

	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/testutil"
)

// setupTestStore creates a test database and test case store for testing.
func setupTestStore(t *testing.T) (*gorm.DB, Store) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &TestCase{}, &ParameterSet{})

	log := logger.NewTestLogger()
	store := NewMySQLStore(db, log)

	return db, store
}

// loginSteps returns a valid three-step login sequence.
func loginSteps() Steps {
	return Steps{
		{Index: 1, Action: ActionEnterText, TargetElement: "username-field", DataKey: "Username"},
		{Index: 2, Action: ActionClick, TargetElement: "login-button"},
		{Index: 3, Action: ActionVerifyVisible, TargetElement: "dashboard-header"},
	}
}

// createTestCase creates a test case with default values.
func createTestCase(name string) *TestCase {
	return &TestCase{
		Name:      name,
		Objective: "Verify a standard user can log in",
		TargetURL: "https://www.saucedemo.com",
		Steps:     loginSteps(),
	}
}
