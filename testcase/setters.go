package testcase

// SetName returns an UpdateSetter that sets the test case's name.
func SetName(name string) UpdateSetter {
	return func(tc *TestCase) error {
		if name == "" {
			return ErrInvalidName
		}
		tc.Name = name
		return nil
	}
}

// SetObjective returns an UpdateSetter that sets the test case's objective.
func SetObjective(objective string) UpdateSetter {
	return func(tc *TestCase) error {
		tc.Objective = objective
		return nil
	}
}

// SetSteps returns an UpdateSetter that replaces the test case's steps.
func SetSteps(steps Steps) UpdateSetter {
	return func(tc *TestCase) error {
		if err := steps.Validate(); err != nil {
			return err
		}
		tc.Steps = steps
		return nil
	}
}
