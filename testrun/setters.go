package testrun

// AppendStepOutcome records one more step outcome on the run.
func AppendStepOutcome(outcome StepOutcome) UpdateSetter {
	return func(tr *TestRun) error {
		return tr.RecordOutcome(outcome)
	}
}

// SetVisualStatus updates the visual regression status of the run.
func SetVisualStatus(vs VisualStatus) UpdateSetter {
	return func(tr *TestRun) error {
		if !vs.IsValid() {
			return ErrInvalidVisualStatus
		}
		tr.VisualStatus = vs
		return nil
	}
}

// AddArtifactRef appends a blob-store path to the run's artifact list.
func AddArtifactRef(ref string) UpdateSetter {
	return func(tr *TestRun) error {
		tr.ArtifactRefs = append(tr.ArtifactRefs, ref)
		return nil
	}
}

// ResetProgress clears recorded step outcomes so a crash-restarted run can
// record from step one again. Artifacts from the aborted attempt are kept.
func ResetProgress() UpdateSetter {
	return func(tr *TestRun) error {
		if tr.Status != StatusRunning {
			return ErrRunNotRunning
		}
		tr.StepOutcomes = nil
		return nil
	}
}

// SetFailureReason records a human-readable failure reason without
// changing the run status.
func SetFailureReason(reason string) UpdateSetter {
	return func(tr *TestRun) error {
		tr.FailureReason = reason
		return nil
	}
}
