// Package visual compares step screenshots against stored baselines.
//
// Baselines are keyed by (test case, step index) and live in blob storage.
// The first run to produce a screenshot for a step creates the baseline;
// concurrent runs race on a first-write-wins upload and the losers compare
// against the winner's image.
package visual

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/storage"
)

// DefaultThreshold is the minimum pixel similarity for a visual pass.
const DefaultThreshold = 0.99

// Outcome is the result of checking one step screenshot.
type Outcome string

const (
	OutcomeBaselineCreated Outcome = "baseline_created"
	OutcomePassed          Outcome = "passed"
	OutcomeFailed          Outcome = "failed"
)

// CheckResult carries the outcome of one comparison along with the measured
// similarity (1.0 when a baseline was created).
type CheckResult struct {
	Outcome    Outcome
	Similarity float64
}

// Checker compares screenshots against per-step baselines in blob storage.
type Checker struct {
	storage   storage.BlobStorage
	threshold float64
	logger    logger.Logger
}

// NewChecker creates a checker. A non-positive threshold falls back to
// DefaultThreshold.
func NewChecker(store storage.BlobStorage, threshold float64, log logger.Logger) *Checker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Checker{
		storage:   store,
		threshold: threshold,
		logger:    log,
	}
}

// BaselinePath returns the blob storage path for a step's baseline image.
func BaselinePath(testCaseID uuid.UUID, stepIndex int) string {
	return fmt.Sprintf("baselines/%s/step_%d.png", testCaseID.String(), stepIndex)
}

// Check records or compares the screenshot for one step. When no baseline
// exists yet the screenshot becomes the baseline. When the first-write-wins
// upload loses a race, the winner's baseline is downloaded and compared
// against, so concurrent runs of the same step never overwrite each other.
func (c *Checker) Check(ctx context.Context, testCaseID uuid.UUID, stepIndex int, screenshot []byte) (CheckResult, error) {
	path := BaselinePath(testCaseID, stepIndex)

	err := c.storage.UploadIfAbsent(ctx, path, bytes.NewReader(screenshot))
	if err == nil {
		c.logger.Info(ctx, "visual baseline created", map[string]interface{}{
			"test_case_id": testCaseID.String(),
			"step_index":   stepIndex,
			"path":         path,
		})
		return CheckResult{Outcome: OutcomeBaselineCreated, Similarity: 1}, nil
	}
	if !errors.Is(err, storage.ErrAlreadyExists) {
		return CheckResult{}, fmt.Errorf("failed to store baseline: %w", err)
	}

	baseline, err := c.downloadBaseline(ctx, path)
	if err != nil {
		return CheckResult{}, err
	}

	similarity, err := Similarity(baseline, screenshot)
	if err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{Outcome: OutcomePassed, Similarity: similarity}
	if similarity < c.threshold {
		result.Outcome = OutcomeFailed
		c.logger.Warn(ctx, "visual comparison failed", map[string]interface{}{
			"test_case_id": testCaseID.String(),
			"step_index":   stepIndex,
			"similarity":   similarity,
			"threshold":    c.threshold,
		})
	}

	return result, nil
}

func (c *Checker) downloadBaseline(ctx context.Context, path string) ([]byte, error) {
	reader, err := c.storage.Download(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to download baseline: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline: %w", err)
	}
	return data, nil
}
