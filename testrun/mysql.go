package testrun

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/iqap-dev/iqap-runner/logger"
)

// MySQLStore implements the Store interface using GORM and MySQL.
type MySQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewMySQLStore creates a new MySQL-backed test run store.
func NewMySQLStore(db *gorm.DB, log logger.Logger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: log,
	}
}

// Create creates a new test run in the database.
func (s *MySQLStore) Create(ctx context.Context, tr *TestRun) error {
	if err := tr.Validate(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(tr).Error; err != nil {
		s.logger.Error(ctx, "failed to create test run", map[string]interface{}{
			"error":        err.Error(),
			"test_case_id": tr.TestCaseID.String(),
		})
		return err
	}

	return nil
}

// CreateBatch creates a set of test runs in a single transaction, so an
// expansion either fully materializes or not at all.
func (s *MySQLStore) CreateBatch(ctx context.Context, runs []*TestRun) error {
	if len(runs) == 0 {
		return nil
	}
	for _, tr := range runs {
		if err := tr.Validate(); err != nil {
			return err
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, tr := range runs {
			if err := tx.Create(tr).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "failed to create test run batch", map[string]interface{}{
			"error": err.Error(),
			"count": len(runs),
		})
		return err
	}

	s.logger.Info(ctx, "test runs created", map[string]interface{}{
		"test_case_id": runs[0].TestCaseID.String(),
		"count":        len(runs),
	})

	return nil
}

// GetByID retrieves a test run by its ID.
func (s *MySQLStore) GetByID(ctx context.Context, id uuid.UUID) (*TestRun, error) {
	var tr TestRun
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&tr).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTestRunNotFound
		}
		s.logger.Error(ctx, "failed to get test run by ID", map[string]interface{}{
			"error":       err.Error(),
			"test_run_id": id.String(),
		})
		return nil, err
	}

	return &tr, nil
}

// List retrieves test runs matching the filter, newest first.
func (s *MySQLStore) List(ctx context.Context, filter Filter) ([]*TestRun, error) {
	var runs []*TestRun
	query := s.applyFilter(s.db.WithContext(ctx), filter).
		Order("created_at DESC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&runs).Error; err != nil {
		s.logger.Error(ctx, "failed to list test runs", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	return runs, nil
}

// Count returns the number of test runs matching the filter.
func (s *MySQLStore) Count(ctx context.Context, filter Filter) (int, error) {
	var count int64
	err := s.applyFilter(s.db.WithContext(ctx), filter).
		Model(&TestRun{}).
		Count(&count).Error

	if err != nil {
		s.logger.Error(ctx, "failed to count test runs", map[string]interface{}{
			"error": err.Error(),
		})
		return 0, err
	}

	return int(count), nil
}

func (s *MySQLStore) applyFilter(query *gorm.DB, filter Filter) *gorm.DB {
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at <= ?", filter.Until)
	}
	return query
}

// Update updates a test run with the given setters.
func (s *MySQLStore) Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error {
	tr, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, setter := range setters {
		if err := setter(tr); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Save(tr).Error; err != nil {
		s.logger.Error(ctx, "failed to update test run", map[string]interface{}{
			"error":       err.Error(),
			"test_run_id": id.String(),
		})
		return err
	}

	return nil
}

// Claim atomically transitions a run from pending to running. The guarded
// UPDATE makes redelivered dispatch messages harmless: only the first claim
// flips the status, later ones see zero affected rows and return false.
func (s *MySQLStore) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&TestRun{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]interface{}{
			"status":     StatusRunning,
			"started_at": now,
		})

	if result.Error != nil {
		s.logger.Error(ctx, "failed to claim test run", map[string]interface{}{
			"error":       result.Error.Error(),
			"test_run_id": id.String(),
		})
		return false, result.Error
	}

	if result.RowsAffected == 0 {
		// Either the run does not exist or it was already claimed.
		if _, err := s.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}

	s.logger.Info(ctx, "test run claimed", map[string]interface{}{
		"test_run_id": id.String(),
	})

	return true, nil
}

// Complete transitions a running run to a terminal status.
func (s *MySQLStore) Complete(ctx context.Context, id uuid.UUID, status Status, failureReason string) error {
	tr, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := tr.Complete(status, failureReason); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Save(tr).Error; err != nil {
		s.logger.Error(ctx, "failed to complete test run", map[string]interface{}{
			"error":       err.Error(),
			"test_run_id": id.String(),
		})
		return err
	}

	s.logger.Info(ctx, "test run completed", map[string]interface{}{
		"test_run_id": id.String(),
		"status":      string(status),
	})

	return nil
}
