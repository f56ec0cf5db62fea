package testcase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/iqap-dev/iqap-runner/logger"
)

// MySQLStore implements the Store interface using GORM and MySQL.
type MySQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewMySQLStore creates a new MySQL-backed test case store.
func NewMySQLStore(db *gorm.DB, log logger.Logger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: log,
	}
}

// Create creates a new test case in the database.
func (s *MySQLStore) Create(ctx context.Context, tc *TestCase) error {
	if err := tc.Validate(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(tc).Error; err != nil {
		s.logger.Error(ctx, "failed to create test case", map[string]interface{}{
			"error": err.Error(),
			"name":  tc.Name,
		})
		return err
	}

	s.logger.Info(ctx, "test case created", map[string]interface{}{
		"test_case_id": tc.ID.String(),
		"name":         tc.Name,
		"steps":        len(tc.Steps),
	})

	return nil
}

// GetByID retrieves a test case by its ID.
func (s *MySQLStore) GetByID(ctx context.Context, id uuid.UUID) (*TestCase, error) {
	var tc TestCase
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&tc).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTestCaseNotFound
		}
		s.logger.Error(ctx, "failed to get test case by ID", map[string]interface{}{
			"error":        err.Error(),
			"test_case_id": id.String(),
		})
		return nil, err
	}

	return &tc, nil
}

// List retrieves a paginated list of test cases, newest first.
func (s *MySQLStore) List(ctx context.Context, limit, offset int) ([]*TestCase, error) {
	var testCases []*TestCase
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&testCases).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list test cases", map[string]interface{}{
			"error":  err.Error(),
			"limit":  limit,
			"offset": offset,
		})
		return nil, err
	}

	return testCases, nil
}

// Count returns the total number of test cases.
func (s *MySQLStore) Count(ctx context.Context) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&TestCase{}).
		Count(&count).Error

	if err != nil {
		s.logger.Error(ctx, "failed to count test cases", map[string]interface{}{
			"error": err.Error(),
		})
		return 0, err
	}

	return int(count), nil
}

// Update updates a test case with the given setters.
func (s *MySQLStore) Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error {
	tc, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, setter := range setters {
		if err := setter(tc); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Save(tc).Error; err != nil {
		s.logger.Error(ctx, "failed to update test case", map[string]interface{}{
			"error":        err.Error(),
			"test_case_id": id.String(),
		})
		return err
	}

	s.logger.Info(ctx, "test case updated", map[string]interface{}{
		"test_case_id": id.String(),
	})

	return nil
}

// CreateParameterSet creates a parameter set owned by a test case.
func (s *MySQLStore) CreateParameterSet(ctx context.Context, ps *ParameterSet) error {
	if err := ps.Validate(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(ps).Error; err != nil {
		s.logger.Error(ctx, "failed to create parameter set", map[string]interface{}{
			"error":        err.Error(),
			"test_case_id": ps.TestCaseID.String(),
			"name":         ps.Name,
		})
		return err
	}

	return nil
}

// GetParameterSet retrieves a parameter set by its ID.
func (s *MySQLStore) GetParameterSet(ctx context.Context, id uuid.UUID) (*ParameterSet, error) {
	var ps ParameterSet
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&ps).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParameterSetNotFound
		}
		s.logger.Error(ctx, "failed to get parameter set by ID", map[string]interface{}{
			"error":            err.Error(),
			"parameter_set_id": id.String(),
		})
		return nil, err
	}

	return &ps, nil
}

// ListParameterSets retrieves a test case's parameter sets in position order.
func (s *MySQLStore) ListParameterSets(ctx context.Context, testCaseID uuid.UUID) ([]*ParameterSet, error) {
	var sets []*ParameterSet
	err := s.db.WithContext(ctx).
		Where("test_case_id = ?", testCaseID).
		Order("position ASC").
		Find(&sets).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list parameter sets", map[string]interface{}{
			"error":        err.Error(),
			"test_case_id": testCaseID.String(),
		})
		return nil, err
	}

	return sets, nil
}
