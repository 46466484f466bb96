package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/classforge/classforge-api/internal/models"
)

// TestCaseRepository reads the test case ledger for assignments.
type TestCaseRepository interface {
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.TestCase, error)
	CountByAssignment(ctx context.Context, assignmentID uint) (int64, error)
}

type testCaseRepository struct {
	db *gorm.DB
}

// NewTestCaseRepository instantiates the repository.
func NewTestCaseRepository(db *gorm.DB) TestCaseRepository {
	return &testCaseRepository{db: db}
}

func (r *testCaseRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.TestCase, error) {
	var cases []models.TestCase
	err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("id ASC").
		Find(&cases).Error
	if err != nil {
		return nil, err
	}

	return cases, nil
}

func (r *testCaseRepository) CountByAssignment(ctx context.Context, assignmentID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TestCase{}).
		Where("assignment_id = ?", assignmentID).
		Count(&count).Error

	return count, err
}
