package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/classforge/classforge-api/internal/models"
)

// EvaluationSnapshot groups the fields written after an evaluation run.
// They are persisted in a single UPDATE so a reader never observes a
// partially applied snapshot.
type EvaluationSnapshot struct {
	EvaluatedAt    time.Time
	OverallStatus  string
	PointsObtained int
	PointsPossible int
	Language       string
	Detail         datatypes.JSON
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	SaveEvaluation(ctx context.Context, id uint, snapshot EvaluationSnapshot) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Preload("Assignment").
		Preload("Assignment.TestCases").
		Preload("Student").
		First(&submission, id).Error
	if err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) SaveEvaluation(ctx context.Context, id uint, snapshot EvaluationSnapshot) error {
	return r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_evaluated_at":      snapshot.EvaluatedAt,
			"last_overall_status":    snapshot.OverallStatus,
			"last_points_obtained":   snapshot.PointsObtained,
			"last_points_possible":   snapshot.PointsPossible,
			"last_language":          snapshot.Language,
			"last_evaluation_detail": snapshot.Detail,
		}).Error
}
