package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/classforge/classforge-api/internal/models"
)

// MembershipRepository answers role lookups for classroom members.
type MembershipRepository interface {
	Get(ctx context.Context, classroomID, userID uint) (models.Membership, error)
}

type membershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository instantiates the repository.
func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) Get(ctx context.Context, classroomID, userID uint) (models.Membership, error) {
	var membership models.Membership
	err := r.db.WithContext(ctx).
		Where("classroom_id = ?", classroomID).
		Where("user_id = ?", userID).
		First(&membership).Error
	if err != nil {
		return models.Membership{}, err
	}

	return membership, nil
}
