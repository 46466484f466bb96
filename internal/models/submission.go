package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission represents a student's solution for an assignment. The Last*
// fields form the snapshot of the most recent evaluation run and are only
// written together, never individually.
type Submission struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	AssignmentID uint   `gorm:"not null;index" json:"assignment_id"`
	StudentID    uint   `gorm:"not null;index" json:"student_id"`
	SolutionPath string `gorm:"size:512" json:"solution_path"`

	LastEvaluatedAt      *time.Time     `json:"last_evaluated_at"`
	LastOverallStatus    string         `gorm:"size:64" json:"last_overall_status"`
	LastPointsObtained   int            `json:"last_points_obtained"`
	LastPointsPossible   int            `json:"last_points_possible"`
	LastLanguage         string         `gorm:"size:32" json:"last_language"`
	LastEvaluationDetail datatypes.JSON `json:"last_evaluation_detail"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Assignment Assignment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	Student    User       `gorm:"foreignKey:StudentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
}

// HasSolution reports whether a candidate solution artifact is attached.
func (s Submission) HasSolution() bool {
	return s.SolutionPath != ""
}

// WasEvaluated reports whether at least one evaluation run has completed.
func (s Submission) WasEvaluated() bool {
	return s.LastEvaluatedAt != nil
}
