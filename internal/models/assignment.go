package models

import "time"

// Assignment represents a classroom exercise students submit solutions for.
type Assignment struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ClassroomID uint       `gorm:"not null" json:"classroom_id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	DueDate     time.Time  `gorm:"not null" json:"due_date"`
	Evaluable   bool       `gorm:"not null;default:false" json:"evaluable"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Classroom   Classroom  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"classroom"`
	TestCases   []TestCase `json:"test_cases,omitempty"`
	Submissions []Submission
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueDate)
}
