package models

import (
	"strings"
	"time"
)

// Classroom groups users and assignments under a single course.
type Classroom struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"size:255;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Memberships []Membership `json:"memberships,omitempty"`
	Assignments []Assignment `json:"assignments,omitempty"`
}

// Membership binds a user to a classroom with a role.
type Membership struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ClassroomID uint      `gorm:"not null;uniqueIndex:idx_membership_classroom_user" json:"classroom_id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_membership_classroom_user" json:"user_id"`
	Role        string    `gorm:"size:32;not null" json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	// MembershipRoleStudent is the default role for classroom members.
	MembershipRoleStudent = "student"
	// MembershipRoleAssistant can review submissions but not manage the classroom.
	MembershipRoleAssistant = "assistant"
	// MembershipRoleTeacher owns the classroom content.
	MembershipRoleTeacher = "teacher"
)

// IsElevated reports whether the membership grants review privileges.
func (m Membership) IsElevated() bool {
	switch strings.ToLower(m.Role) {
	case MembershipRoleTeacher, MembershipRoleAssistant:
		return true
	default:
		return false
	}
}
