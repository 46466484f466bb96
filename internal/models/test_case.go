package models

import (
	"strconv"
	"time"
)

// TestCase describes one fixture an evaluable assignment is checked against.
type TestCase struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	AssignmentID       uint      `gorm:"not null;index" json:"assignment_id"`
	InputPath          string    `gorm:"size:512;not null" json:"input_path"`
	ExpectedOutputPath string    `gorm:"size:512;not null" json:"expected_output_path"`
	Points             int       `gorm:"not null;default:0" json:"points"`
	MaxExecutionTimeMs int       `gorm:"not null;default:1000" json:"max_execution_time_ms"`
	MaxRAMMB           int       `gorm:"not null;default:256" json:"max_ram_mb"`
	Private            bool      `gorm:"not null;default:false" json:"private"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Key returns the opaque identifier runner results are matched against.
func (t TestCase) Key() string {
	return strconv.FormatUint(uint64(t.ID), 10)
}
