package models

import (
	"time"

	"github.com/campushq/sis-api/internal/transition"
)

// DisciplineCategory classifies an incident.
type DisciplineCategory string

const (
	DisciplineMinor    DisciplineCategory = "MINOR"
	DisciplineMajor    DisciplineCategory = "MAJOR"
	DisciplineSevere   DisciplineCategory = "SEVERE"
	DisciplineAcademic DisciplineCategory = "ACADEMIC"
)

// DisciplinaryAction records an incident. When AffectsStatus is set the
// student is moved to StatusApplied through the engine, with this action as
// the trigger so deleting the action can reverse the transition.
type DisciplinaryAction struct {
	ID            string             `db:"id" json:"id"`
	StudentID     string             `db:"student_id" json:"student_id"`
	Category      DisciplineCategory `db:"category" json:"category"`
	Description   string             `db:"description" json:"description"`
	ActionDate    time.Time          `db:"action_date" json:"action_date"`
	AffectsStatus bool               `db:"affects_status" json:"affects_status"`
	StatusApplied *transition.Status `db:"status_applied" json:"status_applied,omitempty"`
	EndDate       *time.Time         `db:"end_date" json:"end_date,omitempty"`
	AutoRestore   bool               `db:"auto_restore" json:"auto_restore"`
	RecordedBy    string             `db:"recorded_by" json:"recorded_by"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

// DisciplineFilter captures listing criteria.
type DisciplineFilter struct {
	StudentID  string
	Category   DisciplineCategory
	DateFrom   *time.Time
	DateTo     *time.Time
	OnlyStatus bool
	Page       int
	PageSize   int
}
