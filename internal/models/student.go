package models

import (
	"time"

	"github.com/campushq/sis-api/internal/transition"
)

// Student is the roster record. Its lifecycle status lives in the subjects
// table and is only changed through the propagation engine.
type Student struct {
	ID              string    `db:"id" json:"id"`
	NIS             string    `db:"nis" json:"nis"`
	FullName        string    `db:"full_name" json:"full_name"`
	ClassName       string    `db:"class_name" json:"class_name"`
	GradeLevel      int       `db:"grade_level" json:"grade_level"`
	GuardianContact *string   `db:"guardian_contact" json:"guardian_contact,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`

	Status transition.Status `db:"status" json:"status"`
}

// StudentFilter captures listing criteria.
type StudentFilter struct {
	ClassName  string
	GradeLevel *int
	Status     transition.Status
	Search     string
	Page       int
	PageSize   int
}

// StatusSummary is the cached per-student status digest.
type StatusSummary struct {
	StudentID       string            `json:"student_id"`
	CurrentStatus   transition.Status `json:"current_status"`
	EffectiveAt     time.Time         `json:"effective_at"`
	EndDate         *time.Time        `json:"end_date,omitempty"`
	TransitionCount int               `json:"transition_count"`
	LastReason      transition.Reason `json:"last_reason,omitempty"`
}
