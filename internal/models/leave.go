package models

import (
	"time"

	"github.com/campushq/sis-api/internal/transition"
)

// LeaveType classifies a leave request.
type LeaveType string

const (
	LeaveSick     LeaveType = "SICK"
	LeaveFamily   LeaveType = "FAMILY"
	LeavePersonal LeaveType = "PERSONAL"
	LeaveOther    LeaveType = "OTHER"
)

// LeaveRequest is a student absence request; its approval state is a
// subject in the transition protocol.
type LeaveRequest struct {
	ID           string     `db:"id" json:"id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	LeaveType    LeaveType  `db:"leave_type" json:"leave_type"`
	Reason       string     `db:"reason" json:"reason"`
	DateFrom     time.Time  `db:"date_from" json:"date_from"`
	DateTo       time.Time  `db:"date_to" json:"date_to"`
	DecidedBy    *string    `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt    *time.Time `db:"decided_at" json:"decided_at,omitempty"`
	DecisionNote string     `db:"decision_note" json:"decision_note"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	Status transition.Status `db:"status" json:"status"`
}

// LeaveFilter captures listing criteria.
type LeaveFilter struct {
	StudentID string
	Status    transition.Status
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}
