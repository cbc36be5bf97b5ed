package models

import (
	"time"

	"github.com/campushq/sis-api/internal/transition"
)

// AcademicTerm is a school session (semester or year). Exactly one term is
// expected to be ACTIVE at a time; that term is the "current session".
type AcademicTerm struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
	EndDate      time.Time `db:"end_date" json:"end_date"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`

	Status transition.Status `db:"status" json:"status"`
}
