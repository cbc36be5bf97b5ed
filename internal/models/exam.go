package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/campushq/sis-api/internal/transition"
)

// Examination is the aggregate parent: it completes once every schedule has
// been graded.
type Examination struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	TermID            string    `db:"term_id" json:"term_id"`
	ClassName         string    `db:"class_name" json:"class_name"`
	ExpectedSchedules int       `db:"expected_schedules" json:"expected_schedules"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`

	Status transition.Status `db:"status" json:"status"`
}

// ExamSchedule is one subject sitting within an examination.
type ExamSchedule struct {
	ID            string          `db:"id" json:"id"`
	ExaminationID string          `db:"examination_id" json:"examination_id"`
	SubjectName   string          `db:"subject_name" json:"subject_name"`
	ScheduledAt   time.Time       `db:"scheduled_at" json:"scheduled_at"`
	MaxMarks      decimal.Decimal `db:"max_marks" json:"max_marks"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`

	Status transition.Status `db:"status" json:"status"`
}

// ExamResult stores one student's marks for a schedule.
type ExamResult struct {
	ID         string          `db:"id" json:"id"`
	ScheduleID string          `db:"schedule_id" json:"schedule_id"`
	StudentID  string          `db:"student_id" json:"student_id"`
	Marks      decimal.Decimal `db:"marks" json:"marks"`
	GradeLabel string          `db:"grade_label" json:"grade_label"`
	RecordedBy string          `db:"recorded_by" json:"recorded_by"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// GradeFor maps a mark to its label on a standard five-band scale.
func GradeFor(marks, maxMarks decimal.Decimal) string {
	if maxMarks.IsZero() {
		return ""
	}
	pct := marks.Div(maxMarks).Mul(decimal.NewFromInt(100))
	switch {
	case pct.GreaterThanOrEqual(decimal.NewFromInt(85)):
		return "A"
	case pct.GreaterThanOrEqual(decimal.NewFromInt(70)):
		return "B"
	case pct.GreaterThanOrEqual(decimal.NewFromInt(55)):
		return "C"
	case pct.GreaterThanOrEqual(decimal.NewFromInt(40)):
		return "D"
	default:
		return "E"
	}
}
