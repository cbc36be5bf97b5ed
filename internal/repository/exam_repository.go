package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/sis-api/internal/models"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

// ExamRepository manages examinations, their schedules and results.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs a new repository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

const examSelect = `SELECT e.id, e.name, e.term_id, e.class_name, e.expected_schedules, e.created_at, e.updated_at, subj.status
FROM examinations e
JOIN subjects subj ON subj.subject_type = 'EXAMINATION' AND subj.subject_id = e.id`

const scheduleSelect = `SELECT sc.id, sc.examination_id, sc.subject_name, sc.scheduled_at, sc.max_marks, sc.created_at, sc.updated_at, subj.status
FROM exam_schedules sc
JOIN subjects subj ON subj.subject_type = 'EXAM_SCHEDULE' AND subj.subject_id = sc.id`

// ListByTerm returns examinations within a term.
func (r *ExamRepository) ListByTerm(ctx context.Context, termID string) ([]models.Examination, error) {
	var exams []models.Examination
	query := examSelect + " WHERE e.term_id = $1 ORDER BY e.created_at DESC"
	if err := r.db.SelectContext(ctx, &exams, query, termID); err != nil {
		return nil, fmt.Errorf("list examinations: %w", err)
	}
	return exams, nil
}

// GetByID returns one examination with its current status.
func (r *ExamRepository) GetByID(ctx context.Context, id string) (*models.Examination, error) {
	var exam models.Examination
	if err := r.db.GetContext(ctx, &exam, examSelect+" WHERE e.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("examination %s not found", id))
		}
		return nil, fmt.Errorf("get examination: %w", err)
	}
	return &exam, nil
}

// Create inserts a new examination.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Examination) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exam.CreatedAt = now
	exam.UpdatedAt = now
	query := `INSERT INTO examinations (id, name, term_id, class_name, expected_schedules, created_at, updated_at)
VALUES (:id, :name, :term_id, :class_name, :expected_schedules, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("create examination: %w", err)
	}
	return nil
}

// ListSchedules returns an examination's schedules.
func (r *ExamRepository) ListSchedules(ctx context.Context, examinationID string) ([]models.ExamSchedule, error) {
	var schedules []models.ExamSchedule
	query := scheduleSelect + " WHERE sc.examination_id = $1 ORDER BY sc.scheduled_at"
	if err := r.db.SelectContext(ctx, &schedules, query, examinationID); err != nil {
		return nil, fmt.Errorf("list exam schedules: %w", err)
	}
	return schedules, nil
}

// GetSchedule returns one exam schedule with its current status.
func (r *ExamRepository) GetSchedule(ctx context.Context, id string) (*models.ExamSchedule, error) {
	var schedule models.ExamSchedule
	if err := r.db.GetContext(ctx, &schedule, scheduleSelect+" WHERE sc.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("exam schedule %s not found", id))
		}
		return nil, fmt.Errorf("get exam schedule: %w", err)
	}
	return &schedule, nil
}

// CreateSchedule inserts one schedule row.
func (r *ExamRepository) CreateSchedule(ctx context.Context, schedule *models.ExamSchedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	query := `INSERT INTO exam_schedules (id, examination_id, subject_name, scheduled_at, max_marks, created_at, updated_at)
VALUES (:id, :examination_id, :subject_name, :scheduled_at, :max_marks, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("create exam schedule: %w", err)
	}
	return nil
}

// SaveResults upserts a batch of results for one schedule. Re-entering a
// student's marks replaces the earlier row.
func (r *ExamRepository) SaveResults(ctx context.Context, results []models.ExamResult) error {
	if len(results) == 0 {
		return nil
	}
	const query = `INSERT INTO exam_results (id, schedule_id, student_id, marks, grade_label, recorded_by, created_at, updated_at)
VALUES (:id, :schedule_id, :student_id, :marks, :grade_label, :recorded_by, :created_at, :updated_at)
ON CONFLICT (schedule_id, student_id) DO UPDATE
SET marks = EXCLUDED.marks, grade_label = EXCLUDED.grade_label, recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for i := range results {
		if results[i].ID == "" {
			results[i].ID = uuid.NewString()
		}
		if results[i].CreatedAt.IsZero() {
			results[i].CreatedAt = now
		}
		results[i].UpdatedAt = now
		if _, err := r.db.NamedExecContext(ctx, query, results[i]); err != nil {
			return fmt.Errorf("save exam result: %w", err)
		}
	}
	return nil
}

// ListResults returns a schedule's results.
func (r *ExamRepository) ListResults(ctx context.Context, scheduleID string) ([]models.ExamResult, error) {
	const query = `SELECT id, schedule_id, student_id, marks, grade_label, recorded_by, created_at, updated_at
FROM exam_results WHERE schedule_id = $1 ORDER BY student_id`
	var results []models.ExamResult
	if err := r.db.SelectContext(ctx, &results, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list exam results: %w", err)
	}
	return results, nil
}

// ClearResults removes all results for one schedule.
func (r *ExamRepository) ClearResults(ctx context.Context, scheduleID string) (int, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM exam_results WHERE schedule_id = $1", scheduleID)
	if err != nil {
		return 0, fmt.Errorf("clear exam results: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear exam results rows: %w", err)
	}
	return int(rows), nil
}
