package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

// StudentRepository manages roster persistence. Status columns live in the
// subjects table and are joined in on read.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a new repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentSelect = `SELECT s.id, s.nis, s.full_name, s.class_name, s.grade_level, s.guardian_contact,
       s.created_at, s.updated_at, subj.status
FROM students s
JOIN subjects subj ON subj.subject_type = 'STUDENT' AND subj.subject_id = s.id`

// List returns students per provided filter.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ClassName != "" {
		where = append(where, fmt.Sprintf("s.class_name = $%d", len(args)+1))
		args = append(args, filter.ClassName)
	}
	if filter.GradeLevel != nil {
		where = append(where, fmt.Sprintf("s.grade_level = $%d", len(args)+1))
		args = append(args, *filter.GradeLevel)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("subj.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(s.full_name ILIKE $%d OR s.nis ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s WHERE %s ORDER BY s.class_name, s.full_name LIMIT %d OFFSET %d", studentSelect, whereClause, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM students s
JOIN subjects subj ON subj.subject_type = 'STUDENT' AND subj.subject_id = s.id WHERE %s`, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// GetByID returns one student with their current status.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*models.Student, error) {
	query := studentSelect + " WHERE s.id = $1"
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %s not found", id))
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &student, nil
}

// ListIDsByClass returns student ids in a class, used for batch promotion.
func (r *StudentRepository) ListIDsByClass(ctx context.Context, className string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, "SELECT id FROM students WHERE class_name = $1 ORDER BY full_name", className); err != nil {
		return nil, fmt.Errorf("list student ids: %w", err)
	}
	return ids, nil
}

// Create inserts a new student row.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	query := `INSERT INTO students (id, nis, full_name, class_name, grade_level, guardian_contact, created_at, updated_at)
VALUES (:id, :nis, :full_name, :class_name, :grade_level, :guardian_contact, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies roster fields. Status is not touched here.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	query := `UPDATE students SET nis = :nis, full_name = :full_name, class_name = :class_name,
	grade_level = :grade_level, guardian_contact = :guardian_contact, updated_at = :updated_at
WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %s not found", student.ID))
	}
	return nil
}

// UpdateClass moves students to a new class and grade, used by promotion.
func (r *StudentRepository) UpdateClass(ctx context.Context, studentIDs []string, className string, gradeLevel int) error {
	if len(studentIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		"UPDATE students SET class_name = ?, grade_level = ?, updated_at = NOW() WHERE id IN (?)",
		className, gradeLevel, studentIDs)
	if err != nil {
		return fmt.Errorf("build promotion update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("update student class: %w", err)
	}
	return nil
}

// Delete removes a student row.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// Summary builds the per-student status digest served from cache.
func (r *StudentRepository) Summary(ctx context.Context, studentID string) (*models.StatusSummary, error) {
	const query = `SELECT subj.status, subj.effective_at, subj.end_date,
       (SELECT COUNT(*) FROM status_transitions t WHERE t.subject_type = 'STUDENT' AND t.subject_id = subj.subject_id) AS transition_count,
       (SELECT t.reason FROM status_transitions t WHERE t.subject_type = 'STUDENT' AND t.subject_id = subj.subject_id
        ORDER BY t.effective_at DESC, t.id DESC LIMIT 1) AS last_reason
FROM subjects subj
WHERE subj.subject_type = 'STUDENT' AND subj.subject_id = $1`
	summary := models.StatusSummary{StudentID: studentID}
	var lastReason sql.NullString
	row := r.db.QueryRowxContext(ctx, query, studentID)
	if err := row.Scan(&summary.CurrentStatus, &summary.EffectiveAt, &summary.EndDate, &summary.TransitionCount, &lastReason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %s not found", studentID))
		}
		return nil, fmt.Errorf("student status summary: %w", err)
	}
	if lastReason.Valid {
		summary.LastReason = transition.Reason(lastReason.String)
	}
	return &summary, nil
}
