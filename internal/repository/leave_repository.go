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
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

// LeaveRepository manages leave request persistence.
type LeaveRepository struct {
	db *sqlx.DB
}

// NewLeaveRepository constructs a new repository.
func NewLeaveRepository(db *sqlx.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

const leaveSelect = `SELECT l.id, l.student_id, l.leave_type, l.reason, l.date_from, l.date_to,
       l.decided_by, l.decided_at, l.decision_note, l.created_at, l.updated_at, subj.status
FROM leave_requests l
JOIN subjects subj ON subj.subject_type = 'LEAVE_REQUEST' AND subj.subject_id = l.id`

// List returns leave requests per provided filter.
func (r *LeaveRepository) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("l.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("subj.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("l.date_to >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("l.date_from <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
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

	query := fmt.Sprintf("%s WHERE %s ORDER BY l.created_at DESC LIMIT %d OFFSET %d", leaveSelect, whereClause, size, offset)
	var requests []models.LeaveRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list leave requests: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM leave_requests l
JOIN subjects subj ON subj.subject_type = 'LEAVE_REQUEST' AND subj.subject_id = l.id WHERE %s`, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count leave requests: %w", err)
	}
	return requests, total, nil
}

// GetByID returns one leave request with its current status.
func (r *LeaveRepository) GetByID(ctx context.Context, id string) (*models.LeaveRequest, error) {
	var request models.LeaveRequest
	if err := r.db.GetContext(ctx, &request, leaveSelect+" WHERE l.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("leave request %s not found", id))
		}
		return nil, fmt.Errorf("get leave request: %w", err)
	}
	return &request, nil
}

// Create inserts a new leave request.
func (r *LeaveRepository) Create(ctx context.Context, request *models.LeaveRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	request.CreatedAt = now
	request.UpdatedAt = now
	query := `INSERT INTO leave_requests (id, student_id, leave_type, reason, date_from, date_to, decision_note, created_at, updated_at)
VALUES (:id, :student_id, :leave_type, :reason, :date_from, :date_to, :decision_note, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create leave request: %w", err)
	}
	return nil
}

// RecordDecision stamps the reviewer onto the request. The status move
// itself goes through the engine.
func (r *LeaveRepository) RecordDecision(ctx context.Context, id, decidedBy, note string, decidedAt time.Time) error {
	const query = `UPDATE leave_requests SET decided_by = $1, decided_at = $2, decision_note = $3, updated_at = NOW()
WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, decidedBy, decidedAt, note, id)
	if err != nil {
		return fmt.Errorf("record leave decision: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("leave request %s not found", id))
	}
	return nil
}
