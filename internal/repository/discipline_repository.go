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

// DisciplineRepository manages persistence for disciplinary actions.
type DisciplineRepository struct {
	db *sqlx.DB
}

// NewDisciplineRepository constructs a new repository.
func NewDisciplineRepository(db *sqlx.DB) *DisciplineRepository {
	return &DisciplineRepository{db: db}
}

const disciplineColumns = `id, student_id, category, description, action_date, affects_status,
       status_applied, end_date, auto_restore, recorded_by, created_at, updated_at`

// List returns disciplinary actions per provided filter.
func (r *DisciplineRepository) List(ctx context.Context, filter models.DisciplineFilter) ([]models.DisciplinaryAction, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Category != "" {
		where = append(where, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("action_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("action_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if filter.OnlyStatus {
		where = append(where, "affects_status")
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

	query := fmt.Sprintf(`SELECT %s FROM disciplinary_actions WHERE %s
ORDER BY action_date DESC, created_at DESC LIMIT %d OFFSET %d`, disciplineColumns, whereClause, size, offset)
	var actions []models.DisciplinaryAction
	if err := r.db.SelectContext(ctx, &actions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list disciplinary actions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM disciplinary_actions WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count disciplinary actions: %w", err)
	}
	return actions, total, nil
}

// GetByID returns one disciplinary action.
func (r *DisciplineRepository) GetByID(ctx context.Context, id string) (*models.DisciplinaryAction, error) {
	query := fmt.Sprintf("SELECT %s FROM disciplinary_actions WHERE id = $1", disciplineColumns)
	var action models.DisciplinaryAction
	if err := r.db.GetContext(ctx, &action, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("disciplinary action %s not found", id))
		}
		return nil, fmt.Errorf("get disciplinary action: %w", err)
	}
	return &action, nil
}

// Create inserts a new disciplinary action.
func (r *DisciplineRepository) Create(ctx context.Context, action *models.DisciplinaryAction) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	action.CreatedAt = now
	action.UpdatedAt = now
	query := `INSERT INTO disciplinary_actions (id, student_id, category, description, action_date, affects_status,
	status_applied, end_date, auto_restore, recorded_by, created_at, updated_at)
VALUES (:id, :student_id, :category, :description, :action_date, :affects_status,
	:status_applied, :end_date, :auto_restore, :recorded_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, action); err != nil {
		return fmt.Errorf("create disciplinary action: %w", err)
	}
	return nil
}

// Delete removes a disciplinary action after its status effects have been
// reversed.
func (r *DisciplineRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM disciplinary_actions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete disciplinary action: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("disciplinary action %s not found", id))
	}
	return nil
}
