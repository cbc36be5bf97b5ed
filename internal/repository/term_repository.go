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

// TermRepository manages academic term persistence.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository constructs a new repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

const termSelect = `SELECT t.id, t.name, t.academic_year, t.start_date, t.end_date, t.created_at, t.updated_at, subj.status
FROM academic_terms t
JOIN subjects subj ON subj.subject_type = 'ACADEMIC_TERM' AND subj.subject_id = t.id`

// List returns all terms, newest session first.
func (r *TermRepository) List(ctx context.Context) ([]models.AcademicTerm, error) {
	var terms []models.AcademicTerm
	if err := r.db.SelectContext(ctx, &terms, termSelect+" ORDER BY t.start_date DESC"); err != nil {
		return nil, fmt.Errorf("list academic terms: %w", err)
	}
	return terms, nil
}

// GetByID returns one term with its current status.
func (r *TermRepository) GetByID(ctx context.Context, id string) (*models.AcademicTerm, error) {
	var term models.AcademicTerm
	if err := r.db.GetContext(ctx, &term, termSelect+" WHERE t.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("academic term %s not found", id))
		}
		return nil, fmt.Errorf("get academic term: %w", err)
	}
	return &term, nil
}

// GetCurrent returns the single ACTIVE term. There is no fallback: callers
// get a not-found error when no session is active.
func (r *TermRepository) GetCurrent(ctx context.Context) (*models.AcademicTerm, error) {
	var term models.AcademicTerm
	query := termSelect + " WHERE subj.status = 'ACTIVE' ORDER BY t.start_date DESC LIMIT 1"
	if err := r.db.GetContext(ctx, &term, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNoActiveTerm, "no active academic term")
		}
		return nil, fmt.Errorf("get current term: %w", err)
	}
	return &term, nil
}

// Create inserts a new academic term.
func (r *TermRepository) Create(ctx context.Context, term *models.AcademicTerm) error {
	if term.ID == "" {
		term.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	term.CreatedAt = now
	term.UpdatedAt = now
	query := `INSERT INTO academic_terms (id, name, academic_year, start_date, end_date, created_at, updated_at)
VALUES (:id, :name, :academic_year, :start_date, :end_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, term); err != nil {
		return fmt.Errorf("create academic term: %w", err)
	}
	return nil
}
