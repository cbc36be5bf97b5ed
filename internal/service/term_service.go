package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

type termRepository interface {
	List(ctx context.Context) ([]models.AcademicTerm, error)
	GetByID(ctx context.Context, id string) (*models.AcademicTerm, error)
	GetCurrent(ctx context.Context) (*models.AcademicTerm, error)
	Create(ctx context.Context, term *models.AcademicTerm) error
}

type termSubjectStore interface {
	CreateSubject(ctx context.Context, subject *transition.Subject) error
}

// TermService manages academic sessions. A term must be activated before it
// can complete, and a completed term never reopens.
type TermService struct {
	repo      termRepository
	subjects  termSubjectStore
	engine    statusEngine
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTermService constructs the service.
func NewTermService(repo termRepository, subjects termSubjectStore, engine statusEngine, validate *validator.Validate, logger *zap.Logger) *TermService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TermService{repo: repo, subjects: subjects, engine: engine, validator: validate, logger: logger}
}

// CreateTermRequest describes a new academic session.
type CreateTermRequest struct {
	Name         string    `json:"name" validate:"required"`
	AcademicYear string    `json:"academic_year" validate:"required"`
	StartDate    time.Time `json:"start_date" validate:"required"`
	EndDate      time.Time `json:"end_date" validate:"required"`
}

// List returns all terms.
func (s *TermService) List(ctx context.Context) ([]models.AcademicTerm, error) {
	terms, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	return terms, nil
}

// Get returns one term.
func (s *TermService) Get(ctx context.Context, id string) (*models.AcademicTerm, error) {
	return s.repo.GetByID(ctx, id)
}

// GetCurrent returns the active session or a not-found error.
func (s *TermService) GetCurrent(ctx context.Context) (*models.AcademicTerm, error) {
	return s.repo.GetCurrent(ctx)
}

// Create registers the term in SCHEDULED.
func (s *TermService) Create(ctx context.Context, req CreateTermRequest) (*models.AcademicTerm, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must fall after start date")
	}
	term := &models.AcademicTerm{
		Name:         req.Name,
		AcademicYear: req.AcademicYear,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
	}
	if err := s.repo.Create(ctx, term); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create term")
	}
	if err := s.subjects.CreateSubject(ctx, &transition.Subject{
		Type:   models.SubjectAcademicTerm,
		ID:     term.ID,
		Status: models.TermScheduled,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register term status")
	}
	term.Status = models.TermScheduled
	return term, nil
}

// Activate makes a term the current session. An already active previous
// term is completed first so at most one session is active.
func (s *TermService) Activate(ctx context.Context, id, actorID string) (*models.AcademicTerm, error) {
	term, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Check the target before touching the current session so a doomed
	// activation cannot close the active term.
	if term.Status == models.TermCompleted {
		return nil, appErrors.Clone(appErrors.ErrTerminalState,
			fmt.Sprintf("term %s is completed and cannot be activated", term.Name))
	}

	if current, err := s.repo.GetCurrent(ctx); err == nil && current.ID != id {
		if _, err := s.transitionTerm(ctx, current.ID, models.TermCompleted, actorID,
			fmt.Sprintf("closed when %s was activated", term.Name)); err != nil {
			return nil, err
		}
	} else if err != nil && appErrors.FromError(err).Code != appErrors.ErrNoActiveTerm.Code {
		return nil, err
	}

	if _, err := s.transitionTerm(ctx, id, models.TermActive, actorID, "session opened"); err != nil {
		return nil, err
	}
	term.Status = models.TermActive
	return term, nil
}

// Complete closes a session permanently.
func (s *TermService) Complete(ctx context.Context, id, actorID string) (*models.AcademicTerm, error) {
	term, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.transitionTerm(ctx, id, models.TermCompleted, actorID, "session closed"); err != nil {
		return nil, err
	}
	term.Status = models.TermCompleted
	return term, nil
}

func (s *TermService) transitionTerm(ctx context.Context, id string, to transition.Status, actorID, note string) (*transition.Result, error) {
	return s.engine.Apply(ctx, transition.Request{
		Subject: transition.Ref{Type: models.SubjectAcademicTerm, ID: id},
		To:      to,
		Reason:  transition.ReasonLifecycle,
		Trigger: &transition.TriggerRef{Kind: models.TriggerTermLifecycle, ID: id},
		ActorID: &actorID,
		Note:    note,
	})
}
