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

type disciplineRepository interface {
	List(ctx context.Context, filter models.DisciplineFilter) ([]models.DisciplinaryAction, int, error)
	GetByID(ctx context.Context, id string) (*models.DisciplinaryAction, error)
	Create(ctx context.Context, action *models.DisciplinaryAction) error
	Delete(ctx context.Context, id string) error
}

type disciplineStudentReader interface {
	GetByID(ctx context.Context, id string) (*models.Student, error)
}

type summaryInvalidator interface {
	InvalidateSummary(ctx context.Context, studentID string)
}

// DisciplineService records incidents and drives the resulting student
// status changes through the engine. The action is persisted first; if the
// transition is rejected the action is rolled back so the two never
// disagree.
type DisciplineService struct {
	repo      disciplineRepository
	students  disciplineStudentReader
	engine    statusEngine
	summaries summaryInvalidator
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDisciplineService constructs the service.
func NewDisciplineService(repo disciplineRepository, students disciplineStudentReader, engine statusEngine, summaries summaryInvalidator, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *DisciplineService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DisciplineService{
		repo:      repo,
		students:  students,
		engine:    engine,
		summaries: summaries,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// CreateDisciplineRequest describes a new incident.
type CreateDisciplineRequest struct {
	StudentID     string     `json:"student_id" validate:"required"`
	Category      string     `json:"category" validate:"required,oneof=MINOR MAJOR SEVERE ACADEMIC"`
	Description   string     `json:"description" validate:"required"`
	ActionDate    time.Time  `json:"action_date" validate:"required"`
	AffectsStatus bool       `json:"affects_status"`
	StatusApplied string     `json:"status_applied" validate:"required_if=AffectsStatus true,omitempty,oneof=SUSPENDED EXPELLED"`
	EndDate       *time.Time `json:"end_date"`
	AutoRestore   bool       `json:"auto_restore"`
	RecordedBy    string     `json:"-"`
}

// DisciplineListRequest describes listing filters.
type DisciplineListRequest struct {
	StudentID  string
	Category   string
	DateFrom   *time.Time
	DateTo     *time.Time
	OnlyStatus bool
	Page       int
	PageSize   int
}

// List returns disciplinary actions with pagination.
func (s *DisciplineService) List(ctx context.Context, req DisciplineListRequest) ([]models.DisciplinaryAction, *models.Pagination, error) {
	filter := models.DisciplineFilter{
		StudentID:  req.StudentID,
		Category:   models.DisciplineCategory(req.Category),
		DateFrom:   req.DateFrom,
		DateTo:     req.DateTo,
		OnlyStatus: req.OnlyStatus,
		Page:       req.Page,
		PageSize:   req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	actions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list disciplinary actions")
	}
	return actions, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one disciplinary action.
func (s *DisciplineService) Get(ctx context.Context, id string) (*models.DisciplinaryAction, error) {
	return s.repo.GetByID(ctx, id)
}

// Create records the incident and, when it affects status, moves the
// student through the engine with this action as the trigger.
func (s *DisciplineService) Create(ctx context.Context, req CreateDisciplineRequest) (*models.DisciplinaryAction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid disciplinary payload")
	}
	if req.AutoRestore && req.EndDate == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "auto restore requires an end date")
	}
	if req.EndDate != nil && !req.EndDate.After(req.ActionDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must fall after the action date")
	}
	if _, err := s.students.GetByID(ctx, req.StudentID); err != nil {
		return nil, err
	}

	action := &models.DisciplinaryAction{
		StudentID:     req.StudentID,
		Category:      models.DisciplineCategory(req.Category),
		Description:   req.Description,
		ActionDate:    req.ActionDate,
		AffectsStatus: req.AffectsStatus,
		EndDate:       req.EndDate,
		AutoRestore:   req.AutoRestore,
		RecordedBy:    req.RecordedBy,
	}
	if req.AffectsStatus {
		applied := transition.Status(req.StatusApplied)
		action.StatusApplied = &applied
	}
	if err := s.repo.Create(ctx, action); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create disciplinary action")
	}

	if req.AffectsStatus {
		_, err := s.engine.Apply(ctx, transition.Request{
			Subject:     transition.Ref{Type: models.SubjectStudent, ID: req.StudentID},
			To:          *action.StatusApplied,
			Reason:      transition.ReasonDisciplinary,
			Trigger:     &transition.TriggerRef{Kind: models.TriggerDisciplinaryAction, ID: action.ID},
			EffectiveAt: req.ActionDate,
			EndDate:     req.EndDate,
			AutoRestore: req.AutoRestore,
			ActorID:     &req.RecordedBy,
			Note:        req.Description,
		})
		if err != nil {
			// The transition was rejected, so the action must not stand.
			if delErr := s.repo.Delete(ctx, action.ID); delErr != nil {
				s.logger.Error("failed to roll back disciplinary action after rejected transition",
					zap.String("action_id", action.ID), zap.Error(delErr))
			}
			return nil, err
		}
		s.summaries.InvalidateSummary(ctx, req.StudentID)
	}

	s.recordAudit(ctx, &req.RecordedBy, models.AuditActionDisciplineCreate, action.ID)
	return action, nil
}

// Delete reverses the action's status effects and then removes it. The
// ledger keeps both the original and the compensating records.
func (s *DisciplineService) Delete(ctx context.Context, id, actorID string) error {
	action, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if action.AffectsStatus {
		note := fmt.Sprintf("disciplinary action %s deleted", action.ID)
		_, err := s.engine.Reverse(ctx, transition.TriggerRef{Kind: models.TriggerDisciplinaryAction, ID: action.ID}, &actorID, note)
		if err != nil && appErrors.FromError(err).Code != appErrors.ErrNotFound.Code {
			return err
		}
		s.summaries.InvalidateSummary(ctx, action.StudentID)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, &actorID, models.AuditActionDisciplineDelete, id)
	return nil
}

// RestoreStudent lifts a suspension manually, ahead of its end date.
func (s *DisciplineService) RestoreStudent(ctx context.Context, studentID, actorID, note string) (*transition.Result, error) {
	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.Status != models.StudentSuspended {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("student is %s, not %s", student.Status, models.StudentSuspended))
	}
	if note == "" {
		note = "suspension lifted manually"
	}
	result, err := s.engine.Apply(ctx, transition.Request{
		Subject: transition.Ref{Type: models.SubjectStudent, ID: studentID},
		To:      models.StudentActive,
		Reason:  transition.ReasonManualRestoration,
		ActorID: &actorID,
		Note:    note,
	})
	if err != nil {
		return nil, err
	}
	s.summaries.InvalidateSummary(ctx, studentID)
	s.recordAudit(ctx, &actorID, models.AuditActionStatusTransition, studentID)
	return result, nil
}

func (s *DisciplineService) recordAudit(ctx context.Context, userID *string, action, resourceID string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "discipline",
		ResourceID: &resourceID,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
