package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

type promotionStudentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Student, error)
	ListIDsByClass(ctx context.Context, className string) ([]string, error)
	UpdateClass(ctx context.Context, studentIDs []string, className string, gradeLevel int) error
}

// PromotionOutcome reports the per-student result of a batch promotion.
type PromotionOutcome struct {
	StudentID string `json:"student_id"`
	Promoted  bool   `json:"promoted"`
	Error     string `json:"error,omitempty"`
}

// PromotionService moves whole classes up a grade or graduates the final
// year. Graduation is a terminal status transition; the roster move only
// happens for students whose transition (if any) succeeded.
type PromotionService struct {
	students  promotionStudentRepository
	engine    statusEngine
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPromotionService constructs the service.
func NewPromotionService(students promotionStudentRepository, engine statusEngine, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *PromotionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotionService{students: students, engine: engine, audit: audit, validator: validate, logger: logger}
}

// PromoteClassRequest describes a class promotion batch.
type PromoteClassRequest struct {
	FromClass string `json:"from_class" validate:"required"`
	ToClass   string `json:"to_class" validate:"required_unless=Graduate true"`
	ToGrade   int    `json:"to_grade" validate:"required_unless=Graduate true,omitempty,min=1,max=13"`
	Graduate  bool   `json:"graduate"`
	ActorID   string `json:"-"`
}

// PromoteClass processes every student in the source class. Graduating
// batches move each student to GRADUATED through the engine; suspended or
// already-terminal students are reported and skipped, the rest proceed.
func (s *PromotionService) PromoteClass(ctx context.Context, req PromoteClassRequest) ([]PromotionOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion payload")
	}

	ids, err := s.students.ListIDsByClass(ctx, req.FromClass)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class roster")
	}
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("class %s has no students", req.FromClass))
	}

	batchID := uuid.NewString()
	trigger := transition.TriggerRef{Kind: models.TriggerPromotionBatch, ID: batchID}

	outcomes := make([]PromotionOutcome, 0, len(ids))
	var moved []string
	for _, id := range ids {
		if req.Graduate {
			_, err := s.engine.Apply(ctx, transition.Request{
				Subject: transition.Ref{Type: models.SubjectStudent, ID: id},
				To:      models.StudentGraduated,
				Reason:  transition.ReasonAcademicPromotion,
				Trigger: &trigger,
				ActorID: &req.ActorID,
				Note:    fmt.Sprintf("graduated from %s", req.FromClass),
			})
			if err != nil {
				outcomes = append(outcomes, PromotionOutcome{StudentID: id, Error: appErrors.FromError(err).Message})
				continue
			}
		}
		moved = append(moved, id)
		outcomes = append(outcomes, PromotionOutcome{StudentID: id, Promoted: true})
	}

	if !req.Graduate && len(moved) > 0 {
		if err := s.students.UpdateClass(ctx, moved, req.ToClass, req.ToGrade); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move students")
		}
	}

	s.logger.Info("class promotion processed",
		zap.String("from_class", req.FromClass),
		zap.Bool("graduate", req.Graduate),
		zap.Int("students", len(ids)),
		zap.Int("promoted", len(moved)))
	if s.audit != nil {
		entry := &models.AuditLog{
			UserID:     &req.ActorID,
			Action:     models.AuditActionPromotion,
			Resource:   "promotion",
			ResourceID: &batchID,
		}
		if err := s.audit.Create(ctx, entry); err != nil {
			s.logger.Warn("failed to record audit log", zap.Error(err))
		}
	}
	return outcomes, nil
}
