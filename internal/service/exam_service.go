package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

type examRepository interface {
	ListByTerm(ctx context.Context, termID string) ([]models.Examination, error)
	GetByID(ctx context.Context, id string) (*models.Examination, error)
	Create(ctx context.Context, exam *models.Examination) error
	ListSchedules(ctx context.Context, examinationID string) ([]models.ExamSchedule, error)
	GetSchedule(ctx context.Context, id string) (*models.ExamSchedule, error)
	CreateSchedule(ctx context.Context, schedule *models.ExamSchedule) error
	SaveResults(ctx context.Context, results []models.ExamResult) error
	ListResults(ctx context.Context, scheduleID string) ([]models.ExamResult, error)
	ClearResults(ctx context.Context, scheduleID string) (int, error)
}

type examSubjectStore interface {
	CreateSubject(ctx context.Context, subject *transition.Subject) error
}

type examEngine interface {
	Apply(ctx context.Context, req transition.Request) (*transition.Result, error)
	Reverse(ctx context.Context, trigger transition.TriggerRef, actorID *string, note string) ([]transition.Result, error)
	Reopen(ctx context.Context, ref transition.Ref, actorID *string, note string) (*transition.Result, error)
}

// ExamService manages examinations as aggregates: entering results for a
// schedule marks it GRADED, and the parent examination completes once every
// schedule is graded.
type ExamService struct {
	repo      examRepository
	subjects  examSubjectStore
	engine    examEngine
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamService constructs the service.
func NewExamService(repo examRepository, subjects examSubjectStore, engine examEngine, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamService{repo: repo, subjects: subjects, engine: engine, audit: audit, validator: validate, logger: logger}
}

// ScheduleInput describes one subject sitting inside a new examination.
type ScheduleInput struct {
	SubjectName string    `json:"subject_name" validate:"required"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	MaxMarks    string    `json:"max_marks" validate:"required"`
}

// CreateExamRequest describes a new examination with its schedules.
type CreateExamRequest struct {
	Name      string          `json:"name" validate:"required"`
	TermID    string          `json:"term_id" validate:"required"`
	ClassName string          `json:"class_name" validate:"required"`
	Schedules []ScheduleInput `json:"schedules" validate:"required,min=1,dive"`
}

// ResultInput carries one student's marks.
type ResultInput struct {
	StudentID string `json:"student_id" validate:"required"`
	Marks     string `json:"marks" validate:"required"`
}

// SaveResultsRequest enters marks for one schedule.
type SaveResultsRequest struct {
	Results    []ResultInput `json:"results" validate:"required,min=1,dive"`
	RecordedBy string        `json:"-"`
}

// ListByTerm returns a term's examinations.
func (s *ExamService) ListByTerm(ctx context.Context, termID string) ([]models.Examination, error) {
	exams, err := s.repo.ListByTerm(ctx, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list examinations")
	}
	return exams, nil
}

// Get returns one examination together with its schedules.
func (s *ExamService) Get(ctx context.Context, id string) (*models.Examination, []models.ExamSchedule, error) {
	exam, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	schedules, err := s.repo.ListSchedules(ctx, id)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	return exam, schedules, nil
}

// Create registers the examination, its schedules, and their status
// subjects. The examination subject carries the expected child count used
// for completion derivation.
func (s *ExamService) Create(ctx context.Context, req CreateExamRequest) (*models.Examination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid examination payload")
	}

	exam := &models.Examination{
		Name:              req.Name,
		TermID:            req.TermID,
		ClassName:         req.ClassName,
		ExpectedSchedules: len(req.Schedules),
	}
	if err := s.repo.Create(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create examination")
	}

	expected := len(req.Schedules)
	if err := s.subjects.CreateSubject(ctx, &transition.Subject{
		Type:             models.SubjectExamination,
		ID:               exam.ID,
		Status:           models.ExaminationScheduled,
		ExpectedChildren: &expected,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register examination status")
	}

	parentType := string(models.SubjectExamination)
	for _, in := range req.Schedules {
		maxMarks, err := decimal.NewFromString(in.MaxMarks)
		if err != nil || maxMarks.LessThanOrEqual(decimal.Zero) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid max marks for %s", in.SubjectName))
		}
		schedule := &models.ExamSchedule{
			ExaminationID: exam.ID,
			SubjectName:   in.SubjectName,
			ScheduledAt:   in.ScheduledAt,
			MaxMarks:      maxMarks,
		}
		if err := s.repo.CreateSchedule(ctx, schedule); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam schedule")
		}
		if err := s.subjects.CreateSubject(ctx, &transition.Subject{
			Type:       models.SubjectExamSchedule,
			ID:         schedule.ID,
			Status:     models.ScheduleScheduled,
			ParentType: &parentType,
			ParentID:   &exam.ID,
		}); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register schedule status")
		}
	}

	exam.Status = models.ExaminationScheduled
	return exam, nil
}

// SaveResults upserts marks for a schedule and marks it GRADED through the
// engine. Completion of the parent examination is derived in the same
// transaction as the schedule's transition.
func (s *ExamService) SaveResults(ctx context.Context, scheduleID string, req SaveResultsRequest) ([]models.ExamResult, *transition.Result, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid results payload")
	}
	schedule, err := s.repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, nil, err
	}

	results := make([]models.ExamResult, 0, len(req.Results))
	for _, in := range req.Results {
		marks, err := decimal.NewFromString(in.Marks)
		if err != nil || marks.IsNegative() || marks.GreaterThan(schedule.MaxMarks) {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("marks for student %s must be between 0 and %s", in.StudentID, schedule.MaxMarks))
		}
		results = append(results, models.ExamResult{
			ScheduleID: scheduleID,
			StudentID:  in.StudentID,
			Marks:      marks,
			GradeLabel: models.GradeFor(marks, schedule.MaxMarks),
			RecordedBy: req.RecordedBy,
		})
	}
	if err := s.repo.SaveResults(ctx, results); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save results")
	}

	outcome, err := s.engine.Apply(ctx, transition.Request{
		Subject: transition.Ref{Type: models.SubjectExamSchedule, ID: scheduleID},
		To:      models.ScheduleGraded,
		Reason:  transition.ReasonCompletionDerived,
		Trigger: &transition.TriggerRef{Kind: models.TriggerExamResultBatch, ID: scheduleID},
		ActorID: &req.RecordedBy,
		Note:    fmt.Sprintf("%d results entered", len(results)),
	})
	if err != nil {
		return nil, nil, err
	}
	s.recordAudit(ctx, &req.RecordedBy, models.AuditActionResultsSave, scheduleID)
	return results, outcome, nil
}

// ListResults returns a schedule's results.
func (s *ExamService) ListResults(ctx context.Context, scheduleID string) ([]models.ExamResult, error) {
	if _, err := s.repo.GetSchedule(ctx, scheduleID); err != nil {
		return nil, err
	}
	results, err := s.repo.ListResults(ctx, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list results")
	}
	return results, nil
}

// ClearResults wipes a schedule's marks and reverses its GRADED transition.
// A completed parent examination is reopened explicitly first so the
// schedule's reversal can recompute it downward.
func (s *ExamService) ClearResults(ctx context.Context, scheduleID, actorID string) error {
	schedule, err := s.repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	if schedule.Status == models.ScheduleGraded {
		exam, err := s.repo.GetByID(ctx, schedule.ExaminationID)
		if err != nil {
			return err
		}
		if exam.Status == models.ExaminationCompleted {
			note := fmt.Sprintf("results cleared for schedule %s", scheduleID)
			if _, err := s.engine.Reopen(ctx, transition.Ref{Type: models.SubjectExamination, ID: exam.ID}, &actorID, note); err != nil {
				return err
			}
		}
		trigger := transition.TriggerRef{Kind: models.TriggerExamResultBatch, ID: scheduleID}
		if _, err := s.engine.Reverse(ctx, trigger, &actorID, "results cleared"); err != nil {
			return err
		}
	}

	removed, err := s.repo.ClearResults(ctx, scheduleID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear results")
	}
	s.logger.Info("exam results cleared",
		zap.String("schedule_id", scheduleID),
		zap.Int("removed", removed))
	s.recordAudit(ctx, &actorID, models.AuditActionResultsClear, scheduleID)
	return nil
}

func (s *ExamService) recordAudit(ctx context.Context, userID *string, action, resourceID string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "exams",
		ResourceID: &resourceID,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
