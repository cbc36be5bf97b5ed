package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

type leaveRepository interface {
	List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, int, error)
	GetByID(ctx context.Context, id string) (*models.LeaveRequest, error)
	Create(ctx context.Context, request *models.LeaveRequest) error
	RecordDecision(ctx context.Context, id, decidedBy, note string, decidedAt time.Time) error
}

type leaveSubjectStore interface {
	CreateSubject(ctx context.Context, subject *transition.Subject) error
}

// LeaveService handles student absence requests. Approval states are
// terminal: a decided request can never flip, only a fresh request can be
// filed.
type LeaveService struct {
	repo      leaveRepository
	students  disciplineStudentReader
	subjects  leaveSubjectStore
	engine    statusEngine
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLeaveService constructs the service.
func NewLeaveService(repo leaveRepository, students disciplineStudentReader, subjects leaveSubjectStore, engine statusEngine, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *LeaveService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaveService{repo: repo, students: students, subjects: subjects, engine: engine, audit: audit, validator: validate, logger: logger}
}

// SubmitLeaveRequest describes a new absence request.
type SubmitLeaveRequest struct {
	StudentID string    `json:"student_id" validate:"required"`
	LeaveType string    `json:"leave_type" validate:"required,oneof=SICK FAMILY PERSONAL OTHER"`
	Reason    string    `json:"reason" validate:"required"`
	DateFrom  time.Time `json:"date_from" validate:"required"`
	DateTo    time.Time `json:"date_to" validate:"required"`
}

// DecideLeaveRequest records an approval or rejection.
type DecideLeaveRequest struct {
	Approve   bool   `json:"approve"`
	Note      string `json:"note"`
	DecidedBy string `json:"-"`
}

// LeaveListRequest describes listing filters.
type LeaveListRequest struct {
	StudentID string
	Status    string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

// List returns leave requests with pagination.
func (s *LeaveService) List(ctx context.Context, req LeaveListRequest) ([]models.LeaveRequest, *models.Pagination, error) {
	filter := models.LeaveFilter{
		StudentID: req.StudentID,
		Status:    transition.Status(req.Status),
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leave requests")
	}
	return requests, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one leave request.
func (s *LeaveService) Get(ctx context.Context, id string) (*models.LeaveRequest, error) {
	return s.repo.GetByID(ctx, id)
}

// Submit files a new request in PENDING.
func (s *LeaveService) Submit(ctx context.Context, req SubmitLeaveRequest) (*models.LeaveRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave payload")
	}
	if req.DateTo.Before(req.DateFrom) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_to must not precede date_from")
	}
	if _, err := s.students.GetByID(ctx, req.StudentID); err != nil {
		return nil, err
	}

	request := &models.LeaveRequest{
		StudentID: req.StudentID,
		LeaveType: models.LeaveType(req.LeaveType),
		Reason:    req.Reason,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create leave request")
	}
	if err := s.subjects.CreateSubject(ctx, &transition.Subject{
		Type:   models.SubjectLeaveRequest,
		ID:     request.ID,
		Status: models.LeavePending,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register leave status")
	}
	request.Status = models.LeavePending
	return request, nil
}

// Decide approves or rejects a pending request through the engine. A second
// decision on the same request hits the terminal guard and returns a
// conflict.
func (s *LeaveService) Decide(ctx context.Context, id string, req DecideLeaveRequest) (*models.LeaveRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	target := models.LeaveRejected
	if req.Approve {
		target = models.LeaveApproved
	}
	now := time.Now().UTC()
	if _, err := s.engine.Apply(ctx, transition.Request{
		Subject:     transition.Ref{Type: models.SubjectLeaveRequest, ID: id},
		To:          target,
		Reason:      transition.ReasonLifecycle,
		Trigger:     &transition.TriggerRef{Kind: models.TriggerLeaveDecision, ID: id},
		EffectiveAt: now,
		ActorID:     &req.DecidedBy,
		Note:        req.Note,
	}); err != nil {
		return nil, err
	}
	if err := s.repo.RecordDecision(ctx, id, req.DecidedBy, req.Note, now); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, &req.DecidedBy, models.AuditActionLeaveDecision, id)

	request.Status = target
	request.DecidedBy = &req.DecidedBy
	request.DecidedAt = &now
	request.DecisionNote = req.Note
	return request, nil
}

// Cancel withdraws a pending request. Only the pending state can cancel;
// decided requests are terminal.
func (s *LeaveService) Cancel(ctx context.Context, id, actorID string) (*models.LeaveRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.engine.Apply(ctx, transition.Request{
		Subject: transition.Ref{Type: models.SubjectLeaveRequest, ID: id},
		To:      models.LeaveCancelled,
		Reason:  transition.ReasonLifecycle,
		ActorID: &actorID,
		Note:    "withdrawn by requester",
	}); err != nil {
		return nil, err
	}
	request.Status = models.LeaveCancelled
	return request, nil
}

func (s *LeaveService) recordAudit(ctx context.Context, userID *string, action, resourceID string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "leave",
		ResourceID: &resourceID,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
