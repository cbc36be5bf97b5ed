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

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	GetByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Summary(ctx context.Context, studentID string) (*models.StatusSummary, error)
}

type subjectStore interface {
	CreateSubject(ctx context.Context, subject *transition.Subject) error
	History(ctx context.Context, ref transition.Ref, limit int) ([]transition.Record, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type statusEngine interface {
	Apply(ctx context.Context, req transition.Request) (*transition.Result, error)
	Reverse(ctx context.Context, trigger transition.TriggerRef, actorID *string, note string) ([]transition.Result, error)
}

// StudentService manages the roster. Status reads come with the student;
// status writes go through the engine only.
type StudentService struct {
	repo      studentRepository
	subjects  subjectStore
	cache     summaryCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the service.
func NewStudentService(repo studentRepository, subjects subjectStore, cache summaryCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &StudentService{repo: repo, subjects: subjects, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// CreateStudentRequest describes the enrolment payload.
type CreateStudentRequest struct {
	NIS             string  `json:"nis" validate:"required"`
	FullName        string  `json:"full_name" validate:"required"`
	ClassName       string  `json:"class_name" validate:"required"`
	GradeLevel      int     `json:"grade_level" validate:"required,min=1,max=13"`
	GuardianContact *string `json:"guardian_contact"`
}

// UpdateStudentRequest describes roster field updates.
type UpdateStudentRequest struct {
	NIS             string  `json:"nis" validate:"required"`
	FullName        string  `json:"full_name" validate:"required"`
	ClassName       string  `json:"class_name" validate:"required"`
	GradeLevel      int     `json:"grade_level" validate:"required,min=1,max=13"`
	GuardianContact *string `json:"guardian_contact"`
}

// StudentListRequest describes listing filters.
type StudentListRequest struct {
	ClassName  string
	GradeLevel *int
	Status     string
	Search     string
	Page       int
	PageSize   int
}

// List returns students with pagination.
func (s *StudentService) List(ctx context.Context, req StudentListRequest) ([]models.Student, *models.Pagination, error) {
	filter := models.StudentFilter{
		ClassName:  req.ClassName,
		GradeLevel: req.GradeLevel,
		Status:     transition.Status(req.Status),
		Search:     req.Search,
		Page:       req.Page,
		PageSize:   req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	return s.repo.GetByID(ctx, id)
}

// Create enrols a student and registers their status subject in the default
// ACTIVE state.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student := &models.Student{
		NIS:             req.NIS,
		FullName:        req.FullName,
		ClassName:       req.ClassName,
		GradeLevel:      req.GradeLevel,
		GuardianContact: req.GuardianContact,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	subject := &transition.Subject{
		Type:   models.SubjectStudent,
		ID:     student.ID,
		Status: models.StudentActive,
	}
	if err := s.subjects.CreateSubject(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register student status")
	}
	student.Status = models.StudentActive
	return student, nil
}

// Update modifies roster fields.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	student.NIS = req.NIS
	student.FullName = req.FullName
	student.ClassName = req.ClassName
	student.GradeLevel = req.GradeLevel
	student.GuardianContact = req.GuardianContact
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, err
	}
	return student, nil
}

// History returns a student's status transitions, newest first.
func (s *StudentService) History(ctx context.Context, id string, limit int) ([]transition.Record, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	records, err := s.subjects.History(ctx, transition.Ref{Type: models.SubjectStudent, ID: id}, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status history")
	}
	return records, nil
}

// Summary returns the cached status digest, rebuilding it on a miss.
func (s *StudentService) Summary(ctx context.Context, id string) (*models.StatusSummary, error) {
	key := summaryKey(id)
	var cached models.StatusSummary
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if appErrors.FromError(err).Code != appErrors.ErrCacheMiss.Code {
			s.logger.Warn("summary cache read failed", zap.String("student_id", id), zap.Error(err))
		}
	}

	summary, err := s.repo.Summary(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.cacheTTL); err != nil {
			s.logger.Warn("summary cache write failed", zap.String("student_id", id), zap.Error(err))
		}
	}
	return summary, nil
}

// InvalidateSummary drops the cached digest after a status change.
func (s *StudentService) InvalidateSummary(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, summaryKey(studentID)); err != nil {
		s.logger.Warn("summary cache invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}

func summaryKey(studentID string) string {
	return "summary:student:" + studentID
}
