package service

import (
	"context"
	"fmt"
	"time"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

// Shared in-memory stubs for the service tests.

type engineStub struct {
	applied    []transition.Request
	reversed   []transition.TriggerRef
	reopened   []transition.Ref
	applyErr   error
	reverseErr error
	sweep      []transition.Result
	sweepErr   error
}

func (e *engineStub) Apply(ctx context.Context, req transition.Request) (*transition.Result, error) {
	if e.applyErr != nil {
		return nil, e.applyErr
	}
	e.applied = append(e.applied, req)
	return &transition.Result{Subject: req.Subject, Applied: true, NewStatus: req.To, TransitionID: int64(len(e.applied))}, nil
}

func (e *engineStub) Reverse(ctx context.Context, trigger transition.TriggerRef, actorID *string, note string) ([]transition.Result, error) {
	if e.reverseErr != nil {
		return nil, e.reverseErr
	}
	e.reversed = append(e.reversed, trigger)
	return []transition.Result{{Applied: true}}, nil
}

func (e *engineStub) Reopen(ctx context.Context, ref transition.Ref, actorID *string, note string) (*transition.Result, error) {
	e.reopened = append(e.reopened, ref)
	return &transition.Result{Subject: ref, Applied: true}, nil
}

func (e *engineStub) SweepExpired(ctx context.Context, now time.Time) ([]transition.Result, error) {
	return e.sweep, e.sweepErr
}

type subjectStoreStub struct {
	subjects map[string]*transition.Subject
	history  map[string][]transition.Record
}

func newSubjectStoreStub() *subjectStoreStub {
	return &subjectStoreStub{
		subjects: make(map[string]*transition.Subject),
		history:  make(map[string][]transition.Record),
	}
}

func subjectKey(t transition.SubjectType, id string) string {
	return fmt.Sprintf("%s/%s", t, id)
}

func (s *subjectStoreStub) CreateSubject(ctx context.Context, subject *transition.Subject) error {
	s.subjects[subjectKey(subject.Type, subject.ID)] = subject
	return nil
}

func (s *subjectStoreStub) History(ctx context.Context, ref transition.Ref, limit int) ([]transition.Record, error) {
	return s.history[subjectKey(ref.Type, ref.ID)], nil
}

type studentReaderStub struct {
	students map[string]*models.Student
}

func newStudentReaderStub() *studentReaderStub {
	return &studentReaderStub{students: make(map[string]*models.Student)}
}

func (s *studentReaderStub) GetByID(ctx context.Context, id string) (*models.Student, error) {
	if student, ok := s.students[id]; ok {
		copied := *student
		return &copied, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
}

type summaryInvalidatorStub struct {
	invalidated []string
}

func (s *summaryInvalidatorStub) InvalidateSummary(ctx context.Context, studentID string) {
	s.invalidated = append(s.invalidated, studentID)
}

type auditLogStub struct {
	entries []*models.AuditLog
}

func (a *auditLogStub) Create(ctx context.Context, entry *models.AuditLog) error {
	a.entries = append(a.entries, entry)
	return nil
}
