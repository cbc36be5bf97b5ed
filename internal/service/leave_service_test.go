package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

type leaveRepoStub struct {
	requests map[string]*models.LeaveRequest
}

func newLeaveRepoStub() *leaveRepoStub {
	return &leaveRepoStub{requests: make(map[string]*models.LeaveRequest)}
}

func (l *leaveRepoStub) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, int, error) {
	var out []models.LeaveRequest
	for _, request := range l.requests {
		out = append(out, *request)
	}
	return out, len(out), nil
}

func (l *leaveRepoStub) GetByID(ctx context.Context, id string) (*models.LeaveRequest, error) {
	if request, ok := l.requests[id]; ok {
		copied := *request
		return &copied, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
}

func (l *leaveRepoStub) Create(ctx context.Context, request *models.LeaveRequest) error {
	if request.ID == "" {
		request.ID = "leave-1"
	}
	l.requests[request.ID] = request
	return nil
}

func (l *leaveRepoStub) RecordDecision(ctx context.Context, id, decidedBy, note string, decidedAt time.Time) error {
	request, ok := l.requests[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
	}
	request.DecidedBy = &decidedBy
	request.DecidedAt = &decidedAt
	request.DecisionNote = note
	return nil
}

func newLeaveFixture() (*LeaveService, *leaveRepoStub, *studentReaderStub, *subjectStoreStub, *engineStub) {
	repo := newLeaveRepoStub()
	students := newStudentReaderStub()
	subjects := newSubjectStoreStub()
	engine := &engineStub{}
	svc := NewLeaveService(repo, students, subjects, engine, &auditLogStub{}, nil, nil)
	return svc, repo, students, subjects, engine
}

func TestLeaveSubmitRegistersPendingSubject(t *testing.T) {
	svc, _, students, subjects, _ := newLeaveFixture()
	students.students["student-1"] = &models.Student{ID: "student-1"}

	request, err := svc.Submit(context.Background(), SubmitLeaveRequest{
		StudentID: "student-1",
		LeaveType: "SICK",
		Reason:    "flu",
		DateFrom:  time.Now(),
		DateTo:    time.Now().AddDate(0, 0, 2),
	})
	require.NoError(t, err)
	require.Equal(t, models.LeavePending, request.Status)

	subject := subjects.subjects[subjectKey(models.SubjectLeaveRequest, request.ID)]
	require.NotNil(t, subject)
	require.Equal(t, models.LeavePending, subject.Status)
}

func TestLeaveSubmitValidatesDateOrder(t *testing.T) {
	svc, _, students, _, _ := newLeaveFixture()
	students.students["student-1"] = &models.Student{ID: "student-1"}

	_, err := svc.Submit(context.Background(), SubmitLeaveRequest{
		StudentID: "student-1",
		LeaveType: "SICK",
		Reason:    "flu",
		DateFrom:  time.Now(),
		DateTo:    time.Now().AddDate(0, 0, -1),
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLeaveDecideApproves(t *testing.T) {
	svc, repo, _, _, engine := newLeaveFixture()
	repo.requests["leave-1"] = &models.LeaveRequest{ID: "leave-1", StudentID: "student-1", Status: models.LeavePending}

	request, err := svc.Decide(context.Background(), "leave-1", DecideLeaveRequest{
		Approve:   true,
		Note:      "get well soon",
		DecidedBy: "counselor-1",
	})
	require.NoError(t, err)
	require.Equal(t, models.LeaveApproved, request.Status)
	require.NotNil(t, request.DecidedBy)
	require.Equal(t, "counselor-1", *request.DecidedBy)

	require.Len(t, engine.applied, 1)
	require.Equal(t, models.SubjectLeaveRequest, engine.applied[0].Subject.Type)
	require.Equal(t, models.LeaveApproved, engine.applied[0].To)
	require.Equal(t, models.TriggerLeaveDecision, engine.applied[0].Trigger.Kind)
}

func TestLeaveDecideTwicePropagatesConflict(t *testing.T) {
	svc, repo, _, _, engine := newLeaveFixture()
	repo.requests["leave-1"] = &models.LeaveRequest{ID: "leave-1", Status: models.LeaveApproved}
	engine.applyErr = appErrors.Clone(appErrors.ErrTerminalState, "terminal state: APPROVED")

	_, err := svc.Decide(context.Background(), "leave-1", DecideLeaveRequest{Approve: false, DecidedBy: "admin-1"})
	require.Error(t, err)
	require.ErrorIs(t, err, appErrors.ErrTerminalState)
	// The decision stamp must not be written when the transition failed.
	require.Nil(t, repo.requests["leave-1"].DecidedBy)
}

func TestLeaveCancel(t *testing.T) {
	svc, repo, _, _, engine := newLeaveFixture()
	repo.requests["leave-1"] = &models.LeaveRequest{ID: "leave-1", Status: models.LeavePending}

	request, err := svc.Cancel(context.Background(), "leave-1", "student-1")
	require.NoError(t, err)
	require.Equal(t, models.LeaveCancelled, request.Status)
	require.Len(t, engine.applied, 1)
	require.Equal(t, transition.ReasonLifecycle, engine.applied[0].Reason)
}
