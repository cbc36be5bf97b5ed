package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

type studentRepoStub struct {
	students     map[string]*models.Student
	summaryCalls int
}

func newStudentRepoStub() *studentRepoStub {
	return &studentRepoStub{students: make(map[string]*models.Student)}
}

func (s *studentRepoStub) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var out []models.Student
	for _, student := range s.students {
		out = append(out, *student)
	}
	return out, len(out), nil
}

func (s *studentRepoStub) GetByID(ctx context.Context, id string) (*models.Student, error) {
	if student, ok := s.students[id]; ok {
		copied := *student
		return &copied, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
}

func (s *studentRepoStub) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = "student-1"
	}
	s.students[student.ID] = student
	return nil
}

func (s *studentRepoStub) Update(ctx context.Context, student *models.Student) error {
	s.students[student.ID] = student
	return nil
}

func (s *studentRepoStub) Summary(ctx context.Context, studentID string) (*models.StatusSummary, error) {
	s.summaryCalls++
	if _, ok := s.students[studentID]; !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return &models.StatusSummary{
		StudentID:       studentID,
		CurrentStatus:   models.StudentActive,
		TransitionCount: 3,
	}, nil
}

type cacheStub struct {
	values map[string][]byte
	sets   int
}

func newCacheStub() *cacheStub {
	return &cacheStub{values: make(map[string][]byte)}
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.Clone(appErrors.ErrCacheMiss, "")
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	c.sets++
	return nil
}

func (c *cacheStub) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

func newStudentFixture() (*StudentService, *studentRepoStub, *subjectStoreStub, *cacheStub) {
	repo := newStudentRepoStub()
	subjects := newSubjectStoreStub()
	cache := newCacheStub()
	svc := NewStudentService(repo, subjects, cache, time.Minute, nil, nil)
	return svc, repo, subjects, cache
}

func TestStudentCreateRegistersActiveSubject(t *testing.T) {
	svc, _, subjects, _ := newStudentFixture()

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		NIS:        "2026-001",
		FullName:   "Siti Rahma",
		ClassName:  "10A",
		GradeLevel: 10,
	})
	require.NoError(t, err)
	require.Equal(t, models.StudentActive, student.Status)

	subject := subjects.subjects[subjectKey(models.SubjectStudent, student.ID)]
	require.NotNil(t, subject)
	require.Equal(t, models.StudentActive, subject.Status)
}

func TestStudentSummaryCachedAfterFirstRead(t *testing.T) {
	svc, repo, _, cache := newStudentFixture()
	repo.students["student-1"] = &models.Student{ID: "student-1"}

	first, err := svc.Summary(context.Background(), "student-1")
	require.NoError(t, err)
	require.Equal(t, 3, first.TransitionCount)
	require.Equal(t, 1, repo.summaryCalls)
	require.Equal(t, 1, cache.sets)

	second, err := svc.Summary(context.Background(), "student-1")
	require.NoError(t, err)
	require.Equal(t, first.CurrentStatus, second.CurrentStatus)
	// Second read is served from cache.
	require.Equal(t, 1, repo.summaryCalls)
}

func TestStudentSummaryInvalidation(t *testing.T) {
	svc, repo, _, _ := newStudentFixture()
	repo.students["student-1"] = &models.Student{ID: "student-1"}

	_, err := svc.Summary(context.Background(), "student-1")
	require.NoError(t, err)
	svc.InvalidateSummary(context.Background(), "student-1")

	_, err = svc.Summary(context.Background(), "student-1")
	require.NoError(t, err)
	require.Equal(t, 2, repo.summaryCalls)
}

func TestStudentHistory(t *testing.T) {
	svc, repo, subjects, _ := newStudentFixture()
	repo.students["student-1"] = &models.Student{ID: "student-1"}
	subjects.history[subjectKey(models.SubjectStudent, "student-1")] = []transition.Record{
		{SubjectID: "student-1", FromStatus: models.StudentSuspended, ToStatus: models.StudentActive},
		{SubjectID: "student-1", FromStatus: models.StudentActive, ToStatus: models.StudentSuspended},
	}

	records, err := svc.History(context.Background(), "student-1", 50)
	require.NoError(t, err)
	require.Len(t, records, 2)

	_, err = svc.History(context.Background(), "missing", 50)
	require.Error(t, err)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
