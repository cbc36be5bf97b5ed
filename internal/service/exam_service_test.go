package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

type examRepoStub struct {
	exams     map[string]*models.Examination
	schedules map[string]*models.ExamSchedule
	results   map[string][]models.ExamResult
}

func newExamRepoStub() *examRepoStub {
	return &examRepoStub{
		exams:     make(map[string]*models.Examination),
		schedules: make(map[string]*models.ExamSchedule),
		results:   make(map[string][]models.ExamResult),
	}
}

func (e *examRepoStub) ListByTerm(ctx context.Context, termID string) ([]models.Examination, error) {
	var out []models.Examination
	for _, exam := range e.exams {
		if exam.TermID == termID {
			out = append(out, *exam)
		}
	}
	return out, nil
}

func (e *examRepoStub) GetByID(ctx context.Context, id string) (*models.Examination, error) {
	if exam, ok := e.exams[id]; ok {
		copied := *exam
		return &copied, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "examination not found")
}

func (e *examRepoStub) Create(ctx context.Context, exam *models.Examination) error {
	if exam.ID == "" {
		exam.ID = "exam-1"
	}
	e.exams[exam.ID] = exam
	return nil
}

func (e *examRepoStub) ListSchedules(ctx context.Context, examinationID string) ([]models.ExamSchedule, error) {
	var out []models.ExamSchedule
	for _, schedule := range e.schedules {
		if schedule.ExaminationID == examinationID {
			out = append(out, *schedule)
		}
	}
	return out, nil
}

func (e *examRepoStub) GetSchedule(ctx context.Context, id string) (*models.ExamSchedule, error) {
	if schedule, ok := e.schedules[id]; ok {
		copied := *schedule
		return &copied, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "exam schedule not found")
}

func (e *examRepoStub) CreateSchedule(ctx context.Context, schedule *models.ExamSchedule) error {
	if schedule.ID == "" {
		schedule.ID = "schedule-" + schedule.SubjectName
	}
	e.schedules[schedule.ID] = schedule
	return nil
}

func (e *examRepoStub) SaveResults(ctx context.Context, results []models.ExamResult) error {
	for _, result := range results {
		e.results[result.ScheduleID] = append(e.results[result.ScheduleID], result)
	}
	return nil
}

func (e *examRepoStub) ListResults(ctx context.Context, scheduleID string) ([]models.ExamResult, error) {
	return e.results[scheduleID], nil
}

func (e *examRepoStub) ClearResults(ctx context.Context, scheduleID string) (int, error) {
	removed := len(e.results[scheduleID])
	delete(e.results, scheduleID)
	return removed, nil
}

func newExamFixture() (*ExamService, *examRepoStub, *subjectStoreStub, *engineStub) {
	repo := newExamRepoStub()
	subjects := newSubjectStoreStub()
	engine := &engineStub{}
	svc := NewExamService(repo, subjects, engine, &auditLogStub{}, nil, nil)
	return svc, repo, subjects, engine
}

func TestExamCreateRegistersSubjects(t *testing.T) {
	svc, repo, subjects, _ := newExamFixture()

	exam, err := svc.Create(context.Background(), CreateExamRequest{
		Name:      "Midterm",
		TermID:    "term-1",
		ClassName: "10A",
		Schedules: []ScheduleInput{
			{SubjectName: "Math", ScheduledAt: time.Now(), MaxMarks: "100"},
			{SubjectName: "Biology", ScheduledAt: time.Now(), MaxMarks: "80"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, exam.ExpectedSchedules)
	require.Equal(t, models.ExaminationScheduled, exam.Status)

	parent := subjects.subjects[subjectKey(models.SubjectExamination, exam.ID)]
	require.NotNil(t, parent)
	require.NotNil(t, parent.ExpectedChildren)
	require.Equal(t, 2, *parent.ExpectedChildren)

	require.Len(t, repo.schedules, 2)
	for id, schedule := range repo.schedules {
		child := subjects.subjects[subjectKey(models.SubjectExamSchedule, id)]
		require.NotNil(t, child, "schedule %s must have a status subject", schedule.SubjectName)
		require.NotNil(t, child.ParentID)
		require.Equal(t, exam.ID, *child.ParentID)
		require.Equal(t, models.ScheduleScheduled, child.Status)
	}
}

func TestExamCreateRejectsInvalidMaxMarks(t *testing.T) {
	svc, _, _, _ := newExamFixture()

	_, err := svc.Create(context.Background(), CreateExamRequest{
		Name:      "Midterm",
		TermID:    "term-1",
		ClassName: "10A",
		Schedules: []ScheduleInput{{SubjectName: "Math", ScheduledAt: time.Now(), MaxMarks: "0"}},
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSaveResultsGradesSchedule(t *testing.T) {
	svc, repo, _, engine := newExamFixture()
	repo.schedules["schedule-1"] = &models.ExamSchedule{
		ID:            "schedule-1",
		ExaminationID: "exam-1",
		SubjectName:   "Math",
		MaxMarks:      decimal.NewFromInt(100),
		Status:        models.ScheduleScheduled,
	}

	results, outcome, err := svc.SaveResults(context.Background(), "schedule-1", SaveResultsRequest{
		Results: []ResultInput{
			{StudentID: "student-1", Marks: "92"},
			{StudentID: "student-2", Marks: "61"},
		},
		RecordedBy: "teacher-1",
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "A", results[0].GradeLabel)
	require.Equal(t, "C", results[1].GradeLabel)
	require.True(t, outcome.Applied)

	require.Len(t, engine.applied, 1)
	require.Equal(t, models.ScheduleGraded, engine.applied[0].To)
	require.Equal(t, models.TriggerExamResultBatch, engine.applied[0].Trigger.Kind)
}

func TestSaveResultsRejectsMarksAboveMax(t *testing.T) {
	svc, repo, _, engine := newExamFixture()
	repo.schedules["schedule-1"] = &models.ExamSchedule{
		ID:       "schedule-1",
		MaxMarks: decimal.NewFromInt(50),
	}

	_, _, err := svc.SaveResults(context.Background(), "schedule-1", SaveResultsRequest{
		Results:    []ResultInput{{StudentID: "student-1", Marks: "51"}},
		RecordedBy: "teacher-1",
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.Empty(t, engine.applied)
	require.Empty(t, repo.results)
}

func TestClearResultsReopensCompletedExam(t *testing.T) {
	svc, repo, _, engine := newExamFixture()
	repo.exams["exam-1"] = &models.Examination{ID: "exam-1", Status: models.ExaminationCompleted}
	repo.schedules["schedule-1"] = &models.ExamSchedule{
		ID:            "schedule-1",
		ExaminationID: "exam-1",
		Status:        models.ScheduleGraded,
	}
	repo.results["schedule-1"] = []models.ExamResult{{ScheduleID: "schedule-1", StudentID: "student-1"}}

	require.NoError(t, svc.ClearResults(context.Background(), "schedule-1", "admin-1"))

	require.Len(t, engine.reopened, 1)
	require.Equal(t, transition.Ref{Type: models.SubjectExamination, ID: "exam-1"}, engine.reopened[0])
	require.Len(t, engine.reversed, 1)
	require.Equal(t, models.TriggerExamResultBatch, engine.reversed[0].Kind)
	require.Empty(t, repo.results["schedule-1"])
}

func TestClearResultsSkipsEngineForUngradedSchedule(t *testing.T) {
	svc, repo, _, engine := newExamFixture()
	repo.schedules["schedule-1"] = &models.ExamSchedule{
		ID:     "schedule-1",
		Status: models.ScheduleScheduled,
	}

	require.NoError(t, svc.ClearResults(context.Background(), "schedule-1", "admin-1"))
	require.Empty(t, engine.reopened)
	require.Empty(t, engine.reversed)
}
