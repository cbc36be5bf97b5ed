package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

type promotionRepoStub struct {
	byClass map[string][]string
	moved   []string
	toClass string
	toGrade int
}

func (p *promotionRepoStub) GetByID(ctx context.Context, id string) (*models.Student, error) {
	return &models.Student{ID: id}, nil
}

func (p *promotionRepoStub) ListIDsByClass(ctx context.Context, className string) ([]string, error) {
	return p.byClass[className], nil
}

func (p *promotionRepoStub) UpdateClass(ctx context.Context, studentIDs []string, className string, gradeLevel int) error {
	p.moved = append(p.moved, studentIDs...)
	p.toClass = className
	p.toGrade = gradeLevel
	return nil
}

func TestPromoteClassMovesRoster(t *testing.T) {
	repo := &promotionRepoStub{byClass: map[string][]string{"10A": {"s1", "s2", "s3"}}}
	engine := &engineStub{}
	svc := NewPromotionService(repo, engine, &auditLogStub{}, nil, nil)

	outcomes, err := svc.PromoteClass(context.Background(), PromoteClassRequest{
		FromClass: "10A",
		ToClass:   "11A",
		ToGrade:   11,
		ActorID:   "admin-1",
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for _, outcome := range outcomes {
		require.True(t, outcome.Promoted)
	}
	require.Equal(t, []string{"s1", "s2", "s3"}, repo.moved)
	require.Equal(t, "11A", repo.toClass)
	require.Equal(t, 11, repo.toGrade)
	// Class moves alone do not touch the status ledger.
	require.Empty(t, engine.applied)
}

func TestPromoteClassGraduates(t *testing.T) {
	repo := &promotionRepoStub{byClass: map[string][]string{"12A": {"s1", "s2"}}}
	engine := &engineStub{}
	svc := NewPromotionService(repo, engine, &auditLogStub{}, nil, nil)

	outcomes, err := svc.PromoteClass(context.Background(), PromoteClassRequest{
		FromClass: "12A",
		Graduate:  true,
		ActorID:   "admin-1",
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.Len(t, engine.applied, 2)
	for _, applied := range engine.applied {
		require.Equal(t, models.StudentGraduated, applied.To)
		require.Equal(t, transition.ReasonAcademicPromotion, applied.Reason)
		require.Equal(t, models.TriggerPromotionBatch, applied.Trigger.Kind)
	}
	// The whole batch shares one trigger so it can be reversed together.
	require.Equal(t, engine.applied[0].Trigger.ID, engine.applied[1].Trigger.ID)
}

func TestPromoteClassReportsBlockedStudents(t *testing.T) {
	repo := &promotionRepoStub{byClass: map[string][]string{"12A": {"s1"}}}
	engine := &engineStub{applyErr: appErrors.Clone(appErrors.ErrInvalidTransition, "forbidden transition: SUSPENDED to GRADUATED")}
	svc := NewPromotionService(repo, engine, &auditLogStub{}, nil, nil)

	outcomes, err := svc.PromoteClass(context.Background(), PromoteClassRequest{
		FromClass: "12A",
		Graduate:  true,
		ActorID:   "admin-1",
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.False(t, outcomes[0].Promoted)
	require.Contains(t, outcomes[0].Error, "SUSPENDED")
}

func TestPromoteClassEmptyClass(t *testing.T) {
	repo := &promotionRepoStub{byClass: map[string][]string{}}
	svc := NewPromotionService(repo, &engineStub{}, &auditLogStub{}, nil, nil)

	_, err := svc.PromoteClass(context.Background(), PromoteClassRequest{
		FromClass: "9Z",
		ToClass:   "10Z",
		ToGrade:   10,
		ActorID:   "admin-1",
	})
	require.Error(t, err)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
