package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

type sweepEngine interface {
	SweepExpired(ctx context.Context, now time.Time) ([]transition.Result, error)
}

// SweepReport summarises one expiry sweep pass.
type SweepReport struct {
	RanAt    time.Time           `json:"ran_at"`
	Restored int                 `json:"restored"`
	Results  []transition.Result `json:"results"`
}

// SweepService runs the expired-status restoration pass, either on demand
// through the admin endpoint or periodically in the background.
type SweepService struct {
	engine    sweepEngine
	summaries summaryInvalidator
	audit     auditRecorder
	logger    *zap.Logger
}

// NewSweepService constructs the service.
func NewSweepService(engine sweepEngine, summaries summaryInvalidator, audit auditRecorder, logger *zap.Logger) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepService{engine: engine, summaries: summaries, audit: audit, logger: logger}
}

// Run performs one sweep pass. Repeating a pass with nothing expired is a
// no-op report.
func (s *SweepService) Run(ctx context.Context, actorID *string) (*SweepReport, error) {
	now := time.Now().UTC()
	results, err := s.engine.SweepExpired(ctx, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "expiry sweep failed")
	}

	for _, result := range results {
		if result.Subject.Type == models.SubjectStudent && s.summaries != nil {
			s.summaries.InvalidateSummary(ctx, result.Subject.ID)
		}
	}

	s.logger.Info("expiry sweep completed",
		zap.Time("ran_at", now),
		zap.Int("restored", len(results)))
	if s.audit != nil && len(results) > 0 {
		entry := &models.AuditLog{
			UserID:   actorID,
			Action:   models.AuditActionSweep,
			Resource: "sweep",
		}
		if err := s.audit.Create(ctx, entry); err != nil {
			s.logger.Warn("failed to record sweep audit log", zap.Error(err))
		}
	}
	return &SweepReport{RanAt: now, Restored: len(results), Results: results}, nil
}

// RunBackground adapts Run for the periodic job runner.
func (s *SweepService) RunBackground(ctx context.Context) error {
	_, err := s.Run(ctx, nil)
	return err
}
