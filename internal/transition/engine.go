package transition

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/campushq/sis-api/pkg/errors"
)

// Tx exposes the storage operations available inside one engine transaction.
// GetSubjectForUpdate must take a row lock that fails fast when unavailable
// so concurrent transitions on the same subject serialize or surface a
// retryable conflict.
type Tx interface {
	GetSubjectForUpdate(ctx context.Context, ref Ref) (*Subject, error)
	// UpdateSubjectStatus is guarded by the expected current status and
	// must return ErrStaleStatus when the row no longer matches.
	UpdateSubjectStatus(ctx context.Context, ref Ref, from, to Status, effectiveAt time.Time, endDate *time.Time, autoRestore bool) error
	AppendTransition(ctx context.Context, record *Record) error
	// MostRecentTransition returns nil when the subject has no history.
	MostRecentTransition(ctx context.Context, ref Ref) (*Record, error)
	TransitionsByTrigger(ctx context.Context, trigger TriggerRef) ([]Record, error)
	CountChildren(ctx context.Context, parent Ref, status Status) (int, error)
}

// Store is the persistence gateway for the engine. The engine is the only
// component allowed to mutate subject status or append history.
type Store interface {
	Transact(ctx context.Context, fn func(tx Tx) error) error
	ListExpiredSubjects(ctx context.Context, now time.Time, limit int) ([]Ref, error)
}

// Observer receives engine outcomes for instrumentation.
type Observer interface {
	ObserveTransition(subject SubjectType, reason Reason, applied bool)
	ObserveConflict(subject SubjectType)
	ObserveSweep(restored int)
}

type nopObserver struct{}

func (nopObserver) ObserveTransition(SubjectType, Reason, bool) {}
func (nopObserver) ObserveConflict(SubjectType)                 {}
func (nopObserver) ObserveSweep(int)                            {}

// Engine executes validated status transitions atomically: lock, evaluate,
// mutate, append history, recompute aggregates, commit.
type Engine struct {
	store      Store
	rules      Registry
	logger     *zap.Logger
	observer   Observer
	sweepBatch int
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithObserver wires metrics instrumentation.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithSweepBatchSize bounds how many subjects one sweep pass processes.
func WithSweepBatchSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.sweepBatch = n
		}
	}
}

// NewEngine builds the propagation engine.
func NewEngine(store Store, rules Registry, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{store: store, rules: rules, logger: logger, observer: nopObserver{}, sweepBatch: 200}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Apply requests one transition. Same-status requests succeed without
// writing anything.
func (e *Engine) Apply(ctx context.Context, req Request) (*Result, error) {
	rs, err := e.rules.RuleSetFor(req.Subject.Type)
	if err != nil {
		return nil, err
	}
	if req.To == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target status is required")
	}
	if req.Reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "transition reason is required")
	}
	if req.EffectiveAt.IsZero() {
		req.EffectiveAt = time.Now().UTC()
	}

	var result *Result
	err = e.store.Transact(ctx, func(tx Tx) error {
		subject, err := tx.GetSubjectForUpdate(ctx, req.Subject)
		if err != nil {
			return err
		}
		decision, err := rs.Evaluate(subject.Status, req.To)
		if err != nil {
			return err
		}
		if decision.NoOp {
			result = &Result{Subject: req.Subject, Applied: false, NewStatus: subject.Status}
			return nil
		}
		applied, err := e.commitTransition(ctx, tx, subject, decision, req)
		if err != nil {
			return err
		}
		result = applied
		return e.recomputeParent(ctx, tx, rs, subject)
	})
	if err != nil {
		if appErrors.IsRetryable(err) || appErrors.FromError(err).Status == 409 {
			e.observer.ObserveConflict(req.Subject.Type)
		}
		return nil, err
	}
	e.observer.ObserveTransition(req.Subject.Type, req.Reason, result.Applied)
	return result, nil
}

// Reverse removes the status effects of one triggering action by appending
// compensating transitions. The original ledger rows are left untouched.
func (e *Engine) Reverse(ctx context.Context, trigger TriggerRef, actorID *string, note string) ([]Result, error) {
	if trigger.Kind == "" || trigger.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "trigger reference is required")
	}
	if note == "" {
		note = fmt.Sprintf("reverted effects of %s %s", trigger.Kind, trigger.ID)
	}

	var results []Result
	err := e.store.Transact(ctx, func(tx Tx) error {
		records, err := tx.TransitionsByTrigger(ctx, trigger)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return appErrors.Clone(appErrors.ErrNotFound,
				fmt.Sprintf("no transitions recorded for %s %s", trigger.Kind, trigger.ID))
		}

		// Records arrive newest first; compensate each subject once, from
		// its latest transition caused by this trigger.
		seen := make(map[Ref]struct{}, len(records))
		for i := range records {
			record := records[i]
			ref := Ref{Type: record.SubjectType, ID: record.SubjectID}
			if _, done := seen[ref]; done {
				continue
			}
			seen[ref] = struct{}{}

			rs, err := e.rules.RuleSetFor(ref.Type)
			if err != nil {
				return err
			}
			subject, err := tx.GetSubjectForUpdate(ctx, ref)
			if err != nil {
				return err
			}
			if subject.Status == record.FromStatus {
				// Already back where the trigger found it, typically after an
				// expiry sweep or a manual restoration. Nothing to undo.
				results = append(results, Result{Subject: ref, Applied: false, NewStatus: subject.Status})
				continue
			}
			if subject.Status != record.ToStatus {
				return appErrors.Clone(appErrors.ErrStaleStatus, fmt.Sprintf(
					"subject %s/%s moved to %s since %s was applied; reverse manually",
					ref.Type, ref.ID, subject.Status, record.ToStatus))
			}
			decision, err := rs.Evaluate(subject.Status, record.FromStatus)
			if err != nil {
				return err
			}
			if decision.NoOp {
				results = append(results, Result{Subject: ref, Applied: false, NewStatus: subject.Status})
				continue
			}
			applied, err := e.commitTransition(ctx, tx, subject, decision, Request{
				Subject:     ref,
				To:          record.FromStatus,
				Reason:      ReasonManualRestoration,
				Trigger:     &trigger,
				EffectiveAt: time.Now().UTC(),
				ActorID:     actorID,
				Note:        note,
			})
			if err != nil {
				return err
			}
			results = append(results, *applied)
			if err := e.recomputeParent(ctx, tx, rs, subject); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		e.observer.ObserveTransition(r.Subject.Type, ReasonManualRestoration, r.Applied)
	}
	return results, nil
}

// SweepExpired restores every subject whose time-bounded status has passed
// its end date and was flagged for automatic restoration. Each subject runs
// in its own transaction so one failure does not abort the batch.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) ([]Result, error) {
	refs, err := e.store.ListExpiredSubjects(ctx, now, e.sweepBatch)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(refs))
	for _, ref := range refs {
		result, err := e.restoreExpired(ctx, ref, now)
		if err != nil {
			e.logger.Warn("sweep: subject restoration failed",
				zap.String("subject_type", string(ref.Type)),
				zap.String("subject_id", ref.ID),
				zap.Error(err))
			continue
		}
		if result != nil {
			results = append(results, *result)
		}
	}
	e.observer.ObserveSweep(len(results))
	return results, nil
}

func (e *Engine) restoreExpired(ctx context.Context, ref Ref, now time.Time) (*Result, error) {
	rs, err := e.rules.RuleSetFor(ref.Type)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = e.store.Transact(ctx, func(tx Tx) error {
		subject, err := tx.GetSubjectForUpdate(ctx, ref)
		if err != nil {
			return err
		}
		// Re-check under lock: a concurrent restore may have won.
		if !subject.AutoRestore || subject.EndDate == nil || subject.EndDate.After(now) {
			return nil
		}

		target := rs.Default
		previous, err := tx.MostRecentTransition(ctx, ref)
		if err != nil {
			return err
		}
		if previous != nil {
			target = previous.FromStatus
		}

		decision, err := rs.Evaluate(subject.Status, target)
		if err != nil {
			return err
		}
		if decision.NoOp {
			return nil
		}
		applied, err := e.commitTransition(ctx, tx, subject, decision, Request{
			Subject:     ref,
			To:          target,
			Reason:      ReasonAutomaticExpiry,
			EffectiveAt: now,
			Note:        "automatic restoration after status end date",
		})
		if err != nil {
			return err
		}
		result = applied
		return e.recomputeParent(ctx, tx, rs, subject)
	})
	if err != nil {
		return nil, err
	}
	if result != nil {
		e.observer.ObserveTransition(ref.Type, ReasonAutomaticExpiry, true)
	}
	return result, nil
}

// Reopen performs the privileged terminal-to-in-progress transition used when
// a dependent record is removed from a completed aggregate.
func (e *Engine) Reopen(ctx context.Context, ref Ref, actorID *string, note string) (*Result, error) {
	rs, err := e.rules.RuleSetFor(ref.Type)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = e.store.Transact(ctx, func(tx Tx) error {
		subject, err := tx.GetSubjectForUpdate(ctx, ref)
		if err != nil {
			return err
		}
		target, err := rs.ReopenTarget(subject.Status)
		if err != nil {
			return err
		}
		applied, err := e.commitTransition(ctx, tx, subject, Decision{From: subject.Status, To: target}, Request{
			Subject:     ref,
			To:          target,
			Reason:      ReasonCompletionDerived,
			EffectiveAt: time.Now().UTC(),
			ActorID:     actorID,
			Note:        note,
		})
		if err != nil {
			return err
		}
		result = applied
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.observer.ObserveTransition(ref.Type, ReasonCompletionDerived, true)
	return result, nil
}

// RecomputeAggregate re-derives a parent's status from its children. Safe
// to call repeatedly: it reads persisted state only.
func (e *Engine) RecomputeAggregate(ctx context.Context, child Ref) error {
	rs, err := e.rules.RuleSetFor(child.Type)
	if err != nil {
		return err
	}
	if rs.Aggregate == nil {
		return nil
	}
	return e.store.Transact(ctx, func(tx Tx) error {
		subject, err := tx.GetSubjectForUpdate(ctx, child)
		if err != nil {
			return err
		}
		return e.recomputeParent(ctx, tx, rs, subject)
	})
}

// commitTransition performs the guarded write plus ledger append for an
// already validated decision.
func (e *Engine) commitTransition(ctx context.Context, tx Tx, subject *Subject, decision Decision, req Request) (*Result, error) {
	endDate := req.EndDate
	autoRestore := req.AutoRestore
	if req.Reason == ReasonAutomaticExpiry || req.Reason == ReasonManualRestoration {
		// Restorations clear the time bound.
		endDate = nil
		autoRestore = false
	}

	if err := tx.UpdateSubjectStatus(ctx, req.Subject, decision.From, decision.To, req.EffectiveAt, endDate, autoRestore); err != nil {
		return nil, err
	}

	record := &Record{
		SubjectType: req.Subject.Type,
		SubjectID:   req.Subject.ID,
		FromStatus:  decision.From,
		ToStatus:    decision.To,
		EffectiveAt: req.EffectiveAt,
		EndDate:     endDate,
		AutoRestore: autoRestore,
		Reason:      req.Reason,
		ActorID:     req.ActorID,
		Note:        req.Note,
	}
	if req.Trigger != nil {
		record.TriggerKind = &req.Trigger.Kind
		record.TriggerID = &req.Trigger.ID
	}
	if err := tx.AppendTransition(ctx, record); err != nil {
		return nil, err
	}

	subject.Status = decision.To
	subject.EffectiveAt = req.EffectiveAt
	subject.EndDate = endDate
	subject.AutoRestore = autoRestore

	return &Result{
		Subject:      req.Subject,
		Applied:      true,
		NewStatus:    decision.To,
		TransitionID: record.ID,
	}, nil
}

// recomputeParent propagates aggregate completion to the child's parent
// inside the same transaction.
func (e *Engine) recomputeParent(ctx context.Context, tx Tx, childRules RuleSet, child *Subject) error {
	agg := childRules.Aggregate
	if agg == nil || child.ParentID == nil {
		return nil
	}
	parentRef := Ref{Type: agg.ParentType, ID: *child.ParentID}
	parentRules, err := e.rules.RuleSetFor(agg.ParentType)
	if err != nil {
		return err
	}

	parent, err := tx.GetSubjectForUpdate(ctx, parentRef)
	if err != nil {
		return err
	}
	done, err := tx.CountChildren(ctx, parentRef, agg.ChildDone)
	if err != nil {
		return err
	}

	expected := 0
	if parent.ExpectedChildren != nil {
		expected = *parent.ExpectedChildren
	}

	target := parentRules.Default
	switch {
	case expected > 0 && done >= expected:
		target = agg.Completed
	case done > 0:
		target = agg.InProgress
	}

	if target == parent.Status {
		return nil
	}
	// A completed parent stays completed: reopening is an explicit
	// privileged operation, never a side effect of recomputation.
	if parentRules.IsTerminal(parent.Status) {
		return nil
	}

	_, err = e.commitTransition(ctx, tx, parent, Decision{From: parent.Status, To: target}, Request{
		Subject:     parentRef,
		To:          target,
		Reason:      ReasonCompletionDerived,
		EffectiveAt: time.Now().UTC(),
		Note:        fmt.Sprintf("%d of %d dependents complete", done, expected),
	})
	return err
}
