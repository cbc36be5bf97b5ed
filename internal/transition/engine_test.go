package transition

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErrors "github.com/campushq/sis-api/pkg/errors"
)

// memStore is an in-memory Store implementation. It does not provide real
// isolation; it exercises the engine's sequencing and guard logic.
type memStore struct {
	subjects map[Ref]*Subject
	records  []Record
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{subjects: make(map[Ref]*Subject)}
}

func (s *memStore) addSubject(sub Subject) {
	if sub.EffectiveAt.IsZero() {
		sub.EffectiveAt = time.Now().UTC()
	}
	s.subjects[Ref{Type: sub.Type, ID: sub.ID}] = &sub
}

func (s *memStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	return fn(&memTx{store: s})
}

func (s *memStore) ListExpiredSubjects(ctx context.Context, now time.Time, limit int) ([]Ref, error) {
	var refs []Ref
	for ref, sub := range s.subjects {
		if sub.AutoRestore && sub.EndDate != nil && !sub.EndDate.After(now) {
			refs = append(refs, ref)
		}
		if len(refs) == limit {
			break
		}
	}
	return refs, nil
}

type memTx struct {
	store *memStore
}

func (t *memTx) GetSubjectForUpdate(ctx context.Context, ref Ref) (*Subject, error) {
	sub, ok := t.store.subjects[ref]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	clone := *sub
	return &clone, nil
}

func (t *memTx) UpdateSubjectStatus(ctx context.Context, ref Ref, from, to Status, effectiveAt time.Time, endDate *time.Time, autoRestore bool) error {
	sub, ok := t.store.subjects[ref]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	if sub.Status != from {
		return appErrors.Clone(appErrors.ErrStaleStatus, "status changed concurrently")
	}
	sub.Status = to
	sub.EffectiveAt = effectiveAt
	sub.EndDate = endDate
	sub.AutoRestore = autoRestore
	return nil
}

func (t *memTx) AppendTransition(ctx context.Context, record *Record) error {
	t.store.nextID++
	record.ID = t.store.nextID
	record.CreatedAt = time.Now().UTC()
	t.store.records = append(t.store.records, *record)
	return nil
}

func (t *memTx) MostRecentTransition(ctx context.Context, ref Ref) (*Record, error) {
	var matches []Record
	for _, r := range t.store.records {
		if r.SubjectType == ref.Type && r.SubjectID == ref.ID {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].EffectiveAt.Equal(matches[j].EffectiveAt) {
			return matches[i].EffectiveAt.After(matches[j].EffectiveAt)
		}
		return matches[i].ID > matches[j].ID
	})
	latest := matches[0]
	return &latest, nil
}

func (t *memTx) TransitionsByTrigger(ctx context.Context, trigger TriggerRef) ([]Record, error) {
	var matches []Record
	for _, r := range t.store.records {
		if r.TriggerKind != nil && *r.TriggerKind == trigger.Kind && r.TriggerID != nil && *r.TriggerID == trigger.ID {
			matches = append(matches, r)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID > matches[j].ID })
	return matches, nil
}

func (t *memTx) CountChildren(ctx context.Context, parent Ref, status Status) (int, error) {
	count := 0
	for _, sub := range t.store.subjects {
		if sub.ParentType != nil && *sub.ParentType == string(parent.Type) &&
			sub.ParentID != nil && *sub.ParentID == parent.ID && sub.Status == status {
			count++
		}
	}
	return count, nil
}

func testRegistry() Registry {
	return Registry{
		"STUDENT": {
			Default:  "ACTIVE",
			Statuses: []Status{"ACTIVE", "SUSPENDED", "GRADUATED"},
			Terminal: []Status{"GRADUATED"},
		},
		"EXAMINATION": {
			Default:  "SCHEDULED",
			Statuses: []Status{"SCHEDULED", "IN_PROGRESS", "COMPLETED"},
			Terminal: []Status{"COMPLETED"},
			Reopen:   map[Status]Status{"COMPLETED": "IN_PROGRESS"},
		},
		"EXAM_SCHEDULE": {
			Default:  "SCHEDULED",
			Statuses: []Status{"SCHEDULED", "GRADED"},
			Aggregate: &AggregateRule{
				ParentType: "EXAMINATION",
				ChildDone:  "GRADED",
				InProgress: "IN_PROGRESS",
				Completed:  "COMPLETED",
			},
		},
	}
}

func strPtr(s string) *string { return &s }

func TestApplySuspension(t *testing.T) {
	store := newMemStore()
	store.addSubject(Subject{Type: "STUDENT", ID: "stu-1", Status: "ACTIVE"})
	engine := NewEngine(store, testRegistry(), nil)

	endDate := time.Now().UTC().Add(7 * 24 * time.Hour)
	actor := "teacher-1"
	result, err := engine.Apply(context.Background(), Request{
		Subject:     Ref{Type: "STUDENT", ID: "stu-1"},
		To:          "SUSPENDED",
		Reason:      ReasonDisciplinary,
		Trigger:     &TriggerRef{Kind: "disciplinary_action", ID: "42"},
		EndDate:     &endDate,
		AutoRestore: true,
		ActorID:     &actor,
	})
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Equal(t, Status("SUSPENDED"), result.NewStatus)

	sub := store.subjects[Ref{Type: "STUDENT", ID: "stu-1"}]
	require.Equal(t, Status("SUSPENDED"), sub.Status)
	require.NotNil(t, sub.EndDate)
	require.True(t, sub.AutoRestore)

	var latest *Record
	err = store.Transact(context.Background(), func(tx Tx) error {
		var inner error
		latest, inner = tx.MostRecentTransition(context.Background(), Ref{Type: "STUDENT", ID: "stu-1"})
		return inner
	})
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, Status("ACTIVE"), latest.FromStatus)
	require.Equal(t, Status("SUSPENDED"), latest.ToStatus)
	require.Equal(t, ReasonDisciplinary, latest.Reason)
	require.Equal(t, "teacher-1", *latest.ActorID)
}

func TestApplySameStatusIsNoOp(t *testing.T) {
	store := newMemStore()
	store.addSubject(Subject{Type: "STUDENT", ID: "stu-1", Status: "ACTIVE"})
	engine := NewEngine(store, testRegistry(), nil)

	result, err := engine.Apply(context.Background(), Request{
		Subject: Ref{Type: "STUDENT", ID: "stu-1"},
		To:      "ACTIVE",
		Reason:  ReasonLifecycle,
	})
	require.NoError(t, err)
	require.False(t, result.Applied)
	require.Equal(t, Status("ACTIVE"), result.NewStatus)
	require.Empty(t, store.records)
}

func TestApplyTerminalReturnsConflict(t *testing.T) {
	store := newMemStore()
	store.addSubject(Subject{Type: "STUDENT", ID: "stu-1", Status: "GRADUATED"})
	engine := NewEngine(store, testRegistry(), nil)

	_, err := engine.Apply(context.Background(), Request{
		Subject: Ref{Type: "STUDENT", ID: "stu-1"},
		To:      "ACTIVE",
		Reason:  ReasonLifecycle,
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrTerminalState))
	require.Empty(t, store.records)
}

func TestApplyUnknownSubject(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store, testRegistry(), nil)

	_, err := engine.Apply(context.Background(), Request{
		Subject: Ref{Type: "STUDENT", ID: "missing"},
		To:      "SUSPENDED",
		Reason:  ReasonDisciplinary,
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestReverseAppendsCompensatingRecord(t *testing.T) {
	store := newMemStore()
	store.addSubject(Subject{Type: "STUDENT", ID: "stu-1", Status: "ACTIVE"})
	engine := NewEngine(store, testRegistry(), nil)
	trigger := TriggerRef{Kind: "disciplinary_action", ID: "42"}

	_, err := engine.Apply(context.Background(), Request{
		Subject: Ref{Type: "STUDENT", ID: "stu-1"},
		To:      "SUSPENDED",
		Reason:  ReasonDisciplinary,
		Trigger: &trigger,
	})
	require.NoError(t, err)

	results, err := engine.Reverse(context.Background(), trigger, strPtr("admin-1"), "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, Status("ACTIVE"), results[0].NewStatus)

	// The original record survives; a compensating one is appended.
	require.Len(t, store.records, 2)
	require.Equal(t, Status("SUSPENDED"), store.records[0].ToStatus)
	require.Equal(t, Status("ACTIVE"), store.records[1].ToStatus)
	require.Equal(t, ReasonManualRestoration, store.records[1].Reason)
	require.Contains(t, store.records[1].Note, "reverted")
	require.Equal(t, Status("ACTIVE"), store.subjects[Ref{Type: "STUDENT", ID: "stu-1"}].Status)
}

func TestReverseDetectsInterveningChange(t *testing.T) {
	store := newMemStore()
	store.addSubject(Subject{Type: "STUDENT", ID: "stu-1", Status: "ACTIVE"})
	engine := NewEngine(store, testRegistry(), nil)
	trigger := TriggerRef{Kind: "disciplinary_action", ID: "42"}

	_, err := engine.Apply(context.Background(), Request{
		Subject: Ref{Type: "STUDENT", ID: "stu-1"},
		To:      "SUSPENDED",
		Reason:  ReasonDisciplinary,
		Trigger: &trigger,
	})
	require.NoError(t, err)

	// The subject moves to a third status before the reversal arrives.
	store.subjects[Ref{Type: "STUDENT", ID: "stu-1"}].Status = "GRADUATED"

	_, err = engine.Reverse(context.Background(), trigger, nil, "")
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrStaleStatus))
}

func TestReverseAfterSweepIsNoOp(t *testing.T) {
	store := newMemStore()
	store.addSubject(Subject{Type: "STUDENT", ID: "stu-1", Status: "ACTIVE"})
	engine := NewEngine(store, testRegistry(), nil)
	trigger := TriggerRef{Kind: "disciplinary_action", ID: "42"}

	endDate := time.Now().UTC().Add(-time.Hour)
	_, err := engine.Apply(context.Background(), Request{
		Subject:     Ref{Type: "STUDENT", ID: "stu-1"},
		To:          "SUSPENDED",
		Reason:      ReasonDisciplinary,
		Trigger:     &trigger,
		EndDate:     &endDate,
		AutoRestore: true,
	})
	require.NoError(t, err)

	// The suspension lapses and the sweep restores the student.
	swept, err := engine.SweepExpired(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, swept, 1)

	results, err := engine.Reverse(context.Background(), trigger, strPtr("admin-1"), "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, results[0].Applied)
	require.Equal(t, Status("ACTIVE"), results[0].NewStatus)

	// Suspension record plus the sweep restoration, no third entry.
	require.Len(t, store.records, 2)
}

func TestReverseUnknownTrigger(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store, testRegistry(), nil)

	_, err := engine.Reverse(context.Background(), TriggerRef{Kind: "disciplinary_action", ID: "404"}, nil, "")
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestSweepExpiredRestoresSubject(t *testing.T) {
	store := newMemStore()
	store.addSubject(Subject{Type: "STUDENT", ID: "stu-1", Status: "ACTIVE"})
	engine := NewEngine(store, testRegistry(), nil)

	endDate := time.Now().UTC().Add(7 * 24 * time.Hour)
	_, err := engine.Apply(context.Background(), Request{
		Subject:     Ref{Type: "STUDENT", ID: "stu-1"},
		To:          "SUSPENDED",
		Reason:      ReasonDisciplinary,
		Trigger:     &TriggerRef{Kind: "disciplinary_action", ID: "42"},
		EndDate:     &endDate,
		AutoRestore: true,
	})
	require.NoError(t, err)

	results, err := engine.SweepExpired(context.Background(), endDate.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, Status("ACTIVE"), results[0].NewStatus)

	sub := store.subjects[Ref{Type: "STUDENT", ID: "stu-1"}]
	require.Equal(t, Status("ACTIVE"), sub.Status)
	require.Nil(t, sub.EndDate)
	require.False(t, sub.AutoRestore)

	restored := store.records[len(store.records)-1]
	require.Equal(t, ReasonAutomaticExpiry, restored.Reason)
	require.Nil(t, restored.ActorID)

	// Nothing left to restore on a second pass.
	results, err = engine.SweepExpired(context.Background(), endDate.Add(48*time.Hour))
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestChainIntegrity(t *testing.T) {
	store := newMemStore()
	store.addSubject(Subject{Type: "STUDENT", ID: "stu-1", Status: "ACTIVE"})
	engine := NewEngine(store, testRegistry(), nil)
	ctx := context.Background()
	ref := Ref{Type: "STUDENT", ID: "stu-1"}

	steps := []Status{"SUSPENDED", "ACTIVE", "SUSPENDED", "ACTIVE", "GRADUATED"}
	for _, to := range steps {
		_, err := engine.Apply(ctx, Request{Subject: ref, To: to, Reason: ReasonLifecycle})
		require.NoError(t, err)
	}

	require.Len(t, store.records, len(steps))
	for i := 1; i < len(store.records); i++ {
		require.Equal(t, store.records[i-1].ToStatus, store.records[i].FromStatus)
	}
}

func examFixture(store *memStore) {
	expected := 3
	parentType := "EXAMINATION"
	parentID := "exam-1"
	store.addSubject(Subject{Type: "EXAMINATION", ID: parentID, Status: "SCHEDULED", ExpectedChildren: &expected})
	for _, id := range []string{"sch-1", "sch-2", "sch-3"} {
		store.addSubject(Subject{
			Type: "EXAM_SCHEDULE", ID: id, Status: "SCHEDULED",
			ParentType: &parentType, ParentID: &parentID,
		})
	}
}

func TestAggregateCompletion(t *testing.T) {
	store := newMemStore()
	examFixture(store)
	engine := NewEngine(store, testRegistry(), nil)
	ctx := context.Background()
	parent := Ref{Type: "EXAMINATION", ID: "exam-1"}

	grade := func(id string) {
		_, err := engine.Apply(ctx, Request{
			Subject: Ref{Type: "EXAM_SCHEDULE", ID: id},
			To:      "GRADED",
			Reason:  ReasonCompletionDerived,
		})
		require.NoError(t, err)
	}

	grade("sch-1")
	require.Equal(t, Status("IN_PROGRESS"), store.subjects[parent].Status)
	grade("sch-2")
	require.Equal(t, Status("IN_PROGRESS"), store.subjects[parent].Status)
	grade("sch-3")
	require.Equal(t, Status("COMPLETED"), store.subjects[parent].Status)

	// Recomputation is idempotent: re-running changes nothing.
	before := len(store.records)
	require.NoError(t, engine.RecomputeAggregate(ctx, Ref{Type: "EXAM_SCHEDULE", ID: "sch-3"}))
	require.Equal(t, Status("COMPLETED"), store.subjects[parent].Status)
	require.Len(t, store.records, before)
}

func TestAggregateDoesNotReopenCompletedParent(t *testing.T) {
	store := newMemStore()
	examFixture(store)
	engine := NewEngine(store, testRegistry(), nil)
	ctx := context.Background()
	parent := Ref{Type: "EXAMINATION", ID: "exam-1"}

	for _, id := range []string{"sch-1", "sch-2", "sch-3"} {
		_, err := engine.Apply(ctx, Request{
			Subject: Ref{Type: "EXAM_SCHEDULE", ID: id},
			To:      "GRADED",
			Reason:  ReasonCompletionDerived,
		})
		require.NoError(t, err)
	}
	require.Equal(t, Status("COMPLETED"), store.subjects[parent].Status)

	// A schedule reverting does not silently reopen the examination.
	store.subjects[Ref{Type: "EXAM_SCHEDULE", ID: "sch-3"}].Status = "SCHEDULED"
	require.NoError(t, engine.RecomputeAggregate(ctx, Ref{Type: "EXAM_SCHEDULE", ID: "sch-3"}))
	require.Equal(t, Status("COMPLETED"), store.subjects[parent].Status)

	// Reopening is the explicit privileged path.
	result, err := engine.Reopen(ctx, parent, strPtr("admin-1"), "results cleared")
	require.NoError(t, err)
	require.Equal(t, Status("IN_PROGRESS"), result.NewStatus)
}

type captureObserver struct {
	transitions int
	conflicts   int
	sweeps      int
}

func (o *captureObserver) ObserveTransition(SubjectType, Reason, bool) { o.transitions++ }
func (o *captureObserver) ObserveConflict(SubjectType)                 { o.conflicts++ }
func (o *captureObserver) ObserveSweep(restored int)                   { o.sweeps += restored }

func TestObserverReceivesOutcomes(t *testing.T) {
	store := newMemStore()
	store.addSubject(Subject{Type: "STUDENT", ID: "stu-1", Status: "GRADUATED"})
	observer := &captureObserver{}
	engine := NewEngine(store, testRegistry(), nil, WithObserver(observer))

	_, err := engine.Apply(context.Background(), Request{
		Subject: Ref{Type: "STUDENT", ID: "stu-1"},
		To:      "ACTIVE",
		Reason:  ReasonLifecycle,
	})
	require.Error(t, err)
	require.Equal(t, 1, observer.conflicts)
	require.Zero(t, observer.transitions)
}
