package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

// pq raises 55P03 when FOR UPDATE NOWAIT cannot take the row lock.
const pqLockNotAvailable = "55P03"

const subjectColumns = `subject_type, subject_id, status, effective_at, end_date, auto_restore,
       parent_type, parent_id, expected_children, created_at, updated_at`

const transitionColumns = `id, subject_type, subject_id, from_status, to_status, effective_at, end_date,
       auto_restore, reason, trigger_kind, trigger_id, actor_id, note, created_at`

// StatusRepository is the single persistence gateway for subject status and
// the transition ledger. It implements transition.Store; only the
// propagation engine drives its write paths.
type StatusRepository struct {
	db *sqlx.DB
}

// NewStatusRepository constructs the repository.
func NewStatusRepository(db *sqlx.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

// Transact runs fn inside one database transaction, rolling back on any
// error so partial transitions are never observable.
func (r *StatusRepository) Transact(ctx context.Context, fn func(tx transition.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "begin transition transaction")
	}
	if err := fn(&statusTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "commit transition transaction")
	}
	return nil
}

// ListExpiredSubjects returns subjects whose time-bounded status has lapsed
// and is flagged for automatic restoration.
func (r *StatusRepository) ListExpiredSubjects(ctx context.Context, now time.Time, limit int) ([]transition.Ref, error) {
	if limit <= 0 {
		limit = 200
	}
	const query = `SELECT subject_type, subject_id FROM subjects
WHERE auto_restore AND end_date IS NOT NULL AND end_date <= $1
ORDER BY end_date ASC LIMIT $2`
	rows, err := r.db.QueryxContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired subjects: %w", err)
	}
	defer rows.Close()

	var refs []transition.Ref
	for rows.Next() {
		var ref transition.Ref
		if err := rows.Scan(&ref.Type, &ref.ID); err != nil {
			return nil, fmt.Errorf("scan expired subject: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// CreateSubject registers a new subject in its default status. Called by
// domain services when the underlying entity is created.
func (r *StatusRepository) CreateSubject(ctx context.Context, subject *transition.Subject) error {
	now := time.Now().UTC()
	if subject.EffectiveAt.IsZero() {
		subject.EffectiveAt = now
	}
	subject.CreatedAt = now
	subject.UpdatedAt = now
	const query = `INSERT INTO subjects (subject_type, subject_id, status, effective_at, end_date, auto_restore,
	parent_type, parent_id, expected_children, created_at, updated_at)
VALUES (:subject_type, :subject_id, :status, :effective_at, :end_date, :auto_restore,
	:parent_type, :parent_id, :expected_children, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// GetSubject reads one subject without locking.
func (r *StatusRepository) GetSubject(ctx context.Context, ref transition.Ref) (*transition.Subject, error) {
	query := fmt.Sprintf("SELECT %s FROM subjects WHERE subject_type = $1 AND subject_id = $2", subjectColumns)
	var subject transition.Subject
	if err := r.db.GetContext(ctx, &subject, query, ref.Type, ref.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject %s/%s not found", ref.Type, ref.ID))
		}
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return &subject, nil
}

// DeleteSubject removes a subject row together with its dependent entity.
// Ledger rows are kept for audit.
func (r *StatusRepository) DeleteSubject(ctx context.Context, ref transition.Ref) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM subjects WHERE subject_type = $1 AND subject_id = $2", ref.Type, ref.ID); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}

// History returns a subject's transitions, newest first.
func (r *StatusRepository) History(ctx context.Context, ref transition.Ref, limit int) ([]transition.Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM status_transitions
WHERE subject_type = $1 AND subject_id = $2
ORDER BY effective_at DESC, id DESC LIMIT %d`, transitionColumns, limit)
	var records []transition.Record
	if err := r.db.SelectContext(ctx, &records, query, ref.Type, ref.ID); err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	return records, nil
}

// statusTx is the in-transaction view handed to the engine.
type statusTx struct {
	tx *sqlx.Tx
}

// GetSubjectForUpdate locks the subject row for the rest of the
// transaction. NOWAIT keeps contended transitions from queueing: the caller
// gets a retryable conflict instead.
func (t *statusTx) GetSubjectForUpdate(ctx context.Context, ref transition.Ref) (*transition.Subject, error) {
	query := fmt.Sprintf("SELECT %s FROM subjects WHERE subject_type = $1 AND subject_id = $2 FOR UPDATE NOWAIT", subjectColumns)
	var subject transition.Subject
	if err := t.tx.GetContext(ctx, &subject, query, ref.Type, ref.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject %s/%s not found", ref.Type, ref.ID))
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqLockNotAvailable {
			return nil, appErrors.Clone(appErrors.ErrLockUnavailable,
				fmt.Sprintf("subject %s/%s is locked by a concurrent transition", ref.Type, ref.ID))
		}
		return nil, fmt.Errorf("lock subject: %w", err)
	}
	return &subject, nil
}

// UpdateSubjectStatus applies the guarded write. The WHERE clause pins the
// expected current status so a stale read can never overwrite a concurrent
// transition.
func (t *statusTx) UpdateSubjectStatus(ctx context.Context, ref transition.Ref, from, to transition.Status, effectiveAt time.Time, endDate *time.Time, autoRestore bool) error {
	const query = `UPDATE subjects
SET status = $1, effective_at = $2, end_date = $3, auto_restore = $4, updated_at = NOW()
WHERE subject_type = $5 AND subject_id = $6 AND status = $7`
	result, err := t.tx.ExecContext(ctx, query, to, effectiveAt, endDate, autoRestore, ref.Type, ref.ID, from)
	if err != nil {
		return fmt.Errorf("update subject status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check subject update rows: %w", err)
	}
	if rows == 0 {
		return appErrors.Clone(appErrors.ErrStaleStatus,
			fmt.Sprintf("subject %s/%s is no longer %s", ref.Type, ref.ID, from))
	}
	return nil
}

// AppendTransition inserts one immutable ledger row.
func (t *statusTx) AppendTransition(ctx context.Context, record *transition.Record) error {
	const query = `INSERT INTO status_transitions
	(subject_type, subject_id, from_status, to_status, effective_at, end_date, auto_restore, reason, trigger_kind, trigger_id, actor_id, note)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id, created_at`
	row := t.tx.QueryRowxContext(ctx, query,
		record.SubjectType, record.SubjectID, record.FromStatus, record.ToStatus,
		record.EffectiveAt, record.EndDate, record.AutoRestore, record.Reason,
		record.TriggerKind, record.TriggerID, record.ActorID, record.Note)
	if err := row.Scan(&record.ID, &record.CreatedAt); err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}

// MostRecentTransition returns the latest ledger row for a subject, or nil
// when it has no history yet.
func (t *statusTx) MostRecentTransition(ctx context.Context, ref transition.Ref) (*transition.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM status_transitions
WHERE subject_type = $1 AND subject_id = $2
ORDER BY effective_at DESC, id DESC LIMIT 1`, transitionColumns)
	var record transition.Record
	if err := t.tx.GetContext(ctx, &record, query, ref.Type, ref.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("most recent transition: %w", err)
	}
	return &record, nil
}

// TransitionsByTrigger returns all transitions caused by one action, newest
// first, for undo-on-delete.
func (t *statusTx) TransitionsByTrigger(ctx context.Context, trigger transition.TriggerRef) ([]transition.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM status_transitions
WHERE trigger_kind = $1 AND trigger_id = $2
ORDER BY id DESC`, transitionColumns)
	var records []transition.Record
	if err := t.tx.SelectContext(ctx, &records, query, trigger.Kind, trigger.ID); err != nil {
		return nil, fmt.Errorf("transitions by trigger: %w", err)
	}
	return records, nil
}

// CountChildren counts a parent's dependents currently in the given status.
func (t *statusTx) CountChildren(ctx context.Context, parent transition.Ref, status transition.Status) (int, error) {
	const query = `SELECT COUNT(*) FROM subjects WHERE parent_type = $1 AND parent_id = $2 AND status = $3`
	var count int
	if err := t.tx.GetContext(ctx, &count, query, parent.Type, parent.ID, status); err != nil {
		return 0, fmt.Errorf("count children: %w", err)
	}
	return count, nil
}
