package transition

import "time"

// SubjectType identifies a class of entities governed by the protocol.
type SubjectType string

// Status is a subject's lifecycle state. The allowed set is declared per
// subject type in a RuleSet.
type Status string

// Reason categorises why a transition happened.
type Reason string

const (
	ReasonDisciplinary      Reason = "DISCIPLINARY"
	ReasonManualRestoration Reason = "MANUAL_RESTORATION"
	ReasonAutomaticExpiry   Reason = "AUTOMATIC_EXPIRY"
	ReasonAcademicPromotion Reason = "ACADEMIC_PROMOTION"
	ReasonCompletionDerived Reason = "COMPLETION_DERIVED"
	ReasonLifecycle         Reason = "LIFECYCLE"
)

// Ref addresses one subject.
type Ref struct {
	Type SubjectType `json:"subject_type"`
	ID   string      `json:"subject_id"`
}

// TriggerRef points at the originating action behind a transition so it can
// be traced and reversed later.
type TriggerRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Subject is the persistent status row for an entity.
type Subject struct {
	Type             SubjectType `db:"subject_type" json:"subject_type"`
	ID               string      `db:"subject_id" json:"subject_id"`
	Status           Status      `db:"status" json:"status"`
	EffectiveAt      time.Time   `db:"effective_at" json:"effective_at"`
	EndDate          *time.Time  `db:"end_date" json:"end_date,omitempty"`
	AutoRestore      bool        `db:"auto_restore" json:"auto_restore"`
	ParentType       *string     `db:"parent_type" json:"parent_type,omitempty"`
	ParentID         *string     `db:"parent_id" json:"parent_id,omitempty"`
	ExpectedChildren *int        `db:"expected_children" json:"expected_children,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// Record is one immutable ledger entry. Records are only ever appended;
// reversals add compensating records instead of touching old rows.
type Record struct {
	ID          int64       `db:"id" json:"id"`
	SubjectType SubjectType `db:"subject_type" json:"subject_type"`
	SubjectID   string      `db:"subject_id" json:"subject_id"`
	FromStatus  Status      `db:"from_status" json:"from_status"`
	ToStatus    Status      `db:"to_status" json:"to_status"`
	EffectiveAt time.Time   `db:"effective_at" json:"effective_at"`
	EndDate     *time.Time  `db:"end_date" json:"end_date,omitempty"`
	AutoRestore bool        `db:"auto_restore" json:"auto_restore"`
	Reason      Reason      `db:"reason" json:"reason"`
	TriggerKind *string     `db:"trigger_kind" json:"trigger_kind,omitempty"`
	TriggerID   *string     `db:"trigger_id" json:"trigger_id,omitempty"`
	ActorID     *string     `db:"actor_id" json:"actor_id,omitempty"`
	Note        string      `db:"note" json:"note"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// Trigger returns the record's trigger reference, if any.
func (r *Record) Trigger() *TriggerRef {
	if r.TriggerKind == nil || r.TriggerID == nil {
		return nil
	}
	return &TriggerRef{Kind: *r.TriggerKind, ID: *r.TriggerID}
}

// Request describes one desired status change.
type Request struct {
	Subject     Ref
	To          Status
	Reason      Reason
	Trigger     *TriggerRef
	EffectiveAt time.Time
	EndDate     *time.Time
	AutoRestore bool
	ActorID     *string
	Note        string
}

// Result reports the outcome of an applied (or no-op) transition.
type Result struct {
	Subject      Ref    `json:"subject"`
	Applied      bool   `json:"applied"`
	NewStatus    Status `json:"new_status"`
	TransitionID int64  `json:"transition_id,omitempty"`
}
