package transition

import (
	"fmt"

	appErrors "github.com/campushq/sis-api/pkg/errors"
)

// Edge is a (from, to) status pair.
type Edge struct {
	From Status
	To   Status
}

// AggregateRule derives a parent subject's status from the count of its
// children that reached the done status. The parent completes when the done
// count meets or exceeds its expected_children total.
type AggregateRule struct {
	ParentType SubjectType
	ChildDone  Status
	InProgress Status
	Completed  Status
}

// RuleSet declares the state machine for one subject type.
type RuleSet struct {
	Default   Status
	Statuses  []Status
	Terminal  []Status
	Forbidden []Edge
	// Reopen maps a terminal status to the status a privileged reopen
	// lands on. Empty for types that cannot be reopened.
	Reopen map[Status]Status
	// Aggregate, when set on a child type, wires completion propagation to
	// the parent type.
	Aggregate *AggregateRule
}

// Registry holds the rule sets for all known subject types.
type Registry map[SubjectType]RuleSet

// RuleSetFor returns the rules for a subject type.
func (r Registry) RuleSetFor(t SubjectType) (RuleSet, error) {
	rs, ok := r[t]
	if !ok {
		return RuleSet{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown subject type: %s", t))
	}
	return rs, nil
}

// Known reports whether s belongs to the rule set's status universe.
func (rs RuleSet) Known(s Status) bool {
	for _, candidate := range rs.Statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outbound transitions.
func (rs RuleSet) IsTerminal(s Status) bool {
	for _, candidate := range rs.Terminal {
		if candidate == s {
			return true
		}
	}
	return false
}

func (rs RuleSet) forbidden(from, to Status) bool {
	for _, edge := range rs.Forbidden {
		if edge.From == from && edge.To == to {
			return true
		}
	}
	return false
}

// Decision is the evaluator's verdict on a proposed transition.
type Decision struct {
	// NoOp marks a same-status request: callers treat it as success and
	// nothing is written.
	NoOp bool
	From Status
	To   Status
}

// Evaluate decides whether moving from the current to the proposed status
// is legal under the rule set. A same-status request succeeds as a no-op to
// keep callers idempotent.
func (rs RuleSet) Evaluate(current, to Status) (Decision, error) {
	if !rs.Known(to) {
		return Decision{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown target status: %s", to))
	}
	if !rs.Known(current) {
		return Decision{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject carries unknown status: %s", current))
	}
	if current == to {
		return Decision{NoOp: true, From: current, To: to}, nil
	}
	if rs.IsTerminal(current) {
		return Decision{}, appErrors.Clone(appErrors.ErrTerminalState,
			fmt.Sprintf("terminal state: %s does not allow transition to %s", current, to))
	}
	if rs.forbidden(current, to) {
		return Decision{}, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("invalid transition: %s -> %s", current, to))
	}
	return Decision{From: current, To: to}, nil
}

// ReopenTarget resolves the privileged reopen edge for a terminal status.
func (rs RuleSet) ReopenTarget(current Status) (Status, error) {
	target, ok := rs.Reopen[current]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("status %s cannot be reopened", current))
	}
	return target, nil
}
