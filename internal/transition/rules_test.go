package transition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	appErrors "github.com/campushq/sis-api/pkg/errors"
)

func testRuleSet() RuleSet {
	return RuleSet{
		Default:  "ACTIVE",
		Statuses: []Status{"ACTIVE", "SUSPENDED", "COMPLETED"},
		Terminal: []Status{"COMPLETED"},
		Forbidden: []Edge{
			{From: "SUSPENDED", To: "COMPLETED"},
		},
		Reopen: map[Status]Status{"COMPLETED": "ACTIVE"},
	}
}

func TestEvaluateAllowsDeclaredEdge(t *testing.T) {
	rs := testRuleSet()
	decision, err := rs.Evaluate("ACTIVE", "SUSPENDED")
	require.NoError(t, err)
	require.False(t, decision.NoOp)
	require.Equal(t, Status("ACTIVE"), decision.From)
	require.Equal(t, Status("SUSPENDED"), decision.To)
}

func TestEvaluateSameStatusIsNoOp(t *testing.T) {
	rs := testRuleSet()
	decision, err := rs.Evaluate("SUSPENDED", "SUSPENDED")
	require.NoError(t, err)
	require.True(t, decision.NoOp)

	// A no-op succeeds even from a terminal status.
	decision, err = rs.Evaluate("COMPLETED", "COMPLETED")
	require.NoError(t, err)
	require.True(t, decision.NoOp)
}

func TestEvaluateTerminalRejectsMutation(t *testing.T) {
	rs := testRuleSet()
	_, err := rs.Evaluate("COMPLETED", "ACTIVE")
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrTerminalState))
	require.Contains(t, err.Error(), "terminal state")
}

func TestEvaluateForbiddenEdge(t *testing.T) {
	rs := testRuleSet()
	_, err := rs.Evaluate("SUSPENDED", "COMPLETED")
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
}

func TestEvaluateUnknownStatus(t *testing.T) {
	rs := testRuleSet()
	_, err := rs.Evaluate("ACTIVE", "ARCHIVED")
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestReopenTarget(t *testing.T) {
	rs := testRuleSet()
	target, err := rs.ReopenTarget("COMPLETED")
	require.NoError(t, err)
	require.Equal(t, Status("ACTIVE"), target)

	_, err = rs.ReopenTarget("ACTIVE")
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
}

func TestRegistryUnknownSubjectType(t *testing.T) {
	registry := Registry{"THING": testRuleSet()}
	_, err := registry.RuleSetFor("OTHER")
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrValidation))
}
