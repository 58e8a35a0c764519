package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpilot-inc/adpilot-engine/pkg/apperrors"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
)

func makeRule(name string, priority int, conditions []models.RuleCondition, actions []models.RuleAction) *models.Rule {
	return &models.Rule{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Name:       name,
		Priority:   priority,
		IsActive:   true,
		Conditions: conditions,
		Actions:    actions,
	}
}

func pauseAction() []models.RuleAction {
	return []models.RuleAction{{ActionType: models.ActionToggleAdSet, Value: models.EntityStatusPaused}}
}

func TestEvaluateRules_AllConditionsMustHold(t *testing.T) {
	rule := makeRule("high cpa and spend", 1, []models.RuleCondition{
		{Metric: models.MetricCPA, Operator: ">", Value: 10},
		{Metric: models.MetricSpend, Operator: ">=", Value: 100},
	}, pauseAction())

	triggered, err := EvaluateRules(models.MetricSnapshot{
		models.MetricCPA:   12,
		models.MetricSpend: 100,
	}, []*models.Rule{rule})
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, rule.ID, triggered[0].RuleID)

	// One condition failing means no trigger
	triggered, err = EvaluateRules(models.MetricSnapshot{
		models.MetricCPA:   12,
		models.MetricSpend: 50,
	}, []*models.Rule{rule})
	require.NoError(t, err)
	assert.Empty(t, triggered)
}

func TestEvaluateRules_MissingMetricNeverFires(t *testing.T) {
	// An ad set with no delivery has no CTR key at all. The rule must not
	// treat the absence as zero.
	rule := makeRule("low ctr", 1, []models.RuleCondition{
		{Metric: models.MetricCTR, Operator: "<", Value: 1.0},
	}, pauseAction())

	triggered, err := EvaluateRules(models.MetricSnapshot{
		models.MetricImpressions: 0,
		models.MetricClicks:      0,
		models.MetricSpend:       0,
	}, []*models.Rule{rule})
	require.NoError(t, err)
	assert.Empty(t, triggered)
}

func TestEvaluateRules_PriorityOrdering(t *testing.T) {
	cond := []models.RuleCondition{{Metric: models.MetricSpend, Operator: ">=", Value: 0}}
	low := makeRule("low", 1, cond, pauseAction())
	high := makeRule("high", 9, cond, pauseAction())
	mid := makeRule("mid", 5, cond, pauseAction())

	triggered, err := EvaluateRules(models.MetricSnapshot{models.MetricSpend: 10},
		[]*models.Rule{low, high, mid})
	require.NoError(t, err)
	require.Len(t, triggered, 3)
	assert.Equal(t, []int{9, 5, 1}, []int{triggered[0].Priority, triggered[1].Priority, triggered[2].Priority})
}

func TestEvaluateRules_StableOrderForEqualPriority(t *testing.T) {
	cond := []models.RuleCondition{{Metric: models.MetricSpend, Operator: ">=", Value: 0}}
	first := makeRule("first", 5, cond, pauseAction())
	second := makeRule("second", 5, cond, pauseAction())
	third := makeRule("third", 5, cond, pauseAction())

	triggered, err := EvaluateRules(models.MetricSnapshot{models.MetricSpend: 10},
		[]*models.Rule{first, second, third})
	require.NoError(t, err)
	require.Len(t, triggered, 3)
	assert.Equal(t, "first", triggered[0].RuleName)
	assert.Equal(t, "second", triggered[1].RuleName)
	assert.Equal(t, "third", triggered[2].RuleName)
}

func TestEvaluateRules_SkipsInactiveRules(t *testing.T) {
	rule := makeRule("disabled", 1, []models.RuleCondition{
		{Metric: models.MetricSpend, Operator: ">", Value: 0},
	}, pauseAction())
	rule.IsActive = false

	triggered, err := EvaluateRules(models.MetricSnapshot{models.MetricSpend: 100}, []*models.Rule{rule})
	require.NoError(t, err)
	assert.Empty(t, triggered)
}

func TestEvaluateRules_ActionsSortedByPriority(t *testing.T) {
	rule := makeRule("multi action", 1, []models.RuleCondition{
		{Metric: models.MetricCPA, Operator: ">", Value: 10},
	}, []models.RuleAction{
		{ActionType: models.ActionAdjustBudget, Value: "-20%", Priority: 1},
		{ActionType: models.ActionToggleAdSet, Value: models.EntityStatusPaused, Priority: 9},
	})

	triggered, err := EvaluateRules(models.MetricSnapshot{models.MetricCPA: 15}, []*models.Rule{rule})
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	require.Len(t, triggered[0].Actions, 2)
	assert.Equal(t, models.ActionToggleAdSet, triggered[0].Actions[0].ActionType)
	assert.Equal(t, models.ActionAdjustBudget, triggered[0].Actions[1].ActionType)
}

func TestEvaluateRules_RepeatCallsGiveIdenticalResults(t *testing.T) {
	cond := []models.RuleCondition{{Metric: models.MetricSpend, Operator: ">=", Value: 0}}
	rules := []*models.Rule{
		makeRule("a", 5, cond, pauseAction()),
		makeRule("b", 5, cond, pauseAction()),
		makeRule("c", 9, cond, pauseAction()),
	}
	snapshot := models.MetricSnapshot{models.MetricSpend: 10}

	first, err := EvaluateRules(snapshot, rules)
	require.NoError(t, err)
	second, err := EvaluateRules(snapshot, rules)
	require.NoError(t, err)

	// Evaluation neither mutates its inputs nor carries state between
	// calls: the same snapshot and rules give the same triggers.
	assert.Equal(t, first, second)
	assert.Equal(t, models.MetricSnapshot{models.MetricSpend: 10}, snapshot)
	assert.Equal(t, 5, rules[0].Priority)
	assert.Equal(t, "a", rules[0].Name)
}

func TestEvaluateRules_UnknownOperator(t *testing.T) {
	rule := makeRule("bad operator", 1, []models.RuleCondition{
		{Metric: models.MetricCPA, Operator: "!=", Value: 10},
	}, pauseAction())

	_, err := EvaluateRules(models.MetricSnapshot{models.MetricCPA: 15}, []*models.Rule{rule})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnknownOperator)
}

func TestEvaluateRules_Operators(t *testing.T) {
	tests := []struct {
		operator  string
		value     float64
		threshold float64
		fires     bool
	}{
		{">", 11, 10, true},
		{">", 10, 10, false},
		{">=", 10, 10, true},
		{"<", 9, 10, true},
		{"<", 10, 10, false},
		{"<=", 10, 10, true},
		{"=", 10, 10, true},
		{"=", 10.1, 10, false},
	}

	for _, tt := range tests {
		rule := makeRule("op", 1, []models.RuleCondition{
			{Metric: models.MetricCPA, Operator: tt.operator, Value: tt.threshold},
		}, pauseAction())

		triggered, err := EvaluateRules(models.MetricSnapshot{models.MetricCPA: tt.value}, []*models.Rule{rule})
		require.NoError(t, err)
		if tt.fires {
			assert.Len(t, triggered, 1, "%v %s %v should fire", tt.value, tt.operator, tt.threshold)
		} else {
			assert.Empty(t, triggered, "%v %s %v should not fire", tt.value, tt.operator, tt.threshold)
		}
	}
}
