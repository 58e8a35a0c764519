package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Condition operator constants.
const (
	OperatorGreaterThan    = ">"
	OperatorGreaterOrEqual = ">="
	OperatorLessThan       = "<"
	OperatorLessOrEqual    = "<="
	OperatorEqual          = "="
)

// Action type constants. These are the only remote mutations the engine
// knows how to perform.
const (
	ActionAdjustBudget   = "adjust_budget"
	ActionToggleAdSet    = "toggle_adset"
	ActionCreateCampaign = "create_campaign"
)

// Condition category constants, used for rule list filtering.
const (
	ConditionTypePerformance = "performance"
	ConditionTypeBudget      = "budget"
	ConditionTypeSchedule    = "schedule"
)

// Rule is an operator-authored automation rule: a conjunction of metric
// conditions paired with one or more actions to take when all conditions hold.
type Rule struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	ConditionType string          `json:"condition_type"`
	Priority      int             `json:"priority"`
	IsActive      bool            `json:"is_active"`
	KnowledgeID   *uuid.UUID      `json:"knowledge_id,omitempty"`
	Conditions    []RuleCondition `json:"conditions"`
	Actions       []RuleAction    `json:"actions"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// RuleCondition compares a single metric against a threshold.
type RuleCondition struct {
	ID       uuid.UUID `json:"id"`
	RuleID   uuid.UUID `json:"rule_id"`
	Metric   string    `json:"metric"`
	Operator string    `json:"operator"`
	Value    float64   `json:"value"`
}

// RuleAction is what a rule does when it fires. Priority orders actions
// within a rule; Value carries the action parameter (a signed percentage
// like "-20%", an absolute budget, a target status, or a campaign objective).
type RuleAction struct {
	ID         uuid.UUID `json:"id"`
	RuleID     uuid.UUID `json:"rule_id"`
	ActionType string    `json:"action_type"`
	Value      string    `json:"value"`
	Priority   int       `json:"priority"`
}

// TriggeredRule is the evaluator's output for one matched rule: identity,
// priority for ordering, and the rule's actions sorted by action priority
// descending.
type TriggeredRule struct {
	RuleID   uuid.UUID    `json:"rule_id"`
	RuleName string       `json:"rule_name"`
	Priority int          `json:"priority"`
	Actions  []RuleAction `json:"actions"`
}

// ValidOperator reports whether op is one of the supported comparison
// operators.
func ValidOperator(op string) bool {
	switch op {
	case OperatorGreaterThan, OperatorGreaterOrEqual, OperatorLessThan, OperatorLessOrEqual, OperatorEqual:
		return true
	}
	return false
}

// ValidActionType reports whether t names a known action.
func ValidActionType(t string) bool {
	switch t {
	case ActionAdjustBudget, ActionToggleAdSet, ActionCreateCampaign:
		return true
	}
	return false
}

// Validate checks structural validity at creation time. A rule with no
// conditions would fire on every snapshot, and one with no actions would
// fire into nothing; both are rejected here rather than at evaluation time.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %q has no conditions", r.Name)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule %q has no actions", r.Name)
	}
	for _, c := range r.Conditions {
		if c.Metric == "" {
			return fmt.Errorf("rule %q has a condition with an empty metric", r.Name)
		}
		if !ValidOperator(c.Operator) {
			return fmt.Errorf("rule %q has unsupported operator %q", r.Name, c.Operator)
		}
	}
	for _, a := range r.Actions {
		if !ValidActionType(a.ActionType) {
			return fmt.Errorf("rule %q has unsupported action type %q", r.Name, a.ActionType)
		}
		if a.Value == "" {
			return fmt.Errorf("rule %q has an action with an empty value", r.Name)
		}
	}
	return nil
}
