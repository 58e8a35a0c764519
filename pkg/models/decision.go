package models

import (
	"time"

	"github.com/google/uuid"
)

// Automation level constants. The level controls how a fresh decision is
// routed: executed immediately, parked for human review, or split by risk.
const (
	AutomationAutonomous       = "autonomous"
	AutomationApprovalRequired = "approval_required"
	AutomationHybrid           = "hybrid"
)

// Decision status constants.
//
// pending and pending_approval are the two entry states. executing is the
// short-lived claim a worker takes before touching the remote platform, so
// two sweeps can never execute the same decision. executed, failed, and
// rejected are terminal.
const (
	DecisionStatusPending         = "pending"
	DecisionStatusPendingApproval = "pending_approval"
	DecisionStatusExecuting       = "executing"
	DecisionStatusExecuted        = "executed"
	DecisionStatusFailed          = "failed"
	DecisionStatusRejected        = "rejected"
)

// DecisionDetails carries the action parameter, the metric snapshot the
// rule fired on, and the computed intent recorded before the remote call.
type DecisionDetails struct {
	ActionValue   string             `json:"action_value"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	CurrentBudget *float64           `json:"current_budget,omitempty"`
	NewBudget     *float64           `json:"new_budget,omitempty"`
	TargetStatus  string             `json:"target_status,omitempty"`
}

// Decision is one proposed (or taken) action on a remote entity, produced
// by a triggered rule and carried through the approval and execution
// lifecycle.
type Decision struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	RuleID        *uuid.UUID      `json:"rule_id,omitempty"`
	CampaignID    string          `json:"campaign_id,omitempty"`
	AdSetID       string          `json:"adset_id,omitempty"`
	DecisionType  string          `json:"decision_type"`
	Details       DecisionDetails `json:"decision_details"`
	Reasoning     string          `json:"reasoning,omitempty"`
	Status        string          `json:"status"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	ReviewedBy    *string         `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time      `json:"reviewed_at,omitempty"`
	ExecutedAt    *time.Time      `json:"executed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Terminal reports whether the decision has reached a final state. Terminal
// decisions are immutable.
func (d *Decision) Terminal() bool {
	switch d.Status {
	case DecisionStatusExecuted, DecisionStatusFailed, DecisionStatusRejected:
		return true
	}
	return false
}

// ValidDecisionStatus reports whether status is a known decision status.
func ValidDecisionStatus(status string) bool {
	switch status {
	case DecisionStatusPending, DecisionStatusPendingApproval, DecisionStatusExecuting,
		DecisionStatusExecuted, DecisionStatusFailed, DecisionStatusRejected:
		return true
	}
	return false
}

// ValidAutomationLevel reports whether level is a known automation level.
func ValidAutomationLevel(level string) bool {
	switch level {
	case AutomationAutonomous, AutomationApprovalRequired, AutomationHybrid:
		return true
	}
	return false
}
