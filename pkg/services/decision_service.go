package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adpilot-inc/adpilot-engine/pkg/apperrors"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
	"github.com/adpilot-inc/adpilot-engine/pkg/repositories"
)

// EntityRef names the remote entity a decision targets. AdSetID may be
// empty for campaign-level decisions.
type EntityRef struct {
	CampaignID string
	AdSetID    string
}

// DecisionService owns the decision lifecycle: creation from triggered
// rules, routing by automation level, and the human approval workflow.
type DecisionService interface {
	// CreateFromTrigger persists one pending decision for a triggered
	// rule's action. Repeated sweeps over unchanged metrics create
	// repeated decisions; the audit trail records proposals, not intents
	// deduplicated.
	CreateFromTrigger(ctx context.Context, userID uuid.UUID, trigger models.TriggeredRule, action models.RuleAction, entity EntityRef, metrics models.MetricSnapshot) (*models.Decision, error)

	// Route moves a fresh pending decision forward according to the
	// automation level: executed immediately, or parked for approval.
	// The returned decision reflects the post-routing state.
	Route(ctx context.Context, decision *models.Decision, level string) (*models.Decision, error)

	// Approve executes a decision awaiting approval. Only
	// pending_approval decisions can be approved.
	Approve(ctx context.Context, decisionID uuid.UUID, reviewer string) (*models.Decision, error)

	// Reject terminally declines a decision awaiting approval. Only
	// pending_approval decisions can be rejected.
	Reject(ctx context.Context, decisionID uuid.UUID, reviewer string) (*models.Decision, error)

	// Get returns one decision or apperrors.ErrNotFound.
	Get(ctx context.Context, decisionID uuid.UUID) (*models.Decision, error)

	// List returns a user's decisions, optionally filtered by status.
	List(ctx context.Context, userID uuid.UUID, status string, limit int) ([]*models.Decision, error)
}

type decisionService struct {
	decisions repositories.DecisionRepository
	executor  ExecutionService
	logger    *zap.Logger
}

// NewDecisionService creates a new DecisionService.
func NewDecisionService(decisions repositories.DecisionRepository, executor ExecutionService, logger *zap.Logger) DecisionService {
	return &decisionService{
		decisions: decisions,
		executor:  executor,
		logger:    logger.Named("decisions"),
	}
}

var _ DecisionService = (*decisionService)(nil)

func (s *decisionService) CreateFromTrigger(ctx context.Context, userID uuid.UUID, trigger models.TriggeredRule, action models.RuleAction, entity EntityRef, metrics models.MetricSnapshot) (*models.Decision, error) {
	ruleID := trigger.RuleID
	decision := &models.Decision{
		UserID:       userID,
		RuleID:       &ruleID,
		CampaignID:   entity.CampaignID,
		AdSetID:      entity.AdSetID,
		DecisionType: action.ActionType,
		Details: models.DecisionDetails{
			ActionValue: action.Value,
			Metrics:     metrics,
		},
		Reasoning: buildReasoning(trigger.RuleName, metrics),
		Status:    models.DecisionStatusPending,
	}

	if err := s.decisions.Create(ctx, decision); err != nil {
		s.logger.Error("Failed to create decision",
			zap.String("rule", trigger.RuleName),
			zap.Error(err))
		return nil, err
	}
	return decision, nil
}

func (s *decisionService) Route(ctx context.Context, decision *models.Decision, level string) (*models.Decision, error) {
	if !models.ValidAutomationLevel(level) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownAutomationLevel, level)
	}

	if s.executeImmediately(decision, level) {
		return s.executor.Execute(ctx, decision)
	}

	if err := s.decisions.UpdateStatus(ctx, decision.ID, models.DecisionStatusPendingApproval, nil); err != nil {
		return nil, err
	}
	decision.Status = models.DecisionStatusPendingApproval
	s.logger.Info("Decision parked for approval",
		zap.String("decision_id", decision.ID.String()),
		zap.String("decision_type", decision.DecisionType),
		zap.String("level", level))
	return decision, nil
}

// executeImmediately is the routing rule. Hybrid mode auto-executes only
// budget decreases: the "-" prefix is the marker, so an absolute budget
// like "100" routes to approval even if it happens to be lower than the
// current spend.
func (s *decisionService) executeImmediately(decision *models.Decision, level string) bool {
	switch level {
	case models.AutomationAutonomous:
		return true
	case models.AutomationHybrid:
		return decision.DecisionType == models.ActionAdjustBudget &&
			strings.HasPrefix(decision.Details.ActionValue, "-")
	default:
		return false
	}
}

func (s *decisionService) Approve(ctx context.Context, decisionID uuid.UUID, reviewer string) (*models.Decision, error) {
	decision, err := s.Get(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if decision.Status != models.DecisionStatusPendingApproval {
		return nil, fmt.Errorf("%w: cannot approve decision in status %q", apperrors.ErrInvalidTransition, decision.Status)
	}

	if err := s.decisions.UpdateStatus(ctx, decisionID, models.DecisionStatusPendingApproval, &reviewer); err != nil {
		return nil, err
	}
	decision.ReviewedBy = &reviewer

	s.logger.Info("Decision approved",
		zap.String("decision_id", decisionID.String()),
		zap.String("reviewer", reviewer))
	return s.executor.Execute(ctx, decision)
}

func (s *decisionService) Reject(ctx context.Context, decisionID uuid.UUID, reviewer string) (*models.Decision, error) {
	decision, err := s.Get(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if decision.Status != models.DecisionStatusPendingApproval {
		return nil, fmt.Errorf("%w: cannot reject decision in status %q", apperrors.ErrInvalidTransition, decision.Status)
	}

	if err := s.decisions.UpdateStatus(ctx, decisionID, models.DecisionStatusRejected, &reviewer); err != nil {
		return nil, err
	}
	decision.Status = models.DecisionStatusRejected
	decision.ReviewedBy = &reviewer

	s.logger.Info("Decision rejected",
		zap.String("decision_id", decisionID.String()),
		zap.String("reviewer", reviewer))
	return decision, nil
}

func (s *decisionService) Get(ctx context.Context, decisionID uuid.UUID) (*models.Decision, error) {
	decision, err := s.decisions.GetByID(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, apperrors.ErrNotFound
	}
	return decision, nil
}

func (s *decisionService) List(ctx context.Context, userID uuid.UUID, status string, limit int) ([]*models.Decision, error) {
	return s.decisions.List(ctx, userID, status, limit)
}

// buildReasoning records why a decision exists in a form an operator can
// read back from the audit trail.
func buildReasoning(ruleName string, metrics models.MetricSnapshot) string {
	payload, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Sprintf("Rule: %s", ruleName)
	}
	return fmt.Sprintf("Rule: %s - Based on metrics: %s", ruleName, payload)
}
