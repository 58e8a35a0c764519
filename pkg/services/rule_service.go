package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adpilot-inc/adpilot-engine/pkg/apperrors"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
	"github.com/adpilot-inc/adpilot-engine/pkg/repositories"
)

// RuleService manages the automation rule catalog.
type RuleService interface {
	// CreateRule validates and persists a rule with its conditions and
	// actions.
	CreateRule(ctx context.Context, rule *models.Rule) error

	// GetRule returns one rule or apperrors.ErrNotFound.
	GetRule(ctx context.Context, ruleID uuid.UUID) (*models.Rule, error)

	// ListRules returns rules matching the filter, priority descending.
	ListRules(ctx context.Context, filter repositories.RuleFilter) ([]*models.Rule, error)

	// ToggleRule flips a rule's active flag and returns the new state.
	ToggleRule(ctx context.Context, ruleID uuid.UUID) (*models.Rule, error)

	// DeleteRule removes a rule and its children.
	DeleteRule(ctx context.Context, ruleID uuid.UUID) error

	// Evaluate runs the active rules matching the filter against a metric
	// snapshot.
	Evaluate(ctx context.Context, userID uuid.UUID, metrics models.MetricSnapshot) ([]models.TriggeredRule, error)
}

type ruleService struct {
	rules  repositories.RuleRepository
	logger *zap.Logger
}

// NewRuleService creates a new RuleService.
func NewRuleService(rules repositories.RuleRepository, logger *zap.Logger) RuleService {
	return &ruleService{
		rules:  rules,
		logger: logger.Named("rules"),
	}
}

var _ RuleService = (*ruleService)(nil)

func (s *ruleService) CreateRule(ctx context.Context, rule *models.Rule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidRule, err)
	}
	if rule.ConditionType == "" {
		rule.ConditionType = models.ConditionTypePerformance
	}

	if err := s.rules.Create(ctx, rule); err != nil {
		s.logger.Error("Failed to create rule",
			zap.String("name", rule.Name),
			zap.Error(err))
		return err
	}

	s.logger.Info("Created rule",
		zap.String("rule_id", rule.ID.String()),
		zap.String("name", rule.Name),
		zap.Int("priority", rule.Priority),
		zap.Int("conditions", len(rule.Conditions)),
		zap.Int("actions", len(rule.Actions)))
	return nil
}

func (s *ruleService) GetRule(ctx context.Context, ruleID uuid.UUID) (*models.Rule, error) {
	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, apperrors.ErrNotFound
	}
	return rule, nil
}

func (s *ruleService) ListRules(ctx context.Context, filter repositories.RuleFilter) ([]*models.Rule, error) {
	return s.rules.List(ctx, filter)
}

func (s *ruleService) ToggleRule(ctx context.Context, ruleID uuid.UUID) (*models.Rule, error) {
	rule, err := s.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	if err := s.rules.SetActive(ctx, ruleID, !rule.IsActive); err != nil {
		return nil, err
	}
	rule.IsActive = !rule.IsActive

	s.logger.Info("Toggled rule",
		zap.String("rule_id", ruleID.String()),
		zap.Bool("is_active", rule.IsActive))
	return rule, nil
}

func (s *ruleService) DeleteRule(ctx context.Context, ruleID uuid.UUID) error {
	if err := s.rules.Delete(ctx, ruleID); err != nil {
		return err
	}
	s.logger.Info("Deleted rule", zap.String("rule_id", ruleID.String()))
	return nil
}

func (s *ruleService) Evaluate(ctx context.Context, userID uuid.UUID, metrics models.MetricSnapshot) ([]models.TriggeredRule, error) {
	rules, err := s.rules.List(ctx, repositories.RuleFilter{UserID: userID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	return EvaluateRules(metrics, rules)
}
