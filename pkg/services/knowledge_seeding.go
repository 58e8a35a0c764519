package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/adpilot-inc/adpilot-engine/pkg/models"
)

// Knowledge category constants for seed material.
const (
	KnowledgeCategoryBudget   = "budget_rule"
	KnowledgeCategoryAdSet    = "adset_rule"
	KnowledgeCategoryCampaign = "campaign_rule"
)

// KnowledgeItem is one categorized piece of operator guidance, e.g. a line
// from an onboarding playbook: "decrease budget when acquisition gets
// expensive".
type KnowledgeItem struct {
	ID       uuid.UUID `json:"id"`
	Category string    `json:"category"`
	Content  string    `json:"content"`
}

// SeedingService converts operator knowledge and seed files into concrete
// rules. Conversion is deterministic keyword matching over a fixed
// template table; nothing here reasons about language.
type SeedingService interface {
	// SeedFromKnowledge derives rules from categorized knowledge items.
	// When account targets are set, CPA and CPL thresholds come from them
	// instead of the template defaults. Items with no matching template
	// are skipped.
	SeedFromKnowledge(ctx context.Context, userID uuid.UUID, items []KnowledgeItem, account *models.AdAccount) ([]*models.Rule, error)

	// LoadRuleFile creates the rules declared in a YAML seed file.
	LoadRuleFile(ctx context.Context, userID uuid.UUID, path string) ([]*models.Rule, error)
}

type seedingService struct {
	rules  RuleService
	logger *zap.Logger
}

// NewSeedingService creates a new SeedingService.
func NewSeedingService(rules RuleService, logger *zap.Logger) SeedingService {
	return &seedingService{
		rules:  rules,
		logger: logger.Named("seeding"),
	}
}

var _ SeedingService = (*seedingService)(nil)

func (s *seedingService) SeedFromKnowledge(ctx context.Context, userID uuid.UUID, items []KnowledgeItem, account *models.AdAccount) ([]*models.Rule, error) {
	var created []*models.Rule

	for _, item := range items {
		rule := deriveRule(item, account)
		if rule == nil {
			s.logger.Debug("No rule template matched knowledge item",
				zap.String("category", item.Category))
			continue
		}
		rule.UserID = userID

		if err := s.rules.CreateRule(ctx, rule); err != nil {
			return created, fmt.Errorf("failed to seed rule from knowledge item %s: %w", item.ID, err)
		}
		created = append(created, rule)
	}

	s.logger.Info("Seeded rules from knowledge",
		zap.Int("items", len(items)),
		zap.Int("rules", len(created)))
	return created, nil
}

// deriveRule maps a knowledge item to a rule template by category and
// keyword cue.
func deriveRule(item KnowledgeItem, account *models.AdAccount) *models.Rule {
	content := strings.ToLower(item.Content)
	knowledgeID := item.ID

	targetCPA := 10.0
	targetCPL := 5.0
	if account != nil {
		if account.TargetCPA != nil {
			targetCPA = *account.TargetCPA
		}
		if account.TargetCPL != nil {
			targetCPL = *account.TargetCPL
		}
	}

	switch item.Category {
	case KnowledgeCategoryBudget:
		if strings.Contains(content, "decrease") {
			return &models.Rule{
				Name:          "Reduce budget on expensive acquisition",
				Description:   item.Content,
				ConditionType: models.ConditionTypeBudget,
				Priority:      5,
				IsActive:      true,
				KnowledgeID:   &knowledgeID,
				Conditions: []models.RuleCondition{
					{Metric: models.MetricCPA, Operator: models.OperatorGreaterThan, Value: targetCPA},
				},
				Actions: []models.RuleAction{
					{ActionType: models.ActionAdjustBudget, Value: "-20%", Priority: 1},
				},
			}
		}
		if strings.Contains(content, "increase") {
			return &models.Rule{
				Name:          "Scale budget on cheap acquisition",
				Description:   item.Content,
				ConditionType: models.ConditionTypeBudget,
				Priority:      5,
				IsActive:      true,
				KnowledgeID:   &knowledgeID,
				Conditions: []models.RuleCondition{
					{Metric: models.MetricCPA, Operator: models.OperatorLessThan, Value: targetCPA / 2},
				},
				Actions: []models.RuleAction{
					{ActionType: models.ActionAdjustBudget, Value: "+15%", Priority: 1},
				},
			}
		}
	case KnowledgeCategoryAdSet:
		if strings.Contains(content, "pause") {
			return &models.Rule{
				Name:          "Pause low-engagement ad sets",
				Description:   item.Content,
				ConditionType: models.ConditionTypePerformance,
				Priority:      7,
				IsActive:      true,
				KnowledgeID:   &knowledgeID,
				Conditions: []models.RuleCondition{
					{Metric: models.MetricCTR, Operator: models.OperatorLessThan, Value: 1},
				},
				Actions: []models.RuleAction{
					{ActionType: models.ActionToggleAdSet, Value: models.EntityStatusPaused, Priority: 1},
				},
			}
		}
		if strings.Contains(content, "activate") {
			return &models.Rule{
				Name:          "Activate ad sets with cheap leads",
				Description:   item.Content,
				ConditionType: models.ConditionTypePerformance,
				Priority:      6,
				IsActive:      true,
				KnowledgeID:   &knowledgeID,
				Conditions: []models.RuleCondition{
					{Metric: models.MetricCPL, Operator: models.OperatorLessThan, Value: targetCPL},
				},
				Actions: []models.RuleAction{
					{ActionType: models.ActionToggleAdSet, Value: models.EntityStatusActive, Priority: 1},
				},
			}
		}
	case KnowledgeCategoryCampaign:
		if strings.Contains(content, "create") {
			return &models.Rule{
				Name:          "Spin up a conversions campaign",
				Description:   item.Content,
				ConditionType: models.ConditionTypeSchedule,
				Priority:      3,
				IsActive:      false, // campaign creation stays opt-in
				KnowledgeID:   &knowledgeID,
				Conditions: []models.RuleCondition{
					{Metric: "campaign_creation", Operator: models.OperatorEqual, Value: 1},
				},
				Actions: []models.RuleAction{
					{ActionType: models.ActionCreateCampaign, Value: "CONVERSIONS", Priority: 1},
				},
			}
		}
	}
	return nil
}

// seedFile is the YAML shape of a rule seed file.
type seedFile struct {
	Rules []struct {
		Name          string `yaml:"name"`
		Description   string `yaml:"description"`
		ConditionType string `yaml:"condition_type"`
		Priority      int    `yaml:"priority"`
		IsActive      bool   `yaml:"is_active"`
		Conditions    []struct {
			Metric   string  `yaml:"metric"`
			Operator string  `yaml:"operator"`
			Value    float64 `yaml:"value"`
		} `yaml:"conditions"`
		Actions []struct {
			ActionType string `yaml:"action_type"`
			Value      string `yaml:"value"`
			Priority   int    `yaml:"priority"`
		} `yaml:"actions"`
	} `yaml:"rules"`
}

func (s *seedingService) LoadRuleFile(ctx context.Context, userID uuid.UUID, path string) ([]*models.Rule, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var file seedFile
	if err := yaml.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	var created []*models.Rule
	for _, entry := range file.Rules {
		rule := &models.Rule{
			UserID:        userID,
			Name:          entry.Name,
			Description:   entry.Description,
			ConditionType: entry.ConditionType,
			Priority:      entry.Priority,
			IsActive:      entry.IsActive,
		}
		for _, c := range entry.Conditions {
			rule.Conditions = append(rule.Conditions, models.RuleCondition{
				Metric: c.Metric, Operator: c.Operator, Value: c.Value,
			})
		}
		for _, a := range entry.Actions {
			rule.Actions = append(rule.Actions, models.RuleAction{
				ActionType: a.ActionType, Value: a.Value, Priority: a.Priority,
			})
		}

		if err := s.rules.CreateRule(ctx, rule); err != nil {
			return created, fmt.Errorf("failed to create seed rule %q: %w", entry.Name, err)
		}
		created = append(created, rule)
	}

	s.logger.Info("Loaded seed rules", zap.String("path", path), zap.Int("rules", len(created)))
	return created, nil
}
