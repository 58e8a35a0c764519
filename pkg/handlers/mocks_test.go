package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/adpilot-inc/adpilot-engine/pkg/apperrors"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
	"github.com/adpilot-inc/adpilot-engine/pkg/repositories"
	"github.com/adpilot-inc/adpilot-engine/pkg/services"
)

// mockRuleService is a stateful in-memory services.RuleService.
type mockRuleService struct {
	mu        sync.Mutex
	rules     map[uuid.UUID]*models.Rule
	createErr error
	evalOut   []models.TriggeredRule
	evalErr   error
}

var _ services.RuleService = (*mockRuleService)(nil)

func newMockRuleService() *mockRuleService {
	return &mockRuleService{rules: make(map[uuid.UUID]*models.Rule)}
}

func (m *mockRuleService) CreateRule(ctx context.Context, rule *models.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidRule, err.Error())
	}
	rule.ID = uuid.New()
	m.rules[rule.ID] = rule
	return nil
}

func (m *mockRuleService) GetRule(ctx context.Context, ruleID uuid.UUID) (*models.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[ruleID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return rule, nil
}

func (m *mockRuleService) ListRules(ctx context.Context, filter repositories.RuleFilter) ([]*models.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Rule
	for _, rule := range m.rules {
		if filter.ActiveOnly && !rule.IsActive {
			continue
		}
		if filter.UserID != uuid.Nil && rule.UserID != filter.UserID {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

func (m *mockRuleService) ToggleRule(ctx context.Context, ruleID uuid.UUID) (*models.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[ruleID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	rule.IsActive = !rule.IsActive
	return rule, nil
}

func (m *mockRuleService) DeleteRule(ctx context.Context, ruleID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, ruleID)
	return nil
}

func (m *mockRuleService) Evaluate(ctx context.Context, userID uuid.UUID, metrics models.MetricSnapshot) ([]models.TriggeredRule, error) {
	if m.evalErr != nil {
		return nil, m.evalErr
	}
	return m.evalOut, nil
}

// mockDecisionService is a stateful in-memory services.DecisionService
// honoring the pending_approval review constraint.
type mockDecisionService struct {
	mu        sync.Mutex
	decisions map[uuid.UUID]*models.Decision
	listErr   error
}

var _ services.DecisionService = (*mockDecisionService)(nil)

func newMockDecisionService() *mockDecisionService {
	return &mockDecisionService{decisions: make(map[uuid.UUID]*models.Decision)}
}

func (m *mockDecisionService) add(status string) *models.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &models.Decision{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		AdSetID:      "adset_1",
		DecisionType: models.ActionAdjustBudget,
		Details:      models.DecisionDetails{ActionValue: "-20%"},
		Status:       status,
	}
	m.decisions[d.ID] = d
	return d
}

func (m *mockDecisionService) CreateFromTrigger(ctx context.Context, userID uuid.UUID, trigger models.TriggeredRule, action models.RuleAction, entity services.EntityRef, metrics models.MetricSnapshot) (*models.Decision, error) {
	d := m.add(models.DecisionStatusPending)
	d.UserID = userID
	return d, nil
}

func (m *mockDecisionService) Route(ctx context.Context, decision *models.Decision, level string) (*models.Decision, error) {
	return decision, nil
}

func (m *mockDecisionService) Approve(ctx context.Context, decisionID uuid.UUID, reviewer string) (*models.Decision, error) {
	return m.review(decisionID, reviewer, models.DecisionStatusExecuted)
}

func (m *mockDecisionService) Reject(ctx context.Context, decisionID uuid.UUID, reviewer string) (*models.Decision, error) {
	return m.review(decisionID, reviewer, models.DecisionStatusRejected)
}

func (m *mockDecisionService) review(decisionID uuid.UUID, reviewer, target string) (*models.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decisions[decisionID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if d.Status != models.DecisionStatusPendingApproval {
		return nil, apperrors.ErrInvalidTransition
	}
	d.Status = target
	d.ReviewedBy = &reviewer
	return d, nil
}

func (m *mockDecisionService) Get(ctx context.Context, decisionID uuid.UUID) (*models.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decisions[decisionID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return d, nil
}

func (m *mockDecisionService) List(ctx context.Context, userID uuid.UUID, status string, limit int) ([]*models.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Decision
	for _, d := range m.decisions {
		if d.UserID != userID {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, d)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// mockSweepService records the last sweep request.
type mockSweepService struct {
	mu       sync.Mutex
	calls    int
	lastUser uuid.UUID
	lastAcct string
	lastLvl  string
	result   *services.SweepResult
	err      error
	done     chan struct{}
}

var _ services.SweepService = (*mockSweepService)(nil)

func newMockSweepService() *mockSweepService {
	return &mockSweepService{
		result: &services.SweepResult{AdSetsEvaluated: 2},
		done:   make(chan struct{}, 1),
	}
}

func (m *mockSweepService) RunSweep(ctx context.Context, userID uuid.UUID, accountID string, level string) (*services.SweepResult, error) {
	m.mu.Lock()
	m.calls++
	m.lastUser = userID
	m.lastAcct = accountID
	m.lastLvl = level
	m.mu.Unlock()
	select {
	case m.done <- struct{}{}:
	default:
	}
	return m.result, m.err
}
