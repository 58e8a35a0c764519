//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/adpilot-inc/adpilot-engine/pkg/models"
	"github.com/adpilot-inc/adpilot-engine/pkg/testhelpers"
)

type ruleTestContext struct {
	t        *testing.T
	engineDB *testhelpers.EngineDB
	repo     RuleRepository
	userID   uuid.UUID
}

func setupRuleTest(t *testing.T) *ruleTestContext {
	engineDB := testhelpers.GetEngineDB(t)
	tc := &ruleTestContext{
		t:        t,
		engineDB: engineDB,
		repo:     NewRuleRepository(engineDB.DB),
		userID:   uuid.New(),
	}
	t.Cleanup(func() {
		_, err := engineDB.DB.Exec(context.Background(),
			`DELETE FROM rules WHERE user_id = $1`, tc.userID)
		if err != nil {
			t.Errorf("failed to clean up rules: %v", err)
		}
	})
	return tc
}

func (tc *ruleTestContext) createRule(name string, priority int, active bool, actionType string) *models.Rule {
	tc.t.Helper()
	rule := &models.Rule{
		UserID:        tc.userID,
		Name:          name,
		ConditionType: models.ConditionTypePerformance,
		Priority:      priority,
		IsActive:      active,
		Conditions: []models.RuleCondition{
			{Metric: "cpa", Operator: models.OperatorGreaterThan, Value: 10},
			{Metric: "spend", Operator: models.OperatorGreaterOrEqual, Value: 100},
		},
		Actions: []models.RuleAction{
			{ActionType: actionType, Value: "-20%", Priority: 1},
		},
	}
	if err := tc.repo.Create(context.Background(), rule); err != nil {
		tc.t.Fatalf("failed to create rule: %v", err)
	}
	return rule
}

func TestRuleRepository_CreateRoundTrip(t *testing.T) {
	tc := setupRuleTest(t)
	ctx := context.Background()

	created := tc.createRule("High CPA", 5, true, models.ActionAdjustBudget)
	if created.ID == uuid.Nil {
		t.Fatal("expected Create to assign an ID")
	}
	for _, c := range created.Conditions {
		if c.ID == uuid.Nil || c.RuleID != created.ID {
			t.Errorf("expected condition IDs populated, got %+v", c)
		}
	}

	got, err := tc.repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected rule, got nil")
	}
	if len(got.Conditions) != 2 {
		t.Errorf("expected 2 conditions, got %d", len(got.Conditions))
	}
	if len(got.Actions) != 1 {
		t.Errorf("expected 1 action, got %d", len(got.Actions))
	}
	if got.Actions[0].Value != "-20%" {
		t.Errorf("expected action value round-trip, got %q", got.Actions[0].Value)
	}
}

func TestRuleRepository_GetMissingReturnsNil(t *testing.T) {
	tc := setupRuleTest(t)

	got, err := tc.repo.GetByID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing rule, got %+v", got)
	}
}

func TestRuleRepository_ListOrdersByPriority(t *testing.T) {
	tc := setupRuleTest(t)
	ctx := context.Background()

	tc.createRule("Low", 1, true, models.ActionAdjustBudget)
	tc.createRule("High", 9, true, models.ActionAdjustBudget)
	tc.createRule("Mid", 5, true, models.ActionAdjustBudget)

	rules, err := tc.repo.List(ctx, RuleFilter{UserID: tc.userID})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rules))
	}
	wantOrder := []string{"High", "Mid", "Low"}
	for i, want := range wantOrder {
		if rules[i].Name != want {
			t.Errorf("position %d: expected %q, got %q", i, want, rules[i].Name)
		}
	}
	for _, rule := range rules {
		if len(rule.Conditions) == 0 || len(rule.Actions) == 0 {
			t.Errorf("rule %q listed without children", rule.Name)
		}
	}
}

func TestRuleRepository_ListFilters(t *testing.T) {
	tc := setupRuleTest(t)
	ctx := context.Background()

	tc.createRule("Active budget", 5, true, models.ActionAdjustBudget)
	tc.createRule("Inactive budget", 5, false, models.ActionAdjustBudget)
	tc.createRule("Active toggle", 5, true, models.ActionToggleAdSet)

	active, err := tc.repo.List(ctx, RuleFilter{UserID: tc.userID, ActiveOnly: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("expected 2 active rules, got %d", len(active))
	}

	toggles, err := tc.repo.List(ctx, RuleFilter{UserID: tc.userID, ActionType: models.ActionToggleAdSet})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(toggles) != 1 || toggles[0].Name != "Active toggle" {
		t.Errorf("expected only the toggle rule, got %d rules", len(toggles))
	}
}

func TestRuleRepository_SetActive(t *testing.T) {
	tc := setupRuleTest(t)
	ctx := context.Background()

	rule := tc.createRule("Toggleable", 5, true, models.ActionAdjustBudget)
	if err := tc.repo.SetActive(ctx, rule.ID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	got, err := tc.repo.GetByID(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.IsActive {
		t.Error("expected rule to be inactive")
	}

	if err := tc.repo.SetActive(ctx, uuid.New(), true); err == nil {
		t.Error("expected error for missing rule")
	}
}

func TestRuleRepository_DeleteCascades(t *testing.T) {
	tc := setupRuleTest(t)
	ctx := context.Background()

	rule := tc.createRule("Doomed", 5, true, models.ActionAdjustBudget)
	if err := tc.repo.Delete(ctx, rule.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, err := tc.repo.GetByID(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != nil {
		t.Error("expected rule gone after delete")
	}

	var orphans int
	err = tc.engineDB.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM rule_conditions WHERE rule_id = $1`, rule.ID).Scan(&orphans)
	if err != nil {
		t.Fatalf("failed to count orphans: %v", err)
	}
	if orphans != 0 {
		t.Errorf("expected conditions to cascade, found %d orphans", orphans)
	}
}
