package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/adpilot-inc/adpilot-engine/pkg/database"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
)

// RuleFilter narrows rule listings. Zero values mean "no constraint".
type RuleFilter struct {
	UserID        uuid.UUID
	ActiveOnly    bool
	ConditionType string
	ActionType    string
}

// RuleRepository provides data access for automation rules and their
// conditions and actions.
type RuleRepository interface {
	// Create inserts a rule with all of its conditions and actions.
	Create(ctx context.Context, rule *models.Rule) error

	// GetByID returns a rule with conditions and actions loaded, or nil
	// when no rule exists.
	GetByID(ctx context.Context, ruleID uuid.UUID) (*models.Rule, error)

	// List returns rules matching the filter, ordered by priority
	// descending then creation time.
	List(ctx context.Context, filter RuleFilter) ([]*models.Rule, error)

	// SetActive flips a rule's active flag.
	SetActive(ctx context.Context, ruleID uuid.UUID, active bool) error

	// Delete removes a rule; conditions and actions cascade.
	Delete(ctx context.Context, ruleID uuid.UUID) error
}

type ruleRepository struct {
	db *database.DB
}

// NewRuleRepository creates a new RuleRepository.
func NewRuleRepository(db *database.DB) RuleRepository {
	return &ruleRepository{db: db}
}

var _ RuleRepository = (*ruleRepository)(nil)

func (r *ruleRepository) Create(ctx context.Context, rule *models.Rule) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin rule transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	query := `
		INSERT INTO rules (user_id, name, description, condition_type, priority, is_active, knowledge_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRow(ctx, query,
		rule.UserID,
		rule.Name,
		nullableString(rule.Description),
		rule.ConditionType,
		rule.Priority,
		rule.IsActive,
		rule.KnowledgeID,
		now,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	batch := &pgx.Batch{}
	condQuery := `
		INSERT INTO rule_conditions (rule_id, metric, operator, value)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	for _, c := range rule.Conditions {
		batch.Queue(condQuery, rule.ID, c.Metric, c.Operator, c.Value)
	}
	actQuery := `
		INSERT INTO rule_actions (rule_id, action_type, value, priority)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	for _, a := range rule.Actions {
		batch.Queue(actQuery, rule.ID, a.ActionType, a.Value, a.Priority)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range rule.Conditions {
		rule.Conditions[i].RuleID = rule.ID
		if err := results.QueryRow().Scan(&rule.Conditions[i].ID); err != nil {
			results.Close()
			return fmt.Errorf("failed to create rule condition %d: %w", i, err)
		}
	}
	for i := range rule.Actions {
		rule.Actions[i].RuleID = rule.ID
		if err := results.QueryRow().Scan(&rule.Actions[i].ID); err != nil {
			results.Close()
			return fmt.Errorf("failed to create rule action %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to flush rule batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rule: %w", err)
	}
	return nil
}

func (r *ruleRepository) GetByID(ctx context.Context, ruleID uuid.UUID) (*models.Rule, error) {
	query := `
		SELECT id, user_id, name, description, condition_type, priority, is_active, knowledge_id, created_at, updated_at
		FROM rules
		WHERE id = $1`

	rule, err := scanRule(r.db.QueryRow(ctx, query, ruleID))
	if err != nil || rule == nil {
		return rule, err
	}

	if err := r.loadChildren(ctx, []*models.Rule{rule}); err != nil {
		return nil, err
	}
	return rule, nil
}

func (r *ruleRepository) List(ctx context.Context, filter RuleFilter) ([]*models.Rule, error) {
	query := `
		SELECT DISTINCT r.id, r.user_id, r.name, r.description, r.condition_type, r.priority, r.is_active, r.knowledge_id, r.created_at, r.updated_at
		FROM rules r
		LEFT JOIN rule_actions a ON a.rule_id = r.id
		WHERE ($1::uuid IS NULL OR r.user_id = $1)
		  AND (NOT $2 OR r.is_active)
		  AND ($3 = '' OR r.condition_type = $3)
		  AND ($4 = '' OR a.action_type = $4)
		ORDER BY r.priority DESC, r.created_at`

	var userID any
	if filter.UserID != uuid.Nil {
		userID = filter.UserID
	}

	rows, err := r.db.Query(ctx, query, userID, filter.ActiveOnly, filter.ConditionType, filter.ActionType)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.Rule
	for rows.Next() {
		rule, err := scanRuleFromRows(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	if err := r.loadChildren(ctx, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *ruleRepository) SetActive(ctx context.Context, ruleID uuid.UUID, active bool) error {
	query := `UPDATE rules SET is_active = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.Exec(ctx, query, ruleID, active, time.Now())
	if err != nil {
		return fmt.Errorf("failed to toggle rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("rule not found")
	}
	return nil
}

func (r *ruleRepository) Delete(ctx context.Context, ruleID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM rules WHERE id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("rule not found")
	}
	return nil
}

// loadChildren attaches conditions and actions to the given rules in two
// queries rather than one pair per rule.
func (r *ruleRepository) loadChildren(ctx context.Context, rules []*models.Rule) error {
	if len(rules) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*models.Rule, len(rules))
	ids := make([]uuid.UUID, 0, len(rules))
	for _, rule := range rules {
		byID[rule.ID] = rule
		ids = append(ids, rule.ID)
	}

	condRows, err := r.db.Query(ctx, `
		SELECT id, rule_id, metric, operator, value
		FROM rule_conditions
		WHERE rule_id = ANY($1)
		ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("failed to load rule conditions: %w", err)
	}
	defer condRows.Close()

	for condRows.Next() {
		var c models.RuleCondition
		if err := condRows.Scan(&c.ID, &c.RuleID, &c.Metric, &c.Operator, &c.Value); err != nil {
			return fmt.Errorf("failed to scan rule condition: %w", err)
		}
		byID[c.RuleID].Conditions = append(byID[c.RuleID].Conditions, c)
	}
	if err := condRows.Err(); err != nil {
		return fmt.Errorf("error iterating rule conditions: %w", err)
	}

	actRows, err := r.db.Query(ctx, `
		SELECT id, rule_id, action_type, value, priority
		FROM rule_actions
		WHERE rule_id = ANY($1)
		ORDER BY priority DESC, id`, ids)
	if err != nil {
		return fmt.Errorf("failed to load rule actions: %w", err)
	}
	defer actRows.Close()

	for actRows.Next() {
		var a models.RuleAction
		if err := actRows.Scan(&a.ID, &a.RuleID, &a.ActionType, &a.Value, &a.Priority); err != nil {
			return fmt.Errorf("failed to scan rule action: %w", err)
		}
		byID[a.RuleID].Actions = append(byID[a.RuleID].Actions, a)
	}
	if err := actRows.Err(); err != nil {
		return fmt.Errorf("error iterating rule actions: %w", err)
	}

	return nil
}

func scanRule(row pgx.Row) (*models.Rule, error) {
	var r models.Rule
	var description *string

	err := row.Scan(&r.ID, &r.UserID, &r.Name, &description, &r.ConditionType,
		&r.Priority, &r.IsActive, &r.KnowledgeID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	if description != nil {
		r.Description = *description
	}
	return &r, nil
}

func scanRuleFromRows(rows pgx.Rows) (*models.Rule, error) {
	var r models.Rule
	var description *string

	err := rows.Scan(&r.ID, &r.UserID, &r.Name, &description, &r.ConditionType,
		&r.Priority, &r.IsActive, &r.KnowledgeID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	if description != nil {
		r.Description = *description
	}
	return &r, nil
}
