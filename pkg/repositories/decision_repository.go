package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/adpilot-inc/adpilot-engine/pkg/apperrors"
	"github.com/adpilot-inc/adpilot-engine/pkg/database"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
)

// DecisionRepository provides data access for the decision audit trail.
type DecisionRepository interface {
	// Create inserts a decision.
	Create(ctx context.Context, decision *models.Decision) error

	// GetByID returns a decision or nil when none exists.
	GetByID(ctx context.Context, decisionID uuid.UUID) (*models.Decision, error)

	// List returns a user's decisions, optionally filtered by status,
	// newest first.
	List(ctx context.Context, userID uuid.UUID, status string, limit int) ([]*models.Decision, error)

	// ClaimForExecution atomically moves a decision from one of the
	// claimable states into executing. Returns apperrors.ErrAlreadyClaimed
	// when another worker won the race or the decision is terminal.
	ClaimForExecution(ctx context.Context, decisionID uuid.UUID) error

	// MarkExecuted finalizes a successfully executed decision, persisting
	// the computed intent alongside.
	MarkExecuted(ctx context.Context, decisionID uuid.UUID, details models.DecisionDetails) error

	// MarkFailed finalizes a failed decision with its reason. The details
	// carry whatever intent was computed before the failure, so a failed
	// budget adjustment still records the budgets it read and derived.
	MarkFailed(ctx context.Context, decisionID uuid.UUID, reason string, details models.DecisionDetails) error

	// UpdateStatus moves a decision between non-terminal states with an
	// optional reviewer attribution.
	UpdateStatus(ctx context.Context, decisionID uuid.UUID, status string, reviewedBy *string) error
}

type decisionRepository struct {
	db *database.DB
}

// NewDecisionRepository creates a new DecisionRepository.
func NewDecisionRepository(db *database.DB) DecisionRepository {
	return &decisionRepository{db: db}
}

var _ DecisionRepository = (*decisionRepository)(nil)

const decisionColumns = `
	id, user_id, rule_id, campaign_id, adset_id, decision_type, decision_details,
	reasoning, status, failure_reason, reviewed_by, reviewed_at, executed_at,
	created_at, updated_at`

func (r *decisionRepository) Create(ctx context.Context, decision *models.Decision) error {
	details, err := json.Marshal(decision.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal decision details: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO decisions (user_id, rule_id, campaign_id, adset_id, decision_type,
			decision_details, reasoning, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		decision.UserID,
		decision.RuleID,
		nullableString(decision.CampaignID),
		nullableString(decision.AdSetID),
		decision.DecisionType,
		details,
		nullableString(decision.Reasoning),
		decision.Status,
		now,
	).Scan(&decision.ID, &decision.CreatedAt, &decision.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create decision: %w", err)
	}
	return nil
}

func (r *decisionRepository) GetByID(ctx context.Context, decisionID uuid.UUID) (*models.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE id = $1`
	return scanDecision(r.db.QueryRow(ctx, query, decisionID))
}

func (r *decisionRepository) List(ctx context.Context, userID uuid.UUID, status string, limit int) ([]*models.Decision, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + decisionColumns + `
		FROM decisions
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, userID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*models.Decision
	for rows.Next() {
		d, err := scanDecisionFromRows(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}
	return decisions, nil
}

func (r *decisionRepository) ClaimForExecution(ctx context.Context, decisionID uuid.UUID) error {
	query := `
		UPDATE decisions
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status IN ($4, $5)`

	result, err := r.db.Exec(ctx, query, decisionID,
		models.DecisionStatusExecuting, time.Now(),
		models.DecisionStatusPending, models.DecisionStatusPendingApproval)
	if err != nil {
		return fmt.Errorf("failed to claim decision: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrAlreadyClaimed
	}
	return nil
}

func (r *decisionRepository) MarkExecuted(ctx context.Context, decisionID uuid.UUID, details models.DecisionDetails) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal decision details: %w", err)
	}

	now := time.Now()
	query := `
		UPDATE decisions
		SET status = $2, decision_details = $3, executed_at = $4, updated_at = $4
		WHERE id = $1 AND status = $5`

	result, err := r.db.Exec(ctx, query, decisionID,
		models.DecisionStatusExecuted, payload, now, models.DecisionStatusExecuting)
	if err != nil {
		return fmt.Errorf("failed to mark decision executed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrInvalidTransition
	}
	return nil
}

func (r *decisionRepository) MarkFailed(ctx context.Context, decisionID uuid.UUID, reason string, details models.DecisionDetails) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal decision details: %w", err)
	}

	now := time.Now()
	query := `
		UPDATE decisions
		SET status = $2, failure_reason = $3, decision_details = $4, updated_at = $5
		WHERE id = $1 AND status = $6`

	result, err := r.db.Exec(ctx, query, decisionID,
		models.DecisionStatusFailed, reason, payload, now, models.DecisionStatusExecuting)
	if err != nil {
		return fmt.Errorf("failed to mark decision failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrInvalidTransition
	}
	return nil
}

func (r *decisionRepository) UpdateStatus(ctx context.Context, decisionID uuid.UUID, status string, reviewedBy *string) error {
	now := time.Now()
	query := `
		UPDATE decisions
		SET status = $2, reviewed_by = COALESCE($3, reviewed_by),
		    reviewed_at = CASE WHEN $3 IS NULL THEN reviewed_at ELSE $4 END,
		    updated_at = $4
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, decisionID, status, reviewedBy, now)
	if err != nil {
		return fmt.Errorf("failed to update decision status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Helper functions

func scanDecision(row pgx.Row) (*models.Decision, error) {
	d, err := scanDecisionFields(row.Scan)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func scanDecisionFromRows(rows pgx.Rows) (*models.Decision, error) {
	return scanDecisionFields(rows.Scan)
}

func scanDecisionFields(scan func(...any) error) (*models.Decision, error) {
	var d models.Decision
	var campaignID, adsetID, reasoning *string
	var details []byte

	err := scan(
		&d.ID,
		&d.UserID,
		&d.RuleID,
		&campaignID,
		&adsetID,
		&d.DecisionType,
		&details,
		&reasoning,
		&d.Status,
		&d.FailureReason,
		&d.ReviewedBy,
		&d.ReviewedAt,
		&d.ExecutedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan decision: %w", err)
	}

	if campaignID != nil {
		d.CampaignID = *campaignID
	}
	if adsetID != nil {
		d.AdSetID = *adsetID
	}
	if reasoning != nil {
		d.Reasoning = *reasoning
	}
	if len(details) > 0 && string(details) != "null" {
		if err := json.Unmarshal(details, &d.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decision details: %w", err)
		}
	}
	return &d, nil
}
