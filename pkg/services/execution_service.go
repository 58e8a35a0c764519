package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adpilot-inc/adpilot-engine/pkg/apperrors"
	"github.com/adpilot-inc/adpilot-engine/pkg/logging"
	"github.com/adpilot-inc/adpilot-engine/pkg/metaapi"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
	"github.com/adpilot-inc/adpilot-engine/pkg/repositories"
)

// ExecutionService carries decisions out against the remote ads platform.
//
// Execute never lets a remote failure escape as an error: the decision
// lands in a terminal state (executed or failed with a recorded reason)
// and is returned to the caller either way. Only persistence failures and
// lost claim races surface as errors.
type ExecutionService interface {
	Execute(ctx context.Context, decision *models.Decision) (*models.Decision, error)
}

type executionService struct {
	decisions             repositories.DecisionRepository
	api                   metaapi.API
	locks                 *entityLocks
	defaultCampaignBudget float64
	logger                *zap.Logger
}

// NewExecutionService creates a new ExecutionService.
func NewExecutionService(decisions repositories.DecisionRepository, api metaapi.API, defaultCampaignBudget float64, logger *zap.Logger) ExecutionService {
	return &executionService{
		decisions:             decisions,
		api:                   api,
		locks:                 newEntityLocks(),
		defaultCampaignBudget: defaultCampaignBudget,
		logger:                logger.Named("execution"),
	}
}

var _ ExecutionService = (*executionService)(nil)

// finalizeTimeout bounds the terminal status write. The write runs on a
// context detached from the caller so a cancelled request cannot strand
// a decision in the executing state after the remote call already ran.
const finalizeTimeout = 10 * time.Second

func finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}

func (s *executionService) Execute(ctx context.Context, decision *models.Decision) (*models.Decision, error) {
	// Claim before any remote call. If another worker holds this decision
	// or it already reached a terminal state, there is nothing to do.
	if err := s.decisions.ClaimForExecution(ctx, decision.ID); err != nil {
		return nil, err
	}
	decision.Status = models.DecisionStatusExecuting

	unlock := s.locks.Lock(s.entityKey(decision))
	details, execErr := s.dispatch(ctx, decision)
	unlock()

	if execErr != nil {
		reason := logging.SanitizeError(execErr)
		finCtx, cancel := finalizeContext(ctx)
		err := s.decisions.MarkFailed(finCtx, decision.ID, reason, details)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to record decision failure: %w", err)
		}
		decision.Status = models.DecisionStatusFailed
		decision.FailureReason = &reason
		decision.Details = details
		s.logger.Warn("Decision execution failed",
			zap.String("decision_id", decision.ID.String()),
			zap.String("decision_type", decision.DecisionType),
			zap.String("reason", reason))
		return decision, nil
	}

	finCtx, cancel := finalizeContext(ctx)
	err := s.decisions.MarkExecuted(finCtx, decision.ID, details)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to record decision execution: %w", err)
	}
	now := time.Now()
	decision.Status = models.DecisionStatusExecuted
	decision.Details = details
	decision.ExecutedAt = &now

	s.logger.Info("Decision executed",
		zap.String("decision_id", decision.ID.String()),
		zap.String("decision_type", decision.DecisionType),
		zap.String("campaign_id", decision.CampaignID),
		zap.String("adset_id", decision.AdSetID))
	return decision, nil
}

// entityKey picks the lock key: the most specific entity the decision
// mutates.
func (s *executionService) entityKey(decision *models.Decision) string {
	if decision.AdSetID != "" {
		return "adset:" + decision.AdSetID
	}
	return "campaign:" + decision.CampaignID
}

// dispatch performs the remote mutation and returns the final decision
// details, with the computed intent filled in.
func (s *executionService) dispatch(ctx context.Context, decision *models.Decision) (models.DecisionDetails, error) {
	details := decision.Details

	switch decision.DecisionType {
	case models.ActionAdjustBudget:
		return s.adjustBudget(ctx, decision)
	case models.ActionToggleAdSet:
		if decision.AdSetID == "" {
			return details, fmt.Errorf("toggle_adset decision %s has no ad set", decision.ID)
		}
		target := decision.Details.ActionValue
		if target != models.EntityStatusActive && target != models.EntityStatusPaused {
			return details, fmt.Errorf("toggle_adset decision %s has unsupported target status %q", decision.ID, target)
		}
		details.TargetStatus = target
		if err := s.api.UpdateAdSet(ctx, decision.AdSetID, metaapi.AdSetUpdate{Status: &target}); err != nil {
			return details, err
		}
		return details, nil
	case models.ActionCreateCampaign:
		return s.createCampaign(ctx, decision)
	default:
		return details, fmt.Errorf("%w: %q", apperrors.ErrUnknownDecisionType, decision.DecisionType)
	}
}

// adjustBudget reads the live budget, computes the new one, and writes it
// back as an absolute value. The platform is never asked to increment; the
// read-then-set keeps the math on our side of the wire.
func (s *executionService) adjustBudget(ctx context.Context, decision *models.Decision) (models.DecisionDetails, error) {
	details := decision.Details

	var current float64
	if decision.AdSetID != "" {
		adset, err := s.api.GetAdSet(ctx, decision.AdSetID)
		if err != nil {
			return details, err
		}
		current = adset.DailyBudget
	} else if decision.CampaignID != "" {
		campaign, err := s.api.GetCampaign(ctx, decision.CampaignID)
		if err != nil {
			return details, err
		}
		current = campaign.DailyBudget
	} else {
		return details, fmt.Errorf("adjust_budget decision %s targets no entity", decision.ID)
	}

	newBudget, err := computeBudget(current, decision.Details.ActionValue)
	if err != nil {
		return details, err
	}

	details.CurrentBudget = &current
	details.NewBudget = &newBudget

	update := metaapi.AdSetUpdate{DailyBudget: &newBudget}
	if decision.AdSetID != "" {
		if err := s.api.UpdateAdSet(ctx, decision.AdSetID, update); err != nil {
			return details, err
		}
	} else {
		if err := s.api.UpdateCampaign(ctx, decision.CampaignID, metaapi.CampaignUpdate{DailyBudget: &newBudget}); err != nil {
			return details, err
		}
	}
	return details, nil
}

// createCampaign resolves the parent account through the sibling campaign
// the rule fired on, then creates a paused campaign there. New campaigns
// never go live without a human flipping them on.
func (s *executionService) createCampaign(ctx context.Context, decision *models.Decision) (models.DecisionDetails, error) {
	details := decision.Details

	if decision.CampaignID == "" {
		return details, fmt.Errorf("create_campaign decision %s has no sibling campaign to resolve the account from", decision.ID)
	}
	sibling, err := s.api.GetCampaign(ctx, decision.CampaignID)
	if err != nil {
		return details, err
	}
	if sibling.AccountID == "" {
		return details, fmt.Errorf("campaign %s reports no parent account", decision.CampaignID)
	}

	objective := decision.Details.ActionValue
	budget := s.defaultCampaignBudget
	details.NewBudget = &budget
	details.TargetStatus = models.EntityStatusPaused

	created, err := s.api.CreateCampaign(ctx, metaapi.CampaignParams{
		AccountID:   sibling.AccountID,
		Name:        fmt.Sprintf("Automated %s %s", objective, time.Now().Format("2006-01-02")),
		Objective:   objective,
		Status:      models.EntityStatusPaused,
		DailyBudget: budget,
	})
	if err != nil {
		return details, err
	}

	s.logger.Info("Created campaign",
		zap.String("campaign_id", created.ID),
		zap.String("account_id", created.AccountID),
		zap.String("objective", objective))
	return details, nil
}

// computeBudget applies an action value to a current budget. A "+20%" or
// "-25%" value scales the current budget; anything else parses as an
// absolute budget in account currency units.
func computeBudget(current float64, actionValue string) (float64, error) {
	value := strings.TrimSpace(actionValue)
	if value == "" {
		return 0, fmt.Errorf("empty budget action value")
	}

	if strings.HasSuffix(value, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("malformed percentage %q: %w", actionValue, err)
		}
		newBudget := current * (1 + pct/100)
		if newBudget < 0 {
			return 0, fmt.Errorf("percentage %q would make the budget negative", actionValue)
		}
		return newBudget, nil
	}

	absolute, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed budget value %q: %w", actionValue, err)
	}
	if absolute < 0 {
		return 0, fmt.Errorf("negative absolute budget %q", actionValue)
	}
	return absolute, nil
}
