package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adpilot-inc/adpilot-engine/pkg/apperrors"
	"github.com/adpilot-inc/adpilot-engine/pkg/config"
	"github.com/adpilot-inc/adpilot-engine/pkg/logging"
	"github.com/adpilot-inc/adpilot-engine/pkg/metaapi"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
	"github.com/adpilot-inc/adpilot-engine/pkg/repositories"
)

// SweepError records one ad set's failure without aborting the sweep.
type SweepError struct {
	AdSetID string `json:"adset_id"`
	Message string `json:"message"`
}

// SweepResult summarizes one automation sweep.
type SweepResult struct {
	AccountID         string       `json:"account_id"`
	AdSetsEvaluated   int          `json:"adsets_evaluated"`
	RulesTriggered    int          `json:"rules_triggered"`
	DecisionsExecuted int          `json:"decisions_executed"`
	DecisionsFailed   int          `json:"decisions_failed"`
	DecisionsPending  int          `json:"decisions_pending"`
	Errors            []SweepError `json:"errors,omitempty"`
}

// SweepService runs the automation loop: refresh entity mirrors, evaluate
// every ad set's metrics against the active rules, and create and route a
// decision per triggered action.
type SweepService interface {
	RunSweep(ctx context.Context, userID uuid.UUID, accountID string, level string) (*SweepResult, error)
}

type sweepService struct {
	rules     repositories.RuleRepository
	metrics   repositories.MetricRepository
	sync      SyncService
	decisions DecisionService
	api       metaapi.API
	cfg       *config.AutomationConfig
	logger    *zap.Logger
}

// NewSweepService creates a new SweepService.
func NewSweepService(rules repositories.RuleRepository, metrics repositories.MetricRepository, syncSvc SyncService, decisions DecisionService, api metaapi.API, cfg *config.AutomationConfig, logger *zap.Logger) SweepService {
	return &sweepService{
		rules:     rules,
		metrics:   metrics,
		sync:      syncSvc,
		decisions: decisions,
		api:       api,
		cfg:       cfg,
		logger:    logger.Named("sweep"),
	}
}

var _ SweepService = (*sweepService)(nil)

func (s *sweepService) RunSweep(ctx context.Context, userID uuid.UUID, accountID string, level string) (*SweepResult, error) {
	if level == "" {
		level = s.cfg.Level
	}
	if !models.ValidAutomationLevel(level) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownAutomationLevel, level)
	}

	ruleSet, err := s.rules.List(ctx, repositories.RuleFilter{UserID: userID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	result := &SweepResult{AccountID: accountID}
	if len(ruleSet) == 0 {
		s.logger.Info("Sweep found no active rules", zap.String("account_id", accountID))
		return result, nil
	}

	campaigns, err := s.sync.SyncCampaigns(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh campaigns for %s: %w", accountID, err)
	}

	type target struct {
		campaignID string
		adsetID    string
	}
	var targets []target
	for _, campaign := range campaigns {
		adsets, err := s.sync.SyncAdSets(ctx, campaign.CampaignID)
		if err != nil {
			// One campaign failing to list doesn't sink the account.
			result.Errors = append(result.Errors, SweepError{
				AdSetID: "",
				Message: fmt.Sprintf("campaign %s: %s", campaign.CampaignID, logging.SanitizeError(err)),
			})
			continue
		}
		for _, adset := range adsets {
			targets = append(targets, target{campaignID: campaign.CampaignID, adsetID: adset.AdSetID})
		}
	}

	until := time.Now()
	since := until.Add(-s.cfg.MetricsWindow())

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SweepConcurrency)

	for _, t := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			counts, err := s.sweepAdSet(gctx, userID, t.campaignID, t.adsetID, ruleSet, since, until, level)

			mu.Lock()
			defer mu.Unlock()
			result.AdSetsEvaluated++
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				result.Errors = append(result.Errors, SweepError{
					AdSetID: t.adsetID,
					Message: logging.SanitizeError(err),
				})
				return nil
			}
			result.RulesTriggered += counts.triggered
			result.DecisionsExecuted += counts.executed
			result.DecisionsFailed += counts.failed
			result.DecisionsPending += counts.pending
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("Sweep complete",
		zap.String("account_id", accountID),
		zap.String("level", level),
		zap.Int("adsets", result.AdSetsEvaluated),
		zap.Int("triggered", result.RulesTriggered),
		zap.Int("executed", result.DecisionsExecuted),
		zap.Int("failed", result.DecisionsFailed),
		zap.Int("pending", result.DecisionsPending),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// fetchRemoteWindow pulls the ad set's daily insights from the platform
// and backfills the local store so the next sweep reads locally.
func (s *sweepService) fetchRemoteWindow(ctx context.Context, adsetID string, since, until time.Time) ([]*models.DailyMetric, error) {
	insights, err := s.api.GetAdSetInsights(ctx, adsetID, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch insights for ad set %s: %w", adsetID, err)
	}

	rows := make([]*models.DailyMetric, 0, len(insights))
	for _, row := range insights {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			date = until
		}
		rows = append(rows, &models.DailyMetric{
			AdSetID:     adsetID,
			Date:        date,
			Impressions: row.Impressions,
			Clicks:      row.Clicks,
			Conversions: row.Conversions,
			Leads:       row.Leads,
			Spend:       row.Spend,
		})
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// Backfill failures don't block evaluation; the snapshot is already
	// in hand.
	if err := s.metrics.UpsertDaily(ctx, rows); err != nil {
		s.logger.Warn("Failed to backfill metrics from insights",
			zap.String("adset_id", adsetID),
			zap.Error(err))
	}
	return rows, nil
}

type sweepCounts struct {
	triggered int
	executed  int
	failed    int
	pending   int
}

// sweepAdSet evaluates one ad set and creates and routes decisions for
// every triggered action, in priority order.
func (s *sweepService) sweepAdSet(ctx context.Context, userID uuid.UUID, campaignID, adsetID string, ruleSet []*models.Rule, since, until time.Time, level string) (sweepCounts, error) {
	var counts sweepCounts

	rows, err := s.metrics.ListWindow(ctx, adsetID, since, until)
	if err != nil {
		return counts, err
	}
	if len(rows) == 0 {
		// No local rows for the window yet, usually a freshly connected
		// account. Pull the window from the platform directly.
		rows, err = s.fetchRemoteWindow(ctx, adsetID, since, until)
		if err != nil {
			return counts, err
		}
	}
	snapshot := AggregateDaily(rows)

	triggered, err := EvaluateRules(snapshot, ruleSet)
	if err != nil {
		return counts, err
	}
	counts.triggered = len(triggered)

	entity := EntityRef{CampaignID: campaignID, AdSetID: adsetID}
	for _, trigger := range triggered {
		for _, action := range trigger.Actions {
			if err := ctx.Err(); err != nil {
				return counts, err
			}

			decision, err := s.decisions.CreateFromTrigger(ctx, userID, trigger, action, entity, snapshot)
			if err != nil {
				return counts, err
			}

			routed, err := s.decisions.Route(ctx, decision, level)
			if err != nil {
				return counts, err
			}

			switch routed.Status {
			case models.DecisionStatusExecuted:
				counts.executed++
			case models.DecisionStatusFailed:
				counts.failed++
			default:
				counts.pending++
			}
		}
	}
	return counts, nil
}
