package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adpilot-inc/adpilot-engine/pkg/apperrors"
	"github.com/adpilot-inc/adpilot-engine/pkg/metaapi"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
)

func newTestExecutionService(repo *mockDecisionRepo, api *metaapi.MockAPI) ExecutionService {
	return NewExecutionService(repo, api, 50.0, zap.NewNop())
}

func TestExecute_PercentageIncrease(t *testing.T) {
	repo := newMockDecisionRepo()
	api := metaapi.NewMockAPI()
	api.GetAdSetFunc = func(_ context.Context, adsetID string) (*metaapi.AdSetInfo, error) {
		return &metaapi.AdSetInfo{ID: adsetID, DailyBudget: 100}, nil
	}
	var written float64
	api.UpdateAdSetFunc = func(_ context.Context, _ string, update metaapi.AdSetUpdate) error {
		require.NotNil(t, update.DailyBudget)
		written = *update.DailyBudget
		return nil
	}

	svc := newTestExecutionService(repo, api)
	decision := seedDecision(t, repo, models.ActionAdjustBudget, "+20%", models.DecisionStatusPending)

	executed, err := svc.Execute(context.Background(), decision)
	require.NoError(t, err)

	assert.Equal(t, models.DecisionStatusExecuted, executed.Status)
	assert.InDelta(t, 120.0, written, 1e-9)
	require.NotNil(t, executed.Details.CurrentBudget)
	require.NotNil(t, executed.Details.NewBudget)
	assert.InDelta(t, 100.0, *executed.Details.CurrentBudget, 1e-9)
	assert.InDelta(t, 120.0, *executed.Details.NewBudget, 1e-9)
	assert.Equal(t, 1, api.GetAdSetCalls, "budget math requires a live read first")
}

func TestExecute_PercentageDecrease(t *testing.T) {
	repo := newMockDecisionRepo()
	api := metaapi.NewMockAPI()
	api.GetAdSetFunc = func(_ context.Context, adsetID string) (*metaapi.AdSetInfo, error) {
		return &metaapi.AdSetInfo{ID: adsetID, DailyBudget: 100}, nil
	}
	var written float64
	api.UpdateAdSetFunc = func(_ context.Context, _ string, update metaapi.AdSetUpdate) error {
		written = *update.DailyBudget
		return nil
	}

	svc := newTestExecutionService(repo, api)
	decision := seedDecision(t, repo, models.ActionAdjustBudget, "-25%", models.DecisionStatusPending)

	executed, err := svc.Execute(context.Background(), decision)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionStatusExecuted, executed.Status)
	assert.InDelta(t, 75.0, written, 1e-9)
}

func TestExecute_AbsoluteBudget(t *testing.T) {
	repo := newMockDecisionRepo()
	api := metaapi.NewMockAPI()
	api.GetAdSetFunc = func(_ context.Context, adsetID string) (*metaapi.AdSetInfo, error) {
		return &metaapi.AdSetInfo{ID: adsetID, DailyBudget: 80}, nil
	}
	var written float64
	api.UpdateAdSetFunc = func(_ context.Context, _ string, update metaapi.AdSetUpdate) error {
		written = *update.DailyBudget
		return nil
	}

	svc := newTestExecutionService(repo, api)
	decision := seedDecision(t, repo, models.ActionAdjustBudget, "150", models.DecisionStatusPending)

	executed, err := svc.Execute(context.Background(), decision)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionStatusExecuted, executed.Status)
	assert.InDelta(t, 150.0, written, 1e-9)
}

func TestExecute_CampaignLevelBudget(t *testing.T) {
	repo := newMockDecisionRepo()
	api := metaapi.NewMockAPI()
	api.GetCampaignFunc = func(_ context.Context, campaignID string) (*metaapi.CampaignInfo, error) {
		return &metaapi.CampaignInfo{ID: campaignID, DailyBudget: 200}, nil
	}
	var written float64
	api.UpdateCampaignFunc = func(_ context.Context, _ string, update metaapi.CampaignUpdate) error {
		written = *update.DailyBudget
		return nil
	}

	svc := newTestExecutionService(repo, api)
	decision := seedDecision(t, repo, models.ActionAdjustBudget, "-10%", models.DecisionStatusPending)
	decision.AdSetID = ""

	executed, err := svc.Execute(context.Background(), decision)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionStatusExecuted, executed.Status)
	assert.InDelta(t, 180.0, written, 1e-9)
	assert.Equal(t, 0, api.GetAdSetCalls)
}

func TestExecute_ToggleAdSet(t *testing.T) {
	repo := newMockDecisionRepo()
	api := metaapi.NewMockAPI()
	var status string
	api.UpdateAdSetFunc = func(_ context.Context, _ string, update metaapi.AdSetUpdate) error {
		require.NotNil(t, update.Status)
		status = *update.Status
		return nil
	}

	svc := newTestExecutionService(repo, api)
	decision := seedDecision(t, repo, models.ActionToggleAdSet, models.EntityStatusPaused, models.DecisionStatusPending)

	executed, err := svc.Execute(context.Background(), decision)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionStatusExecuted, executed.Status)
	assert.Equal(t, models.EntityStatusPaused, status)
	assert.Equal(t, models.EntityStatusPaused, executed.Details.TargetStatus)
}

func TestExecute_ToggleRejectsUnknownTargetStatus(t *testing.T) {
	repo := newMockDecisionRepo()
	api := metaapi.NewMockAPI()

	svc := newTestExecutionService(repo, api)
	decision := seedDecision(t, repo, models.ActionToggleAdSet, "DELETED", models.DecisionStatusPending)

	executed, err := svc.Execute(context.Background(), decision)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionStatusFailed, executed.Status)
	assert.Equal(t, 0, api.UpdateAdSetCalls)
}

func TestExecute_CreateCampaignAlwaysPaused(t *testing.T) {
	repo := newMockDecisionRepo()
	api := metaapi.NewMockAPI()
	api.GetCampaignFunc = func(_ context.Context, campaignID string) (*metaapi.CampaignInfo, error) {
		return &metaapi.CampaignInfo{ID: campaignID, AccountID: "act1"}, nil
	}
	var params metaapi.CampaignParams
	api.CreateCampaignFunc = func(_ context.Context, p metaapi.CampaignParams) (*metaapi.CampaignInfo, error) {
		params = p
		return &metaapi.CampaignInfo{ID: "new", AccountID: p.AccountID}, nil
	}

	svc := newTestExecutionService(repo, api)
	decision := seedDecision(t, repo, models.ActionCreateCampaign, "LEAD_GENERATION", models.DecisionStatusPending)

	executed, err := svc.Execute(context.Background(), decision)
	require.NoError(t, err)

	assert.Equal(t, models.DecisionStatusExecuted, executed.Status)
	assert.Equal(t, "act1", params.AccountID, "account resolved through the sibling campaign")
	assert.Equal(t, models.EntityStatusPaused, params.Status, "created campaigns never start active")
	assert.Equal(t, "LEAD_GENERATION", params.Objective)
	assert.InDelta(t, 50.0, params.DailyBudget, 1e-9)
}

func TestExecute_RemoteFailureBecomesFailedDecision(t *testing.T) {
	repo := newMockDecisionRepo()
	api := metaapi.NewMockAPI()
	api.GetAdSetFunc = func(_ context.Context, _ string) (*metaapi.AdSetInfo, error) {
		return nil, errors.New("rate limit hit for access_token=EAAG_secret")
	}

	svc := newTestExecutionService(repo, api)
	decision := seedDecision(t, repo, models.ActionAdjustBudget, "-20%", models.DecisionStatusPending)

	// Remote failures are recorded, not returned
	executed, err := svc.Execute(context.Background(), decision)
	require.NoError(t, err)

	assert.Equal(t, models.DecisionStatusFailed, executed.Status)
	require.NotNil(t, executed.FailureReason)
	assert.Contains(t, *executed.FailureReason, "rate limit")
	assert.NotContains(t, *executed.FailureReason, "EAAG_secret", "failure reason must not leak credentials")
}

func TestExecute_FailedAdjustmentKeepsComputedIntent(t *testing.T) {
	repo := newMockDecisionRepo()
	api := metaapi.NewMockAPI()
	api.GetAdSetFunc = func(_ context.Context, adsetID string) (*metaapi.AdSetInfo, error) {
		return &metaapi.AdSetInfo{ID: adsetID, DailyBudget: 100}, nil
	}
	api.UpdateAdSetFunc = func(_ context.Context, _ string, _ metaapi.AdSetUpdate) error {
		return errors.New("write rejected")
	}

	svc := newTestExecutionService(repo, api)
	decision := seedDecision(t, repo, models.ActionAdjustBudget, "+20%", models.DecisionStatusPending)

	executed, err := svc.Execute(context.Background(), decision)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionStatusFailed, executed.Status)

	// The budget read and the derived target survive the failure, both on
	// the returned decision and in the audit trail.
	require.NotNil(t, executed.Details.CurrentBudget)
	require.NotNil(t, executed.Details.NewBudget)
	assert.InDelta(t, 100.0, *executed.Details.CurrentBudget, 1e-9)
	assert.InDelta(t, 120.0, *executed.Details.NewBudget, 1e-9)

	stored, err := repo.GetByID(context.Background(), decision.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Details.CurrentBudget)
	require.NotNil(t, stored.Details.NewBudget)
	assert.InDelta(t, 100.0, *stored.Details.CurrentBudget, 1e-9)
	assert.InDelta(t, 120.0, *stored.Details.NewBudget, 1e-9)
}

// ctxAwareRepo rejects terminal writes whose context is already done, the
// way a real database call would.
type ctxAwareRepo struct {
	*mockDecisionRepo
}

func (r *ctxAwareRepo) MarkExecuted(ctx context.Context, decisionID uuid.UUID, details models.DecisionDetails) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.mockDecisionRepo.MarkExecuted(ctx, decisionID, details)
}

func (r *ctxAwareRepo) MarkFailed(ctx context.Context, decisionID uuid.UUID, reason string, details models.DecisionDetails) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.mockDecisionRepo.MarkFailed(ctx, decisionID, reason, details)
}

func TestExecute_CancelledCallerStillFinalizesSuccess(t *testing.T) {
	repo := newMockDecisionRepo()
	api := metaapi.NewMockAPI()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api.GetAdSetFunc = func(_ context.Context, adsetID string) (*metaapi.AdSetInfo, error) {
		return &metaapi.AdSetInfo{ID: adsetID, DailyBudget: 100}, nil
	}
	// The caller goes away right as the remote write lands.
	api.UpdateAdSetFunc = func(_ context.Context, _ string, _ metaapi.AdSetUpdate) error {
		cancel()
		return nil
	}

	svc := NewExecutionService(&ctxAwareRepo{repo}, api, 50.0, zap.NewNop())
	decision := seedDecision(t, repo, models.ActionAdjustBudget, "+20%", models.DecisionStatusPending)

	executed, err := svc.Execute(ctx, decision)
	require.NoError(t, err, "a cancelled caller must not strand an executing decision")
	assert.Equal(t, models.DecisionStatusExecuted, executed.Status)

	stored, err := repo.GetByID(context.Background(), decision.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionStatusExecuted, stored.Status)
}

func TestExecute_CancelledCallerStillFinalizesFailure(t *testing.T) {
	repo := newMockDecisionRepo()
	api := metaapi.NewMockAPI()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api.GetAdSetFunc = func(_ context.Context, _ string) (*metaapi.AdSetInfo, error) {
		cancel()
		return nil, errors.New("remote unavailable")
	}

	svc := NewExecutionService(&ctxAwareRepo{repo}, api, 50.0, zap.NewNop())
	decision := seedDecision(t, repo, models.ActionAdjustBudget, "+20%", models.DecisionStatusPending)

	executed, err := svc.Execute(ctx, decision)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionStatusFailed, executed.Status)

	stored, err := repo.GetByID(context.Background(), decision.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
}

func TestExecute_ClaimRace(t *testing.T) {
	repo := newMockDecisionRepo()
	api := metaapi.NewMockAPI()
	api.GetAdSetFunc = func(_ context.Context, adsetID string) (*metaapi.AdSetInfo, error) {
		return &metaapi.AdSetInfo{ID: adsetID, DailyBudget: 100}, nil
	}

	svc := newTestExecutionService(repo, api)
	decision := seedDecision(t, repo, models.ActionAdjustBudget, "-10%", models.DecisionStatusPending)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		claimed   int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			copied := *decision
			_, err := svc.Execute(context.Background(), &copied)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, apperrors.ErrAlreadyClaimed) {
				claimed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded, "exactly one worker wins the claim")
	assert.Equal(t, 3, claimed)
	assert.Equal(t, 1, api.UpdateAdSetCalls, "losing workers never touch the platform")
}

func TestExecute_UnknownDecisionType(t *testing.T) {
	repo := newMockDecisionRepo()
	api := metaapi.NewMockAPI()

	svc := newTestExecutionService(repo, api)
	decision := seedDecision(t, repo, "delete_account", "", models.DecisionStatusPending)

	executed, err := svc.Execute(context.Background(), decision)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionStatusFailed, executed.Status)
	require.NotNil(t, executed.FailureReason)
}

func TestComputeBudget(t *testing.T) {
	tests := []struct {
		current float64
		value   string
		want    float64
		wantErr bool
	}{
		{100, "+20%", 120, false},
		{100, "-25%", 75, false},
		{100, "150", 150, false},
		{100, "  -10% ", 90, false},
		{100, "-150%", 0, true},
		{100, "", 0, true},
		{100, "abc", 0, true},
		{100, "-5", 0, true},
	}

	for _, tt := range tests {
		got, err := computeBudget(tt.current, tt.value)
		if tt.wantErr {
			assert.Error(t, err, "value %q", tt.value)
			continue
		}
		require.NoError(t, err, "value %q", tt.value)
		assert.InDelta(t, tt.want, got, 1e-9, "value %q", tt.value)
	}
}
