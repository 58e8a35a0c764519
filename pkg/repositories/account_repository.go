package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/adpilot-inc/adpilot-engine/pkg/database"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
)

// AccountRepository provides data access for ad account, campaign, and ad
// set mirrors. Mirrors are upserted from the remote platform; the remote id
// is the natural key.
type AccountRepository interface {
	// GetAccount returns an account mirror by remote account id, or nil.
	GetAccount(ctx context.Context, accountID string) (*models.AdAccount, error)

	// UpsertAccount inserts or refreshes an account mirror.
	UpsertAccount(ctx context.Context, account *models.AdAccount) error

	// UpsertCampaign inserts or refreshes a campaign mirror.
	UpsertCampaign(ctx context.Context, campaign *models.Campaign) error

	// ListCampaigns returns campaign mirrors for an account.
	ListCampaigns(ctx context.Context, accountID string) ([]*models.Campaign, error)

	// UpsertAdSet inserts or refreshes an ad set mirror.
	UpsertAdSet(ctx context.Context, adset *models.AdSet) error

	// ListAdSets returns ad set mirrors for a campaign.
	ListAdSets(ctx context.Context, campaignID string) ([]*models.AdSet, error)
}

type accountRepository struct {
	db *database.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *database.DB) AccountRepository {
	return &accountRepository{db: db}
}

var _ AccountRepository = (*accountRepository)(nil)

func (r *accountRepository) GetAccount(ctx context.Context, accountID string) (*models.AdAccount, error) {
	query := `
		SELECT id, user_id, account_id, name, currency, target_cpa, target_cpl, synced_at, created_at
		FROM ad_accounts
		WHERE account_id = $1`

	var a models.AdAccount
	var currency *string
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&a.ID, &a.UserID, &a.AccountID, &a.Name, &currency,
		&a.TargetCPA, &a.TargetCPL, &a.SyncedAt, &a.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ad account: %w", err)
	}
	if currency != nil {
		a.Currency = *currency
	}
	return &a, nil
}

func (r *accountRepository) UpsertAccount(ctx context.Context, account *models.AdAccount) error {
	now := time.Now()
	query := `
		INSERT INTO ad_accounts (user_id, account_id, name, currency, target_cpa, target_cpl, synced_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (account_id) DO UPDATE SET
			name = EXCLUDED.name,
			currency = EXCLUDED.currency,
			synced_at = EXCLUDED.synced_at
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		account.UserID, account.AccountID, account.Name,
		nullableString(account.Currency), account.TargetCPA, account.TargetCPL, now,
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert ad account: %w", err)
	}
	account.SyncedAt = now
	return nil
}

func (r *accountRepository) UpsertCampaign(ctx context.Context, campaign *models.Campaign) error {
	now := time.Now()
	query := `
		INSERT INTO campaigns (account_id, campaign_id, name, objective, status, daily_budget, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (campaign_id) DO UPDATE SET
			name = EXCLUDED.name,
			objective = EXCLUDED.objective,
			status = EXCLUDED.status,
			daily_budget = EXCLUDED.daily_budget,
			synced_at = EXCLUDED.synced_at
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		campaign.AccountID, campaign.CampaignID, campaign.Name,
		nullableString(campaign.Objective), campaign.Status,
		nullableFloat(campaign.DailyBudget), now,
	).Scan(&campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert campaign: %w", err)
	}
	campaign.SyncedAt = now
	return nil
}

func (r *accountRepository) ListCampaigns(ctx context.Context, accountID string) ([]*models.Campaign, error) {
	query := `
		SELECT id, account_id, campaign_id, name, objective, status, daily_budget, synced_at
		FROM campaigns
		WHERE account_id = $1
		ORDER BY name`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		var c models.Campaign
		var objective *string
		if err := rows.Scan(&c.ID, &c.AccountID, &c.CampaignID, &c.Name,
			&objective, &c.Status, &c.DailyBudget, &c.SyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		if objective != nil {
			c.Objective = *objective
		}
		campaigns = append(campaigns, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *accountRepository) UpsertAdSet(ctx context.Context, adset *models.AdSet) error {
	now := time.Now()
	query := `
		INSERT INTO ad_sets (campaign_id, adset_id, name, status, daily_budget, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (adset_id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			daily_budget = EXCLUDED.daily_budget,
			synced_at = EXCLUDED.synced_at
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		adset.CampaignID, adset.AdSetID, adset.Name, adset.Status,
		nullableFloat(adset.DailyBudget), now,
	).Scan(&adset.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert ad set: %w", err)
	}
	adset.SyncedAt = now
	return nil
}

func (r *accountRepository) ListAdSets(ctx context.Context, campaignID string) ([]*models.AdSet, error) {
	query := `
		SELECT id, campaign_id, adset_id, name, status, daily_budget, synced_at
		FROM ad_sets
		WHERE campaign_id = $1
		ORDER BY name`

	rows, err := r.db.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ad sets: %w", err)
	}
	defer rows.Close()

	var adsets []*models.AdSet
	for rows.Next() {
		var a models.AdSet
		if err := rows.Scan(&a.ID, &a.CampaignID, &a.AdSetID, &a.Name,
			&a.Status, &a.DailyBudget, &a.SyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ad set: %w", err)
		}
		adsets = append(adsets, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ad sets: %w", err)
	}
	return adsets, nil
}
