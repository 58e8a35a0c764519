package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adpilot-inc/adpilot-engine/pkg/metaapi"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
	"github.com/adpilot-inc/adpilot-engine/pkg/repositories"
)

// SyncService refreshes local entity mirrors from the ads platform.
// Refresh is pull-on-read: a sweep asks for campaigns and gets them fresh,
// within the cache TTL. A nil Redis client disables the cache and every
// read goes remote.
type SyncService interface {
	// SyncAccount refreshes one account mirror.
	SyncAccount(ctx context.Context, userID uuid.UUID, accountID string) (*models.AdAccount, error)

	// SyncCampaigns refreshes an account's campaign mirrors and returns
	// them.
	SyncCampaigns(ctx context.Context, accountID string) ([]*models.Campaign, error)

	// SyncAdSets refreshes a campaign's ad set mirrors and returns them.
	SyncAdSets(ctx context.Context, campaignID string) ([]*models.AdSet, error)
}

type syncService struct {
	accounts repositories.AccountRepository
	api      metaapi.API
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewSyncService creates a new SyncService. cache may be nil.
func NewSyncService(accounts repositories.AccountRepository, api metaapi.API, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) SyncService {
	return &syncService{
		accounts: accounts,
		api:      api,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.Named("sync"),
	}
}

var _ SyncService = (*syncService)(nil)

func (s *syncService) SyncAccount(ctx context.Context, userID uuid.UUID, accountID string) (*models.AdAccount, error) {
	info, err := s.api.GetAdAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	existing, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	account := &models.AdAccount{
		UserID:    userID,
		AccountID: accountID,
		Name:      info.Name,
		Currency:  info.Currency,
	}
	if existing != nil {
		// Targets are operator-owned; a sync never clobbers them.
		account.TargetCPA = existing.TargetCPA
		account.TargetCPL = existing.TargetCPL
	}

	if err := s.accounts.UpsertAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *syncService) SyncCampaigns(ctx context.Context, accountID string) ([]*models.Campaign, error) {
	cacheKey := "campaigns:" + accountID

	var cached []*models.Campaign
	if s.cacheGet(ctx, cacheKey, &cached) {
		return cached, nil
	}

	infos, err := s.api.GetCampaigns(ctx, accountID)
	if err != nil {
		return nil, err
	}

	campaigns := make([]*models.Campaign, 0, len(infos))
	for _, info := range infos {
		budget := info.DailyBudget
		campaign := &models.Campaign{
			AccountID:   accountID,
			CampaignID:  info.ID,
			Name:        info.Name,
			Objective:   info.Objective,
			Status:      info.Status,
			DailyBudget: &budget,
		}
		if err := s.accounts.UpsertCampaign(ctx, campaign); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, campaign)
	}

	s.cacheSet(ctx, cacheKey, campaigns)
	return campaigns, nil
}

func (s *syncService) SyncAdSets(ctx context.Context, campaignID string) ([]*models.AdSet, error) {
	cacheKey := "adsets:" + campaignID

	var cached []*models.AdSet
	if s.cacheGet(ctx, cacheKey, &cached) {
		return cached, nil
	}

	infos, err := s.api.GetAdSets(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	adsets := make([]*models.AdSet, 0, len(infos))
	for _, info := range infos {
		budget := info.DailyBudget
		adset := &models.AdSet{
			CampaignID:  campaignID,
			AdSetID:     info.ID,
			Name:        info.Name,
			Status:      info.Status,
			DailyBudget: &budget,
		}
		if err := s.accounts.UpsertAdSet(ctx, adset); err != nil {
			return nil, err
		}
		adsets = append(adsets, adset)
	}

	s.cacheSet(ctx, cacheKey, adsets)
	return adsets, nil
}

// cacheGet returns true on a usable cache hit. Cache failures are logged
// and treated as misses; the platform stays the source of truth.
func (s *syncService) cacheGet(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	payload, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		s.logger.Warn("Cache entry malformed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *syncService) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}
