package metaapi

import (
	"context"
	"time"
)

// MockAPI is a configurable mock for testing service behavior against the
// ads platform. Set the function fields to control behavior in tests.
type MockAPI struct {
	GetAdAccountFunc     func(ctx context.Context, accountID string) (*AdAccountInfo, error)
	GetCampaignFunc      func(ctx context.Context, campaignID string) (*CampaignInfo, error)
	GetCampaignsFunc     func(ctx context.Context, accountID string) ([]CampaignInfo, error)
	CreateCampaignFunc   func(ctx context.Context, params CampaignParams) (*CampaignInfo, error)
	UpdateCampaignFunc   func(ctx context.Context, campaignID string, update CampaignUpdate) error
	GetAdSetsFunc        func(ctx context.Context, campaignID string) ([]AdSetInfo, error)
	GetAdSetFunc         func(ctx context.Context, adsetID string) (*AdSetInfo, error)
	UpdateAdSetFunc      func(ctx context.Context, adsetID string, update AdSetUpdate) error
	GetAdSetInsightsFunc func(ctx context.Context, adsetID string, since, until time.Time) ([]InsightsRow, error)

	// Call tracking for verification
	GetCampaignCalls      int
	CreateCampaignCalls   int
	UpdateCampaignCalls   int
	GetAdSetCalls         int
	UpdateAdSetCalls      int
	GetAdSetInsightsCalls int
}

var _ API = (*MockAPI)(nil)

// NewMockAPI creates a mock whose every call succeeds with zero values.
func NewMockAPI() *MockAPI {
	return &MockAPI{}
}

// GetAdAccount implements API.
func (m *MockAPI) GetAdAccount(ctx context.Context, accountID string) (*AdAccountInfo, error) {
	if m.GetAdAccountFunc != nil {
		return m.GetAdAccountFunc(ctx, accountID)
	}
	return &AdAccountInfo{ID: accountID}, nil
}

// GetCampaign implements API.
func (m *MockAPI) GetCampaign(ctx context.Context, campaignID string) (*CampaignInfo, error) {
	m.GetCampaignCalls++
	if m.GetCampaignFunc != nil {
		return m.GetCampaignFunc(ctx, campaignID)
	}
	return &CampaignInfo{ID: campaignID}, nil
}

// GetCampaigns implements API.
func (m *MockAPI) GetCampaigns(ctx context.Context, accountID string) ([]CampaignInfo, error) {
	if m.GetCampaignsFunc != nil {
		return m.GetCampaignsFunc(ctx, accountID)
	}
	return nil, nil
}

// CreateCampaign implements API.
func (m *MockAPI) CreateCampaign(ctx context.Context, params CampaignParams) (*CampaignInfo, error) {
	m.CreateCampaignCalls++
	if m.CreateCampaignFunc != nil {
		return m.CreateCampaignFunc(ctx, params)
	}
	return &CampaignInfo{
		ID:          "created",
		AccountID:   params.AccountID,
		Name:        params.Name,
		Objective:   params.Objective,
		Status:      params.Status,
		DailyBudget: params.DailyBudget,
	}, nil
}

// UpdateCampaign implements API.
func (m *MockAPI) UpdateCampaign(ctx context.Context, campaignID string, update CampaignUpdate) error {
	m.UpdateCampaignCalls++
	if m.UpdateCampaignFunc != nil {
		return m.UpdateCampaignFunc(ctx, campaignID, update)
	}
	return nil
}

// GetAdSets implements API.
func (m *MockAPI) GetAdSets(ctx context.Context, campaignID string) ([]AdSetInfo, error) {
	if m.GetAdSetsFunc != nil {
		return m.GetAdSetsFunc(ctx, campaignID)
	}
	return nil, nil
}

// GetAdSet implements API.
func (m *MockAPI) GetAdSet(ctx context.Context, adsetID string) (*AdSetInfo, error) {
	m.GetAdSetCalls++
	if m.GetAdSetFunc != nil {
		return m.GetAdSetFunc(ctx, adsetID)
	}
	return &AdSetInfo{ID: adsetID}, nil
}

// UpdateAdSet implements API.
func (m *MockAPI) UpdateAdSet(ctx context.Context, adsetID string, update AdSetUpdate) error {
	m.UpdateAdSetCalls++
	if m.UpdateAdSetFunc != nil {
		return m.UpdateAdSetFunc(ctx, adsetID, update)
	}
	return nil
}

// GetAdSetInsights implements API.
func (m *MockAPI) GetAdSetInsights(ctx context.Context, adsetID string, since, until time.Time) ([]InsightsRow, error) {
	m.GetAdSetInsightsCalls++
	if m.GetAdSetInsightsFunc != nil {
		return m.GetAdSetInsightsFunc(ctx, adsetID, since, until)
	}
	return nil, nil
}
