package models

import (
	"time"

	"github.com/google/uuid"
)

// Remote entity status values as the ads platform reports them.
const (
	EntityStatusActive = "ACTIVE"
	EntityStatusPaused = "PAUSED"
)

// AdAccount mirrors a remote ad account along with the operator's
// performance targets, which seed-rule thresholds are derived from.
type AdAccount struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	AccountID string    `json:"account_id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency,omitempty"`
	TargetCPA *float64  `json:"target_cpa,omitempty"`
	TargetCPL *float64  `json:"target_cpl,omitempty"`
	SyncedAt  time.Time `json:"synced_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Campaign is a locally cached snapshot of a remote campaign. Budget and
// status here are advisory; the execution engine always reads the live
// value before mutating.
type Campaign struct {
	ID          uuid.UUID `json:"id"`
	AccountID   string    `json:"account_id"`
	CampaignID  string    `json:"campaign_id"`
	Name        string    `json:"name"`
	Objective   string    `json:"objective,omitempty"`
	Status      string    `json:"status"`
	DailyBudget *float64  `json:"daily_budget,omitempty"`
	SyncedAt    time.Time `json:"synced_at"`
}

// AdSet is a locally cached snapshot of a remote ad set.
type AdSet struct {
	ID          uuid.UUID `json:"id"`
	CampaignID  string    `json:"campaign_id"`
	AdSetID     string    `json:"adset_id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	DailyBudget *float64  `json:"daily_budget,omitempty"`
	SyncedAt    time.Time `json:"synced_at"`
}
