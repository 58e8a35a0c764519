package metaapi

// AdAccountInfo is a remote ad account as the Graph API returns it.
type AdAccountInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

// CampaignInfo is a remote campaign. DailyBudget is in account currency
// units; the wire format (integer minor units) is converted at the client
// boundary.
type CampaignInfo struct {
	ID          string  `json:"id"`
	AccountID   string  `json:"account_id"`
	Name        string  `json:"name"`
	Objective   string  `json:"objective"`
	Status      string  `json:"status"`
	DailyBudget float64 `json:"daily_budget"`
}

// AdSetInfo is a remote ad set.
type AdSetInfo struct {
	ID          string  `json:"id"`
	CampaignID  string  `json:"campaign_id"`
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	DailyBudget float64 `json:"daily_budget"`
}

// InsightsRow is one day of delivery metrics for a campaign or ad set.
type InsightsRow struct {
	Date        string  `json:"date_start"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Leads       int64   `json:"leads"`
	Spend       float64 `json:"spend"`
}

// CampaignParams describes a campaign to create.
type CampaignParams struct {
	AccountID   string
	Name        string
	Objective   string
	Status      string
	DailyBudget float64
}

// CampaignUpdate carries the mutable campaign fields. Nil means unchanged.
type CampaignUpdate struct {
	Status      *string
	DailyBudget *float64
}

// AdSetUpdate carries the mutable ad set fields. Nil means unchanged.
type AdSetUpdate struct {
	Status      *string
	DailyBudget *float64
}
