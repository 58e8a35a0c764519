package metaapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/adpilot-inc/adpilot-engine/pkg/config"
	"github.com/adpilot-inc/adpilot-engine/pkg/logging"
	"github.com/adpilot-inc/adpilot-engine/pkg/retry"
)

// API is the surface of the Marketing Graph API the engine uses. Services
// depend on this interface; tests substitute the Mock.
type API interface {
	GetAdAccount(ctx context.Context, accountID string) (*AdAccountInfo, error)
	GetCampaign(ctx context.Context, campaignID string) (*CampaignInfo, error)
	GetCampaigns(ctx context.Context, accountID string) ([]CampaignInfo, error)
	CreateCampaign(ctx context.Context, params CampaignParams) (*CampaignInfo, error)
	UpdateCampaign(ctx context.Context, campaignID string, update CampaignUpdate) error
	GetAdSets(ctx context.Context, campaignID string) ([]AdSetInfo, error)
	GetAdSet(ctx context.Context, adsetID string) (*AdSetInfo, error)
	UpdateAdSet(ctx context.Context, adsetID string, update AdSetUpdate) error
	GetAdSetInsights(ctx context.Context, adsetID string, since, until time.Time) ([]InsightsRow, error)
}

// Client is the HTTP implementation of API with rate-limit aware retry and
// transparent token refresh.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokens      *TokenManager
	maxRetries  int
	backoff     *retry.Config
	callTimeout time.Duration
	logger      *zap.Logger
}

var _ API = (*Client)(nil)

// NewClient builds a Client from the Meta configuration.
func NewClient(cfg *config.MetaConfig, logger *zap.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.CallTimeout()}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		tokens:     NewTokenManager(cfg.BaseURL, cfg.AppID, cfg.AppSecret, cfg.AccessToken, httpClient, logger),
		maxRetries: cfg.MaxRetries,
		backoff: &retry.Config{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.RetryBaseDelay(),
			MaxDelay:     cfg.RetryMaxDelay(),
			Multiplier:   cfg.RetryMultiplier,
			JitterFactor: 0.1,
		},
		callTimeout: cfg.CallTimeout(),
		logger:      logger.Named("metaapi"),
	}
}

// do runs one API call through the retry state machine: transient errors
// back off and retry up to maxRetries total attempts, an expired token is
// refreshed once and the call retried immediately, everything else fails
// straight away. The refresh retry does not consume a transient attempt.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, out any) error {
	// A token nearing its recorded expiry is exchanged before the call
	// rather than after a 190. Failure here is not fatal: the call may
	// still succeed, and an actual 190 gets the reactive refresh below.
	if c.tokens.ExpiringSoon() {
		if rerr := c.tokens.Refresh(ctx, c.tokens.Token()); rerr != nil {
			c.logger.Warn("Proactive token refresh failed", zap.Error(rerr))
		}
	}

	refreshed := false
	attempt := 0

	for {
		token := c.tokens.Token()
		err := c.once(ctx, method, path, params, token, out)
		if err == nil {
			return nil
		}

		var apiErr *Error
		if !errors.As(err, &apiErr) {
			return err
		}

		if apiErr.Type == ErrorTypeAuth {
			if refreshed {
				return err
			}
			if rerr := c.tokens.Refresh(ctx, token); rerr != nil {
				return &Error{
					Type:    ErrorTypeAuth,
					Code:    apiErr.Code,
					Message: "token refresh failed",
					Cause:   rerr,
				}
			}
			refreshed = true
			continue
		}

		if !apiErr.IsRetryable() {
			return err
		}

		attempt++
		if attempt >= c.maxRetries {
			return err
		}

		delay := retry.Delay(c.backoff, attempt-1)
		if hint, ok := apiErr.RetryDelayHint(); ok {
			delay = hint
		}
		c.logger.Warn("Retrying after transient upstream error",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Int("code", apiErr.Code),
			zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// once performs a single HTTP exchange and decodes either the payload or
// the platform error envelope.
func (c *Client) once(ctx context.Context, method, path string, params url.Values, token string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("access_token", token)

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+q.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(q.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return newTransportError(ctx.Err())
		}
		return newTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return newTransportError(err)
	}

	if resp.StatusCode >= 400 {
		return c.decodeError(resp, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

// decodeError parses the platform error envelope and the Retry-After hint.
func (c *Client) decodeError(resp *http.Response, body []byte) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
			Subcode int    `json:"error_subcode"`
		} `json:"error"`
	}

	var retryAfter time.Duration
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code == 0 {
		// No parseable envelope. Classify on HTTP status alone.
		apiErr := &Error{
			Type:       ErrorTypePermanent,
			StatusCode: resp.StatusCode,
			Message:    logging.TruncateString(logging.SanitizeURL(string(body)), 200),
			RetryAfter: retryAfter,
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.Type = ErrorTypeRateLimit
		} else if resp.StatusCode >= 500 {
			apiErr.Type = ErrorTypeTransient
		}
		return apiErr
	}

	return newAPIError(envelope.Error.Code, envelope.Error.Subcode, resp.StatusCode,
		logging.SanitizeURL(envelope.Error.Message), retryAfter)
}

// GetAdAccount fetches account identity and currency.
func (c *Client) GetAdAccount(ctx context.Context, accountID string) (*AdAccountInfo, error) {
	var out AdAccountInfo
	params := url.Values{"fields": {"name,currency"}}
	if err := c.do(ctx, http.MethodGet, "/"+actPath(accountID), params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// campaignWire is the Graph wire shape; budgets arrive as strings of minor
// currency units.
type campaignWire struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	Name        string `json:"name"`
	Objective   string `json:"objective"`
	Status      string `json:"status"`
	DailyBudget string `json:"daily_budget"`
}

func (w campaignWire) toInfo() CampaignInfo {
	return CampaignInfo{
		ID:          w.ID,
		AccountID:   w.AccountID,
		Name:        w.Name,
		Objective:   w.Objective,
		Status:      w.Status,
		DailyBudget: centsToBudget(w.DailyBudget),
	}
}

type adSetWire struct {
	ID          string `json:"id"`
	CampaignID  string `json:"campaign_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	DailyBudget string `json:"daily_budget"`
}

func (w adSetWire) toInfo() AdSetInfo {
	return AdSetInfo{
		ID:          w.ID,
		CampaignID:  w.CampaignID,
		Name:        w.Name,
		Status:      w.Status,
		DailyBudget: centsToBudget(w.DailyBudget),
	}
}

// GetCampaign fetches one campaign including its parent account id, which
// campaign creation uses to resolve the account for a sibling campaign.
func (c *Client) GetCampaign(ctx context.Context, campaignID string) (*CampaignInfo, error) {
	var out campaignWire
	params := url.Values{"fields": {"name,objective,status,daily_budget,account_id"}}
	if err := c.do(ctx, http.MethodGet, "/"+campaignID, params, &out); err != nil {
		return nil, err
	}
	info := out.toInfo()
	return &info, nil
}

// GetCampaigns lists an account's campaigns.
func (c *Client) GetCampaigns(ctx context.Context, accountID string) ([]CampaignInfo, error) {
	var out struct {
		Data []campaignWire `json:"data"`
	}
	params := url.Values{"fields": {"name,objective,status,daily_budget,account_id"}}
	if err := c.do(ctx, http.MethodGet, "/"+actPath(accountID)+"/campaigns", params, &out); err != nil {
		return nil, err
	}
	infos := make([]CampaignInfo, 0, len(out.Data))
	for _, w := range out.Data {
		infos = append(infos, w.toInfo())
	}
	return infos, nil
}

// CreateCampaign creates a campaign under the given account.
func (c *Client) CreateCampaign(ctx context.Context, p CampaignParams) (*CampaignInfo, error) {
	params := url.Values{}
	params.Set("name", p.Name)
	params.Set("objective", p.Objective)
	params.Set("status", p.Status)
	params.Set("daily_budget", budgetToCents(p.DailyBudget))
	params.Set("special_ad_categories", "[]")

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/"+actPath(p.AccountID)+"/campaigns", params, &out); err != nil {
		return nil, err
	}
	return &CampaignInfo{
		ID:          out.ID,
		AccountID:   p.AccountID,
		Name:        p.Name,
		Objective:   p.Objective,
		Status:      p.Status,
		DailyBudget: p.DailyBudget,
	}, nil
}

// UpdateCampaign applies the non-nil fields of update.
func (c *Client) UpdateCampaign(ctx context.Context, campaignID string, update CampaignUpdate) error {
	params := url.Values{}
	if update.Status != nil {
		params.Set("status", *update.Status)
	}
	if update.DailyBudget != nil {
		params.Set("daily_budget", budgetToCents(*update.DailyBudget))
	}
	if len(params) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/"+campaignID, params, nil)
}

// GetAdSets lists a campaign's ad sets.
func (c *Client) GetAdSets(ctx context.Context, campaignID string) ([]AdSetInfo, error) {
	var out struct {
		Data []adSetWire `json:"data"`
	}
	params := url.Values{"fields": {"name,status,daily_budget,campaign_id"}}
	if err := c.do(ctx, http.MethodGet, "/"+campaignID+"/adsets", params, &out); err != nil {
		return nil, err
	}
	infos := make([]AdSetInfo, 0, len(out.Data))
	for _, w := range out.Data {
		infos = append(infos, w.toInfo())
	}
	return infos, nil
}

// GetAdSet fetches one ad set.
func (c *Client) GetAdSet(ctx context.Context, adsetID string) (*AdSetInfo, error) {
	var out adSetWire
	params := url.Values{"fields": {"name,status,daily_budget,campaign_id"}}
	if err := c.do(ctx, http.MethodGet, "/"+adsetID, params, &out); err != nil {
		return nil, err
	}
	info := out.toInfo()
	return &info, nil
}

// UpdateAdSet applies the non-nil fields of update.
func (c *Client) UpdateAdSet(ctx context.Context, adsetID string, update AdSetUpdate) error {
	params := url.Values{}
	if update.Status != nil {
		params.Set("status", *update.Status)
	}
	if update.DailyBudget != nil {
		params.Set("daily_budget", budgetToCents(*update.DailyBudget))
	}
	if len(params) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/"+adsetID, params, nil)
}

// insightsWire matches the insights edge, which stringifies every number.
type insightsWire struct {
	DateStart   string `json:"date_start"`
	Impressions string `json:"impressions"`
	Clicks      string `json:"clicks"`
	Conversions string `json:"conversions"`
	Leads       string `json:"leads"`
	Spend       string `json:"spend"`
}

// GetAdSetInsights fetches daily delivery metrics for an ad set over the
// given window.
func (c *Client) GetAdSetInsights(ctx context.Context, adsetID string, since, until time.Time) ([]InsightsRow, error) {
	var out struct {
		Data []insightsWire `json:"data"`
	}
	params := url.Values{}
	params.Set("fields", "impressions,clicks,conversions,leads,spend")
	params.Set("time_increment", "1")
	params.Set("time_range", fmt.Sprintf(`{"since":"%s","until":"%s"}`,
		since.Format("2006-01-02"), until.Format("2006-01-02")))

	if err := c.do(ctx, http.MethodGet, "/"+adsetID+"/insights", params, &out); err != nil {
		return nil, err
	}

	rows := make([]InsightsRow, 0, len(out.Data))
	for _, w := range out.Data {
		rows = append(rows, InsightsRow{
			Date:        w.DateStart,
			Impressions: parseInt(w.Impressions),
			Clicks:      parseInt(w.Clicks),
			Conversions: parseInt(w.Conversions),
			Leads:       parseInt(w.Leads),
			Spend:       parseFloat(w.Spend),
		})
	}
	return rows, nil
}

// actPath prefixes an account id with act_ unless it already carries it.
func actPath(accountID string) string {
	if strings.HasPrefix(accountID, "act_") {
		return accountID
	}
	return "act_" + accountID
}

// budgetToCents converts an account-currency budget to the integer minor
// units the wire expects, using decimal math so 19.99 becomes 1999 and not
// 1998.
func budgetToCents(budget float64) string {
	cents := decimal.NewFromFloat(budget).Mul(decimal.NewFromInt(100)).Round(0)
	return cents.String()
}

// centsToBudget converts a wire minor-unit string back to currency units.
// Absent or malformed values become zero.
func centsToBudget(cents string) float64 {
	if cents == "" {
		return 0
	}
	d, err := decimal.NewFromString(cents)
	if err != nil {
		return 0
	}
	f, _ := d.Div(decimal.NewFromInt(100)).Float64()
	return f
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
