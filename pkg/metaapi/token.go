package metaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// defaultTokenTTL is applied when the exchange response omits expires_in.
// Long-lived Graph tokens last about 60 days.
const defaultTokenTTL = 60 * 24 * time.Hour

// refreshAhead is the window before the recorded expiry in which the
// token is exchanged proactively instead of waiting for a 190.
const refreshAhead = 24 * time.Hour

// TokenManager holds the long-lived access token and exchanges it for a
// fresh one when the platform reports it expired. Refresh is serialized so
// concurrent sweep workers hitting a 190 at the same time perform a single
// exchange.
type TokenManager struct {
	baseURL    string
	appID      string
	appSecret  string
	httpClient *http.Client
	logger     *zap.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenManager creates a token manager seeded with the configured
// long-lived token.
func NewTokenManager(baseURL, appID, appSecret, token string, httpClient *http.Client, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		baseURL:    baseURL,
		appID:      appID,
		appSecret:  appSecret,
		httpClient: httpClient,
		logger:     logger.Named("token"),
		token:      token,
		expiresAt:  time.Now().Add(defaultTokenTTL),
	}
}

// Token returns the current access token.
func (tm *TokenManager) Token() string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.token
}

// ExpiringSoon reports whether the token is within refreshAhead of its
// recorded expiry.
func (tm *TokenManager) ExpiringSoon() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return time.Until(tm.expiresAt) < refreshAhead
}

// Refresh exchanges the current token for a fresh long-lived one via the
// fb_exchange_token grant. staleToken is the token the failing call used;
// if another worker already refreshed past it, Refresh returns immediately
// without a second exchange.
func (tm *TokenManager) Refresh(ctx context.Context, staleToken string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != staleToken {
		return nil
	}

	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", tm.appID)
	params.Set("client_secret", tm.appSecret)
	params.Set("fb_exchange_token", tm.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		tm.baseURL+"/oauth/access_token?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build token exchange request: %w", err)
	}

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token exchange returned HTTP %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode token exchange response: %w", err)
	}
	if body.AccessToken == "" {
		return fmt.Errorf("token exchange response contained no token")
	}

	ttl := defaultTokenTTL
	if body.ExpiresIn > 0 {
		ttl = time.Duration(body.ExpiresIn) * time.Second
	}

	tm.token = body.AccessToken
	tm.expiresAt = time.Now().Add(ttl)
	tm.logger.Info("Refreshed access token", zap.Time("expires_at", tm.expiresAt))
	return nil
}
