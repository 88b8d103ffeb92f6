// Package statsapi implements the pipeline's collaborator contracts against
// the campaign platform's HTTP API.
package statsapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/adgrid-network/weightd/internal/burn"
	"github.com/adgrid-network/weightd/internal/logger"
	"github.com/adgrid-network/weightd/internal/models"
)

// ClientConfig tunes retry and connection pooling behavior.
type ClientConfig struct {
	MaxRetries          int
	RetryDelayBase      time.Duration
	ConfigTTL           time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// Client talks to the campaign platform API. One client implements every
// provider interface the pipeline consumes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cfg        ClientConfig

	// Scope configs change rarely; cache them so every campaign in an epoch
	// does not re-fetch the same document.
	cacheMu     sync.Mutex
	configCache map[string]cachedConfig
}

type cachedConfig struct {
	cfg       models.ScopeConfig
	fetchedAt time.Time
}

// NewClient creates a campaign platform API client.
func NewClient(baseURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.ConfigTTL <= 0 {
		cfg.ConfigTTL = 5 * time.Minute
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		cfg:         cfg,
		configCache: make(map[string]cachedConfig),
	}
}

// Campaigns returns the campaign snapshot for this epoch.
func (c *Client) Campaigns(ctx context.Context) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	if err := c.getJSON(ctx, "/campaigns", nil, &campaigns); err != nil {
		return nil, fmt.Errorf("failed to fetch campaigns: %w", err)
	}
	return campaigns, nil
}

// MinerStats returns each miner's window activity for a scope.
func (c *Client) MinerStats(ctx context.Context, scope string, windowDays int) ([]models.MinerStats, error) {
	q := url.Values{}
	q.Set("scope", scope)
	q.Set("window_days", strconv.Itoa(windowDays))

	var stats []models.MinerStats
	if err := c.getJSON(ctx, "/miner-stats", q, &stats); err != nil {
		return nil, fmt.Errorf("failed to fetch miner stats for %s: %w", scope, err)
	}
	return stats, nil
}

// ScopeConfig returns a scope's scoring parameters, cached for ConfigTTL.
// The response is decoded over the defaults so omitted fields keep them.
func (c *Client) ScopeConfig(ctx context.Context, scope string) (models.ScopeConfig, error) {
	c.cacheMu.Lock()
	if entry, ok := c.configCache[scope]; ok && time.Since(entry.fetchedAt) < c.cfg.ConfigTTL {
		c.cacheMu.Unlock()
		return entry.cfg, nil
	}
	c.cacheMu.Unlock()

	q := url.Values{}
	q.Set("scope", scope)

	cfg := models.DefaultScopeConfig(scope)
	if err := c.getJSON(ctx, "/config", q, &cfg); err != nil {
		return models.ScopeConfig{}, fmt.Errorf("failed to fetch config for %s: %w", scope, err)
	}
	cfg.Scope = scope

	c.cacheMu.Lock()
	c.configCache[scope] = cachedConfig{cfg: cfg, fetchedAt: time.Now()}
	c.cacheMu.Unlock()
	return cfg, nil
}

// PendingMiners returns the hotkeys registered on a scope that have no
// recorded activity yet.
func (c *Client) PendingMiners(ctx context.Context, scope string) ([]string, error) {
	q := url.Values{}
	q.Set("scope", scope)

	var resp struct {
		Miners []string `json:"miners"`
	}
	if err := c.getJSON(ctx, "/pending-miners", q, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch pending miners for %s: %w", scope, err)
	}
	return resp.Miners, nil
}

// burnResponse carries either an explicit percentage or the emission data to
// derive one from.
type burnResponse struct {
	Percentage    *float64         `json:"percentage,omitempty"`
	BeneficiaryID string           `json:"beneficiary_id,omitempty"`
	Emission      *models.BurnData `json:"emission,omitempty"`
}

// BurnPolicy resolves a scope's burn policy. An explicit percentage wins;
// otherwise one is derived from the emission-versus-sales balance. A scope
// with neither returns nil, meaning no burn.
func (c *Client) BurnPolicy(ctx context.Context, scope string) (*models.BurnPolicy, error) {
	q := url.Values{}
	q.Set("scope", scope)

	var resp burnResponse
	if err := c.getJSON(ctx, "/burn", q, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch burn policy for %s: %w", scope, err)
	}

	policy := &models.BurnPolicy{BeneficiaryID: resp.BeneficiaryID}
	switch {
	case resp.Percentage != nil:
		policy.Percentage = *resp.Percentage
	case resp.Emission != nil:
		e := resp.Emission
		policy.Percentage = burn.FromEmissions(e.EmissionTAO, e.TAOPriceUSD, e.TotalSalesUSD, e.SalesEmissionRatio)
		logger.Debug("Derived burn for %s from emissions: %.2f%%", scope, policy.Percentage)
	default:
		return nil, nil
	}
	return policy, nil
}

// Beneficiary returns the subnet owner hotkey used as burn and fallback
// target.
func (c *Client) Beneficiary(ctx context.Context) (string, error) {
	var resp struct {
		OwnerID string `json:"owner_id"`
	}
	if err := c.getJSON(ctx, "/owner", nil, &resp); err != nil {
		return "", fmt.Errorf("failed to resolve owner: %w", err)
	}
	if resp.OwnerID == "" {
		return "", fmt.Errorf("owner endpoint returned no owner")
	}
	return resp.OwnerID, nil
}

// getJSON performs a GET with retry and decodes the response body into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs an HTTP GET with linear-backoff retry on transport
// errors and server-side failures.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.cfg.MaxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.RetryDelayBase * time.Duration(i+1)):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
