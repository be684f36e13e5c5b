// Package rates implements the currency conversion collaborator: an HTTP
// exchange-rate lookup with an in-memory TTL cache. Converted amounts only
// annotate submissions; the engine never computes with them.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"go.uber.org/zap"
)

// Config holds rate client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Client fetches exchange rates over HTTP and caches them per base currency.
type Client struct {
	baseURL  string
	http     *http.Client
	cacheTTL time.Duration
	logger   *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedRates
}

type cachedRates struct {
	rates     map[string]float64
	fetchedAt time.Time
}

// rateResponse mirrors the exchange-rate API payload
type rateResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// NewClient creates a new rate client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		http:     &http.Client{Timeout: cfg.Timeout},
		cacheTTL: cfg.CacheTTL,
		logger:   logger,
		cache:    make(map[string]cachedRates),
	}
}

// Convert converts amount from one currency to another using the cached rate
// table for the source currency.
func (c *Client) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	if from == to {
		return amount, nil
	}

	rates, err := c.ratesFor(ctx, from)
	if err != nil {
		return 0, err
	}

	rate, ok := rates[to]
	if !ok {
		return 0, fmt.Errorf("no rate from %s to %s", from, to)
	}
	return amount * rate, nil
}

func (c *Client) ratesFor(ctx context.Context, base string) (map[string]float64, error) {
	c.mu.RLock()
	cached, ok := c.cache[base]
	c.mu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < c.cacheTTL {
		return cached.rates, nil
	}

	endpoint, err := url.JoinPath(c.baseURL, base)
	if err != nil {
		return nil, fmt.Errorf("build rate url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates for %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate provider returned status %d", resp.StatusCode)
	}

	var payload rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode rate response: %w", err)
	}
	if len(payload.Rates) == 0 {
		return nil, fmt.Errorf("rate provider returned no rates for %s", base)
	}

	c.mu.Lock()
	c.cache[base] = cachedRates{rates: payload.Rates, fetchedAt: time.Now()}
	c.mu.Unlock()

	c.logger.Info("Exchange rates refreshed", zap.String("base", base), zap.Int("rates", len(payload.Rates)))
	return payload.Rates, nil
}

// Verify interface compliance
var _ port.RateProvider = (*Client)(nil)
