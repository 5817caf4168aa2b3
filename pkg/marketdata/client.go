package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/irfndi/tradeyodha-signals/internal/config"
)

const userAgent = "TradeYodha-Signals/1.0"

// StatusError is returned for non-2xx responses other than 404.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("market data service error (%d): %s", e.StatusCode, e.Message)
}

// Client calls the market data collaborators. Every per-ticker getter returns
// nil with no error when the service has no data for the ticker.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	apiKey     string
	benchmark  string
	limiter    *rate.Limiter
}

// NewClient creates a client sharing one rate limiter across all endpoints.
func NewClient(cfg config.MarketDataConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	benchmark := cfg.Benchmark
	if benchmark == "" {
		benchmark = "SPY"
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		benchmark:  strings.ToUpper(benchmark),
		limiter:    rate.NewLimiter(limit, burst),
	}
}

func (c *Client) Snapshot(ctx context.Context, ticker string) (*Snapshot, error) {
	var response Snapshot
	found, err := c.makeRequest(ctx, "/v1/snapshot/"+url.PathEscape(ticker), nil, &response)
	if err != nil || !found {
		return nil, err
	}
	return &response, nil
}

func (c *Client) Flow(ctx context.Context, ticker string) (*FlowStats, error) {
	var response FlowStats
	found, err := c.makeRequest(ctx, "/v1/flow/"+url.PathEscape(ticker), nil, &response)
	if err != nil || !found {
		return nil, err
	}
	return &response, nil
}

func (c *Client) DarkPool(ctx context.Context, ticker string) (*DarkPoolStats, error) {
	var response DarkPoolStats
	found, err := c.makeRequest(ctx, "/v1/darkpool/"+url.PathEscape(ticker), nil, &response)
	if err != nil || !found {
		return nil, err
	}
	return &response, nil
}

func (c *Client) VolumePressure(ctx context.Context, ticker string) (*VolumePressureStats, error) {
	var response VolumePressureStats
	found, err := c.makeRequest(ctx, "/v1/volume-pressure/"+url.PathEscape(ticker), nil, &response)
	if err != nil || !found {
		return nil, err
	}
	return &response, nil
}

func (c *Client) Levels(ctx context.Context, ticker string) (*Levels, error) {
	var response Levels
	found, err := c.makeRequest(ctx, "/v1/levels/"+url.PathEscape(ticker), nil, &response)
	if err != nil || !found {
		return nil, err
	}
	return &response, nil
}

// RelativeStrength is measured against the configured benchmark.
func (c *Client) RelativeStrength(ctx context.Context, ticker string) (*RelativeStrength, error) {
	params := url.Values{}
	params.Set("benchmark", c.benchmark)

	var response RelativeStrength
	found, err := c.makeRequest(ctx, "/v1/relative-strength/"+url.PathEscape(ticker), params, &response)
	if err != nil || !found {
		return nil, err
	}
	return &response, nil
}

func (c *Client) NewsSentiment(ctx context.Context, ticker string) (*NewsSentiment, error) {
	var response NewsSentiment
	found, err := c.makeRequest(ctx, "/v1/news-sentiment/"+url.PathEscape(ticker), nil, &response)
	if err != nil || !found {
		return nil, err
	}
	return &response, nil
}

// HealthCheck checks if the market data service is healthy.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var response HealthResponse
	found, err := c.makeRequest(ctx, "/health", nil, &response)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &StatusError{StatusCode: http.StatusNotFound, Message: "health endpoint not found"}
	}
	return &response, nil
}

// makeRequest performs a rate-limited GET and decodes the JSON body into result.
// It reports false without error on 404.
func (c *Client) makeRequest(ctx context.Context, path string, params url.Values, result interface{}) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("rate limiter: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	if c.apiKey != "" {
		params.Set("apiKey", c.apiKey)
	}
	endpoint := c.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to make request to %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 400 {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error != "" {
			return false, &StatusError{StatusCode: resp.StatusCode, Message: errorResp.Error}
		}
		return false, &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return false, fmt.Errorf("failed to unmarshal response from %s: %w", path, err)
	}
	return true, nil
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
