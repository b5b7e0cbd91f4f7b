package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"RegionMetrics/internal/domain"
	"RegionMetrics/internal/forecast"
	"RegionMetrics/internal/ports"
)

// Client talks to an external forecasting service.
type Client struct {
	endpoint string
	apiKey   string
	horizon  int
	http     *http.Client
}

var _ ports.Forecaster = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string, horizon int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		horizon:  horizon,
		http:     &http.Client{Timeout: timeout},
	}
}

type forecastRequest struct {
	Region  string  `json:"region"`
	Volume  float64 `json:"volume"`
	Horizon int     `json:"horizon,omitempty"`
}

type forecastResponse struct {
	Values   []float64 `json:"values"`
	Accuracy float64   `json:"accuracy"`
	Trend    string    `json:"trend"`
}

// Forecast asks the service for the region's projection. Transport and
// status failures wrap forecast.ErrUnavailable.
func (c *Client) Forecast(ctx context.Context, region string, volume float64) (domain.Projection, error) {
	if c.endpoint == "" || c.http == nil {
		return domain.Projection{}, fmt.Errorf("%w: no endpoint configured", forecast.ErrUnavailable)
	}

	payload := forecastRequest{Region: region, Volume: volume, Horizon: c.horizon}

	var resp forecastResponse
	if err := c.post(ctx, "/forecast", payload, &resp); err != nil {
		if ctx.Err() != nil {
			return domain.Projection{}, ctx.Err()
		}
		return domain.Projection{}, fmt.Errorf("%w: %v", forecast.ErrUnavailable, err)
	}
	if len(resp.Values) == 0 {
		return domain.Projection{}, fmt.Errorf("%w: empty response for %s", forecast.ErrNoProjection, region)
	}

	trend := resp.Trend
	if trend == "" {
		trend = forecast.Trend(resp.Values)
	}
	return domain.Projection{
		Values:   resp.Values,
		Accuracy: resp.Accuracy,
		Trend:    trend,
		Source:   forecast.SourceHTTP,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
