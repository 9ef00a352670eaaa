// Package nws is the REST client for the National Weather Service API.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/skybotdev/skybot/internal/domain"
)

// Client is the weather.gov REST client. It performs no retries of its own;
// the weather provider owns the single retry layer.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a weather service client. The service requires a
// descriptive User-Agent and allows roughly one request per second.
func NewClient(baseURL, userAgent string, ratePerSec float64) *Client {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

// GetForecast fetches the gridpoint forecast for an office and grid cell.
func (c *Client) GetForecast(ctx context.Context, office string, gridX, gridY int) (Forecast, error) {
	path := fmt.Sprintf("/gridpoints/%s/%d,%d/forecast", office, gridX, gridY)

	body, err := c.get(ctx, path)
	if err != nil {
		return Forecast{}, fmt.Errorf("nws: get forecast %s %d,%d: %w", office, gridX, gridY, err)
	}

	var resp struct {
		Properties struct {
			UpdateTime time.Time        `json:"updateTime"`
			Periods    []ForecastPeriod `json:"periods"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Forecast{}, fmt.Errorf("nws: decode forecast: %w", err)
	}

	return Forecast{
		UpdatedAt: resp.Properties.UpdateTime,
		Periods:   resp.Properties.Periods,
	}, nil
}

// GetLatestObservation fetches the most recent observation for a station.
func (c *Client) GetLatestObservation(ctx context.Context, stationID string) (Observation, error) {
	path := fmt.Sprintf("/stations/%s/observations/latest", stationID)

	body, err := c.get(ctx, path)
	if err != nil {
		return Observation{}, fmt.Errorf("nws: get observation %s: %w", stationID, err)
	}

	var resp struct {
		Properties struct {
			Timestamp   time.Time `json:"timestamp"`
			Temperature struct {
				Value *float64 `json:"value"`
			} `json:"temperature"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Observation{}, fmt.Errorf("nws: decode observation: %w", err)
	}

	return Observation{
		Timestamp: resp.Properties.Timestamp,
		TempC:     resp.Properties.Temperature.Value,
	}, nil
}

// get performs a single rate-limited GET against the weather service.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransientNetwork, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP %d", domain.ErrTransientNetwork, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: HTTP %d", domain.ErrPermanentAPI, resp.StatusCode)
	}
}
