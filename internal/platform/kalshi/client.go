// Package kalshi is the REST client for the event-market exchange API.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/skybotdev/skybot/internal/domain"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 4 * time.Second
	maxAttempts    = 3
)

// Client is the REST client for the exchange API. Requests are signed with
// RSA-PSS when credentials are configured, and all requests pass through a
// token-bucket rate limiter.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new exchange REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
// apiKeyID is the exchange API key identifier. ratePerSec bounds outbound
// request rate; waiters queue FIFO on the shared bucket.
func NewClient(baseURL, apiKeyID string, ratePerSec float64) *Client {
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	return &Client{
		baseURL:  baseURL,
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)),
	}
}

// SetRSAPrivateKey loads an RSA private key from PEM-decoded DER bytes and
// configures the client for signed authentication.
func (c *Client) SetRSAPrivateKey(der []byte) error {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		// Try PKCS1 as fallback.
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(der)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// GetMarkets returns the open markets for a series, optionally paginating
// with a cursor. The exchange embeds top-of-book prices in the market rows.
func (c *Client) GetMarkets(ctx context.Context, seriesTicker, status, cursor string) ([]Market, string, error) {
	params := url.Values{}
	if seriesTicker != "" {
		params.Set("series_ticker", seriesTicker)
	}
	if status != "" {
		params.Set("status", status)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	path := "/markets"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Markets []Market `json:"markets"`
		Cursor  string   `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode markets: %w", err)
	}

	return resp.Markets, resp.Cursor, nil
}

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (Market, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(ticker))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market Market `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Market{}, fmt.Errorf("kalshi: decode market: %w", err)
	}

	return resp.Market, nil
}

// PlaceOrder submits a limit order and returns the exchange's ack.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (Order, error) {
	req.Type = "limit"
	body, err := c.doSignedRequest(ctx, http.MethodPost, "/portfolio/orders", req)
	if err != nil {
		return Order{}, fmt.Errorf("kalshi: place order: %w", err)
	}

	var resp struct {
		Order Order `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Order{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}

	return resp.Order, nil
}

// CancelOrder cancels an existing order by its exchange ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/portfolio/orders/%s", url.PathEscape(orderID))

	if _, err := c.doSignedRequest(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("kalshi: cancel order %s: %w", orderID, err)
	}

	return nil
}

// ListOpenOrders returns all resting orders for the account.
func (c *Client) ListOpenOrders(ctx context.Context) ([]Order, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/portfolio/orders?status=resting", nil)
	if err != nil {
		return nil, fmt.Errorf("kalshi: list open orders: %w", err)
	}

	var resp struct {
		Orders []Order `json:"orders"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: decode open orders: %w", err)
	}

	return resp.Orders, nil
}

// ListPositions returns the account's market positions.
func (c *Client) ListPositions(ctx context.Context) ([]Position, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/portfolio/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("kalshi: list positions: %w", err)
	}

	var resp struct {
		MarketPositions []Position `json:"market_positions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: decode positions: %w", err)
	}

	return resp.MarketPositions, nil
}

// ListFills returns fills created at or after since, oldest first.
func (c *Client) ListFills(ctx context.Context, since time.Time) ([]Fill, error) {
	params := url.Values{}
	if !since.IsZero() {
		params.Set("min_ts", strconv.FormatInt(since.Unix(), 10))
	}

	path := "/portfolio/fills"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("kalshi: list fills: %w", err)
	}

	var resp struct {
		Fills []Fill `json:"fills"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: decode fills: %w", err)
	}

	return resp.Fills, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doSignedRequest builds, signs, sends, and reads an HTTP request against
// the exchange API. Transient failures (network errors and 5xx responses)
// are retried with exponential backoff; 4xx responses are never retried.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var jsonBody []byte
	if reqBody != nil {
		var err error
		jsonBody, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	var lastErr error
	delay := retryBaseDelay
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
		}

		body, retryable, err := c.doOnce(ctx, method, path, jsonBody)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %v", domain.ErrTransientNetwork, lastErr)
}

// doOnce performs a single signed request. The second return value reports
// whether the failure is retryable.
func (c *Client) doOnce(ctx context.Context, method, path string, jsonBody []byte) ([]byte, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	var bodyReader io.Reader
	if jsonBody != nil {
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	if jsonBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.signRequest(req, method, path); err != nil {
		return nil, false, fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, resp.StatusCode >= 500, err
	}

	return respBody, false, nil
}

// signRequest adds authentication headers to the HTTP request. The exchange
// verifies an RSA-PSS-SHA256 signature over timestamp + method + path.
// Market-data requests may go out unsigned when no key is configured
// (shadow mode); portfolio endpoints then fail with ErrAuth server-side.
func (c *Client) signRequest(req *http.Request, method, path string) error {
	if c.privateKey == nil && c.apiKeyID == "" {
		return nil
	}
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: RSA private key not configured: %w", domain.ErrAuth)
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)

	return nil
}

// checkStatus maps non-2xx HTTP status codes to domain errors so callers
// can branch with errors.Is.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("kalshi: %s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrAuth)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: rate limited: %s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrTransientNetwork)
	case statusCode >= 500:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s): %w", statusCode, apiErr.Message, apiErr.Code, domain.ErrTransientNetwork)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s): %w", statusCode, apiErr.Message, apiErr.Code, domain.ErrPermanentAPI)
	}
}
