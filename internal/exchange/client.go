package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"coin-strategies/internal/config"
	"coin-strategies/internal/pricing"
)

const (
	// Transient API failures are retried a bounded number of times with a
	// fixed backoff; exhausting the retries degrades to "no data" for the
	// caller, never a fatal error.
	maxRetries   = 3
	retryBackoff = 3 * time.Second
)

// Gateway is the exchange surface the trading engine consumes.
type Gateway interface {
	// FetchTicker returns the latest price point for a coin, or ok=false
	// when no data could be obtained this round.
	FetchTicker(coin string) (pricing.PricePoint, bool)

	// PlaceOrder submits a market order and returns the exchange order id.
	PlaceOrder(coin string, units, price float64) (string, error)

	// FetchBalances returns the account's balances by coin.
	FetchBalances() (map[string]float64, error)
}

// Client is a REST client for the exchange API.
// It implements the Gateway interface.
type Client struct {
	client    *resty.Client
	name      string
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
	backoff   time.Duration
}

// ensure Client implements the interface
var _ Gateway = (*Client)(nil)

// NewClient creates a new exchange REST API client.
func NewClient(cfg *config.Exchange, logger *zap.Logger) *Client {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// Initialize the rate limiter
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:    client,
		name:      cfg.Name,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger,
		limiter:   limiter,
		backoff:   retryBackoff,
	}
}

// sign creates a HMAC-SHA512 signature for the request.
func (c *Client) sign(data string) string {
	h := hmac.New(sha512.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest handles the actual request execution with rate limiting and
// bounded retries.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Client errors won't improve on a retry.
		if resp != nil && resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", c.backoff),
			zap.Error(err),
		)

		select {
		case <-time.After(c.backoff):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// tickerResponse is the /ticker payload.
type tickerResponse struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Last      float64 `json:"last"`
	Volume    float64 `json:"volume"`
}

// FetchTicker fetches the latest ticker for a coin. Retry exhaustion is
// reported as ok=false so callers treat it as an abstention for this tick.
func (c *Client) FetchTicker(coin string) (pricing.PricePoint, bool) {
	var ticker tickerResponse
	req := c.client.R().
		SetQueryParam("symbol", coin).
		SetResult(&ticker)
	ctx := context.Background()

	_, err := c.doRequest(ctx, "GET", "/ticker", req)
	if err != nil {
		c.logger.Warn("No ticker data after retries",
			zap.String("coin", coin), zap.Error(err))
		return pricing.PricePoint{}, false
	}

	at := time.UnixMilli(ticker.Timestamp).UTC()
	if ticker.Timestamp == 0 {
		at = time.Now().UTC()
	}
	return pricing.PricePoint{
		Exchange:  c.name,
		Coin:      coin,
		Timestamp: at,
		Bid:       ticker.Bid,
		Ask:       ticker.Ask,
		Last:      ticker.Last,
		Volume:    ticker.Volume,
	}, true
}

// orderResponse is the response from creating a new order.
type orderResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// PlaceOrder submits a signed limit order. Positive units buy, negative
// units sell.
func (c *Client) PlaceOrder(coin string, units, price float64) (string, error) {
	side := "BUY"
	if units < 0 {
		side = "SELL"
		units = -units
	}

	params := url.Values{}
	params.Set("symbol", coin)
	params.Set("side", side)
	params.Set("quantity", fmt.Sprintf("%.8f", units))
	params.Set("price", fmt.Sprintf("%.8f", price))
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))

	payload := params.Encode()
	req := c.client.R().
		SetHeader("Api-Key", c.apiKey).
		SetHeader("Api-Signature", c.sign(payload)).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(payload).
		SetResult(&orderResponse{})

	ctx := context.Background()
	resp, err := c.doRequest(ctx, "POST", "/order", req)
	if err != nil {
		c.logger.Error("Failed to place order after multiple attempts",
			zap.Error(err),
			zap.String("coin", coin),
		)
		return "", fmt.Errorf("failed to place order: %w", err)
	}

	result := resp.Result().(*orderResponse)
	c.logger.Info("Successfully placed order",
		zap.String("coin", coin),
		zap.String("order_id", result.OrderID))
	return result.OrderID, nil
}

// balanceEntry is one row of the /balances payload.
type balanceEntry struct {
	Currency  string  `json:"currency"`
	Available float64 `json:"available"`
}

// FetchBalances returns the account's available balance per coin.
func (c *Client) FetchBalances() (map[string]float64, error) {
	var entries []balanceEntry

	nonce := fmt.Sprintf("%d", time.Now().UnixMilli())
	req := c.client.R().
		SetHeader("Api-Key", c.apiKey).
		SetHeader("Api-Signature", c.sign("nonce="+nonce)).
		SetQueryParam("nonce", nonce).
		SetResult(&entries)

	ctx := context.Background()
	_, err := c.doRequest(ctx, "GET", "/balances", req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balances: %w", err)
	}

	balances := make(map[string]float64, len(entries))
	for _, entry := range entries {
		balances[entry.Currency] = entry.Available
	}
	return balances, nil
}
