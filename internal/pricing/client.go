// internal/pricing/client.go
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// ErrNoPrice marks a token the price source does not list at all, or a
// (token, time) pair outside the fetched coverage.
var ErrNoPrice = errors.New("no price")

// Client talks to a CoinGecko-compatible market data API. The API serves
// hourly granularity for ranges up to 90 days back and daily beyond.
type Client struct {
	baseURL    string
	apiKey     string
	retries    int
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey string, retries int, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		retries: retries,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.Named("price-client"),
	}
}

// PricePoint is one sampled price.
type PricePoint struct {
	At    time.Time
	Price float64
}

type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"` // [ms since epoch, price]
}

// HistoricalRange fetches the price series for one asset id over [from, to].
func (c *Client) HistoricalRange(ctx context.Context, id string, from, to time.Time) ([]PricePoint, error) {
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart/range?vs_currency=usd&from=%d&to=%d",
		c.baseURL, url.PathEscape(id), from.Unix(), to.Unix())

	var parsed marketChartResponse
	if err := c.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, fmt.Errorf("failed to fetch price range for %s: %w", id, err)
	}

	points := make([]PricePoint, 0, len(parsed.Prices))
	for _, p := range parsed.Prices {
		points = append(points, PricePoint{
			At:    time.Unix(int64(p[0])/1000, 0).UTC(),
			Price: p[1],
		})
	}
	return points, nil
}

// CurrentPrices fetches the present price for a batch of asset ids.
func (c *Client) CurrentPrices(ctx context.Context, ids []string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}

	endpoint := fmt.Sprintf("%s/simple/price?vs_currencies=usd&ids=%s",
		c.baseURL, url.QueryEscape(strings.Join(ids, ",")))

	var parsed map[string]map[string]float64
	if err := c.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, fmt.Errorf("failed to fetch current prices: %w", err)
	}

	prices := make(map[string]float64, len(parsed))
	for id, quote := range parsed {
		if usd, ok := quote["usd"]; ok {
			prices[id] = usd
		}
	}
	return prices, nil
}

// getJSON performs one GET with retries. Rate limiting and transient
// server errors back off; a 404 means the asset is unlisted and is
// permanent.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	operation := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if c.apiKey != "" {
			req.Header.Set("x-cg-pro-api-key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			return struct{}{}, backoff.Permanent(ErrNoPrice)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return struct{}{}, fmt.Errorf("price API returned status %d", resp.StatusCode)
		default:
			return struct{}{}, backoff.Permanent(fmt.Errorf("price API returned status %d", resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("failed to decode price API response: %w", err))
		}
		return struct{}{}, nil
	}

	notify := func(err error, duration time.Duration) {
		c.logger.Debug("Retrying price API request",
			zap.Error(err),
			zap.Duration("backoff", duration))
	}

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = time.Second
	backoffPolicy.MaxInterval = 30 * time.Second

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoffPolicy),
		backoff.WithMaxTries(uint(c.retries)),
		backoff.WithNotify(notify))
	return err
}
