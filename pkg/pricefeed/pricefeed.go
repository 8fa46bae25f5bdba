// Package pricefeed provides the market data client consumed by the trigger
// monitor. Prices are 1e8 fixed-point integers and are fetched in one batched
// request per monitor cycle.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"encoding/json"

	"github.com/Naveen-6087/sui-tma/pkg/logger"
)

// ErrUnavailable means the feed could not supply prices this cycle. The
// monitor skips the cycle; it never invents a price.
var ErrUnavailable = errors.New("price feed unavailable")

// Feed supplies current prices for trading pairs, batchable by pair.
type Feed interface {
	// GetPrices returns the current price for each requested pair. Pairs the
	// feed does not know are absent from the result rather than an error.
	GetPrices(ctx context.Context, pairs []string) (map[string]int64, error)
}

// Client is an HTTP implementation of Feed.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

var _ Feed = (*Client)(nil)

// NewClient creates a new price feed client.
func NewClient(endpoint string, log logger.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: createHTTPClient(),
		logger:     log,
	}
}

type pricesResponse struct {
	Prices map[string]int64 `json:"prices"`
}

// GetPrices fetches prices for all pairs in a single request.
func (c *Client) GetPrices(ctx context.Context, pairs []string) (map[string]int64, error) {
	if len(pairs) == 0 {
		return map[string]int64{}, nil
	}

	reqURL := c.endpoint + "/v1/prices?pairs=" + url.QueryEscape(strings.Join(pairs, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.ErrorWith(logger.Monitor, "Failed to close response body: %v", err)
		}
	}(resp.Body)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrUnavailable, resp.StatusCode, bodyBytes)
	}

	var parsed pricesResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if parsed.Prices == nil {
		return map[string]int64{}, nil
	}
	return parsed.Prices, nil
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
