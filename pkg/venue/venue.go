// Package venue wraps the DEX execution venue: given decrypted order
// parameters and a reference price, it submits the trade and reports the
// fill. The engine never retries a failed submission here; a failure is
// finalized as a terminal intent state by the coordinator.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Naveen-6087/sui-tma/pkg/logger"
	"github.com/Naveen-6087/sui-tma/pkg/metrics"
	"github.com/Naveen-6087/sui-tma/pkg/models"
)

// ErrVenue wraps any rejection or infrastructure failure from the venue.
var ErrVenue = errors.New("venue submission failed")

// Fill is a successful trade result.
type Fill struct {
	FilledPrice int64  `json:"filled_price"` // 1e8 fixed-point
	Reference   string `json:"reference"`    // settlement transaction digest
}

// Venue submits trades built from decrypted intent parameters.
type Venue interface {
	// SubmitTrade executes the order. referencePrice anchors the slippage
	// check: the venue rejects fills further than the order's slippage
	// tolerance from it.
	SubmitTrade(ctx context.Context, order models.OrderFields, referencePrice int64) (Fill, error)
}

// Client is an HTTP implementation of Venue.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

var _ Venue = (*Client)(nil)

// NewClient creates a new venue client.
func NewClient(endpoint string, log logger.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: createHTTPClient(),
		logger:     log,
	}
}

type submitRequest struct {
	Pair           string `json:"pair"`
	Side           string `json:"side"`
	OrderType      string `json:"order_type"`
	Quantity       int64  `json:"quantity"`
	Leverage       uint8  `json:"leverage"`
	SlippageBps    uint16 `json:"slippage_bps"`
	ReferencePrice int64  `json:"reference_price"`
}

type submitError struct {
	Error string `json:"error"`
}

// SubmitTrade submits the order and waits for the fill result.
func (c *Client) SubmitTrade(ctx context.Context, order models.OrderFields, referencePrice int64) (Fill, error) {
	body, err := json.Marshal(submitRequest{
		Pair:           order.Pair,
		Side:           order.Side.String(),
		OrderType:      order.OrderType.String(),
		Quantity:       order.Quantity,
		Leverage:       order.Leverage,
		SlippageBps:    order.SlippageBps,
		ReferencePrice: referencePrice,
	})
	if err != nil {
		return Fill{}, fmt.Errorf("%w: %v", ErrVenue, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/trades", bytes.NewReader(body))
	if err != nil {
		return Fill{}, fmt.Errorf("%w: %v", ErrVenue, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.VenueSubmissions.WithLabelValues("network_error").Inc()
		return Fill{}, fmt.Errorf("%w: %v", ErrVenue, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.ErrorWith(logger.Venue, "Failed to close response body: %v", err)
		}
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.VenueSubmissions.WithLabelValues("network_error").Inc()
		return Fill{}, fmt.Errorf("%w: reading response: %v", ErrVenue, err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.VenueSubmissions.WithLabelValues("rejected").Inc()
		var ve submitError
		if json.Unmarshal(respBody, &ve) == nil && ve.Error != "" {
			return Fill{}, fmt.Errorf("%w: %s", ErrVenue, ve.Error)
		}
		return Fill{}, fmt.Errorf("%w: status %d, body: %s", ErrVenue, resp.StatusCode, respBody)
	}

	var fill Fill
	if err := json.Unmarshal(respBody, &fill); err != nil {
		metrics.VenueSubmissions.WithLabelValues("bad_response").Inc()
		return Fill{}, fmt.Errorf("%w: decoding fill: %v", ErrVenue, err)
	}
	if fill.Reference == "" {
		metrics.VenueSubmissions.WithLabelValues("bad_response").Inc()
		return Fill{}, fmt.Errorf("%w: fill missing settlement reference", ErrVenue)
	}

	metrics.VenueSubmissions.WithLabelValues("filled").Inc()
	c.logger.InfoWith(logger.Venue, "Filled %s %s %d @ %d (ref %s)",
		order.Side, order.Pair, order.Quantity, fill.FilledPrice, fill.Reference)
	return fill, nil
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
