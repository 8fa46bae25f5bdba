package seal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Naveen-6087/sui-tma/pkg/logger"
)

// Gateway is the encrypt/decrypt contract the rest of the engine programs
// against. The HTTP client below is the production implementation; tests
// substitute their own.
type Gateway interface {
	// Encrypt seals plaintext to a policy identity. A returned error is
	// always ErrEncryptionUnavailable (possibly wrapped).
	Encrypt(ctx context.Context, plaintext []byte, identity string) (*Envelope, error)
	// Decrypt opens an envelope using an authorization proof. Only the
	// execution coordinator, acting as the enclave, may call this.
	Decrypt(ctx context.Context, env *Envelope, proof []byte) ([]byte, error)
}

// Client is an HTTP client for the key-server front end of the threshold
// encryption service.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

var _ Gateway = (*Client)(nil)

// NewClient creates a new encryption service client.
func NewClient(endpoint string, log logger.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: createHTTPClient(),
		logger:     log,
	}
}

type encryptRequest struct {
	Plaintext []byte `json:"plaintext"`
	Identity  string `json:"identity"`
}

type decryptRequest struct {
	Envelope *Envelope `json:"envelope"`
	Proof    []byte    `json:"proof"`
}

type decryptResponse struct {
	Plaintext []byte `json:"plaintext"`
}

// Encrypt seals plaintext to the given policy identity via the service.
func (c *Client) Encrypt(ctx context.Context, plaintext []byte, identity string) (*Envelope, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: empty policy identity", ErrEncryptionUnavailable)
	}

	body, err := json.Marshal(encryptRequest{Plaintext: plaintext, Identity: identity})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionUnavailable, err)
	}

	respBody, status, err := c.post(ctx, "/v1/encrypt", body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionUnavailable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrEncryptionUnavailable, status, respBody)
	}

	var env Envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("%w: decoding envelope: %v", ErrEncryptionUnavailable, err)
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("%w: service returned invalid envelope: %v", ErrEncryptionUnavailable, err)
	}

	c.logger.DebugWith(logger.Seal, "Encrypted %d bytes for identity %s (threshold %d)",
		len(plaintext), identity, env.Threshold)
	return &env, nil
}

// Decrypt opens an envelope with the caller's authorization proof. The
// returned plaintext must not be logged, cached, or retained beyond the
// immediate use.
func (c *Client) Decrypt(ctx context.Context, env *Envelope, proof []byte) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if len(proof) == 0 {
		return nil, fmt.Errorf("%w: missing authorization proof", ErrUnauthorized)
	}

	body, err := json.Marshal(decryptRequest{Envelope: env, Proof: proof})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	respBody, status, err := c.post(ctx, "/v1/decrypt", body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionUnavailable, err)
	}

	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: policy check rejected proof", ErrUnauthorized)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: service rejected envelope", ErrCorrupt)
	default:
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrEncryptionUnavailable, status, respBody)
	}

	var resp decryptResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrCorrupt, err)
	}
	return resp.Plaintext, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.ErrorWith(logger.Seal, "Failed to close response body: %v", err)
		}
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return respBody, resp.StatusCode, nil
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
