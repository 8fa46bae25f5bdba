package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Naveen-6087/sui-tma/pkg/codec"
	"github.com/Naveen-6087/sui-tma/pkg/logger"
	"github.com/Naveen-6087/sui-tma/pkg/registry"
	"github.com/Naveen-6087/sui-tma/pkg/seal"
)

const (
	apiNow    = int64(1_700_000_000_000)
	apiExpiry = apiNow + 3_600_000

	ownerAddr    = "0x1111111111111111111111111111111111111111"
	strangerAddr = "0x2222222222222222222222222222222222222222"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()

	reg := registry.New(&logger.EmptyLogger{})
	s := New(reg, 0, 1000, 1000, &logger.EmptyLogger{})
	s.now = func() int64 { return apiNow }
	return s, reg
}

func sealedPayload(t *testing.T) string {
	t.Helper()

	env := &seal.Envelope{
		Version:    1,
		Threshold:  2,
		Identity:   "enclave:0x3333333333333333333333333333333333333333",
		Ciphertext: make([]byte, 64),
	}
	b, err := env.Marshal()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(b)
}

func createBody(t *testing.T, mutate func(map[string]any)) []byte {
	t.Helper()

	body := map[string]any{
		"owner":            ownerAddr,
		"payload":          sealedPayload(t),
		"pair_fingerprint": codec.PairFingerprint("SUI/USDC").Hex(),
		"trigger_kind":     "price_below",
		"trigger_value":    9_500_000_000,
		"expires_at":       apiExpiry,
	}
	if mutate != nil {
		mutate(body)
	}
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return b
}

func doJSON(t *testing.T, s *Server, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func createIntentVia(t *testing.T, s *Server) string {
	t.Helper()

	w := doJSON(t, s, http.MethodPost, "/v1/intents", createBody(t, nil), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp createIntentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func TestCreateIntent(t *testing.T) {
	s, _ := newTestServer(t)
	id := createIntentVia(t, s)

	w := doJSON(t, s, http.MethodGet, "/v1/intents/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view intentView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "active", view.Status)
	assert.Equal(t, "price_below", view.TriggerKind)
	assert.Equal(t, int64(9_500_000_000), view.TriggerValue)
	assert.NotContains(t, w.Body.String(), "encrypted_payload")
}

func TestCreateIntentValidation(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing owner", func(m map[string]any) { delete(m, "owner") }},
		{"bad owner", func(m map[string]any) { m["owner"] = "not-an-address" }},
		{"payload not base64", func(m map[string]any) { m["payload"] = "%%%" }},
		{"payload not an envelope", func(m map[string]any) {
			m["payload"] = base64.StdEncoding.EncodeToString([]byte("junk"))
		}},
		{"bad fingerprint", func(m map[string]any) { m["pair_fingerprint"] = "0xabcd" }},
		{"unknown trigger kind", func(m map[string]any) { m["trigger_kind"] = "price_equal" }},
		{"zero trigger value", func(m map[string]any) { m["trigger_value"] = 0 }},
		{"expiry in the past", func(m map[string]any) { m["expires_at"] = apiNow - 1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, s, http.MethodPost, "/v1/intents", createBody(t, tc.mutate), nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestCancelIntent(t *testing.T) {
	s, _ := newTestServer(t)
	id := createIntentVia(t, s)

	w := doJSON(t, s, http.MethodDelete, "/v1/intents/"+id, nil,
		map[string]string{ownerHeader: ownerAddr})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, s, http.MethodGet, "/v1/intents/"+id, nil, nil)
	var view intentView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "cancelled", view.Status)
}

func TestCancelIntentAuthorization(t *testing.T) {
	s, _ := newTestServer(t)
	id := createIntentVia(t, s)

	w := doJSON(t, s, http.MethodDelete, "/v1/intents/"+id, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing owner header")

	w = doJSON(t, s, http.MethodDelete, "/v1/intents/"+id, nil,
		map[string]string{ownerHeader: strangerAddr})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The stranger's attempt must not have changed anything.
	w = doJSON(t, s, http.MethodGet, "/v1/intents/"+id, nil, nil)
	var view intentView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "active", view.Status)
}

func TestCancelCancelledIntentConflicts(t *testing.T) {
	s, _ := newTestServer(t)
	id := createIntentVia(t, s)

	headers := map[string]string{ownerHeader: ownerAddr}
	require.Equal(t, http.StatusNoContent,
		doJSON(t, s, http.MethodDelete, "/v1/intents/"+id, nil, headers).Code)
	assert.Equal(t, http.StatusConflict,
		doJSON(t, s, http.MethodDelete, "/v1/intents/"+id, nil, headers).Code)
}

func TestGetUnknownIntent(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/v1/intents/no-such-id", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListIntentsByOwner(t *testing.T) {
	s, _ := newTestServer(t)
	createIntentVia(t, s)
	createIntentVia(t, s)

	w := doJSON(t, s, http.MethodGet, "/v1/intents?owner="+ownerAddr, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Intents []intentView `json:"intents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Intents, 2)

	w = doJSON(t, s, http.MethodGet, "/v1/intents?owner="+strangerAddr, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Intents)
}

func TestStats(t *testing.T) {
	s, _ := newTestServer(t)
	createIntentVia(t, s)

	w := doJSON(t, s, http.MethodGet, "/v1/stats", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats struct {
		TotalCreated  int64 `json:"total_created"`
		ActiveCount   int64 `json:"active_count"`
		ExecutedCount int64 `json:"executed_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalCreated)
	assert.Equal(t, int64(1), stats.ActiveCount)
	assert.Zero(t, stats.ExecutedCount)
}

func TestRateLimit(t *testing.T) {
	reg := registry.New(&logger.EmptyLogger{})
	s := New(reg, 0, 1, 2, &logger.EmptyLogger{})
	s.now = func() int64 { return apiNow }

	var limited bool
	for i := 0; i < 10; i++ {
		w := doJSON(t, s, http.MethodGet, "/v1/stats", nil, nil)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			assert.Equal(t, "1", w.Header().Get("Retry-After"))
			break
		}
		require.Equal(t, http.StatusOK, w.Code, fmt.Sprintf("request %d", i))
	}
	assert.True(t, limited, "burst of 2 must trip the limiter within 10 requests")
}
