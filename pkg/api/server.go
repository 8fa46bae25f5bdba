// Package api exposes the intent lifecycle over HTTP. Handlers are
// transport-thin: they validate input, delegate to the registry, and
// translate registry errors into status codes. The encrypted payload is
// accepted on creation but never echoed back in responses.
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/Naveen-6087/sui-tma/pkg/logger"
	"github.com/Naveen-6087/sui-tma/pkg/models"
	"github.com/Naveen-6087/sui-tma/pkg/registry"
	"github.com/Naveen-6087/sui-tma/pkg/seal"
)

const ownerHeader = "X-Owner-Address"

// Server is the HTTP front door for intent submission and queries.
type Server struct {
	registry *registry.Registry
	logger   logger.Logger
	engine   *gin.Engine
	srv      *http.Server
	now      func() int64
}

// New builds the API server with rate limiting applied to every route.
func New(reg *registry.Registry, port int, rps float64, burst int, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(newRateLimiter(rps, burst).handler())

	s := &Server{
		registry: reg,
		logger:   log,
		engine:   engine,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
	s.routes()

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	v1 := s.engine.Group("/v1")
	v1.POST("/intents", s.createIntent)
	v1.GET("/intents/:id", s.getIntent)
	v1.DELETE("/intents/:id", s.cancelIntent)
	v1.GET("/intents", s.listIntents)
	v1.GET("/stats", s.stats)
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoWith(logger.API, "API server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

type createIntentRequest struct {
	Owner           string `json:"owner" binding:"required"`
	Payload         string `json:"payload" binding:"required"` // base64 sealed envelope
	PairFingerprint string `json:"pair_fingerprint" binding:"required"`
	TriggerKind     string `json:"trigger_kind" binding:"required,oneof=price_below price_above"`
	TriggerValue    int64  `json:"trigger_value" binding:"required,gt=0"`
	ExpiresAt       int64  `json:"expires_at" binding:"required"` // epoch millis
}

type createIntentResponse struct {
	ID string `json:"id"`
}

// intentView is the read model. It deliberately omits the encrypted
// payload.
type intentView struct {
	ID                 string `json:"id"`
	Owner              string `json:"owner"`
	PairFingerprint    string `json:"pair_fingerprint"`
	TriggerKind        string `json:"trigger_kind"`
	TriggerValue       int64  `json:"trigger_value"`
	CreatedAt          int64  `json:"created_at"`
	ExpiresAt          int64  `json:"expires_at"`
	Status             string `json:"status"`
	ExecutedAt         int64  `json:"executed_at,omitempty"`
	ExecutedPrice      int64  `json:"executed_price,omitempty"`
	ExecutionReference string `json:"execution_reference,omitempty"`
	FailureReason      string `json:"failure_reason,omitempty"`
}

func viewOf(in models.Intent) intentView {
	return intentView{
		ID:                 in.ID,
		Owner:              in.Owner.Hex(),
		PairFingerprint:    in.PairFingerprint.Hex(),
		TriggerKind:        in.TriggerKind.String(),
		TriggerValue:       in.TriggerValue,
		CreatedAt:          in.CreatedAt,
		ExpiresAt:          in.ExpiresAt,
		Status:             string(in.Status),
		ExecutedAt:         in.ExecutedAt,
		ExecutedPrice:      in.ExecutedPrice,
		ExecutionReference: in.ExecutionReference,
		FailureReason:      in.FailureReason,
	}
}

func (s *Server) createIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if !common.IsHexAddress(req.Owner) {
		fail(c, http.StatusBadRequest, "bad_request", "owner must be a hex address")
		return
	}
	owner := common.HexToAddress(req.Owner)

	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		fail(c, http.StatusBadRequest, "bad_request", "payload must be base64")
		return
	}
	// Structural check only. The payload stays opaque until an enclave
	// claims the intent.
	if _, err := seal.ParseEnvelope(payload); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", "payload is not a sealed envelope")
		return
	}

	fp, err := models.ParseFingerprint(req.PairFingerprint)
	if err != nil {
		fail(c, http.StatusBadRequest, "bad_request", "pair_fingerprint must be 32 bytes of hex")
		return
	}

	kind, err := parseTriggerKind(req.TriggerKind)
	if err != nil {
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	id, err := s.registry.Create(owner, payload, kind, req.TriggerValue, fp, req.ExpiresAt, s.now())
	if err != nil {
		s.registryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createIntentResponse{ID: id})
}

func (s *Server) getIntent(c *gin.Context) {
	intent, err := s.registry.Get(c.Param("id"), s.now())
	if err != nil {
		s.registryError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(intent))
}

func (s *Server) cancelIntent(c *gin.Context) {
	caller := c.GetHeader(ownerHeader)
	if !common.IsHexAddress(caller) {
		fail(c, http.StatusBadRequest, "bad_request", ownerHeader+" header must be a hex address")
		return
	}

	if err := s.registry.Cancel(c.Param("id"), common.HexToAddress(caller), s.now()); err != nil {
		s.registryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listIntents(c *gin.Context) {
	owner := c.Query("owner")
	if !common.IsHexAddress(owner) {
		fail(c, http.StatusBadRequest, "bad_request", "owner query parameter must be a hex address")
		return
	}

	intents := s.registry.ListByOwner(common.HexToAddress(owner), s.now())
	views := make([]intentView, 0, len(intents))
	for _, in := range intents {
		views = append(views, viewOf(in))
	}
	c.JSON(http.StatusOK, gin.H{"intents": views})
}

func (s *Server) stats(c *gin.Context) {
	st := s.registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"total_created":  st.TotalCreated,
		"active_count":   st.ActiveCount,
		"executed_count": st.ExecutedCount,
	})
}

func (s *Server) registryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		fail(c, http.StatusNotFound, "not_found", "intent not found")
	case errors.Is(err, registry.ErrNotOwner):
		fail(c, http.StatusForbidden, "forbidden", "caller does not own this intent")
	case errors.Is(err, registry.ErrInvalidState):
		fail(c, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, registry.ErrInvalidExpiry),
		errors.Is(err, registry.ErrInvalidTrigger),
		errors.Is(err, registry.ErrEmptyPayload):
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
	default:
		s.logger.ErrorWith(logger.API, "Unhandled registry error: %v", err)
		fail(c, http.StatusInternalServerError, "internal", "internal error")
	}
}

func parseTriggerKind(s string) (models.TriggerKind, error) {
	switch s {
	case "price_below":
		return models.PriceBelow, nil
	case "price_above":
		return models.PriceAbove, nil
	}
	return 0, fmt.Errorf("trigger_kind must be price_below or price_above")
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}
