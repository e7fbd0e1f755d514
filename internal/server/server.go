// Package server provides the sausaged HTTP API: a thin authenticated
// proxy in front of the vision generation backend, plus exchange-rate
// and license endpoints for clients.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bingyoan/SAUSEGE/internal/license"
	"github.com/bingyoan/SAUSEGE/internal/menu"
	"github.com/bingyoan/SAUSEGE/internal/rates"
)

const (
	apiKeyHeader = "X-Custom-API-Key"

	// Credential keys issued by the vision backend carry this prefix.
	apiKeyPrefix = "AIza"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// UpstreamBaseURL is the vision backend generate requests are
	// forwarded to.
	UpstreamBaseURL string
	UpstreamTimeout time.Duration
}

// Server provides the HTTP endpoints for sausaged.
type Server struct {
	echo     *echo.Echo
	logger   *zap.Logger
	config   Config
	rates    *rates.Reconciler
	verifier *license.Verifier
	metrics  *Metrics
	upstream *http.Client
}

// NewServer creates an HTTP server. rates and verifier may not be nil.
func NewServer(cfg Config, reconciler *rates.Reconciler, verifier *license.Verifier, logger *zap.Logger) (*Server, error) {
	if reconciler == nil {
		return nil, fmt.Errorf("rate reconciler is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("license verifier is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8787
	}
	if cfg.UpstreamBaseURL == "" {
		return nil, fmt.Errorf("upstream base URL is required")
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 90 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	m := NewMetrics()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(m.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		logger:   logger,
		config:   cfg,
		rates:    reconciler,
		verifier: verifier,
		metrics:  m,
		upstream: &http.Client{Timeout: cfg.UpstreamTimeout},
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/generate", s.handleGenerate)
	v1.GET("/rates", s.handleRates)
	v1.POST("/verify-email", s.handleVerifyEmail)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// generateRequest is the client-facing wire format for POST /api/v1/generate.
// Parts and the response schema pass through to the backend untouched.
type generateRequest struct {
	Model    string `json:"model"`
	Contents struct {
		Parts []json.RawMessage `json:"parts"`
	} `json:"contents"`
	Config struct {
		ResponseMimeType  string          `json:"responseMimeType"`
		ResponseSchema    json.RawMessage `json:"responseSchema"`
		SystemInstruction string          `json:"systemInstruction"`
	} `json:"config"`
}

// generateResponse flattens the backend's reply to the model text plus
// token accounting.
type generateResponse struct {
	Text          string           `json:"text"`
	UsageMetadata *menu.TokenUsage `json:"usageMetadata,omitempty"`
}

// Wire format of the vision backend's generateContent endpoint.
type upstreamRequest struct {
	Contents          []upstreamContent  `json:"contents"`
	GenerationConfig  *upstreamGenConfig `json:"generationConfig,omitempty"`
	SystemInstruction *upstreamContent   `json:"systemInstruction,omitempty"`
}

type upstreamContent struct {
	Parts []json.RawMessage `json:"parts"`
}

type upstreamGenConfig struct {
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type upstreamResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *menu.TokenUsage `json:"usageMetadata,omitempty"`
	Error         *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// handleGenerate validates the caller's credential and forwards the
// generation request to the vision backend. The credential travels only
// in headers and is never logged.
func (s *Server) handleGenerate(c echo.Context) error {
	apiKey := strings.TrimSpace(c.Request().Header.Get(apiKeyHeader))
	if apiKey == "" {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "API key required"})
	}
	if !strings.HasPrefix(apiKey, apiKeyPrefix) {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid API key format"})
	}

	var req generateRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid generate request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if len(req.Contents.Parts) == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "contents.parts is required"})
	}
	if req.Model == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "model is required"})
	}

	upReq := upstreamRequest{
		Contents: []upstreamContent{{Parts: req.Contents.Parts}},
	}
	if req.Config.ResponseMimeType != "" || len(req.Config.ResponseSchema) > 0 {
		upReq.GenerationConfig = &upstreamGenConfig{
			ResponseMimeType: req.Config.ResponseMimeType,
			ResponseSchema:   req.Config.ResponseSchema,
		}
	}
	if req.Config.SystemInstruction != "" {
		text, err := json.Marshal(map[string]string{"text": req.Config.SystemInstruction})
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to encode request"})
		}
		upReq.SystemInstruction = &upstreamContent{Parts: []json.RawMessage{text}}
	}

	body, err := json.Marshal(upReq)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to encode request"})
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", s.config.UpstreamBaseURL, req.Model)
	upHTTPReq, err := http.NewRequestWithContext(c.Request().Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to build upstream request"})
	}
	upHTTPReq.Header.Set("Content-Type", "application/json")
	upHTTPReq.Header.Set("x-goog-api-key", apiKey)

	upResp, err := s.upstream.Do(upHTTPReq)
	if err != nil {
		s.logger.Error("upstream request failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "generation backend unreachable"})
	}
	defer upResp.Body.Close()

	respBody, err := io.ReadAll(upResp.Body)
	if err != nil {
		s.logger.Error("upstream response read failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "generation backend unreachable"})
	}

	var parsed upstreamResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil && upResp.StatusCode == http.StatusOK {
		s.logger.Error("upstream response malformed", zap.Int("status", upResp.StatusCode))
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "malformed backend response"})
	}

	if upResp.StatusCode != http.StatusOK {
		msg := "generation failed"
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		status := relayStatus(upResp.StatusCode)
		s.logger.Warn("upstream rejected request",
			zap.Int("upstream_status", upResp.StatusCode),
			zap.Int("status", status))
		return c.JSON(status, errorResponse{Error: msg})
	}

	var text strings.Builder
	for _, cand := range parsed.Candidates {
		for _, part := range cand.Content.Parts {
			text.WriteString(part.Text)
		}
		break // only the first candidate is requested
	}

	return c.JSON(http.StatusOK, generateResponse{
		Text:          text.String(),
		UsageMetadata: parsed.UsageMetadata,
	})
}

// relayStatus maps an upstream status onto the proxy's client contract:
// auth and throttling statuses pass through, everything else collapses
// to a retryable server error.
func relayStatus(upstream int) int {
	switch upstream {
	case http.StatusUnauthorized, http.StatusForbidden,
		http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return upstream
	case http.StatusBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// RatesResponse is the response body for GET /api/v1/rates.
type RatesResponse struct {
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	FetchedAt time.Time          `json:"fetched_at"`
}

func (s *Server) handleRates(c echo.Context) error {
	table, err := s.rates.Table(c.Request().Context())
	if err != nil {
		s.logger.Error("rate table fetch failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "rate feeds unavailable"})
	}

	return c.JSON(http.StatusOK, RatesResponse{
		Base:      s.rates.HomeCurrency(),
		Rates:     table,
		FetchedAt: s.rates.FetchedAt(),
	})
}

// VerifyEmailRequest is the request body for POST /api/v1/verify-email.
type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code,omitempty"`
}

// VerifyEmailResponse is the response body for POST /api/v1/verify-email.
type VerifyEmailResponse struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

func (s *Server) handleVerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "email is required"})
	}

	result, err := s.verifier.Verify(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		s.logger.Error("license verification failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "license service unavailable"})
	}

	return c.JSON(http.StatusOK, VerifyEmailResponse{
		Verified: result.Verified,
		Message:  result.Message,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
