// Package extraction turns normalized menu photos into a structured,
// translated menu by calling a vision generation service under a strict
// response schema, retrying transient upstream failures with bounded
// exponential backoff.
package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bingyoan/SAUSEGE/internal/menu"
)

// Default configuration values.
const (
	defaultModel       = "gemini-2.5-flash"
	defaultTimeout     = 90 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second

	// defaultCategory buckets items the model returned without a category.
	defaultCategory = "General"

	apiKeyHeader = "X-Custom-API-Key"
)

// Rate limiter defaults: 30 requests per minute.
const (
	defaultRateLimit = 30.0 / 60.0
	defaultBurst     = 3
)

// RateSource supplies a reconciled cross-rate between two currencies. The
// extraction client uses it to override the exchange rate the model guessed;
// the guess survives only when reconciliation fails.
type RateSource interface {
	Reconcile(ctx context.Context, source, target string) (float64, error)
}

// Config holds extraction client configuration.
type Config struct {
	BaseURL     string        `koanf:"base_url"`
	Model       string        `koanf:"model"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxRetries  int           `koanf:"max_retries"`
	BaseBackoff time.Duration `koanf:"base_backoff"`
	Handwriting bool          `koanf:"handwriting"`
}

// Client calls the generation proxy with a bring-your-own credential.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	rates      RateSource
	logger     *zap.Logger
}

// NewClient creates an extraction client. rates may be nil, in which case
// the model's exchange-rate estimate is used as-is.
func NewClient(cfg Config, rates RateSource, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("extraction base URL required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		rates:      rates,
		logger:     logger,
	}, nil
}

// generateRequest is the wire format of the generation proxy.
type generateRequest struct {
	Model    string          `json:"model"`
	Contents requestContents `json:"contents"`
	Config   requestConfig   `json:"config"`
}

type requestContents struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type requestConfig struct {
	ResponseMimeType  string  `json:"responseMimeType,omitempty"`
	ResponseSchema    *Schema `json:"responseSchema,omitempty"`
	SystemInstruction string  `json:"systemInstruction,omitempty"`
}

// generateResponse is the proxy's reply: the model output as a JSON string
// plus token accounting.
type generateResponse struct {
	Text          string           `json:"text"`
	UsageMetadata *menu.TokenUsage `json:"usageMetadata,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Extract sends the normalized images and target language to the generation
// service and returns a validated MenuData. Transient upstream failures are
// retried sequentially with exponential backoff up to the configured
// ceiling; schema mismatches surface immediately without a retry.
func (c *Client) Extract(ctx context.Context, apiKey string, images [][]byte, targetLang menu.TargetLanguage) (menu.MenuData, error) {
	if strings.TrimSpace(apiKey) == "" {
		return menu.MenuData{}, &AuthError{Message: "API key missing"}
	}
	if len(images) == 0 {
		return menu.MenuData{}, &ValidationError{Message: "no images to extract from"}
	}

	parts := make([]requestPart, 0, len(images)+1)
	parts = append(parts, requestPart{Text: buildPrompt(len(images), targetLang, c.cfg.Handwriting)})
	for _, img := range images {
		parts = append(parts, requestPart{InlineData: &inlineData{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(img),
		}})
	}

	req := generateRequest{
		Model:    c.cfg.Model,
		Contents: requestContents{Parts: parts},
		Config: requestConfig{
			ResponseMimeType:  "application/json",
			ResponseSchema:    menuSchema,
			SystemInstruction: systemInstruction,
		},
	}

	resp, err := c.doWithRetry(ctx, apiKey, "/api/v1/generate", req)
	if err != nil {
		return menu.MenuData{}, err
	}

	data, err := c.buildMenuData(ctx, resp, targetLang)
	if err != nil {
		return menu.MenuData{}, err
	}

	c.logger.Info("menu extracted",
		zap.Int("items", len(data.Items)),
		zap.String("currency", data.OriginalCurrency),
		zap.String("language", data.DetectedLanguage))

	return data, nil
}

// ExplainDish asks the generation service for a short, plain-text
// description of a dish in the target language. Failures degrade to a
// generic message rather than an error; an explanation is cosmetic.
func (c *Client) ExplainDish(ctx context.Context, apiKey, dishName, originalLang string, targetLang menu.TargetLanguage) string {
	if strings.TrimSpace(apiKey) == "" {
		return "Unable to get explanation right now."
	}

	req := generateRequest{
		Model: c.cfg.Model,
		Contents: requestContents{Parts: []requestPart{{
			Text: fmt.Sprintf("Explain this dish: %s in %s. The original language is %s. Be concise.",
				dishName, targetLang, originalLang),
		}}},
		Config: requestConfig{
			SystemInstruction: "You are a food expert. Provide helpful dish explanations.",
		},
	}

	resp, err := c.doRequest(ctx, apiKey, "/api/v1/generate", req)
	if err != nil || resp.Text == "" {
		c.logger.Warn("dish explanation failed", zap.Error(err))
		return "Unable to get explanation right now."
	}
	return resp.Text
}

// doWithRetry runs doRequest under the bounded retry policy. Retries are
// strictly sequential: each waits for the prior attempt's full resolution
// and then for the backoff delay before firing.
func (c *Client) doWithRetry(ctx context.Context, apiKey, path string, req generateRequest) (generateResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.BaseBackoff * time.Duration(1<<(attempt-1))
			c.logger.Warn("retrying extraction request",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return generateResponse{}, &NetworkError{Err: ctx.Err()}
			}
		}

		resp, err := c.doRequest(ctx, apiKey, path, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return generateResponse{}, err
		}
	}

	return generateResponse{}, lastErr
}

// doRequest performs one HTTP round trip against the generation proxy and
// classifies the outcome into the error taxonomy.
func (c *Client) doRequest(ctx context.Context, apiKey, path string, req generateRequest) (generateResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return generateResponse{}, &NetworkError{Err: err}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return generateResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return generateResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(apiKeyHeader, apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generateResponse{}, &NetworkError{Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateResponse{}, &NetworkError{Err: err}
	}

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return generateResponse{}, &AuthError{Message: upstreamMessage(respBody, "invalid API key")}
	case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode == http.StatusServiceUnavailable:
		return generateResponse{}, &QuotaError{
			StatusCode: httpResp.StatusCode,
			Message:    upstreamMessage(respBody, "service temporarily unavailable"),
		}
	case httpResp.StatusCode >= 500:
		return generateResponse{}, &NetworkError{
			Err: fmt.Errorf("server error (%d): %s", httpResp.StatusCode, upstreamMessage(respBody, "")),
		}
	case httpResp.StatusCode != http.StatusOK:
		return generateResponse{}, &ValidationError{
			Message: fmt.Sprintf("unexpected status %d: %s", httpResp.StatusCode, upstreamMessage(respBody, "")),
		}
	}

	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return generateResponse{}, &ValidationError{Message: fmt.Sprintf("malformed envelope: %v", err)}
	}
	return resp, nil
}

// upstreamMessage pulls the error field out of an upstream reply, falling
// back to the raw body or a fixed message.
func upstreamMessage(body []byte, fallback string) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return er.Error
	}
	if len(body) > 0 {
		return string(body)
	}
	return fallback
}
