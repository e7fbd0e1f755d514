package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client reconciles cross-rates through a running sausaged daemon instead
// of hitting the feeds directly. It satisfies the same Reconcile contract
// as the in-process Reconciler.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewRatesClient creates a daemon-backed rate source.
func NewRatesClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ratesReply mirrors the daemon's rates endpoint body.
type ratesReply struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// Reconcile returns how many units of target one unit of source buys,
// derived from the daemon's merged table.
func (c *Client) Reconcile(ctx context.Context, source, target string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/rates", nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rates request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rates endpoint status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read rates response: %w", err)
	}

	var reply ratesReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return 0, fmt.Errorf("parse rates response: %w", err)
	}

	src, ok := reply.Rates[source]
	if !ok || src <= 0 {
		return 0, fmt.Errorf("source %s: %w", source, ErrUnknownCurrency)
	}
	dst, ok := reply.Rates[target]
	if !ok || dst <= 0 {
		return 0, fmt.Errorf("target %s: %w", target, ErrUnknownCurrency)
	}

	return src / dst, nil
}
