// Package license answers the single question the rest of the application
// asks about identity: is this user entitled? Verification tries, in order,
// one-shot code redemption, the locally synced roster of verified emails,
// and a remedial lookup against the merchant's sales API.
package license

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bingyoan/SAUSEGE/internal/localstore"
)

const (
	keyCodes  = "license_codes"
	keyRoster = "verified_emails"

	defaultTimeout = 10 * time.Second
)

// Result is the verification outcome, consumed by callers only as a boolean
// gate plus a display message.
type Result struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

// Config holds verifier configuration.
type Config struct {
	SalesAPIURL string        `koanf:"sales_api_url"`
	SalesToken  string        `koanf:"sales_token"`
	Timeout     time.Duration `koanf:"timeout"`
}

// Verifier checks entitlement against local state and the merchant API.
type Verifier struct {
	cfg        Config
	kv         *localstore.Store
	httpClient *http.Client
	logger     *zap.Logger
}

// NewVerifier creates a Verifier backed by the given key→value store.
func NewVerifier(cfg Config, kv *localstore.Store, logger *zap.Logger) *Verifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		cfg:        cfg,
		kv:         kv,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// codeEntry is one physical license code. Codes are single use.
type codeEntry struct {
	Code      string `json:"code"`
	Used      bool   `json:"is_used"`
	UsedBy    string `json:"used_by_email,omitempty"`
	GrantedAt int64  `json:"granted_at,omitempty"`
}

// Verify checks entitlement for email, optionally redeeming a physical
// code. Email is normalized to lowercase, codes to uppercase.
func (v *Verifier) Verify(ctx context.Context, email, code string) (Result, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.ToUpper(strings.TrimSpace(code))
	if email == "" {
		return Result{}, fmt.Errorf("email is required")
	}

	if code != "" {
		return v.redeemCode(email, code), nil
	}

	if v.onRoster(email) {
		return Result{Verified: true, Message: "Verified from local roster"}, nil
	}

	if v.cfg.SalesAPIURL != "" && v.cfg.SalesToken != "" {
		if found, err := v.lookupSales(ctx, email); err != nil {
			v.logger.Warn("sales API lookup failed", zap.Error(err))
		} else if found {
			v.addToRoster(email)
			return Result{Verified: true, Message: "Pro verified (synced from sales records)"}, nil
		}
	}

	return Result{Verified: false, Message: "No active license found."}, nil
}

// redeemCode burns an unused code and adds the email to the roster.
func (v *Verifier) redeemCode(email, code string) Result {
	codes := v.loadCodes()
	for i, entry := range codes {
		if entry.Code != code || entry.Used {
			continue
		}
		codes[i].Used = true
		codes[i].UsedBy = email
		codes[i].GrantedAt = time.Now().Unix()
		v.saveCodes(codes)
		v.addToRoster(email)
		return Result{Verified: true, Message: "Code Activated! Welcome Pro User."}
	}
	return Result{Verified: false, Message: "Invalid or Used Code"}
}

func (v *Verifier) onRoster(email string) bool {
	for _, e := range v.loadRoster() {
		if e == email {
			return true
		}
	}
	return false
}

func (v *Verifier) addToRoster(email string) {
	roster := v.loadRoster()
	for _, e := range roster {
		if e == email {
			return
		}
	}
	roster = append(roster, email)
	if blob, err := json.Marshal(roster); err == nil {
		if err := v.kv.Set(keyRoster, string(blob)); err != nil {
			v.logger.Warn("failed to persist roster", zap.Error(err))
		}
	}
}

func (v *Verifier) loadRoster() []string {
	var roster []string
	if raw := v.kv.Get(keyRoster); raw != "" {
		if err := json.Unmarshal([]byte(raw), &roster); err != nil {
			v.logger.Warn("discarding corrupt roster", zap.Error(err))
			return nil
		}
	}
	return roster
}

func (v *Verifier) loadCodes() []codeEntry {
	var codes []codeEntry
	if raw := v.kv.Get(keyCodes); raw != "" {
		if err := json.Unmarshal([]byte(raw), &codes); err != nil {
			v.logger.Warn("discarding corrupt code table", zap.Error(err))
			return nil
		}
	}
	return codes
}

func (v *Verifier) saveCodes(codes []codeEntry) {
	if blob, err := json.Marshal(codes); err == nil {
		if err := v.kv.Set(keyCodes, string(blob)); err != nil {
			v.logger.Warn("failed to persist code table", zap.Error(err))
		}
	}
}

// SeedCodes installs unused license codes, skipping duplicates. Intended for
// operator tooling and tests.
func (v *Verifier) SeedCodes(codes []string) {
	existing := v.loadCodes()
	known := make(map[string]bool, len(existing))
	for _, e := range existing {
		known[e.Code] = true
	}
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || known[c] {
			continue
		}
		existing = append(existing, codeEntry{Code: c})
		known[c] = true
	}
	v.saveCodes(existing)
}

// salesResponse is the merchant sales API reply shape.
type salesResponse struct {
	Success bool             `json:"success"`
	Sales   []map[string]any `json:"sales"`
}

// lookupSales queries the merchant sales API for a purchase under email.
func (v *Verifier) lookupSales(ctx context.Context, email string) (bool, error) {
	u := fmt.Sprintf("%s?email=%s&access_token=%s",
		v.cfg.SalesAPIURL, url.QueryEscape(email), url.QueryEscape(v.cfg.SalesToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("sales API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("sales API status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read sales response: %w", err)
	}

	var sales salesResponse
	if err := json.Unmarshal(body, &sales); err != nil {
		return false, fmt.Errorf("parse sales response: %w", err)
	}

	return sales.Success && len(sales.Sales) > 0, nil
}
