// Package rates merges two independent currency-rate feeds into a single
// lookup table and computes cross-rates between arbitrary currencies.
//
// The table is denominated in the home currency (1 unit of foreign currency
// = table[code] units of home currency). A broad global feed seeds the table
// so uncommon currencies are covered; a sparser but more accurate regional
// bank feed then overwrites every currency it reports. Precedence is a
// single rightmost-wins merge, kept separate from the fetch logic.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Default configuration values.
const (
	defaultHomeCurrency = "TWD"
	defaultCacheTTL     = 10 * time.Minute
	defaultTimeout      = 15 * time.Second

	// Regional feed column layout: currency code, then rate columns where
	// index 12 is the spot sell rate and index 2 the cash sell fallback.
	regionalCodeColumn     = 0
	regionalPrimaryColumn  = 12
	regionalFallbackColumn = 2
	regionalMinColumns     = 13
)

// ErrUnknownCurrency is returned when a cross-rate involves a currency that
// neither feed reported. Callers are expected to keep whatever rate estimate
// they already have.
var ErrUnknownCurrency = errors.New("currency not present in rate table")

// Config holds reconciler configuration.
type Config struct {
	HomeCurrency    string        `koanf:"home_currency"`
	GlobalFeedURL   string        `koanf:"global_feed_url"`
	RegionalFeedURL string        `koanf:"regional_feed_url"`
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	Timeout         time.Duration `koanf:"timeout"`
}

// Reconciler fetches and merges the two rate feeds, caching the merged
// table for CacheTTL.
type Reconciler struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	mu        sync.Mutex
	table     map[string]float64
	fetchedAt time.Time
}

// New creates a Reconciler. Zero config fields fall back to defaults.
func New(cfg Config, logger *zap.Logger) *Reconciler {
	if cfg.HomeCurrency == "" {
		cfg.HomeCurrency = defaultHomeCurrency
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Reconcile returns the cross-rate between source and target: how many units
// of target one unit of source buys. Partial feed failure degrades coverage
// but never fails the call outright; only a currency absent from the merged
// table does.
func (r *Reconciler) Reconcile(ctx context.Context, source, target string) (float64, error) {
	table, err := r.Table(ctx)
	if err != nil {
		return 0, err
	}

	src, ok := table[source]
	if !ok || src <= 0 {
		return 0, fmt.Errorf("source %s: %w", source, ErrUnknownCurrency)
	}
	dst, ok := table[target]
	if !ok || dst <= 0 {
		return 0, fmt.Errorf("target %s: %w", target, ErrUnknownCurrency)
	}

	return src / dst, nil
}

// Table returns a copy of the merged currency table, refreshing it from both
// feeds when the cached copy has expired.
func (r *Reconciler) Table(ctx context.Context) (map[string]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.table == nil || time.Since(r.fetchedAt) > r.cfg.CacheTTL {
		table := r.fetchMerged(ctx)
		r.table = table
		r.fetchedAt = time.Now()
	}

	out := make(map[string]float64, len(r.table))
	for code, rate := range r.table {
		out[code] = rate
	}
	return out, nil
}

// HomeCurrency returns the pivot currency both feeds are quoted against.
func (r *Reconciler) HomeCurrency() string {
	return r.cfg.HomeCurrency
}

// FetchedAt reports when the cached table was last refreshed.
func (r *Reconciler) FetchedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetchedAt
}

// fetchMerged runs both feed fetches in parallel and merges the results.
// The two fetches are independent: failure of either is logged and skipped,
// never cancelling the other.
func (r *Reconciler) fetchMerged(ctx context.Context) map[string]float64 {
	var (
		global   map[string]float64
		regional map[string]float64
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := r.fetchGlobal(ctx)
		if err != nil {
			r.logger.Warn("global rate feed failed", zap.Error(err))
			return nil
		}
		global = m
		return nil
	})
	g.Go(func() error {
		m, err := r.fetchRegional(ctx)
		if err != nil {
			r.logger.Warn("regional rate feed failed", zap.Error(err))
			return nil
		}
		regional = m
		return nil
	})
	_ = g.Wait()

	table := map[string]float64{r.cfg.HomeCurrency: 1.0}
	table = merge(table, global)
	table = merge(table, regional)

	r.logger.Info("rate table refreshed",
		zap.Int("global_entries", len(global)),
		zap.Int("regional_entries", len(regional)),
		zap.Int("merged_entries", len(table)))

	return table
}

// merge overlays override onto base, rightmost wins. base is mutated and
// returned for chaining.
func merge(base, override map[string]float64) map[string]float64 {
	for code, rate := range override {
		base[code] = rate
	}
	return base
}

// globalFeedResponse is the JSON body of the global baseline feed, quoted as
// 1 unit of home currency = rate units of foreign currency.
type globalFeedResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// fetchGlobal loads the global baseline feed and inverts each quote into
// home-currency terms, skipping non-positive quotes.
func (r *Reconciler) fetchGlobal(ctx context.Context) (map[string]float64, error) {
	body, err := r.get(ctx, r.cfg.GlobalFeedURL)
	if err != nil {
		return nil, err
	}

	var feed globalFeedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse global feed: %w", err)
	}

	out := make(map[string]float64, len(feed.Rates))
	for code, quote := range feed.Rates {
		if quote > 0 {
			out[code] = 1 / quote
		}
	}
	return out, nil
}

// fetchRegional loads the regional bank feed, a comma-delimited text file
// with one currency per line. The primary sell-rate column is preferred; the
// fallback column is used when the primary is missing or zero.
func (r *Reconciler) fetchRegional(ctx context.Context) (map[string]float64, error) {
	body, err := r.get(ctx, r.cfg.RegionalFeedURL)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, line := range strings.Split(string(body), "\n") {
		cols := strings.Split(line, ",")
		if len(cols) < regionalMinColumns {
			continue
		}
		code := strings.TrimSpace(cols[regionalCodeColumn])
		if code == "" {
			continue
		}

		rate, err := strconv.ParseFloat(strings.TrimSpace(cols[regionalPrimaryColumn]), 64)
		if err != nil || rate == 0 {
			rate, err = strconv.ParseFloat(strings.TrimSpace(cols[regionalFallbackColumn]), 64)
		}
		if err == nil && rate > 0 {
			out[code] = rate
		}
	}
	return out, nil
}

func (r *Reconciler) get(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("feed URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
