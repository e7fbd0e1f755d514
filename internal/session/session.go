package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bingyoan/SAUSEGE/internal/geo"
	"github.com/bingyoan/SAUSEGE/internal/history"
	"github.com/bingyoan/SAUSEGE/internal/imaging"
	"github.com/bingyoan/SAUSEGE/internal/localstore"
	"github.com/bingyoan/SAUSEGE/internal/menu"
)

// defaultLocateTimeout bounds best-effort geolocation acquisition so a slow
// fix never delays the transition into processing.
const defaultLocateTimeout = 5 * time.Second

// ErrNoCredential refuses a submission without a stored API key.
var ErrNoCredential = errors.New("API key missing")

// ErrOffline refuses a submission when the network is unreachable.
var ErrOffline = errors.New("network unreachable")

// Extractor is the extraction pipeline dependency.
type Extractor interface {
	Extract(ctx context.Context, apiKey string, images [][]byte, targetLang menu.TargetLanguage) (menu.MenuData, error)
}

// Normalizer prepares a raw photo batch for transmission.
type Normalizer func(raws [][]byte) ([][]byte, error)

// OnlineProbe reports whether the network is reachable.
type OnlineProbe func(ctx context.Context) bool

// Config wires the session's collaborators.
type Config struct {
	Extractor  Extractor
	History    *history.Store
	KV         *localstore.Store
	Geo        geo.Provider
	Online     OnlineProbe
	Normalize  Normalizer
	TargetLang menu.TargetLanguage
	Logger     *zap.Logger
}

// Session owns one user's application state and executes the effects the
// state machine declares. All methods are safe for use from a single UI
// goroutine plus the pipeline goroutine Submit runs on.
type Session struct {
	cfg Config

	mu   sync.Mutex
	snap Snapshot

	// lastErr holds the most recent surfaced error for the UI.
	lastErr error
}

// New creates a session in the welcome state.
func New(cfg Config) (*Session, error) {
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor required")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("history store required")
	}
	if cfg.KV == nil {
		return nil, fmt.Errorf("local store required")
	}
	if cfg.Geo == nil {
		cfg.Geo = geo.NopProvider{}
	}
	if cfg.Online == nil {
		cfg.Online = func(context.Context) bool { return true }
	}
	if cfg.Normalize == nil {
		cfg.Normalize = imaging.NormalizeBatch
	}
	if cfg.TargetLang == "" {
		cfg.TargetLang = menu.ChineseTW
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Session{cfg: cfg, snap: NewSnapshot()}, nil
}

// Snapshot returns a copy of the current application state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// LastError returns the most recently surfaced error, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SetTargetLang changes the translation language for future submissions.
func (s *Session) SetTargetLang(lang menu.TargetLanguage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.TargetLang = lang
}

// TargetLang returns the current translation language.
func (s *Session) TargetLang() menu.TargetLanguage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.TargetLang
}

// Submit runs the whole extraction pipeline for a batch of raw photos:
// precondition checks, best-effort geolocation, normalization, extraction,
// and the resulting state transition. It blocks until the pipeline
// resolves. A second submission while one is in flight is refused with
// ErrBusy; stale completions after an abandon are dropped by generation
// tag.
func (s *Session) Submit(ctx context.Context, raws [][]byte) error {
	apiKey := s.cfg.KV.Get(localstore.KeyAPIKey)
	if apiKey == "" {
		return ErrNoCredential
	}
	if !s.cfg.Online(ctx) {
		return ErrOffline
	}

	// Best effort, bounded; absence of a fix never blocks the submission.
	var location *menu.GeoLocation
	if loc, ok := geo.Timeout(s.cfg.Geo, defaultLocateTimeout).Locate(ctx); ok {
		location = &loc
	}

	s.mu.Lock()
	next, effects, err := Transition(s.snap, EvSubmit{Location: location})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.snap = next
	s.lastErr = nil
	generation := generationOf(effects)
	s.mu.Unlock()

	s.cfg.Logger.Info("extraction submitted",
		zap.Int("images", len(raws)),
		zap.Uint64("generation", generation),
		zap.Bool("located", location != nil))

	data, err := s.runPipeline(ctx, apiKey, raws)
	if err != nil {
		s.complete(EvExtractFailed{Generation: generation, Err: err})
		return err
	}

	s.complete(EvExtracted{Generation: generation, Data: data})
	return nil
}

// runPipeline is the sequential suspension chain: the whole batch is
// normalized before extraction begins.
func (s *Session) runPipeline(ctx context.Context, apiKey string, raws [][]byte) (menu.MenuData, error) {
	normalized, err := s.cfg.Normalize(raws)
	if err != nil {
		return menu.MenuData{}, err
	}
	return s.cfg.Extractor.Extract(ctx, apiKey, normalized, s.TargetLang())
}

// complete applies a pipeline completion event and runs its effects.
func (s *Session) complete(ev Event) {
	s.mu.Lock()
	next, effects, err := Transition(s.snap, ev)
	if err == nil {
		s.snap = next
	}
	s.mu.Unlock()

	s.execute(effects)

	if e, ok := ev.(EvExtracted); ok && err == nil {
		s.persistSessionCache(e.Data)
	}
}

// Abandon leaves the processing state without waiting for the in-flight
// extraction; its eventual result will be stale and dropped.
func (s *Session) Abandon() error { return s.apply(EvBack{}) }

// UpdateCart applies a quantity delta for item.
func (s *Session) UpdateCart(item menu.MenuItem, delta int) error {
	return s.apply(EvUpdateCart{Item: item, Delta: delta})
}

// OpenSummary navigates to the order summary.
func (s *Session) OpenSummary() error { return s.apply(EvOpenSummary{}) }

// CloseSummary returns from the summary to ordering.
func (s *Session) CloseSummary() error { return s.apply(EvCloseSummary{}) }

// Back returns to the welcome state.
func (s *Session) Back() error { return s.apply(EvBack{}) }

// OpenHistory navigates to the history view.
func (s *Session) OpenHistory() error { return s.apply(EvOpenHistory{}) }

// DeleteRecord removes one history record; only legal from the history
// view.
func (s *Session) DeleteRecord(id string) error { return s.apply(EvDeleteRecord{ID: id}) }

// Checkout finishes the order: it freezes the cart and menu into a history
// record, persists it, clears the session and returns to welcome.
func (s *Session) Checkout(paidBy string) (menu.HistoryRecord, error) {
	s.mu.Lock()
	if s.snap.State != StateSummary || s.snap.Menu == nil {
		from := s.snap.State
		s.mu.Unlock()
		return menu.HistoryRecord{}, &TransitionError{From: from, Event: EvCheckout{}}
	}
	record := buildRecord(s.snap, paidBy,
		s.cfg.KV.GetFloat(localstore.KeyTaxRate),
		s.cfg.KV.GetFloat(localstore.KeyServiceRate))
	next, effects, err := Transition(s.snap, EvCheckout{Record: record})
	if err != nil {
		s.mu.Unlock()
		return menu.HistoryRecord{}, err
	}
	s.snap = next
	s.mu.Unlock()

	s.execute(effects)
	return record, nil
}

// History returns all finished orders, newest first.
func (s *Session) History() []menu.HistoryRecord {
	return s.cfg.History.LoadAll()
}

// apply runs a navigation-only event.
func (s *Session) apply(ev Event) error {
	s.mu.Lock()
	next, effects, err := Transition(s.snap, ev)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.snap = next
	s.mu.Unlock()

	s.execute(effects)
	return nil
}

// execute runs declared side effects in order.
func (s *Session) execute(effects []Effect) {
	for _, fx := range effects {
		switch fx := fx.(type) {
		case FxAppendHistory:
			if err := s.cfg.History.Append(fx.Record); err != nil {
				s.cfg.Logger.Error("failed to persist order", zap.Error(err))
			}
		case FxRemoveHistory:
			if err := s.cfg.History.Remove(fx.ID); err != nil {
				s.cfg.Logger.Error("failed to delete record", zap.Error(err))
			}
		case FxDropSessionCache:
			if err := s.cfg.KV.Delete(localstore.KeyMenuSession); err != nil {
				s.cfg.Logger.Warn("failed to drop session cache", zap.Error(err))
			}
		case FxSurfaceError:
			s.mu.Lock()
			s.lastErr = fx.Err
			s.mu.Unlock()
			s.cfg.Logger.Warn("extraction failed", zap.Error(fx.Err))
		case FxStartExtraction:
			// Started inline by Submit.
		}
	}
}

// persistSessionCache stores the active menu so an interrupted session can
// be inspected later. Dropped at checkout.
func (s *Session) persistSessionCache(data menu.MenuData) {
	blob, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := s.cfg.KV.Set(localstore.KeyMenuSession, string(blob)); err != nil {
		s.cfg.Logger.Warn("failed to persist session cache", zap.Error(err))
	}
}

// buildRecord freezes the current cart and menu into an immutable history
// record. Cart items are value copies, so the record stays valid after the
// menu is discarded.
func buildRecord(snap Snapshot, paidBy string, taxRate, serviceRate float64) menu.HistoryRecord {
	items := make([]menu.CartItem, 0, len(snap.Cart))
	for _, id := range sortedCartIDs(snap.Cart) {
		items = append(items, snap.Cart[id])
	}

	currency := snap.Menu.OriginalCurrency
	if currency == "" {
		currency = "JPY"
	}

	return menu.HistoryRecord{
		ID:                 uuid.NewString(),
		Timestamp:          time.Now().UnixMilli(),
		Items:              items,
		TotalOriginalPrice: snap.Cart.Total(),
		Currency:           currency,
		RestaurantName:     snap.Menu.RestaurantName,
		PaidBy:             paidBy,
		Location:           snap.Location,
		TaxRate:            taxRate,
		ServiceRate:        serviceRate,
	}
}

// generationOf pulls the generation tag from a submission's effects.
func generationOf(effects []Effect) uint64 {
	for _, fx := range effects {
		if start, ok := fx.(FxStartExtraction); ok {
			return start.Generation
		}
	}
	return 0
}
