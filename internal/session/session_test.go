package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bingyoan/SAUSEGE/internal/extraction"
	"github.com/bingyoan/SAUSEGE/internal/geo"
	"github.com/bingyoan/SAUSEGE/internal/history"
	"github.com/bingyoan/SAUSEGE/internal/localstore"
	"github.com/bingyoan/SAUSEGE/internal/menu"
)

// fakeExtractor returns a canned result, optionally blocking until released
// so tests can hold a submission in flight.
type fakeExtractor struct {
	mu      sync.Mutex
	data    menu.MenuData
	err     error
	calls   int
	release chan struct{}

	gotLang menu.TargetLanguage
}

func (f *fakeExtractor) Extract(ctx context.Context, apiKey string, images [][]byte, lang menu.TargetLanguage) (menu.MenuData, error) {
	f.mu.Lock()
	f.calls++
	f.gotLang = lang
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return menu.MenuData{}, ctx.Err()
		}
	}
	return f.data, f.err
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func sampleMenu() menu.MenuData {
	return menu.MenuData{
		Items: []menu.MenuItem{
			{ID: "item-0-x", OriginalName: "焼き餃子", TranslatedName: "군만두", Price: 450, Category: "Sides"},
			{ID: "item-1-y", OriginalName: "ラーメン", TranslatedName: "라면", Price: 980, Category: "Mains"},
		},
		OriginalCurrency: "JPY",
		TargetCurrency:   "KRW",
		ExchangeRate:     9.1,
		DetectedLanguage: "Japanese",
		RestaurantName:   "とり吉",
	}
}

type sessionDeps struct {
	ext *fakeExtractor
	kv  *localstore.Store
	hs  *history.Store
}

func newTestSession(t *testing.T, cfg Config) (*Session, sessionDeps) {
	t.Helper()

	kv, err := localstore.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, kv.Set(localstore.KeyAPIKey, "AIzaTestKey"))

	ext := &fakeExtractor{data: sampleMenu()}
	hs := history.NewStore(kv, nil)

	cfg.Extractor = ext
	cfg.History = hs
	cfg.KV = kv
	if cfg.Normalize == nil {
		cfg.Normalize = func(raws [][]byte) ([][]byte, error) { return raws, nil }
	}
	if cfg.TargetLang == "" {
		cfg.TargetLang = menu.Korean
	}

	s, err := New(cfg)
	require.NoError(t, err)
	return s, sessionDeps{ext: ext, kv: kv, hs: hs}
}

func TestSubmitHappyPath(t *testing.T) {
	s, deps := newTestSession(t, Config{
		Geo: geo.ProviderFunc(func(ctx context.Context) (menu.GeoLocation, bool) {
			return menu.GeoLocation{Lat: 25.03, Lng: 121.56}, true
		}),
	})

	require.NoError(t, s.Submit(context.Background(), [][]byte{{1}, {2}}))

	snap := s.Snapshot()
	assert.Equal(t, StateOrdering, snap.State)
	require.NotNil(t, snap.Menu)
	assert.Equal(t, "JPY", snap.Menu.OriginalCurrency)
	assert.Empty(t, snap.Cart)
	require.NotNil(t, snap.Location)
	assert.Equal(t, 25.03, snap.Location.Lat)
	assert.Equal(t, menu.Korean, deps.ext.gotLang)

	// The active menu is cached for the session.
	assert.NotEmpty(t, deps.kv.Get(localstore.KeyMenuSession))
}

func TestSubmitWithoutCredential(t *testing.T) {
	s, deps := newTestSession(t, Config{})
	require.NoError(t, deps.kv.Delete(localstore.KeyAPIKey))

	err := s.Submit(context.Background(), [][]byte{{1}})
	require.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, StateWelcome, s.Snapshot().State)
	assert.Zero(t, deps.ext.callCount())
}

func TestSubmitWhileOffline(t *testing.T) {
	s, deps := newTestSession(t, Config{
		Online: func(context.Context) bool { return false },
	})

	err := s.Submit(context.Background(), [][]byte{{1}})
	require.ErrorIs(t, err, ErrOffline)
	assert.Equal(t, StateWelcome, s.Snapshot().State)
	assert.Zero(t, deps.ext.callCount())
}

func TestSubmitExtractionFailureRollsBack(t *testing.T) {
	s, deps := newTestSession(t, Config{})
	deps.ext.err = &extraction.QuotaError{StatusCode: 503, Message: "overloaded"}
	deps.ext.data = menu.MenuData{}

	err := s.Submit(context.Background(), [][]byte{{1}})
	require.Error(t, err)

	snap := s.Snapshot()
	assert.Equal(t, StateWelcome, snap.State)
	assert.Nil(t, snap.Menu)
	assert.Empty(t, snap.Cart)
	require.Error(t, s.LastError())
}

func TestSubmitNormalizationFailureRollsBack(t *testing.T) {
	s, deps := newTestSession(t, Config{
		Normalize: func([][]byte) ([][]byte, error) {
			return nil, assert.AnError
		},
	})

	err := s.Submit(context.Background(), [][]byte{{1}})
	require.Error(t, err)
	assert.Equal(t, StateWelcome, s.Snapshot().State)
	assert.Zero(t, deps.ext.callCount(), "extraction must not run when normalization fails")
}

func TestSecondSubmissionWhileInFlightIsRefused(t *testing.T) {
	release := make(chan struct{})
	s, deps := newTestSession(t, Config{})
	deps.ext.release = release

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), [][]byte{{1}}) }()

	// Wait for the first submission to reach the extractor.
	require.Eventually(t, func() bool { return deps.ext.callCount() == 1 },
		time.Second, time.Millisecond)

	err := s.Submit(context.Background(), [][]byte{{2}})
	require.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, deps.ext.callCount())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateOrdering, s.Snapshot().State)
}

func TestAbandonDropsStaleResult(t *testing.T) {
	release := make(chan struct{})
	s, deps := newTestSession(t, Config{})
	deps.ext.release = release

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), [][]byte{{1}}) }()
	require.Eventually(t, func() bool { return deps.ext.callCount() == 1 },
		time.Second, time.Millisecond)

	require.NoError(t, s.Abandon())
	assert.Equal(t, StateWelcome, s.Snapshot().State)

	close(release)
	require.NoError(t, <-done)

	// The stale success must not resurrect the session.
	snap := s.Snapshot()
	assert.Equal(t, StateWelcome, snap.State)
	assert.Nil(t, snap.Menu)
}

func TestCheckoutWritesHistoryAndRecycles(t *testing.T) {
	s, deps := newTestSession(t, Config{
		Geo: geo.ProviderFunc(func(ctx context.Context) (menu.GeoLocation, bool) {
			return menu.GeoLocation{Lat: 35.68, Lng: 139.69}, true
		}),
	})
	require.NoError(t, deps.kv.SetFloat(localstore.KeyTaxRate, 10))
	require.NoError(t, deps.kv.SetFloat(localstore.KeyServiceRate, 8))

	require.NoError(t, s.Submit(context.Background(), [][]byte{{1}}))

	items := s.Snapshot().Menu.Items
	require.NoError(t, s.UpdateCart(items[0], 2))
	require.NoError(t, s.UpdateCart(items[1], 1))
	require.NoError(t, s.OpenSummary())

	record, err := s.Checkout("Alice")
	require.NoError(t, err)

	assert.Equal(t, 450.0*2+980, record.TotalOriginalPrice)
	assert.Equal(t, "JPY", record.Currency)
	assert.Equal(t, "とり吉", record.RestaurantName)
	assert.Equal(t, "Alice", record.PaidBy)
	assert.Equal(t, 10.0, record.TaxRate)
	assert.Equal(t, 8.0, record.ServiceRate)
	require.NotNil(t, record.Location)
	require.Len(t, record.Items, 2)
	assert.NotEmpty(t, record.ID)
	assert.NotZero(t, record.Timestamp)

	snap := s.Snapshot()
	assert.Equal(t, StateWelcome, snap.State)
	assert.Empty(t, snap.Cart)
	assert.Nil(t, snap.Menu)

	got := deps.hs.LoadAll()
	require.Len(t, got, 1)
	assert.Equal(t, record.ID, got[0].ID)

	// Session cache dropped at checkout.
	assert.Empty(t, deps.kv.Get(localstore.KeyMenuSession))
}

func TestCheckoutOutsideSummary(t *testing.T) {
	s, _ := newTestSession(t, Config{})
	_, err := s.Checkout("")
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
}

func TestDeleteRecordFromHistoryView(t *testing.T) {
	s, deps := newTestSession(t, Config{})
	require.NoError(t, deps.hs.Append(menu.HistoryRecord{ID: "r1", Currency: "JPY"}))

	require.NoError(t, s.OpenHistory())
	require.NoError(t, s.DeleteRecord("r1"))
	assert.Empty(t, s.History())

	require.NoError(t, s.Back())
	require.ErrorAs(t, s.DeleteRecord("r1"), new(*TransitionError))
}

func TestSuccessfulExtractionResetsPriorCart(t *testing.T) {
	s, _ := newTestSession(t, Config{})

	require.NoError(t, s.Submit(context.Background(), [][]byte{{1}}))
	require.NoError(t, s.UpdateCart(s.Snapshot().Menu.Items[0], 3))
	require.NotEmpty(t, s.Snapshot().Cart)

	// Return to welcome and scan again: fresh menu, empty cart.
	require.NoError(t, s.Back())
	require.NoError(t, s.Submit(context.Background(), [][]byte{{1}}))
	assert.Empty(t, s.Snapshot().Cart)
}
