package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bingyoan/SAUSEGE/internal/history"
	"github.com/bingyoan/SAUSEGE/internal/localstore"
	"github.com/bingyoan/SAUSEGE/internal/menu"
	"github.com/bingyoan/SAUSEGE/internal/session"
)

type stubExtractor struct {
	data menu.MenuData
	err  error
}

func (s *stubExtractor) Extract(context.Context, string, [][]byte, menu.TargetLanguage) (menu.MenuData, error) {
	return s.data, s.err
}

type stubExplainer struct {
	text string
}

func (s *stubExplainer) ExplainDish(context.Context, string, string, string, menu.TargetLanguage) string {
	return s.text
}

func sampleMenu() menu.MenuData {
	return menu.MenuData{
		Items: []menu.MenuItem{
			{ID: "item-0", OriginalName: "牛肉麵", TranslatedName: "Beef Noodles", Price: 180, Category: "Noodles"},
			{ID: "item-1", OriginalName: "滷肉飯", TranslatedName: "Braised Pork Rice", Price: 60, Category: "Rice"},
		},
		OriginalCurrency: "TWD",
		TargetCurrency:   "JPY",
		ExchangeRate:     4.8,
		DetectedLanguage: "Chinese",
		RestaurantName:   "老王牛肉麵",
	}
}

func newTestApp(t *testing.T, extractor session.Extractor) (*App, *localstore.Store) {
	t.Helper()

	kv, err := localstore.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, kv.Set(localstore.KeyAPIKey, "AIzaTestKey"))

	sess, err := session.New(session.Config{
		Extractor: extractor,
		History:   history.NewStore(kv, nil),
		KV:        kv,
		Normalize: func(raws [][]byte) ([][]byte, error) { return raws, nil },
	})
	require.NoError(t, err)

	app := NewApp(sess, &stubExplainer{text: "A rich, slow-braised noodle soup."}, kv,
		WithFileReader(func(string) ([]byte, error) { return []byte("img"), nil }))
	app.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return app, kv
}

// runCmds drains a command tree back into the model.
func runCmds(t *testing.T, model tea.Model, cmd tea.Cmd) *App {
	t.Helper()
	app, ok := model.(*App)
	require.True(t, ok, "unexpected model type %T", model)
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		msg := next()
		if msg == nil {
			continue
		}
		if batch, ok := msg.(tea.BatchMsg); ok {
			queue = append(queue, batch...)
			continue
		}
		// Spinner ticks reschedule themselves forever; drop them.
		if _, ok := msg.(spinner.TickMsg); ok {
			continue
		}
		var nextCmd tea.Cmd
		model, nextCmd = app.Update(msg)
		app, ok = model.(*App)
		require.True(t, ok, "unexpected model type %T", model)
		queue = append(queue, nextCmd)
	}
	return app
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+h":
		return tea.KeyMsg{Type: tea.KeyCtrlH}
	case "ctrl+o":
		return tea.KeyMsg{Type: tea.KeyCtrlO}
	case "ctrl+l":
		return tea.KeyMsg{Type: tea.KeyCtrlL}
	case "ctrl+p":
		return tea.KeyMsg{Type: tea.KeyCtrlP}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

// scan drives the app from welcome through a successful extraction.
func scan(t *testing.T, app *App) *App {
	t.Helper()
	app.pathInput.SetValue("menu.jpg")
	model, cmd := app.Update(keyMsg("enter"))
	app = runCmds(t, model, cmd)
	require.Equal(t, screenOrdering, app.screen)
	return app
}

func TestScanHappyPath(t *testing.T) {
	app, _ := newTestApp(t, &stubExtractor{data: sampleMenu()})

	app = scan(t, app)

	assert.Equal(t, session.StateOrdering, app.sess.Snapshot().State)
	assert.Len(t, app.menuList.Items(), 2)
	assert.Contains(t, app.View(), "Beef Noodles")
	assert.Contains(t, app.View(), "老王牛肉麵")
}

func TestScanFailureReturnsToWelcome(t *testing.T) {
	app, _ := newTestApp(t, &stubExtractor{err: assert.AnError})

	app.pathInput.SetValue("menu.jpg")
	model, cmd := app.Update(keyMsg("enter"))
	app = runCmds(t, model, cmd)

	assert.Equal(t, screenWelcome, app.screen)
	assert.NotEmpty(t, app.statusMsg)
}

func TestScanWithUnreadablePathStaysOnWelcome(t *testing.T) {
	app, _ := newTestApp(t, &stubExtractor{data: sampleMenu()})
	app.readFile = func(string) ([]byte, error) { return nil, assert.AnError }

	app.pathInput.SetValue("missing.jpg")
	model, cmd := app.Update(keyMsg("enter"))
	app = runCmds(t, model, cmd)

	assert.Equal(t, screenWelcome, app.screen)
	assert.Contains(t, app.statusMsg, "Cannot read")
}

func TestCartAdjustment(t *testing.T) {
	app, _ := newTestApp(t, &stubExtractor{data: sampleMenu()})
	app = scan(t, app)

	model, cmd := app.Update(keyMsg("+"))
	app = runCmds(t, model, cmd)
	model, cmd = app.Update(keyMsg("+"))
	app = runCmds(t, model, cmd)

	snap := app.sess.Snapshot()
	require.Len(t, snap.Cart, 1)
	assert.Equal(t, 2, snap.Cart["item-0"].Quantity)
	assert.Contains(t, app.View(), "×2")

	model, cmd = app.Update(keyMsg("-"))
	app = runCmds(t, model, cmd)
	model, cmd = app.Update(keyMsg("-"))
	app = runCmds(t, model, cmd)
	assert.Empty(t, app.sess.Snapshot().Cart)
}

func TestSummaryAndCheckout(t *testing.T) {
	app, _ := newTestApp(t, &stubExtractor{data: sampleMenu()})
	app = scan(t, app)

	model, cmd := app.Update(keyMsg("+"))
	app = runCmds(t, model, cmd)

	model, cmd = app.Update(keyMsg("enter"))
	app = runCmds(t, model, cmd)
	require.Equal(t, screenSummary, app.screen)
	assert.Contains(t, app.View(), "Beef Noodles")

	model, cmd = app.Update(keyMsg("c"))
	app = runCmds(t, model, cmd)
	assert.Equal(t, screenWelcome, app.screen)
	assert.Equal(t, session.StateWelcome, app.sess.Snapshot().State)
	assert.Len(t, app.sess.History(), 1)
}

func TestSummaryBackReturnsToOrdering(t *testing.T) {
	app, _ := newTestApp(t, &stubExtractor{data: sampleMenu()})
	app = scan(t, app)

	model, cmd := app.Update(keyMsg("enter"))
	app = runCmds(t, model, cmd)
	require.Equal(t, screenSummary, app.screen)

	model, cmd = app.Update(keyMsg("esc"))
	app = runCmds(t, model, cmd)
	assert.Equal(t, screenOrdering, app.screen)
}

func TestHistoryBrowseAndDelete(t *testing.T) {
	app, _ := newTestApp(t, &stubExtractor{data: sampleMenu()})

	// Record an order first.
	app = scan(t, app)
	model, cmd := app.Update(keyMsg("+"))
	app = runCmds(t, model, cmd)
	model, cmd = app.Update(keyMsg("enter"))
	app = runCmds(t, model, cmd)
	model, cmd = app.Update(keyMsg("c"))
	app = runCmds(t, model, cmd)

	model, cmd = app.Update(keyMsg("ctrl+h"))
	app = runCmds(t, model, cmd)
	require.Equal(t, screenHistory, app.screen)
	require.Len(t, app.historyList.Items(), 1)
	assert.Contains(t, app.View(), "老王牛肉麵")

	model, cmd = app.Update(keyMsg("d"))
	app = runCmds(t, model, cmd)
	assert.Empty(t, app.historyList.Items())
	assert.Empty(t, app.sess.History())

	model, cmd = app.Update(keyMsg("esc"))
	app = runCmds(t, model, cmd)
	assert.Equal(t, screenWelcome, app.screen)
}

func TestExplainDish(t *testing.T) {
	app, _ := newTestApp(t, &stubExtractor{data: sampleMenu()})
	app = scan(t, app)

	model, cmd := app.Update(keyMsg("e"))
	app = runCmds(t, model, cmd)

	assert.Contains(t, app.View(), "slow-braised")
}

func TestLanguageCycle(t *testing.T) {
	app, _ := newTestApp(t, &stubExtractor{data: sampleMenu()})

	require.Equal(t, menu.ChineseTW, app.sess.TargetLang())
	model, cmd := app.Update(keyMsg("ctrl+l"))
	app = runCmds(t, model, cmd)
	assert.Equal(t, menu.English, app.sess.TargetLang())
}

func TestSettingsRoundTrip(t *testing.T) {
	app, kv := newTestApp(t, &stubExtractor{data: sampleMenu()})

	model, cmd := app.Update(keyMsg("ctrl+o"))
	app = runCmds(t, model, cmd)
	require.Equal(t, screenSettings, app.screen)

	app.settingInput.SetValue("AIzaNewKey")
	model, cmd = app.Update(keyMsg("tab")) // save key, move to tax rate
	app = runCmds(t, model, cmd)
	app.settingInput.SetValue("0.1")
	model, cmd = app.Update(keyMsg("enter")) // save and exit
	app = runCmds(t, model, cmd)

	assert.Equal(t, screenWelcome, app.screen)
	assert.Equal(t, "AIzaNewKey", kv.Get(localstore.KeyAPIKey))
	assert.Equal(t, 0.1, kv.GetFloat(localstore.KeyTaxRate))
}

func TestHidePriceToggle(t *testing.T) {
	app, kv := newTestApp(t, &stubExtractor{data: sampleMenu()})

	model, cmd := app.Update(keyMsg("ctrl+o"))
	app = runCmds(t, model, cmd)
	model, cmd = app.Update(keyMsg("ctrl+p"))
	app = runCmds(t, model, cmd)

	assert.True(t, app.hidePrice)
	assert.True(t, kv.GetBool(localstore.KeyHidePrice))

	model, cmd = app.Update(keyMsg("esc"))
	app = runCmds(t, model, cmd)

	app = scan(t, app)
	assert.NotContains(t, app.View(), "JPY")
}

func TestAbandonWhileProcessing(t *testing.T) {
	release := make(chan struct{})
	blocking := &blockingExtractor{release: release, data: sampleMenu()}
	app, _ := newTestApp(t, blocking)

	app.pathInput.SetValue("menu.jpg")
	model, cmd := app.Update(keyMsg("enter"))
	app, ok := model.(*App)
	require.True(t, ok)
	require.Equal(t, screenProcessing, app.screen)

	// Run the submit command on a goroutine like the bubbletea runtime does.
	done := make(chan tea.Msg, 1)
	go func() {
		for _, c := range flatten(cmd) {
			if msg := c(); msg != nil {
				if _, ok := msg.(extractionDoneMsg); ok {
					done <- msg
					return
				}
			}
		}
		done <- nil
	}()

	require.Eventually(t, func() bool { return blocking.started() }, time.Second, time.Millisecond)

	model, _ = app.Update(keyMsg("esc"))
	app = model.(*App)
	assert.Equal(t, screenWelcome, app.screen)

	close(release)
	msg := <-done
	require.NotNil(t, msg)
	model, _ = app.Update(msg)
	app = model.(*App)

	// The stale result must not resurrect the ordering screen.
	assert.Equal(t, screenWelcome, app.screen)
	assert.Equal(t, session.StateWelcome, app.sess.Snapshot().State)
}

type blockingExtractor struct {
	mu      sync.Mutex
	began   bool
	release chan struct{}
	data    menu.MenuData
}

func (b *blockingExtractor) Extract(ctx context.Context, _ string, _ [][]byte, _ menu.TargetLanguage) (menu.MenuData, error) {
	b.mu.Lock()
	b.began = true
	b.mu.Unlock()
	select {
	case <-b.release:
		return b.data, nil
	case <-ctx.Done():
		return menu.MenuData{}, ctx.Err()
	}
}

func (b *blockingExtractor) started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.began
}

// flatten expands nested batch commands into a flat slice.
func flatten(cmd tea.Cmd) []tea.Cmd {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Cmd
		for _, c := range batch {
			out = append(out, flatten(c)...)
		}
		return out
	}
	return []tea.Cmd{func() tea.Msg { return msg }}
}
