// internal/tui/app.go
//
// The terminal front end for scanning menus. It follows The Elm
// Architecture: the App struct holds all state, Update folds messages
// into new state, and View renders the current screen.
//
// Screens mirror the order lifecycle: welcome → processing → ordering ⇄
// summary, with history and settings reachable from welcome.

package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bingyoan/SAUSEGE/internal/localstore"
	"github.com/bingyoan/SAUSEGE/internal/menu"
	"github.com/bingyoan/SAUSEGE/internal/session"
)

// appScreen represents which "screen" we're on.
type appScreen int

const (
	screenWelcome appScreen = iota
	screenProcessing
	screenOrdering
	screenSummary
	screenHistory
	screenSettings
)

const submitTimeout = 3 * time.Minute

// languageCycle is the order the language hotkey walks through.
var languageCycle = []menu.TargetLanguage{
	menu.ChineseTW,
	menu.English,
	menu.Japanese,
	menu.Korean,
	menu.French,
	menu.Spanish,
	menu.Thai,
	menu.Filipino,
	menu.Vietnamese,
}

// Explainer produces a short dish description for the detail pane.
type Explainer interface {
	ExplainDish(ctx context.Context, apiKey, dishName, originalLang string, targetLang menu.TargetLanguage) string
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithFileReader overrides how image paths are loaded from disk.
func WithFileReader(read func(path string) ([]byte, error)) AppOption {
	return func(a *App) {
		if read != nil {
			a.readFile = read
		}
	}
}

// settingsField enumerates the editable rows on the settings screen.
type settingsField int

const (
	fieldAPIKey settingsField = iota
	fieldTaxRate
	fieldServiceRate
	fieldCount
)

// App is the main application model.
type App struct {
	screen    appScreen
	sess      *session.Session
	explainer Explainer
	kv        *localstore.Store
	readFile  func(path string) ([]byte, error)

	// UI components
	pathInput    textinput.Model
	spin         spinner.Model
	menuList     list.Model
	historyList  list.Model
	settingInput textinput.Model

	statusMsg   string
	explanation string
	hidePrice   bool

	settingsFocus settingsField

	width  int
	height int

	quitting bool
}

// itemEntry adapts a menu item for the bubbles list, annotated with the
// current cart quantity.
type itemEntry struct {
	item      menu.MenuItem
	qty       int
	rate      float64
	currency  string
	hidePrice bool
}

func (e itemEntry) Title() string {
	title := e.item.TranslatedName
	if e.qty > 0 {
		title = fmt.Sprintf("%s  ×%d", title, e.qty)
	}
	if e.item.AllergyWarning {
		title += "  ⚠"
	}
	return title
}

func (e itemEntry) Description() string {
	if e.hidePrice {
		return e.item.OriginalName
	}
	converted := e.item.Price * e.rate
	return fmt.Sprintf("%s · %.2f %s", e.item.OriginalName, converted, e.currency)
}

func (e itemEntry) FilterValue() string { return e.item.TranslatedName }

// historyEntry adapts a finished order for the history list.
type historyEntry struct {
	record menu.HistoryRecord
}

func (e historyEntry) Title() string {
	name := e.record.RestaurantName
	if name == "" {
		name = "Unknown restaurant"
	}
	return name
}

func (e historyEntry) Description() string {
	when := time.UnixMilli(e.record.Timestamp).Format("2006-01-02 15:04")
	return fmt.Sprintf("%s · %.2f %s · %d items",
		when, e.record.TotalOriginalPrice, e.record.Currency, len(e.record.Items))
}

func (e historyEntry) FilterValue() string { return e.record.RestaurantName }

// NewApp creates the TUI model around an order session.
func NewApp(sess *session.Session, explainer Explainer, kv *localstore.Store, opts ...AppOption) *App {
	pathInput := textinput.New()
	pathInput.Placeholder = "path to menu photo (space-separated for multiple)"
	pathInput.Focus()

	settingInput := textinput.New()

	spin := spinner.New(spinner.WithSpinner(spinner.Dot))

	menuList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	menuList.Title = "Menu"
	menuList.SetShowStatusBar(false)
	menuList.SetFilteringEnabled(false)

	historyList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	historyList.Title = "Order History"
	historyList.SetShowStatusBar(false)
	historyList.SetFilteringEnabled(false)

	app := &App{
		screen:       screenWelcome,
		sess:         sess,
		explainer:    explainer,
		kv:           kv,
		readFile:     os.ReadFile,
		pathInput:    pathInput,
		spin:         spin,
		menuList:     menuList,
		historyList:  historyList,
		settingInput: settingInput,
		hidePrice:    kv.GetBool(localstore.KeyHidePrice),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

// Message types
type extractionDoneMsg struct{ err error }
type explanationMsg struct{ text string }

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.menuList.SetSize(msg.Width-4, msg.Height-10)
		a.historyList.SetSize(msg.Width-4, msg.Height-8)
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.quitting = true
			return a, tea.Quit
		}
		return a.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case extractionDoneMsg:
		return a.handleExtractionDone(msg)

	case explanationMsg:
		a.explanation = msg.text
		return a, nil
	}

	return a.updateFocused(msg)
}

// handleKey routes key presses to the active screen.
func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.screen {
	case screenWelcome:
		return a.handleWelcomeKey(msg)
	case screenProcessing:
		return a.handleProcessingKey(msg)
	case screenOrdering:
		return a.handleOrderingKey(msg)
	case screenSummary:
		return a.handleSummaryKey(msg)
	case screenHistory:
		return a.handleHistoryKey(msg)
	case screenSettings:
		return a.handleSettingsKey(msg)
	}
	return a, nil
}

func (a *App) handleWelcomeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return a.startSubmission()
	case "ctrl+h":
		if err := a.sess.OpenHistory(); err != nil {
			a.statusMsg = err.Error()
			return a, nil
		}
		a.screen = screenHistory
		a.refreshHistoryList()
		return a, nil
	case "ctrl+o":
		a.openSettings()
		return a, nil
	case "ctrl+l":
		a.cycleLanguage()
		return a, nil
	case "q":
		if a.pathInput.Value() == "" {
			a.quitting = true
			return a, tea.Quit
		}
	}

	var cmd tea.Cmd
	a.pathInput, cmd = a.pathInput.Update(msg)
	return a, cmd
}

func (a *App) handleProcessingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		if err := a.sess.Abandon(); err == nil {
			a.screen = screenWelcome
			a.statusMsg = "Extraction abandoned"
		}
	}
	return a, nil
}

func (a *App) handleOrderingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "+", "=":
		a.adjustSelected(1)
		return a, nil
	case "-", "_":
		a.adjustSelected(-1)
		return a, nil
	case "enter":
		if err := a.sess.OpenSummary(); err != nil {
			a.statusMsg = err.Error()
			return a, nil
		}
		a.screen = screenSummary
		return a, nil
	case "e":
		return a, a.explainSelected()
	case "esc":
		if err := a.sess.Back(); err == nil {
			a.screen = screenWelcome
			a.pathInput.SetValue("")
			a.explanation = ""
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.menuList, cmd = a.menuList.Update(msg)
	return a, cmd
}

func (a *App) handleSummaryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "c":
		record, err := a.sess.Checkout("")
		if err != nil {
			a.statusMsg = err.Error()
			return a, nil
		}
		a.screen = screenWelcome
		a.pathInput.SetValue("")
		a.explanation = ""
		a.statusMsg = fmt.Sprintf("Order saved: %.2f %s", record.TotalOriginalPrice, record.Currency)
		return a, nil
	case "+", "=":
		a.adjustSelected(1)
		return a, nil
	case "-", "_":
		a.adjustSelected(-1)
		return a, nil
	case "esc":
		if err := a.sess.CloseSummary(); err == nil {
			a.screen = screenOrdering
		}
		return a, nil
	}
	return a, nil
}

func (a *App) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "d":
		if entry, ok := a.historyList.SelectedItem().(historyEntry); ok {
			if err := a.sess.DeleteRecord(entry.record.ID); err != nil {
				a.statusMsg = err.Error()
				return a, nil
			}
			a.refreshHistoryList()
		}
		return a, nil
	case "esc", "q":
		if err := a.sess.Back(); err == nil {
			a.screen = screenWelcome
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.historyList, cmd = a.historyList.Update(msg)
	return a, cmd
}

func (a *App) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "down":
		a.saveSettingsField()
		a.settingsFocus = (a.settingsFocus + 1) % fieldCount
		a.loadSettingsField()
		return a, nil
	case "shift+tab", "up":
		a.saveSettingsField()
		a.settingsFocus = (a.settingsFocus + fieldCount - 1) % fieldCount
		a.loadSettingsField()
		return a, nil
	case "ctrl+p":
		a.hidePrice = !a.hidePrice
		if err := a.kv.SetBool(localstore.KeyHidePrice, a.hidePrice); err != nil {
			a.statusMsg = err.Error()
		}
		return a, nil
	case "enter", "esc":
		a.saveSettingsField()
		a.screen = screenWelcome
		a.pathInput.Focus()
		a.statusMsg = "Settings saved"
		return a, nil
	}

	var cmd tea.Cmd
	a.settingInput, cmd = a.settingInput.Update(msg)
	return a, cmd
}

// updateFocused forwards non-key messages to the focused component.
func (a *App) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.screen {
	case screenWelcome:
		a.pathInput, cmd = a.pathInput.Update(msg)
	case screenOrdering:
		a.menuList, cmd = a.menuList.Update(msg)
	case screenHistory:
		a.historyList, cmd = a.historyList.Update(msg)
	case screenSettings:
		a.settingInput, cmd = a.settingInput.Update(msg)
	}
	return a, cmd
}

// startSubmission reads the entered image paths and launches extraction.
func (a *App) startSubmission() (tea.Model, tea.Cmd) {
	paths := strings.Fields(a.pathInput.Value())
	if len(paths) == 0 {
		a.statusMsg = "Enter at least one image path"
		return a, nil
	}

	raws := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := a.readFile(p)
		if err != nil {
			a.statusMsg = fmt.Sprintf("Cannot read %s: %v", p, err)
			return a, nil
		}
		raws = append(raws, data)
	}

	a.screen = screenProcessing
	a.statusMsg = ""

	submit := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		return extractionDoneMsg{err: a.sess.Submit(ctx, raws)}
	}
	return a, tea.Batch(a.spin.Tick, submit)
}

// handleExtractionDone reconciles the UI with the session after the
// pipeline resolves. A stale completion (user already abandoned) leaves
// the current screen alone.
func (a *App) handleExtractionDone(msg extractionDoneMsg) (tea.Model, tea.Cmd) {
	snap := a.sess.Snapshot()

	switch snap.State {
	case session.StateOrdering:
		a.screen = screenOrdering
		a.refreshMenuList()
	case session.StateWelcome:
		if a.screen == screenProcessing {
			a.screen = screenWelcome
			if msg.err != nil {
				a.statusMsg = msg.err.Error()
			} else if err := a.sess.LastError(); err != nil {
				a.statusMsg = err.Error()
			}
		}
	}
	return a, nil
}

// refreshMenuList rebuilds the ordering list from the session snapshot.
func (a *App) refreshMenuList() {
	snap := a.sess.Snapshot()
	if snap.Menu == nil {
		a.menuList.SetItems(nil)
		return
	}

	items := make([]list.Item, 0, len(snap.Menu.Items))
	for _, it := range snap.Menu.Items {
		qty := 0
		if ci, ok := snap.Cart[it.ID]; ok {
			qty = ci.Quantity
		}
		items = append(items, itemEntry{
			item:      it,
			qty:       qty,
			rate:      snap.Menu.ExchangeRate,
			currency:  snap.Menu.TargetCurrency,
			hidePrice: a.hidePrice,
		})
	}
	a.menuList.SetItems(items)
	a.menuList.Title = menuTitle(snap.Menu)
}

func menuTitle(data *menu.MenuData) string {
	if data.RestaurantName != "" {
		return data.RestaurantName
	}
	return "Menu"
}

// refreshHistoryList rebuilds the history list from the store.
func (a *App) refreshHistoryList() {
	records := a.sess.History()
	items := make([]list.Item, 0, len(records))
	for _, r := range records {
		items = append(items, historyEntry{record: r})
	}
	a.historyList.SetItems(items)
}

// adjustSelected changes the cart quantity of the highlighted item,
// keeping the list row in sync.
func (a *App) adjustSelected(delta int) {
	entry, ok := a.menuList.SelectedItem().(itemEntry)
	if !ok {
		return
	}
	if err := a.sess.UpdateCart(entry.item, delta); err != nil {
		a.statusMsg = err.Error()
		return
	}
	idx := a.menuList.Index()
	a.refreshMenuList()
	a.menuList.Select(idx)
}

// explainSelected asks the generation service to describe the
// highlighted dish.
func (a *App) explainSelected() tea.Cmd {
	entry, ok := a.menuList.SelectedItem().(itemEntry)
	if !ok || a.explainer == nil {
		return nil
	}

	snap := a.sess.Snapshot()
	originalLang := "Unknown"
	if snap.Menu != nil {
		originalLang = snap.Menu.DetectedLanguage
	}
	apiKey := a.kv.Get(localstore.KeyAPIKey)
	lang := a.sess.TargetLang()

	a.explanation = "Looking it up..."
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return explanationMsg{text: a.explainer.ExplainDish(ctx, apiKey, entry.item.OriginalName, originalLang, lang)}
	}
}

// cycleLanguage advances the target language and persists nothing; the
// language applies to the next extraction.
func (a *App) cycleLanguage() {
	current := a.sess.TargetLang()
	for i, lang := range languageCycle {
		if lang == current {
			a.sess.SetTargetLang(languageCycle[(i+1)%len(languageCycle)])
			return
		}
	}
	a.sess.SetTargetLang(languageCycle[0])
}

// Settings editing

func (a *App) openSettings() {
	a.screen = screenSettings
	a.settingsFocus = fieldAPIKey
	a.loadSettingsField()
	a.settingInput.Focus()
}

// loadSettingsField fills the shared input with the focused field's value.
func (a *App) loadSettingsField() {
	switch a.settingsFocus {
	case fieldAPIKey:
		a.settingInput.Placeholder = "API key (AIza...)"
		a.settingInput.SetValue(a.kv.Get(localstore.KeyAPIKey))
		a.settingInput.EchoMode = textinput.EchoPassword
	case fieldTaxRate:
		a.settingInput.Placeholder = "tax rate, e.g. 0.1"
		a.settingInput.SetValue(a.kv.Get(localstore.KeyTaxRate))
		a.settingInput.EchoMode = textinput.EchoNormal
	case fieldServiceRate:
		a.settingInput.Placeholder = "service rate, e.g. 0.1"
		a.settingInput.SetValue(a.kv.Get(localstore.KeyServiceRate))
		a.settingInput.EchoMode = textinput.EchoNormal
	}
	a.settingInput.CursorEnd()
}

// saveSettingsField persists the focused field.
func (a *App) saveSettingsField() {
	value := strings.TrimSpace(a.settingInput.Value())
	var key string
	switch a.settingsFocus {
	case fieldAPIKey:
		key = localstore.KeyAPIKey
	case fieldTaxRate:
		key = localstore.KeyTaxRate
	case fieldServiceRate:
		key = localstore.KeyServiceRate
	default:
		return
	}

	var err error
	if value == "" {
		err = a.kv.Delete(key)
	} else {
		err = a.kv.Set(key, value)
	}
	if err != nil {
		a.statusMsg = err.Error()
	}
}
