// Sausage is the terminal client for the menu-scanner daemon. It drives
// the full order lifecycle: scan a menu photo, browse the translated
// items, build a cart, and save the finished order to history.
//
// Usage:
//
//	# Scan against a local sausaged
//	sausage
//
//	# Point at a remote daemon
//	sausage -server http://10.0.0.5:8787
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/bingyoan/SAUSEGE/internal/extraction"
	"github.com/bingyoan/SAUSEGE/internal/history"
	"github.com/bingyoan/SAUSEGE/internal/localstore"
	"github.com/bingyoan/SAUSEGE/internal/menu"
	"github.com/bingyoan/SAUSEGE/internal/rates"
	"github.com/bingyoan/SAUSEGE/internal/session"
	"github.com/bingyoan/SAUSEGE/internal/tui"
)

func main() {
	serverURL := flag.String("server", "http://127.0.0.1:8787", "sausaged base URL")
	lang := flag.String("lang", "", "target language (overrides the saved default)")
	handwriting := flag.Bool("handwriting", false, "enable handwritten-menu reading hints")
	flag.Parse()

	if err := run(*serverURL, *lang, *handwriting); err != nil {
		fmt.Fprintf(os.Stderr, "sausage: %v\n", err)
		os.Exit(1)
	}
}

func run(serverURL, lang string, handwriting bool) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	dataDir := filepath.Join(home, ".config", "sausage", "data")

	kv, err := localstore.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}

	logger, err := fileLogger(filepath.Join(home, ".config", "sausage", "sausage.log"))
	if err != nil {
		// The TUI owns the terminal; fall back to silence rather than
		// writing over it.
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	client, err := extraction.NewClient(extraction.Config{
		BaseURL:     serverURL,
		Handwriting: handwriting,
	}, rates.NewRatesClient(serverURL, 0), logger.Named("extraction"))
	if err != nil {
		return fmt.Errorf("create extraction client: %w", err)
	}

	sess, err := session.New(session.Config{
		Extractor:  client,
		History:    history.NewStore(kv, logger.Named("history")),
		KV:         kv,
		Online:     healthProbe(serverURL),
		TargetLang: menu.TargetLanguage(lang),
		Logger:     logger.Named("session"),
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	app := tui.NewApp(sess, client, kv)
	_, err = tea.NewProgram(app, tea.WithAltScreen()).Run()
	return err
}

// healthProbe reports whether the daemon answers its health endpoint.
func healthProbe(serverURL string) session.OnlineProbe {
	client := &http.Client{Timeout: 3 * time.Second}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/health", nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}
}

// fileLogger builds a JSON logger writing to path instead of the terminal.
func fileLogger(path string) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}
