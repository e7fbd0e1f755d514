// Sausaged is the menu-scanner daemon: an authenticated proxy in front of
// the vision generation backend, plus exchange-rate reconciliation and
// license verification endpoints for the sausage client.
//
// Configuration is loaded from ~/.config/sausage/config.yaml and overridden
// by SAUSAGE_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	sausaged
//
//	# Configure via environment
//	SAUSAGE_SERVER_PORT=9000 sausaged
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bingyoan/SAUSEGE/internal/config"
	"github.com/bingyoan/SAUSEGE/internal/license"
	"github.com/bingyoan/SAUSEGE/internal/localstore"
	"github.com/bingyoan/SAUSEGE/internal/logging"
	"github.com/bingyoan/SAUSEGE/internal/rates"
	"github.com/bingyoan/SAUSEGE/internal/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/sausage/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  sausaged           Start the sausaged daemon\n")
			fmt.Fprintf(os.Stderr, "  sausaged version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("sausaged\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until the context is cancelled.
func run(ctx context.Context, configPath string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, "sausaged")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("Starting sausaged",
		zap.Int("port", cfg.Server.Port),
		zap.String("upstream_model", cfg.Upstream.Model),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	reconciler := rates.New(rates.Config{
		HomeCurrency:    cfg.Rates.HomeCurrency,
		GlobalFeedURL:   cfg.Rates.GlobalFeedURL,
		RegionalFeedURL: cfg.Rates.RegionalFeedURL,
		CacheTTL:        cfg.Rates.CacheTTL.Duration(),
		Timeout:         cfg.Rates.Timeout.Duration(),
	}, logger.Named("rates"))

	kv, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}

	verifier := license.NewVerifier(license.Config{
		SalesAPIURL: cfg.License.SalesAPIURL,
		SalesToken:  cfg.License.SalesToken.Value(),
		Timeout:     cfg.License.Timeout.Duration(),
	}, kv, logger.Named("license"))

	srv, err := server.NewServer(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		UpstreamBaseURL: cfg.Upstream.BaseURL,
		UpstreamTimeout: cfg.Upstream.Timeout.Duration(),
	}, reconciler, verifier, logger.Named("http"))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	// Drain the start error after a clean shutdown.
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-time.After(time.Second):
	}

	return nil
}

// openStore opens the daemon's key-value store under the configured data
// directory, defaulting to ~/.config/sausage/data.
func openStore(cfg *config.Config) (*localstore.Store, error) {
	dir := cfg.Storage.DataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = home + "/.config/sausage/data"
	}
	return localstore.Open(dir)
}
