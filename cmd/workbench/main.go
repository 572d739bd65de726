// Package main provides the terminal UI entry point for the fraud workbench
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fraud-workbench/internal/app"
	"fraud-workbench/internal/config"
	wberrors "fraud-workbench/internal/errors"
	"fraud-workbench/internal/logging"
	"fraud-workbench/internal/startup"
	"fraud-workbench/internal/tui"
)

var (
	version = "dev"
)

func main() {
	var (
		showVersion bool
		launchURL   string
		apiBase     string
		preflight   bool
		interval    time.Duration
	)

	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.BoolVar(&showVersion, "v", false, "Show version and exit (shorthand)")
	flag.StringVar(&launchURL, "url", "", "Launch URL; an apiBase query parameter selects the backend")
	flag.StringVar(&apiBase, "api-base", "", "Backend API base URL")
	flag.BoolVar(&preflight, "preflight", false, "Run diagnostics before starting")
	flag.DurationVar(&interval, "analytics-interval", 10*time.Second, "Analytics refresh interval")
	flag.Parse()

	if showVersion {
		fmt.Printf("fraud-workbench %s\n", version)
		os.Exit(0)
	}

	if err := run(launchURL, apiBase, preflight, interval); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(launchURL, apiBase string, preflight bool, interval time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	wberrors.SetProductionMode(cfg.ProductionMode)

	// The UI owns stdout, so logs always go to a file.
	if cfg.Logging.File == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		cfg.Logging.File = filepath.Join(dir, "fraud-workbench", "workbench.log")
	}
	logger, closer, err := logging.Open(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	var settings config.Settings
	if path, err := config.SettingsPath(); err == nil {
		if settings, err = config.LoadSettings(path); err != nil {
			logger.Warn("ignoring unreadable settings", "path", path, "error", err)
		}
	}

	if preflight {
		override := apiBase
		if override == "" {
			override = cfg.API.BaseURL
		}
		base, _ := config.ResolveAPIBase(launchURL, override, settings)

		startup.PrintBanner(version)
		d := startup.NewDiagnostics(cfg, base, logger)
		for _, r := range d.RunAll() {
			fmt.Printf("  %-8s %-32s %s\n", r.Status, r.Name, r.Message)
		}
		if d.HasErrors() {
			return fmt.Errorf("preflight diagnostics failed, see %s", cfg.Logging.File)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{
		LaunchURL: launchURL,
		APIBase:   apiBase,
		Settings:  settings,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("starting workbench", "version", version, "api_base", a.APIBase)
	return tui.Run(ctx, a.Workbench, tui.Options{AnalyticsInterval: interval})
}
