package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/canopy/pkg/api"
	"github.com/cuemby/canopy/pkg/config"
	"github.com/cuemby/canopy/pkg/events"
	"github.com/cuemby/canopy/pkg/layout"
	"github.com/cuemby/canopy/pkg/log"
	"github.com/cuemby/canopy/pkg/manager"
	"github.com/cuemby/canopy/pkg/metrics"
	"github.com/cuemby/canopy/pkg/storage"
	"github.com/cuemby/canopy/pkg/uidl"
)

var serveCmd = newServeCmd()

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the canopy server with the demo application",
		Long: `Run the canopy HTTP server and the admin gRPC health server.

Values from the config file are overridden by flags that are set
explicitly.

Examples:
  # Serve with defaults on :8080
  canopy serve

  # Production settings from a file, custom layouts from a directory
  canopy serve --config canopy.yaml --layout-dir ./layouts`,
		RunE: runServe,
	}

	f := cmd.Flags()
	f.StringP("config", "c", "", "YAML config file")
	f.String("listen", "", "HTTP listen address")
	f.String("admin", "", "Admin gRPC listen address")
	f.String("data-dir", "", "Directory of the session database")
	f.String("layout-dir", "", "Directory of custom layout templates")
	f.Bool("production", false, "Production mode: no debug output or error details")
	f.Bool("disable-xsrf", false, "Do not check security keys")
	f.Duration("session-timeout", 0, "Session inactivity timeout")
	f.String("log-level", "", "Log level (debug, info, warn, error)")
	f.Bool("log-json", false, "Log as JSON")
	return cmd
}

// loadConfig reads the config file and applies explicitly set flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	f := cmd.Flags()
	path, _ := f.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if f.Changed("listen") {
		cfg.ListenAddr, _ = f.GetString("listen")
	}
	if f.Changed("admin") {
		cfg.AdminAddr, _ = f.GetString("admin")
	}
	if f.Changed("data-dir") {
		cfg.DataDir, _ = f.GetString("data-dir")
	}
	if f.Changed("layout-dir") {
		cfg.LayoutDir, _ = f.GetString("layout-dir")
	}
	if f.Changed("production") {
		cfg.ProductionMode, _ = f.GetBool("production")
	}
	if f.Changed("disable-xsrf") {
		cfg.DisableXSRFProtection, _ = f.GetBool("disable-xsrf")
	}
	if f.Changed("session-timeout") {
		cfg.Session.Timeout, _ = f.GetDuration("session-timeout")
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-json") {
		cfg.Log.JSON, _ = f.GetBool("log-json")
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log.Init(cfg.LogConfig())
	metrics.SetVersion(Version)
	logger := log.WithComponent("serve")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go logEvents(sub)

	var templates uidl.TemplateSource
	if cfg.LayoutDir != "" {
		dir := layout.NewDirSource(cfg.LayoutDir)
		if err := dir.Watch(); err != nil {
			logger.Warn().Err(err).Str("dir", cfg.LayoutDir).Msg("Layout changes will not be picked up")
		}
		defer dir.Close()
		templates = dir
	}

	messages := cfg.Messages
	mgr := manager.NewManager(manager.Config{
		Builder:         demoBuilder(cfg.LayoutDir != ""),
		ProductionMode:  cfg.ProductionMode,
		DisableXSRF:     cfg.DisableXSRFProtection,
		SessionTimeout:  cfg.Session.Timeout,
		SweepInterval:   cfg.Session.SweepInterval,
		RecordRetention: cfg.Session.RecordRetention,
		Messages:        &messages,
		Templates:       templates,
		Store:           store,
		Events:          broker,
	})
	mgr.Start()
	mgr.RegisterHealthChecks()

	collector := metrics.NewCollector(mgr)
	collector.Start()
	defer collector.Stop()

	server := api.NewServer(mgr, api.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})
	admin := api.NewAdminServer(5 * time.Second)

	errCh := make(chan error, 2)
	go func() {
		if err := server.Start(cfg.ListenAddr); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		if err := admin.Start(cfg.AdminAddr); err != nil {
			errCh <- fmt.Errorf("admin server error: %w", err)
		}
	}()

	logger.Info().
		Str("listen", cfg.ListenAddr).
		Str("admin", cfg.AdminAddr).
		Str("data_dir", cfg.DataDir).
		Msg("Canopy is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Server failed, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server did not shut down cleanly")
	}
	admin.Stop()
	mgr.Stop()

	logger.Info().Msg("Shutdown complete")
	return runErr
}

func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for ev := range sub {
		logger.Debug().
			Str("type", string(ev.Type)).
			Str("session_id", ev.SessionID).
			Msg(ev.Message)
	}
}
