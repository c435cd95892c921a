// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/civgrid/civgrid/internal/config"
	"github.com/civgrid/civgrid/internal/engine"
	"github.com/civgrid/civgrid/internal/logging"
	"github.com/civgrid/civgrid/internal/observability"
	"github.com/civgrid/civgrid/internal/repo"
	"github.com/civgrid/civgrid/internal/storage"
	"github.com/civgrid/civgrid/internal/xdg"
)

// schedulerInterval is how often the housekeeping pass runs.
const schedulerInterval = time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the CivGrid server",
		Long: `Run the CivGrid server: load the world state into memory, start
the async persistence writer, the housekeeping scheduler and the
metrics endpoint, then serve until interrupted. SIGHUP reloads the
configuration; SIGINT and SIGTERM flush and shut down.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	// Flag names match config keys so they layer over the file via koanf.
	// Flag defaults mirror config.Default so an untouched flag never
	// shadows a value from the config file.
	def := config.Default()
	cmd.Flags().String("data_dir", def.DataDir, "data directory (default: XDG_DATA_HOME/civgrid)")
	cmd.Flags().String("metrics_addr", def.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log_format", def.LogFormat, "log format (json or text)")
	cmd.Flags().String("storage.type", def.Storage.Type, "storage provider (json, sqlite or postgres)")
	cmd.Flags().String("storage.database_url", def.Storage.DatabaseURL, "postgres connection string")
	cmd.Flags().Duration("autosave_interval", def.AutosaveInterval, "interval between full flushes to disk")

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ProviderFactory == nil {
		deps.ProviderFactory = func(cfg config.Config, dataDir string) (storage.Provider, error) {
			return storage.Open(cfg.Storage.Type, dataDir, cfg.Storage.DatabaseURL)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}

	store, err := config.NewStore(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	cfg := store.Current()

	logging.SetDefault(version, cfg.LogFormat, slog.LevelInfo)
	slog.Info("starting civgrid",
		"storage", cfg.Storage.Type,
		"metrics_addr", cfg.MetricsAddr,
	)

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = xdg.DataDir()
	}
	if err := xdg.EnsureDir(dataDir); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The readiness probe flips once the world state is resident.
	loaded := make(chan struct{})
	isLoaded := func() bool {
		select {
		case <-loaded:
			return true
		default:
			return false
		}
	}

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, isLoaded)
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return fmt.Errorf("start observability server: %w", startErr)
		}
		metrics = obsServer.Metrics()
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	provider, err := deps.ProviderFactory(cfg, dataDir)
	if err != nil {
		return fmt.Errorf("open storage provider: %w", err)
	}
	if err := provider.Init(ctx); err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer func() {
		if closeErr := provider.Close(); closeErr != nil {
			slog.Warn("error closing storage provider", "error", closeErr)
		}
	}()

	r := repo.New(provider, slog.Default(), metrics)
	if err := r.Load(ctx); err != nil {
		return fmt.Errorf("load world state: %w", err)
	}
	r.Start()
	close(loaded)

	engines := engine.New(engine.Deps{
		Repo:    r,
		Config:  store,
		Log:     slog.Default(),
		Metrics: metrics,
	}, nil, nil)
	scheduler := engine.NewScheduler(engine.Deps{
		Repo:    r,
		Config:  store,
		Log:     slog.Default(),
		Metrics: metrics,
	}, engines)
	go scheduler.Run(ctx, schedulerInterval)

	go runAutosave(ctx, r, provider, store)

	// SIGHUP reloads configuration in place.
	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, syscall.SIGHUP)
	defer signal.Stop(hupChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hupChan:
				if reloadErr := store.Reload(); reloadErr != nil {
					slog.Error("configuration reload failed", "error", reloadErr)
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("CivGrid server started")
	slog.Info("civgrid ready", "civilizations", len(r.Civilizations()))

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := r.Flush(shutdownCtx); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	if err := r.Close(shutdownCtx); err != nil {
		slog.Warn("error closing repository", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// runAutosave flushes the repository and rotates a storage backup at the
// configured interval.
func runAutosave(ctx context.Context, r *repo.Repository, provider storage.Provider, store *config.Store) {
	cfg := store.Current()
	if cfg.AutosaveInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.AutosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flushCtx, cancel := context.WithTimeout(ctx, time.Minute)
			if err := r.Flush(flushCtx); err != nil {
				slog.Error("autosave flush failed", "error", err)
				cancel()
				continue
			}
			if err := provider.Backup(flushCtx, store.Current().Storage.BackupRetain); err != nil {
				slog.Error("autosave backup failed", "error", err)
			}
			cancel()
		}
	}
}

// monitorServerErrors watches a server's error channel and cancels the
// context on failure so the whole process shuts down cleanly.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
