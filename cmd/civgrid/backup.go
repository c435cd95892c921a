// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civgrid/civgrid/internal/config"
	"github.com/civgrid/civgrid/internal/storage"
	"github.com/civgrid/civgrid/internal/xdg"
)

// NewBackupCmd creates the backup subcommand.
func NewBackupCmd() *cobra.Command {
	var retain int
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the stored world state",
		Long: `Snapshot all four collections with a timestamped suffix, pruning
old snapshots beyond the retention count. Safe to run while the server
is stopped; for a running server the autosave loop already does this.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := config.NewStore(configFile, nil)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cfg := store.Current()
			if retain <= 0 {
				retain = cfg.Storage.BackupRetain
			}

			dataDir := cfg.DataDir
			if dataDir == "" {
				dataDir = xdg.DataDir()
			}

			provider, err := storage.Open(cfg.Storage.Type, dataDir, cfg.Storage.DatabaseURL)
			if err != nil {
				return err
			}
			defer provider.Close() //nolint:errcheck // nothing left to save
			if err := provider.Init(cmd.Context()); err != nil {
				return err
			}

			if err := provider.Backup(cmd.Context(), retain); err != nil {
				return err
			}
			cmd.Printf("backup complete (%s, retaining %d)\n", provider.Name(), retain)
			return nil
		},
	}
	cmd.Flags().IntVar(&retain, "retain", 0, "snapshots to keep (default: config storage.backup_retain)")
	return cmd
}
