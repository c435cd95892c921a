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

// NewMigrateStorageCmd creates the migrate-storage subcommand.
func NewMigrateStorageCmd() *cobra.Command {
	var (
		fromType string
		toType   string
		toURL    string
	)
	cmd := &cobra.Command{
		Use:   "migrate-storage",
		Short: "Copy the world state between storage providers",
		Long: `Copy all four collections from one storage provider to another,
backing up the source first. The source defaults to the configured
provider. Stop the server before migrating.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := config.NewStore(configFile, nil)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cfg := store.Current()

			dataDir := cfg.DataDir
			if dataDir == "" {
				dataDir = xdg.DataDir()
			}
			if fromType == "" {
				fromType = cfg.Storage.Type
			}
			if toURL == "" {
				toURL = cfg.Storage.DatabaseURL
			}
			if fromType == toType {
				return fmt.Errorf("source and target provider are both %q", fromType)
			}

			from, err := storage.Open(fromType, dataDir, cfg.Storage.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open source: %w", err)
			}
			defer from.Close() //nolint:errcheck // read-only after migration
			if err := from.Init(cmd.Context()); err != nil {
				return fmt.Errorf("initialize source: %w", err)
			}

			to, err := storage.Open(toType, dataDir, toURL)
			if err != nil {
				return fmt.Errorf("open target: %w", err)
			}
			defer to.Close() //nolint:errcheck // flushed by Migrate

			if err := storage.Migrate(cmd.Context(), from, to); err != nil {
				return err
			}
			cmd.Printf("migrated %s -> %s\n", from.Name(), to.Name())
			cmd.Println("update storage.type in the config before restarting the server")
			return nil
		},
	}
	cmd.Flags().StringVar(&fromType, "from", "", "source provider (default: configured storage.type)")
	cmd.Flags().StringVar(&toType, "to", "", "target provider (json, sqlite or postgres)")
	cmd.Flags().StringVar(&toURL, "to-url", "", "target postgres connection string")
	//nolint:errcheck // flag registered above
	cmd.MarkFlagRequired("to")
	return cmd
}
