package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the CivGrid CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "civgrid",
		Short: "CivGrid - a persistent civilizations game server",
		Long: `CivGrid runs player civilizations over a chunked world grid:
membership and roles, territorial claims with trust grants, wars,
alliances and a civilization bank, persisted to JSON, SQLite or
PostgreSQL.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewAdminCmd())
	cmd.AddCommand(NewBackupCmd())
	cmd.AddCommand(NewMigrateStorageCmd())

	return cmd
}
