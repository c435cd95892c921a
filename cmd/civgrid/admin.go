// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/civgrid/civgrid/internal/civ"
	"github.com/civgrid/civgrid/internal/config"
	"github.com/civgrid/civgrid/internal/engine"
	"github.com/civgrid/civgrid/internal/repo"
	"github.com/civgrid/civgrid/internal/storage"
	"github.com/civgrid/civgrid/internal/xdg"
)

// NewAdminCmd creates the admin command group. Admin commands open the
// store directly and must not run while a server holds it.
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative operations on the stored world state",
		Long: `Administrative operations: inspect, repair and adjust stored
civilizations. These commands open the storage provider directly;
stop the server first.`,
	}

	cmd.AddCommand(newAdminListCmd())
	cmd.AddCommand(newAdminInfoCmd())
	cmd.AddCommand(newAdminDeleteCmd())
	cmd.AddCommand(newAdminSetLevelCmd())
	cmd.AddCommand(newAdminSetBalanceCmd())
	cmd.AddCommand(newAdminAddBalanceCmd())
	cmd.AddCommand(newAdminForceJoinCmd())

	return cmd
}

// adminSession is an opened repository plus everything needed to flush
// and close it again.
type adminSession struct {
	store  *config.Store
	repo   *repo.Repository
	civs   *engine.CivilizationEngine
	ledger *engine.LedgerEngine
}

// openAdminSession loads the world state for offline administration.
func openAdminSession(ctx context.Context, cmd *cobra.Command) (*adminSession, func(), error) {
	store, err := config.NewStore(configFile, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	cfg := store.Current()

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = xdg.DataDir()
	}

	provider, err := storage.Open(cfg.Storage.Type, dataDir, cfg.Storage.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := provider.Init(ctx); err != nil {
		return nil, nil, err
	}

	r := repo.New(provider, slog.Default(), nil)
	if err := r.Load(ctx); err != nil {
		_ = provider.Close()
		return nil, nil, err
	}
	r.Start()

	engines := engine.New(engine.Deps{Repo: r, Config: store}, nil, nil)

	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.Flush(closeCtx); err != nil {
			cmd.PrintErrln("flush failed:", err)
		}
		if err := r.Close(closeCtx); err != nil {
			cmd.PrintErrln("close failed:", err)
		}
		if err := provider.Close(); err != nil {
			cmd.PrintErrln("provider close failed:", err)
		}
	}
	return &adminSession{store: store, repo: r, civs: engines.Civilization, ledger: engines.Ledger}, cleanup, nil
}

// mustCiv resolves a civilization by name.
func (s *adminSession) mustCiv(name string) (*civ.Civilization, error) {
	c, ok := s.repo.CivilizationByName(name)
	if !ok {
		return nil, fmt.Errorf("no civilization named %q", name)
	}
	return c, nil
}

func newAdminListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all civilizations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, cleanup, err := openAdminSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			civs := s.repo.Civilizations()
			sort.Slice(civs, func(i, j int) bool { return civs[i].Name < civs[j].Name })
			for _, c := range civs {
				cmd.Printf("%-20s level=%d members=%d claims=%d bank=%.2f\n",
					c.Name, c.Level, c.MemberCount(), s.repo.ClaimCount(c.ID), c.BankBalance)
			}
			cmd.Printf("%d civilization(s)\n", len(civs))
			return nil
		},
	}
}

func newAdminInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show one civilization in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openAdminSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			c, err := s.mustCiv(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("id:       %s\n", c.ID)
			cmd.Printf("name:     %s\n", c.Name)
			cmd.Printf("level:    %d\n", c.Level)
			cmd.Printf("leader:   %s\n", c.LeaderID)
			cmd.Printf("officers: %v\n", c.Officers.Values())
			cmd.Printf("members:  %v\n", c.Members.Values())
			cmd.Printf("recruits: %v\n", c.Recruits.Values())
			cmd.Printf("bank:     %.2f (tax debt %.2f)\n", c.BankBalance, c.TaxDebt)
			cmd.Printf("claims:   %d\n", s.repo.ClaimCount(c.ID))
			cmd.Printf("allies:   %v\n", c.Allies.Values())
			cmd.Printf("wars:     %v\n", c.Wars.Values())
			if c.Home != nil {
				cmd.Printf("home:     %s (%.1f, %.1f, %.1f)\n", c.Home.World, c.Home.X, c.Home.Y, c.Home.Z)
			}
			return nil
		},
	}
}

func newAdminDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a civilization and everything it owns",
		Long: `Delete a civilization with the full disband cascade: its live wars
end, surviving allies drop the link, and its claims and pending
invitations go with it. The bank is not refunded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openAdminSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			c, err := s.mustCiv(args[0])
			if err != nil {
				return err
			}
			if err := s.civs.ForceDisband(c.ID); err != nil {
				return err
			}
			cmd.Printf("deleted %s (%s)\n", c.Name, c.ID)
			return nil
		},
	}
}

func newAdminSetLevelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-level <name> <level>",
		Short: "Set a civilization's level",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[1])
			if err != nil || level < 1 {
				return fmt.Errorf("level must be a positive integer, got %q", args[1])
			}

			s, cleanup, err := openAdminSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			c, err := s.mustCiv(args[0])
			if err != nil {
				return err
			}
			return s.repo.WithCiv(c.ID, func(locked *civ.Civilization) error {
				locked.Level = level
				cmd.Printf("%s is now level %d\n", locked.Name, level)
				return nil
			})
		},
	}
}

func newAdminSetBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-balance <name> <amount>",
		Short: "Overwrite a civilization's bank balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil || amount < 0 {
				return fmt.Errorf("amount must be a non-negative number, got %q", args[1])
			}

			s, cleanup, err := openAdminSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			c, err := s.mustCiv(args[0])
			if err != nil {
				return err
			}
			if err := s.ledger.SetBalance(c.ID, "console", amount); err != nil {
				return err
			}
			cmd.Printf("%s bank balance set to %.2f\n", c.Name, amount)
			return nil
		},
	}
}

func newAdminAddBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-balance <name> <delta>",
		Short: "Adjust a civilization's bank balance by a delta",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("delta must be a number, got %q", args[1])
			}

			s, cleanup, err := openAdminSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			c, err := s.mustCiv(args[0])
			if err != nil {
				return err
			}
			if err := s.ledger.AddBalance(c.ID, "console", delta); err != nil {
				return err
			}
			got, _ := s.repo.Civilization(c.ID)
			cmd.Printf("%s bank balance is now %.2f\n", got.Name, got.BankBalance)
			return nil
		},
	}
	// Flags only before the positionals, so a negative delta like -250
	// is not read as a shorthand flag.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newAdminForceJoinCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "force-join <player> <name>",
		Short: "Place a player into a civilization, bypassing invitations",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, name := args[0], args[1]

			s, cleanup, err := openAdminSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if existing, ok := s.repo.PlayerCivilization(playerID); ok {
				return fmt.Errorf("%s already belongs to %s", playerID, existing.Name)
			}
			c, err := s.mustCiv(name)
			if err != nil {
				return err
			}
			r := civ.ParseRole(role)
			if r == civ.RoleLeader {
				return fmt.Errorf("leadership transfers go through the game, not force-join")
			}
			if err := s.repo.WithCiv(c.ID, func(locked *civ.Civilization) error {
				locked.AddMember(playerID, r)
				return nil
			}); err != nil {
				return err
			}
			s.repo.IndexPlayer(playerID, c.ID)
			cmd.Printf("%s joined %s as %s\n", playerID, c.Name, r)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "recruit", "rank to assign (recruit, member or officer)")
	return cmd
}
