// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

// Package storage provides durable persistence for the four CivGrid
// collections behind one Provider contract. Three interchangeable
// backing stores exist: flat JSON files, an embedded SQLite database,
// and PostgreSQL.
package storage

import (
	"context"

	"github.com/samber/oops"

	"github.com/civgrid/civgrid/internal/civ"
)

// Provider is the persistence contract. Collections are keyed by entity
// ID, except claims which are keyed by "world:chunkX:chunkZ".
//
// Save-all operations replace the whole collection atomically where the
// backing store allows (write-temp-then-rename, transaction). Save-one
// and delete-one operations are upserts/removals of a single record.
type Provider interface {
	// Name identifies the provider type ("json", "sqlite", "postgres").
	Name() string

	// Init prepares the backing store (directories, schema).
	Init(ctx context.Context) error

	// Close releases resources. Callers flush before closing.
	Close() error

	LoadCivilizations(ctx context.Context) (map[string]*civ.Civilization, error)
	SaveCivilizations(ctx context.Context, all map[string]*civ.Civilization) error
	SaveCivilization(ctx context.Context, c *civ.Civilization) error
	DeleteCivilization(ctx context.Context, id string) error

	LoadClaims(ctx context.Context) (map[string]*civ.Claim, error)
	SaveClaims(ctx context.Context, all map[string]*civ.Claim) error
	SaveClaim(ctx context.Context, c *civ.Claim) error
	DeleteClaim(ctx context.Context, key string) error

	LoadWars(ctx context.Context) (map[string]*civ.War, error)
	SaveWars(ctx context.Context, all map[string]*civ.War) error
	SaveWar(ctx context.Context, w *civ.War) error
	DeleteWar(ctx context.Context, id string) error

	LoadInvitations(ctx context.Context) (map[string]*civ.Invitation, error)
	SaveInvitations(ctx context.Context, all map[string]*civ.Invitation) error
	SaveInvitation(ctx context.Context, i *civ.Invitation) error
	DeleteInvitation(ctx context.Context, id string) error

	// Backup snapshots all four collections with a timestamped suffix,
	// keeping only the most recent retain snapshots.
	Backup(ctx context.Context, retain int) error
}

// Migrate copies everything from one provider to another: read all,
// back up the source, initialize the target, then write all four
// collections into the target. The write side uses save-all semantics so
// each collection lands whole or not at all.
func Migrate(ctx context.Context, from, to Provider) error {
	civs, err := from.LoadCivilizations(ctx)
	if err != nil {
		return oops.With("provider", from.Name()).Wrapf(err, "load civilizations")
	}
	claims, err := from.LoadClaims(ctx)
	if err != nil {
		return oops.With("provider", from.Name()).Wrapf(err, "load claims")
	}
	wars, err := from.LoadWars(ctx)
	if err != nil {
		return oops.With("provider", from.Name()).Wrapf(err, "load wars")
	}
	invites, err := from.LoadInvitations(ctx)
	if err != nil {
		return oops.With("provider", from.Name()).Wrapf(err, "load invitations")
	}

	if err := from.Backup(ctx, 1); err != nil {
		return oops.With("provider", from.Name()).Wrapf(err, "backup source")
	}
	if err := to.Init(ctx); err != nil {
		return oops.With("provider", to.Name()).Wrapf(err, "initialize target")
	}

	if err := to.SaveCivilizations(ctx, civs); err != nil {
		return oops.With("provider", to.Name()).Wrapf(err, "write civilizations")
	}
	if err := to.SaveClaims(ctx, claims); err != nil {
		return oops.With("provider", to.Name()).Wrapf(err, "write claims")
	}
	if err := to.SaveWars(ctx, wars); err != nil {
		return oops.With("provider", to.Name()).Wrapf(err, "write wars")
	}
	if err := to.SaveInvitations(ctx, invites); err != nil {
		return oops.With("provider", to.Name()).Wrapf(err, "write invitations")
	}
	return nil
}
