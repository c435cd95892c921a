// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

// Package engine implements the game rules on top of the repository:
// civilization lifecycle and membership, territorial claims and their
// permission algebra, wars, alliances, the civilization bank and
// invitations. Engines hold no state of their own beyond small caches;
// the repository is the store of record.
package engine

import (
	"log/slog"
	"sync"

	"github.com/civgrid/civgrid/internal/config"
	"github.com/civgrid/civgrid/internal/observability"
	"github.com/civgrid/civgrid/internal/repo"
)

// Deps bundles what every engine needs. Zero-value optional fields are
// replaced with no-op implementations by normalize.
type Deps struct {
	Repo     *repo.Repository
	Config   *config.Store
	Log      *slog.Logger
	Metrics  *observability.Metrics
	Hooks    *Hooks
	Currency CurrencyService
	Identity Identity
	Notify   Notifier
}

func (d Deps) normalize() Deps {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Hooks == nil {
		d.Hooks = &Hooks{}
	}
	if d.Currency == nil {
		d.Currency = NopCurrency{}
	}
	if d.Identity == nil {
		d.Identity = NopIdentity{}
	}
	if d.Notify == nil {
		d.Notify = NopNotifier{}
	}
	return d
}

// Engines wires the full engine set over one dependency bundle.
type Engines struct {
	Civilization *CivilizationEngine
	Territory    *TerritoryEngine
	Conflict     *ConflictEngine
	Ledger       *LedgerEngine
	Home         *HomeService
}

// New builds all engines. presence and teleporter may be nil when the
// host server does not drive home teleports.
func New(d Deps, presence PresenceProvider, teleporter Teleporter) *Engines {
	d = d.normalize()
	civE := NewCivilizationEngine(d)
	return &Engines{
		Civilization: civE,
		Territory:    NewTerritoryEngine(d, civE),
		Conflict:     NewConflictEngine(d, civE),
		Ledger:       NewLedgerEngine(d, civE),
		Home:         NewHomeService(d, civE, presence, teleporter),
	}
}

// notifyAll sends a message to every member of a civilization.
func notifyAll(n Notifier, members []string, msg string) {
	for _, id := range members {
		n.Notify(id, msg)
	}
}

// bypassSet is a concurrency-safe set of player IDs exempt from claim
// permission checks.
type bypassSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func newBypassSet() *bypassSet {
	return &bypassSet{ids: make(map[string]struct{})}
}

func (b *bypassSet) set(playerID string, on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if on {
		b.ids[playerID] = struct{}{}
	} else {
		delete(b.ids, playerID)
	}
}

func (b *bypassSet) has(playerID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.ids[playerID]
	return ok
}
