// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine

import (
	"context"
	"time"
)

// Scheduler is the periodic housekeeping pass: expired invitations are
// purged, warmed-up wars activate, taxes are collected, home warmups
// advance. One call per server tick; every step is non-blocking.
type Scheduler struct {
	d        Deps
	conflict *ConflictEngine
	ledger   *LedgerEngine
	home     *HomeService
}

// NewScheduler wires the scheduler over the engine set.
func NewScheduler(d Deps, engines *Engines) *Scheduler {
	return &Scheduler{
		d:        d.normalize(),
		conflict: engines.Conflict,
		ledger:   engines.Ledger,
		home:     engines.Home,
	}
}

// Tick runs one housekeeping pass.
func (s *Scheduler) Tick(now time.Time) {
	if purged := s.d.Repo.PurgeExpiredInvitations(now); purged > 0 {
		s.d.Log.Debug("expired invitations purged", "count", purged)
	}
	s.conflict.ActivateDue(now)
	s.ledger.CollectTaxes(now)
	if s.home != nil {
		s.home.Tick(now)
	}
}

// Run ticks at the given interval until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}
