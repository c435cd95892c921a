// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine

import (
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/civgrid/civgrid/internal/civ"
)

// moveTolerance is how far a player may drift during warmup before the
// teleport cancels, in blocks.
const moveTolerance = 0.5

// pendingTeleport is one player's outstanding warmup.
type pendingTeleport struct {
	civID   string
	home    civ.Home
	origin  Position
	readyAt time.Time
}

// HomeService runs home teleports: a cancellable warmup with a movement
// check each tick, then a per-player cooldown. The host drives it with
// Tick; nothing here blocks.
type HomeService struct {
	d          Deps
	civs       *CivilizationEngine
	presence   PresenceProvider
	teleporter Teleporter

	mu        sync.Mutex
	pending   map[string]*pendingTeleport
	cooldowns map[string]time.Time
}

// NewHomeService creates the service. With a nil presence provider or
// teleporter, Request always fails.
func NewHomeService(d Deps, civs *CivilizationEngine, presence PresenceProvider, teleporter Teleporter) *HomeService {
	return &HomeService{
		d:          d.normalize(),
		civs:       civs,
		presence:   presence,
		teleporter: teleporter,
		pending:    make(map[string]*pendingTeleport),
		cooldowns:  make(map[string]time.Time),
	}
}

// Request starts a warmup for the player's civilization home. An
// outstanding warmup for the same player is replaced. Needs the
// use_home permission, a set home, an online player and a lapsed
// cooldown.
func (s *HomeService) Request(playerID string, now time.Time) error {
	if s.presence == nil || s.teleporter == nil {
		return oops.Errorf("home teleports are not wired on this host")
	}
	c, ok := s.d.Repo.PlayerCivilization(playerID)
	if !ok {
		return ErrNotInCivilization
	}
	if !RoleHolds(c.Role(playerID), PermUseHome) {
		return oops.With("operation", "use_home").Wrap(civ.ErrPermissionDenied)
	}
	if c.Home == nil {
		return ErrHomeNotSet
	}
	pos, online := s.presence.Position(playerID)
	if !online {
		return oops.Errorf("player %s is not online", playerID)
	}

	cfg := s.d.Config.Current()
	s.mu.Lock()
	defer s.mu.Unlock()
	if until, cooling := s.cooldowns[playerID]; cooling && now.Before(until) {
		return ErrTeleportOnCooldown
	}
	s.pending[playerID] = &pendingTeleport{
		civID:   c.ID,
		home:    *c.Home,
		origin:  pos,
		readyAt: now.Add(cfg.Home.Warmup),
	}
	return nil
}

// Cancel drops the player's outstanding warmup, reporting whether one
// existed.
func (s *HomeService) Cancel(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[playerID]
	delete(s.pending, playerID)
	return ok
}

// Tick advances every outstanding warmup: players who logged off or
// moved beyond the tolerance are cancelled, ripe warmups teleport and
// start the cooldown. Returns how many teleports fired.
func (s *HomeService) Tick(now time.Time) int {
	cfg := s.d.Config.Current()

	s.mu.Lock()
	defer s.mu.Unlock()

	fired := 0
	for playerID, p := range s.pending {
		pos, online := s.presence.Position(playerID)
		if !online {
			delete(s.pending, playerID)
			continue
		}
		if pos.DistanceSq(p.origin) > moveTolerance*moveTolerance {
			delete(s.pending, playerID)
			s.d.Notify.Notify(playerID, "Teleport cancelled, you moved")
			continue
		}
		if now.Before(p.readyAt) {
			continue
		}

		delete(s.pending, playerID)
		if err := s.teleporter.Teleport(playerID, p.home); err != nil {
			s.d.Log.Error("home teleport failed", "player", playerID, "error", err)
			continue
		}
		s.cooldowns[playerID] = now.Add(cfg.Home.Cooldown)
		fired++
	}
	return fired
}
