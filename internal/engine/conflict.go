// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/oops"

	"github.com/civgrid/civgrid/internal/civ"
)

// ConflictEngine owns the war state machine: declaration, warmup
// activation, ending and scorekeeping.
type ConflictEngine struct {
	d    Deps
	civs *CivilizationEngine
}

// NewConflictEngine creates the engine.
func NewConflictEngine(d Deps, civs *CivilizationEngine) *ConflictEngine {
	return &ConflictEngine{d: d.normalize(), civs: civs}
}

// DeclareWar opens hostilities between the declarer's civilization and
// the target. Declarer needs the declare_war permission; allied pairs
// and pairs with a live war are rejected. With a configured warmup the
// war starts PREPARING.
func (e *ConflictEngine) DeclareWar(declarerID, civID, targetCivID, reason string) (*civ.War, error) {
	cfg := e.d.Config.Current()
	if !cfg.War.Enabled {
		return nil, ErrWarDisabled
	}
	if civID == targetCivID {
		return nil, oops.Errorf("a civilization cannot declare war on itself")
	}
	if !e.civs.HasPermission(declarerID, civID, PermDeclareWar) {
		return nil, oops.With("operation", "declare_war").Wrap(civ.ErrPermissionDenied)
	}
	target, ok := e.d.Repo.Civilization(targetCivID)
	if !ok {
		return nil, oops.With("civ_id", targetCivID).Wrap(civ.ErrNotFound)
	}
	if e.civs.Allied(civID, targetCivID) {
		return nil, ErrCivsAllied
	}
	if _, live := e.d.Repo.LiveWarBetween(civID, targetCivID); live {
		return nil, ErrWarAlreadyLive
	}

	w := civ.NewWar(civID, targetCivID, reason, cfg.War.Warmup)
	e.d.Repo.PutWar(w)

	for _, id := range []string{civID, targetCivID} {
		_ = e.d.Repo.WithCiv(id, func(c *civ.Civilization) error {
			c.Wars.Add(w.ID)
			return nil
		})
	}

	declarer, _ := e.d.Repo.Civilization(civID)
	notifyAll(e.d.Notify, target.AllMembers(),
		fmt.Sprintf("%s has declared war on you", declarer.Name))
	e.d.Metrics.RecordOperation("declare_war", "SUCCESS")
	e.d.Log.Info("war declared",
		"war_id", w.ID, "civ_a", civID, "civ_b", targetCivID, "state", string(w.State))
	return w, nil
}

// errWarUnchanged aborts a WithWar mutation without persisting anything.
var errWarUnchanged = errors.New("war unchanged")

// ActivateDue promotes PREPARING wars whose warmup elapsed. Called from
// the scheduler tick; returns how many activated.
func (e *ConflictEngine) ActivateDue(now time.Time) int {
	activated := 0
	for _, w := range e.d.Repo.Wars() {
		err := e.d.Repo.WithWar(w.ID, func(locked *civ.War) error {
			if locked.State != civ.WarPreparing || now.Before(locked.WarmupEndsAt) {
				return errWarUnchanged
			}
			locked.State = civ.WarActive
			return nil
		})
		if err != nil {
			continue
		}
		activated++
		e.d.Log.Info("war activated", "war_id", w.ID, "civ_a", w.CivA, "civ_b", w.CivB)
	}
	return activated
}

// EndWar closes a war. Returns false when the war does not exist or is
// already over; ending is not reversible. Concurrent callers race for
// the war's record lock; exactly one wins.
func (e *ConflictEngine) EndWar(warID, reason string) bool {
	err := e.d.Repo.WithWar(warID, func(w *civ.War) error {
		if w.IsEnded() {
			return errWarUnchanged
		}
		w.State = civ.WarEnded
		w.EndedAt = time.Now()
		w.EndReason = reason
		return nil
	})
	if err != nil {
		return false
	}
	e.d.Metrics.RecordOperation("end_war", "SUCCESS")
	e.d.Log.Info("war ended", "war_id", warID, "reason", reason)
	return true
}

// AtWar reports whether the pair has an ACTIVE war right now. PREPARING
// does not count; hostilities have not started.
func (e *ConflictEngine) AtWar(civA, civB string) bool {
	w, ok := e.d.Repo.LiveWarBetween(civA, civB)
	return ok && w.IsActive()
}

// AddScore credits points to one belligerent of a live war.
func (e *ConflictEngine) AddScore(warID, civID string, points int) error {
	return e.d.Repo.WithWar(warID, func(w *civ.War) error {
		if !w.IsActive() {
			return oops.Errorf("war %s is not active", warID)
		}
		if !w.Involves(civID) {
			return oops.With("civ_id", civID).Wrap(civ.ErrNotFound)
		}
		w.AddScore(civID, points)
		return nil
	})
}
