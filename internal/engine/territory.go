// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/samber/oops"

	"github.com/civgrid/civgrid/internal/civ"
)

// chunkSize is the side length of one world-grid cell in blocks.
const chunkSize = 16

// chunkOf maps block coordinates to chunk coordinates.
func chunkOf(x, z float64) (int, int) {
	return int(math.Floor(x / chunkSize)), int(math.Floor(z / chunkSize))
}

// TerritoryEngine owns chunk claims: acquisition, release, the
// permission algebra and trust grants.
type TerritoryEngine struct {
	d      Deps
	civs   *CivilizationEngine
	bypass *bypassSet
}

// NewTerritoryEngine creates the engine.
func NewTerritoryEngine(d Deps, civs *CivilizationEngine) *TerritoryEngine {
	return &TerritoryEngine{d: d.normalize(), civs: civs, bypass: newBypassSet()}
}

// SetBypass exempts (or re-subjects) a player from claim permission
// checks. Administrative.
func (e *TerritoryEngine) SetBypass(playerID string, on bool) {
	e.bypass.set(playerID, on)
	e.d.Log.Info("claim bypass changed", "player", playerID, "bypass", on)
}

// Claim acquires the chunk for the player's civilization. The cost
// comes out of the claimant's own balance, not the civilization bank.
// The checks run cheapest-first; money only moves once the free checks
// passed, and any failure after the debit refunds it.
func (e *TerritoryEngine) Claim(ctx context.Context, playerID, world string, chunkX, chunkZ int) ClaimResult {
	cfg := e.d.Config.Current()

	c, ok := e.d.Repo.PlayerCivilization(playerID)
	if !ok {
		return e.count(ClaimNotInCivilization)
	}
	if !RoleHolds(c.Role(playerID), PermClaim) {
		return e.count(ClaimNoPermission)
	}
	if e.d.Repo.ClaimCount(c.ID) >= cfg.ClaimLimit(c.Level) {
		return e.count(ClaimLimitReached)
	}

	key := civ.ClaimKey(world, chunkX, chunkZ)
	if _, taken := e.d.Repo.Claim(key); taken {
		return e.count(ClaimAlreadyClaimed)
	}
	if !cfg.WorldClaimable(world) {
		return e.count(ClaimWorldNotClaimable)
	}

	if err := e.d.Currency.Withdraw(ctx, playerID, cfg.Economy.ClaimCost); err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return e.count(ClaimInsufficientFunds)
		}
		e.d.Log.Error("claim debit failed", "player", playerID, "key", key, "error", err)
		return e.count(ClaimError)
	}
	refund := func() {
		if err := e.d.Currency.Deposit(ctx, playerID, cfg.Economy.ClaimCost); err != nil {
			e.d.Log.Error("claim refund failed",
				"player", playerID, "key", key, "amount", cfg.Economy.ClaimCost, "error", err)
		}
	}

	if cfg.Claims.RequireAdjacency && e.d.Repo.ClaimCount(c.ID) > 0 && !e.adjacentOwned(c.ID, world, chunkX, chunkZ) {
		refund()
		return e.count(ClaimNotAdjacent)
	}

	// Insert under the civ lock so a concurrent claim cannot slip
	// between the taken check and the write.
	result := ClaimError
	err := e.d.Repo.WithCiv(c.ID, func(locked *civ.Civilization) error {
		if _, taken := e.d.Repo.Claim(key); taken {
			result = ClaimAlreadyClaimed
			return errors.New("claimed concurrently")
		}

		claim := civ.NewClaim(world, chunkX, chunkZ, locked.ID)
		if err := e.d.Hooks.claimCreating(claim); err != nil {
			result = ClaimError
			return oops.Wrapf(ErrOperationVetoed, "%v", err)
		}

		e.d.Repo.PutClaim(claim)
		locked.Claims.Add(key)
		locked.AppendTransaction(civ.Transaction{
			ID:           civ.NewID(),
			Timestamp:    time.Now(),
			CivID:        locked.ID,
			ActorID:      playerID,
			Type:         civ.TxClaim,
			Amount:       cfg.Economy.ClaimCost,
			BalanceAfter: locked.BankBalance,
			Note:         "chunk claim " + key,
		})
		result = ClaimSuccess
		return nil
	})
	if err != nil {
		refund()
		if result == ClaimError {
			e.d.Log.Error("claim failed", "player", playerID, "key", key, "error", err)
		}
	}
	if result == ClaimSuccess {
		e.d.Log.Info("chunk claimed", "civ_id", c.ID, "key", key, "player", playerID)
	}
	return e.count(result)
}

// Unclaim releases the chunk. It must be owned by the caller's own
// civilization and the caller needs the unclaim permission.
func (e *TerritoryEngine) Unclaim(playerID, world string, chunkX, chunkZ int) UnclaimResult {
	key := civ.ClaimKey(world, chunkX, chunkZ)
	claim, ok := e.d.Repo.Claim(key)
	if !ok {
		return UnclaimNotClaimed
	}
	c, ok := e.d.Repo.PlayerCivilization(playerID)
	if !ok || c.ID != claim.CivID {
		return UnclaimNotOwner
	}
	if !RoleHolds(c.Role(playerID), PermUnclaim) {
		return UnclaimNoPermission
	}

	_ = e.d.Repo.WithCiv(c.ID, func(locked *civ.Civilization) error {
		locked.Claims.Remove(key)
		return nil
	})
	e.d.Repo.DeleteClaim(key)
	e.d.Hooks.claimDeleted(claim)
	e.d.Metrics.RecordOperation("unclaim", string(UnclaimSuccess))
	e.d.Log.Info("chunk unclaimed", "civ_id", c.ID, "key", key, "player", playerID)
	return UnclaimSuccess
}

// CanAct is the pure permission check for an action at a location:
// bypass first, then the wilderness default for unclaimed chunks, then
// owning-civ membership, then an unexpired trust grant, then deny. The
// trust check runs under the claim's record lock so the lazy expiry
// prune never races a concurrent grant change.
func (e *TerritoryEngine) CanAct(playerID, world string, chunkX, chunkZ int, cap civ.Capability) bool {
	if e.bypass.has(playerID) {
		return true
	}
	allowed := false
	found := e.d.Repo.ViewClaim(civ.ClaimKey(world, chunkX, chunkZ), func(claim *civ.Claim) {
		if c, member := e.d.Repo.PlayerCivilization(playerID); member && c.ID == claim.CivID {
			allowed = true
			return
		}
		allowed = claim.Trusted(playerID, cap, time.Now())
	})
	if !found {
		return e.d.Config.Current().Claims.WildernessAllow
	}
	return allowed
}

// Trust grants a non-member capabilities on one claim, optionally
// time-boxed. Leader or officer of the owning civilization.
func (e *TerritoryEngine) Trust(actorID, world string, chunkX, chunkZ int, grant civ.TrustGrant) error {
	key := civ.ClaimKey(world, chunkX, chunkZ)
	claim, ok := e.d.Repo.Claim(key)
	if !ok {
		return oops.With("operation", "trust").Wrap(civ.ErrNotFound)
	}
	if !e.civs.HasPermission(actorID, claim.CivID, PermManageClaims) {
		return oops.With("operation", "trust").Wrap(civ.ErrPermissionDenied)
	}
	err := e.d.Repo.WithClaim(key, func(locked *civ.Claim) error {
		locked.Trust(grant)
		return nil
	})
	if err != nil {
		return oops.With("operation", "trust").Wrap(err)
	}
	e.d.Log.Info("trust granted", "key", key, "player", grant.PlayerID, "actor", actorID)
	return nil
}

// Untrust revokes a player's grant on one claim.
func (e *TerritoryEngine) Untrust(actorID, world string, chunkX, chunkZ int, playerID string) error {
	key := civ.ClaimKey(world, chunkX, chunkZ)
	claim, ok := e.d.Repo.Claim(key)
	if !ok {
		return oops.With("operation", "untrust").Wrap(civ.ErrNotFound)
	}
	if !e.civs.HasPermission(actorID, claim.CivID, PermManageClaims) {
		return oops.With("operation", "untrust").Wrap(civ.ErrPermissionDenied)
	}
	err := e.d.Repo.WithClaim(key, func(locked *civ.Claim) error {
		if !locked.Untrust(playerID) {
			return civ.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return oops.With("operation", "untrust").Wrap(err)
	}
	return nil
}

// adjacentOwned reports whether one of the four orthogonal neighbors in
// the same world belongs to the civilization.
func (e *TerritoryEngine) adjacentOwned(civID, world string, chunkX, chunkZ int) bool {
	neighbors := [4][2]int{
		{chunkX + 1, chunkZ},
		{chunkX - 1, chunkZ},
		{chunkX, chunkZ + 1},
		{chunkX, chunkZ - 1},
	}
	for _, n := range neighbors {
		if claim, ok := e.d.Repo.Claim(civ.ClaimKey(world, n[0], n[1])); ok && claim.CivID == civID {
			return true
		}
	}
	return false
}

func (e *TerritoryEngine) count(r ClaimResult) ClaimResult {
	e.d.Metrics.RecordOperation("claim", string(r))
	return r
}
