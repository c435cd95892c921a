// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civgrid/civgrid/internal/civ"
	"github.com/civgrid/civgrid/internal/config"
	"github.com/civgrid/civgrid/internal/engine"
)

func fund(t *testing.T, h *harness, c *civ.Civilization, amount float64) {
	t.Helper()
	require.NoError(t, h.repo.WithCiv(c.ID, func(locked *civ.Civilization) error {
		locked.BankBalance = amount
		return nil
	}))
}

func TestClaimChain(t *testing.T) {
	ctx := context.Background()

	t.Run("not in civilization", func(t *testing.T) {
		h := newHarness(t, nil)
		got := h.engines.Territory.Claim(ctx, "stranger", "overworld", 0, 0)
		assert.Equal(t, engine.ClaimNotInCivilization, got)
	})

	t.Run("recruit has no permission", func(t *testing.T) {
		h := newHarness(t, nil)
		rome := h.founded(t, "Rome", "romulus")
		rome.AddMember("numa", civ.RoleRecruit)
		h.repo.IndexPlayer("numa", rome.ID)
		got := h.engines.Territory.Claim(ctx, "numa", "overworld", 0, 0)
		assert.Equal(t, engine.ClaimNoPermission, got)
	})

	t.Run("first claim needs no adjacency", func(t *testing.T) {
		h := newHarness(t, nil)
		rome := h.founded(t, "Rome", "romulus")
		h.currency.balances["romulus"] = 1000
		got := h.engines.Territory.Claim(ctx, "romulus", "overworld", 5, 5)
		assert.Equal(t, engine.ClaimSuccess, got)

		claim, ok := h.repo.Claim(civ.ClaimKey("overworld", 5, 5))
		require.True(t, ok)
		assert.Equal(t, rome.ID, claim.CivID)
		assert.Equal(t, 1000-h.cfg.Economy.ClaimCost, h.currency.balances["romulus"],
			"cost comes out of the claimant's pocket")
		locked, _ := h.repo.Civilization(rome.ID)
		assert.Zero(t, locked.BankBalance, "civilization bank untouched")
	})

	t.Run("empty civ bank does not block a funded claimant", func(t *testing.T) {
		h := newHarness(t, nil)
		rome := h.founded(t, "Rome", "romulus")
		h.currency.balances["romulus"] = 10000
		h.claimAt(t, rome, "overworld", 0, 0)

		got := h.engines.Territory.Claim(ctx, "romulus", "overworld", 1, 0)
		assert.Equal(t, engine.ClaimSuccess, got)
	})

	t.Run("already claimed", func(t *testing.T) {
		h := newHarness(t, nil)
		h.founded(t, "Rome", "romulus")
		carthage := h.founded(t, "Carthage", "dido")
		h.currency.balances["romulus"] = 1000
		h.claimAt(t, carthage, "overworld", 0, 0)

		got := h.engines.Territory.Claim(ctx, "romulus", "overworld", 0, 0)
		assert.Equal(t, engine.ClaimAlreadyClaimed, got)
	})

	t.Run("world not claimable", func(t *testing.T) {
		h := newHarness(t, func(c *config.Config) {
			c.Claims.ClaimableWorlds = []string{"overworld", "mining_*"}
		})
		h.founded(t, "Rome", "romulus")
		h.currency.balances["romulus"] = 1000

		assert.Equal(t, engine.ClaimWorldNotClaimable,
			h.engines.Territory.Claim(ctx, "romulus", "the_end", 0, 0))
		assert.Equal(t, engine.ClaimSuccess,
			h.engines.Territory.Claim(ctx, "romulus", "mining_alpha", 0, 0))
	})

	t.Run("insufficient funds", func(t *testing.T) {
		h := newHarness(t, nil)
		rome := h.founded(t, "Rome", "romulus")
		h.currency.balances["romulus"] = 10
		fund(t, h, rome, 100000)

		got := h.engines.Territory.Claim(ctx, "romulus", "overworld", 0, 0)
		assert.Equal(t, engine.ClaimInsufficientFunds, got,
			"a rich civilization bank does not cover a broke claimant")
	})

	t.Run("insufficient funds reported before adjacency", func(t *testing.T) {
		h := newHarness(t, nil)
		rome := h.founded(t, "Rome", "romulus")
		h.claimAt(t, rome, "overworld", 0, 0)

		got := h.engines.Territory.Claim(ctx, "romulus", "overworld", 5, 5)
		assert.Equal(t, engine.ClaimInsufficientFunds, got)
	})

	t.Run("adjacency enforced after first claim", func(t *testing.T) {
		h := newHarness(t, nil)
		rome := h.founded(t, "Rome", "romulus")
		h.currency.balances["romulus"] = 10000
		h.claimAt(t, rome, "overworld", 0, 0)

		assert.Equal(t, engine.ClaimNotAdjacent,
			h.engines.Territory.Claim(ctx, "romulus", "overworld", 2, 0), "diagonal gap")
		assert.Equal(t, engine.ClaimNotAdjacent,
			h.engines.Territory.Claim(ctx, "romulus", "overworld", 1, 1), "diagonal is not adjacent")
		assert.Equal(t, float64(10000), h.currency.balances["romulus"],
			"rejected attempts are refunded")
		assert.Equal(t, engine.ClaimSuccess,
			h.engines.Territory.Claim(ctx, "romulus", "overworld", 1, 0), "orthogonal neighbor")
	})

	t.Run("adjacency ignores other worlds", func(t *testing.T) {
		h := newHarness(t, nil)
		rome := h.founded(t, "Rome", "romulus")
		h.currency.balances["romulus"] = 10000
		h.claimAt(t, rome, "overworld", 0, 0)

		got := h.engines.Territory.Claim(ctx, "romulus", "nether", 1, 0)
		assert.Equal(t, engine.ClaimNotAdjacent, got)
	})

	t.Run("claim limit from level table", func(t *testing.T) {
		h := newHarness(t, func(c *config.Config) {
			c.Upgrades = map[int]config.UpgradeLevel{1: {ClaimsMax: 2, Cost: 0}}
		})
		rome := h.founded(t, "Rome", "romulus")
		h.currency.balances["romulus"] = 10000
		h.claimAt(t, rome, "overworld", 0, 0)
		h.claimAt(t, rome, "overworld", 1, 0)

		got := h.engines.Territory.Claim(ctx, "romulus", "overworld", 2, 0)
		assert.Equal(t, engine.ClaimLimitReached, got)
	})
}

func TestUnclaim(t *testing.T) {
	h := newHarness(t, nil)
	rome := h.founded(t, "Rome", "romulus")
	rome.AddMember("numa", civ.RoleRecruit)
	h.repo.IndexPlayer("numa", rome.ID)
	carthage := h.founded(t, "Carthage", "dido")
	claim := h.claimAt(t, rome, "overworld", 0, 0)

	assert.Equal(t, engine.UnclaimNotClaimed,
		h.engines.Territory.Unclaim("romulus", "overworld", 9, 9))
	assert.Equal(t, engine.UnclaimNotOwner,
		h.engines.Territory.Unclaim("dido", "overworld", 0, 0))
	assert.Equal(t, engine.UnclaimNoPermission,
		h.engines.Territory.Unclaim("numa", "overworld", 0, 0))

	assert.Equal(t, engine.UnclaimSuccess,
		h.engines.Territory.Unclaim("romulus", "overworld", 0, 0))
	_, ok := h.repo.Claim(claim.Key())
	assert.False(t, ok)
	got, _ := h.repo.Civilization(rome.ID)
	assert.False(t, got.Claims.Has(claim.Key()))
	_ = carthage
}

func TestCanAct(t *testing.T) {
	h := newHarness(t, nil)
	rome := h.founded(t, "Rome", "romulus")
	rome.AddMember("remus", civ.RoleMember)
	h.repo.IndexPlayer("remus", rome.ID)
	h.claimAt(t, rome, "overworld", 0, 0)

	terr := h.engines.Territory

	t.Run("wilderness follows config", func(t *testing.T) {
		assert.True(t, terr.CanAct("stranger", "overworld", 9, 9, civ.CapBuild))
	})

	t.Run("members pass in own territory", func(t *testing.T) {
		assert.True(t, terr.CanAct("remus", "overworld", 0, 0, civ.CapBuild))
	})

	t.Run("outsiders denied", func(t *testing.T) {
		assert.False(t, terr.CanAct("stranger", "overworld", 0, 0, civ.CapBuild))
	})

	t.Run("bypass overrides everything", func(t *testing.T) {
		terr.SetBypass("admin", true)
		assert.True(t, terr.CanAct("admin", "overworld", 0, 0, civ.CapBuild))
		terr.SetBypass("admin", false)
		assert.False(t, terr.CanAct("admin", "overworld", 0, 0, civ.CapBuild))
	})
}

func TestCanActWildernessDeny(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Claims.WildernessAllow = false })
	assert.False(t, h.engines.Territory.CanAct("stranger", "overworld", 9, 9, civ.CapBuild))
}

func TestTrustGrants(t *testing.T) {
	h := newHarness(t, nil)
	rome := h.founded(t, "Rome", "romulus")
	rome.AddMember("remus", civ.RoleMember)
	h.repo.IndexPlayer("remus", rome.ID)
	h.claimAt(t, rome, "overworld", 0, 0)
	terr := h.engines.Territory

	// Members cannot manage trust, officers and the leader can.
	err := terr.Trust("remus", "overworld", 0, 0, civ.TrustGrant{
		PlayerID: "guest", Capabilities: []civ.Capability{civ.CapBuild},
	})
	require.ErrorIs(t, err, civ.ErrPermissionDenied)

	require.NoError(t, terr.Trust("romulus", "overworld", 0, 0, civ.TrustGrant{
		PlayerID:     "guest",
		Capabilities: []civ.Capability{civ.CapBuild, civ.CapContainer},
	}))

	assert.True(t, terr.CanAct("guest", "overworld", 0, 0, civ.CapBuild))
	assert.True(t, terr.CanAct("guest", "overworld", 0, 0, civ.CapContainer))
	assert.False(t, terr.CanAct("guest", "overworld", 0, 0, civ.CapRedstone),
		"grant covers only listed capabilities")

	require.NoError(t, terr.Untrust("romulus", "overworld", 0, 0, "guest"))
	assert.False(t, terr.CanAct("guest", "overworld", 0, 0, civ.CapBuild))
	require.ErrorIs(t, terr.Untrust("romulus", "overworld", 0, 0, "guest"), civ.ErrNotFound)
}

func TestTrustExpiry(t *testing.T) {
	h := newHarness(t, nil)
	rome := h.founded(t, "Rome", "romulus")
	h.claimAt(t, rome, "overworld", 0, 0)
	terr := h.engines.Territory

	require.NoError(t, terr.Trust("romulus", "overworld", 0, 0, civ.TrustGrant{
		PlayerID:     "guest",
		Capabilities: []civ.Capability{civ.CapAll},
		ExpiresAt:    time.Now().Add(-time.Second),
	}))

	assert.False(t, terr.CanAct("guest", "overworld", 0, 0, civ.CapBuild))

	claim, _ := h.repo.Claim(civ.ClaimKey("overworld", 0, 0))
	_, still := claim.Trusts["guest"]
	assert.False(t, still, "expired grant is pruned on read")
}

// Grant churn on one claim while permission checks hammer it: the
// claim record lock must keep the trust map consistent throughout.
func TestTrustConcurrentWithCanAct(t *testing.T) {
	h := newHarness(t, nil)
	rome := h.founded(t, "Rome", "romulus")
	h.claimAt(t, rome, "overworld", 0, 0)
	terr := h.engines.Territory

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 200 {
			grant := civ.TrustGrant{
				PlayerID:     "guest",
				Capabilities: []civ.Capability{civ.CapBuild},
			}
			if i%2 == 0 {
				// Expired grants exercise the lazy prune on the read side.
				grant.ExpiresAt = time.Now().Add(-time.Second)
			}
			assert.NoError(t, terr.Trust("romulus", "overworld", 0, 0, grant))
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			terr.CanAct("guest", "overworld", 0, 0, civ.CapBuild)
		}
	}()
	wg.Wait()
}

// The two-civilization scenario: Rome claims, Carthage members cannot
// act there, a trusted Carthaginian can, war does not change claims.
func TestRomeAndCarthage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	rome := h.founded(t, "Rome", "romulus")
	carthage := h.founded(t, "Carthage", "dido")
	carthage.AddMember("hannibal", civ.RoleMember)
	h.repo.IndexPlayer("hannibal", carthage.ID)
	h.currency.balances["romulus"] = 1000

	require.Equal(t, engine.ClaimSuccess,
		h.engines.Territory.Claim(ctx, "romulus", "overworld", 0, 0))

	assert.False(t, h.engines.Territory.CanAct("hannibal", "overworld", 0, 0, civ.CapBuild))

	require.NoError(t, h.engines.Territory.Trust("romulus", "overworld", 0, 0, civ.TrustGrant{
		PlayerID: "hannibal", Capabilities: []civ.Capability{civ.CapInteract},
	}))
	assert.True(t, h.engines.Territory.CanAct("hannibal", "overworld", 0, 0, civ.CapInteract))
	assert.False(t, h.engines.Territory.CanAct("hannibal", "overworld", 0, 0, civ.CapBuild))

	_, err := h.engines.Conflict.DeclareWar("dido", carthage.ID, rome.ID, "expansion")
	require.NoError(t, err)

	claim, ok := h.repo.Claim(civ.ClaimKey("overworld", 0, 0))
	require.True(t, ok, "war leaves claims untouched")
	assert.Equal(t, rome.ID, claim.CivID)
}
