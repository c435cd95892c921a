// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package civ

import (
	"fmt"
	"time"
)

// Capability is an action class a trust grant can allow on a claim.
type Capability string

// Trust capabilities. CapAll is the catch-all that matches any capability.
const (
	CapBuild        Capability = "BUILD"
	CapContainer    Capability = "CONTAINER"
	CapInteract     Capability = "INTERACT"
	CapUse          Capability = "USE"
	CapAccess       Capability = "ACCESS"
	CapRedstone     Capability = "REDSTONE"
	CapKillMonsters Capability = "KILL_MONSTERS"
	CapKillAnimals  Capability = "KILL_ANIMALS"
	CapManage       Capability = "MANAGE"
	CapAll          Capability = "ALL"
)

// TrustGrant is a time-boxed capability grant on a claim to a specific
// non-member player. A zero ExpiresAt means the grant never expires.
type TrustGrant struct {
	PlayerID     string       `json:"player_id"`
	Capabilities []Capability `json:"capabilities"`
	ExpiresAt    time.Time    `json:"expires_at,omitzero"`
}

// Allows reports whether the grant covers the capability at the given time.
// Expired grants allow nothing.
func (g TrustGrant) Allows(cap Capability, now time.Time) bool {
	if g.Expired(now) {
		return false
	}
	for _, c := range g.Capabilities {
		if c == CapAll || c == cap {
			return true
		}
	}
	return false
}

// Expired reports whether the grant has lapsed.
func (g TrustGrant) Expired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && now.After(g.ExpiresAt)
}

// ClaimKey builds the globally unique key for a chunk: "world:x:z".
func ClaimKey(world string, chunkX, chunkZ int) string {
	return fmt.Sprintf("%s:%d:%d", world, chunkX, chunkZ)
}

// Claim is exclusive ownership of one world-grid cell by a civilization,
// carrying a permission policy and per-player trust grants.
type Claim struct {
	World     string                `json:"world"`
	ChunkX    int                   `json:"chunk_x"`
	ChunkZ    int                   `json:"chunk_z"`
	CivID     string                `json:"civ_id"`
	Flags     ClaimFlags            `json:"flags"`
	Trusts    map[string]TrustGrant `json:"trusts,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// NewClaim creates a claim with default flags.
func NewClaim(world string, chunkX, chunkZ int, civID string) *Claim {
	return &Claim{
		World:     world,
		ChunkX:    chunkX,
		ChunkZ:    chunkZ,
		CivID:     civID,
		Flags:     DefaultClaimFlags(),
		Trusts:    make(map[string]TrustGrant),
		CreatedAt: time.Now(),
	}
}

// Key returns the claim's unique key.
func (c *Claim) Key() string {
	return ClaimKey(c.World, c.ChunkX, c.ChunkZ)
}

// Trusted reports whether the player holds an unexpired grant covering
// the capability. Expired grants are pruned as a side effect; reads are
// the only place lapsed grants get cleaned up.
func (c *Claim) Trusted(playerID string, cap Capability, now time.Time) bool {
	c.PruneExpiredTrusts(now)
	g, ok := c.Trusts[playerID]
	return ok && g.Allows(cap, now)
}

// Trust replaces any existing grant for the player.
func (c *Claim) Trust(grant TrustGrant) {
	if c.Trusts == nil {
		c.Trusts = make(map[string]TrustGrant)
	}
	c.Trusts[grant.PlayerID] = grant
}

// Untrust removes the player's grant, reporting whether one existed.
func (c *Claim) Untrust(playerID string) bool {
	_, ok := c.Trusts[playerID]
	delete(c.Trusts, playerID)
	return ok
}

// PruneExpiredTrusts drops lapsed grants.
func (c *Claim) PruneExpiredTrusts(now time.Time) {
	for id, g := range c.Trusts {
		if g.Expired(now) {
			delete(c.Trusts, id)
		}
	}
}
