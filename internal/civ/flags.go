// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package civ

// TriState is an inheritable on/off flag.
type TriState string

// TriState values. Inherit defers to the world-level setting.
const (
	FlagOn      TriState = "ON"
	FlagOff     TriState = "OFF"
	FlagInherit TriState = "INHERIT"
)

// AccessLevel gates who may use a class of blocks inside a claim.
type AccessLevel string

// Access levels, most to least restrictive.
const (
	AccessMembersOnly   AccessLevel = "MEMBERS_ONLY"
	AccessAlliesAllowed AccessLevel = "ALLIES_ALLOWED"
	AccessPublic        AccessLevel = "PUBLIC"
)

// ClaimFlags is the per-claim permission and environment policy.
// The fields are plain data consulted directly by host-server hooks;
// only the defaults are policy.
//
// Explosion polarity: ExplosionsAllowed == false means explosions do no
// damage inside the claim. This is the single polarity used everywhere;
// the default is blocked, the protective choice.
type ClaimFlags struct {
	PvP               TriState    `json:"pvp"`
	Interact          AccessLevel `json:"interact"`
	Containers        AccessLevel `json:"containers"`
	Redstone          AccessLevel `json:"redstone"`
	ExplosionsAllowed bool        `json:"explosions_allowed"`
	FireSpread        bool        `json:"fire_spread"`
	BlockSpread       bool        `json:"block_spread"`
	FluidFlow         bool        `json:"fluid_flow"`
	HostileSpawn      bool        `json:"hostile_spawn"`
	PassiveSpawn      bool        `json:"passive_spawn"`
	ItemDrop          bool        `json:"item_drop"`
	ItemPickup        bool        `json:"item_pickup"`
	TeleportIn        bool        `json:"teleport_in"`
	BlockForm         bool        `json:"block_form"`
	EntryMessage      string      `json:"entry_message,omitempty"`
	ExitMessage       string      `json:"exit_message,omitempty"`
}

// DefaultClaimFlags returns the policy a fresh claim starts with:
// PvP inherits the world setting, block access is members-only,
// environmental spread and explosions are blocked, mob spawning and
// item handling are allowed.
func DefaultClaimFlags() ClaimFlags {
	return ClaimFlags{
		PvP:               FlagInherit,
		Interact:          AccessMembersOnly,
		Containers:        AccessMembersOnly,
		Redstone:          AccessMembersOnly,
		ExplosionsAllowed: false,
		FireSpread:        false,
		BlockSpread:       false,
		FluidFlow:         false,
		HostileSpawn:      true,
		PassiveSpawn:      true,
		ItemDrop:          true,
		ItemPickup:        true,
		TeleportIn:        true,
		BlockForm:         true,
	}
}
