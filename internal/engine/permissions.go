// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine

import "github.com/civgrid/civgrid/internal/civ"

// Permission names an action a member may perform inside their
// civilization.
type Permission string

// Civilization permissions.
const (
	PermDisband            Permission = "disband"
	PermTransferLeadership Permission = "transfer_leadership"
	PermInvite             Permission = "invite"
	PermKickMembers        Permission = "kick_members"
	PermPromote            Permission = "promote"
	PermDemote             Permission = "demote"
	PermSetHome            Permission = "set_home"
	PermManageBank         Permission = "manage_bank"
	PermDeclareWar         Permission = "declare_war"
	PermManageClaims       Permission = "manage_claims"
	PermClaim              Permission = "claim"
	PermUnclaim            Permission = "unclaim"
	PermUseHome            Permission = "use_home"
)

// minRole is the lowest rank that holds each permission. Leader-only
// actions map to RoleLeader; management actions to RoleOfficer; everyday
// actions to RoleMember. Recruits hold no permissions.
var minRole = map[Permission]civ.Role{
	PermDisband:            civ.RoleLeader,
	PermTransferLeadership: civ.RoleLeader,
	PermInvite:             civ.RoleOfficer,
	PermKickMembers:        civ.RoleOfficer,
	PermPromote:            civ.RoleOfficer,
	PermDemote:             civ.RoleOfficer,
	PermSetHome:            civ.RoleOfficer,
	PermManageBank:         civ.RoleOfficer,
	PermDeclareWar:         civ.RoleOfficer,
	PermManageClaims:       civ.RoleOfficer,
	PermClaim:              civ.RoleMember,
	PermUnclaim:            civ.RoleMember,
	PermUseHome:            civ.RoleMember,
}

// RoleHolds reports whether a rank carries the permission.
func RoleHolds(r civ.Role, perm Permission) bool {
	need, known := minRole[perm]
	return known && r >= need
}
