// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package civ

import "strings"

// Role is a member's rank inside a civilization.
// The ladder, lowest to highest: RECRUIT < MEMBER < OFFICER < LEADER.
type Role int

const (
	// RoleNone means the player is not a member at all.
	RoleNone Role = iota
	// RoleRecruit is the entry rank for every new member.
	RoleRecruit
	// RoleMember is a full member.
	RoleMember
	// RoleOfficer may manage members, claims and the bank.
	RoleOfficer
	// RoleLeader is the single head of the civilization.
	RoleLeader
)

// String returns the canonical upper-case name of the role.
func (r Role) String() string {
	switch r {
	case RoleRecruit:
		return "RECRUIT"
	case RoleMember:
		return "MEMBER"
	case RoleOfficer:
		return "OFFICER"
	case RoleLeader:
		return "LEADER"
	default:
		return "NONE"
	}
}

// CanManage reports whether r outranks other. Equal ranks never manage
// each other; an officer cannot act on another officer.
func (r Role) CanManage(other Role) bool {
	return r > other
}

// ParseRole resolves a role name case-insensitively.
// Unknown names resolve to RoleRecruit, matching how persisted role
// labels from older data are treated.
func ParseRole(s string) Role {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LEADER":
		return RoleLeader
	case "OFFICER":
		return RoleOfficer
	case "MEMBER":
		return RoleMember
	default:
		return RoleRecruit
	}
}
