// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine

import "github.com/civgrid/civgrid/internal/civ"

// Hooks are callbacks the host server registers to veto or observe
// engine operations. The *ing hooks run before commit and cancel the
// operation by returning an error; the past-tense hooks run after
// commit and are notify-only. Nil fields are skipped. Hooks run
// synchronously on the calling goroutine.
type Hooks struct {
	CivilizationCreating   func(name, founderID string) error
	CivilizationCreated    func(c *civ.Civilization)
	CivilizationDisbanding func(c *civ.Civilization) error
	CivilizationDisbanded  func(c *civ.Civilization)
	CivilizationRenamed    func(c *civ.Civilization, oldName string)

	MemberInviting func(civID, targetID string) error
	MemberJoining  func(civID, playerID string) error
	MemberLeft     func(civID, playerID string)
	MemberKicked   func(civID, playerID string)

	ClaimCreating func(c *civ.Claim) error
	ClaimDeleted  func(c *civ.Claim)
}

func (h *Hooks) creating(name, founderID string) error {
	if h == nil || h.CivilizationCreating == nil {
		return nil
	}
	return h.CivilizationCreating(name, founderID)
}

func (h *Hooks) created(c *civ.Civilization) {
	if h != nil && h.CivilizationCreated != nil {
		h.CivilizationCreated(c)
	}
}

func (h *Hooks) disbanding(c *civ.Civilization) error {
	if h == nil || h.CivilizationDisbanding == nil {
		return nil
	}
	return h.CivilizationDisbanding(c)
}

func (h *Hooks) disbanded(c *civ.Civilization) {
	if h != nil && h.CivilizationDisbanded != nil {
		h.CivilizationDisbanded(c)
	}
}

func (h *Hooks) renamed(c *civ.Civilization, oldName string) {
	if h != nil && h.CivilizationRenamed != nil {
		h.CivilizationRenamed(c, oldName)
	}
}

func (h *Hooks) inviting(civID, targetID string) error {
	if h == nil || h.MemberInviting == nil {
		return nil
	}
	return h.MemberInviting(civID, targetID)
}

func (h *Hooks) joining(civID, playerID string) error {
	if h == nil || h.MemberJoining == nil {
		return nil
	}
	return h.MemberJoining(civID, playerID)
}

func (h *Hooks) left(civID, playerID string) {
	if h != nil && h.MemberLeft != nil {
		h.MemberLeft(civID, playerID)
	}
}

func (h *Hooks) kicked(civID, playerID string) {
	if h != nil && h.MemberKicked != nil {
		h.MemberKicked(civID, playerID)
	}
}

func (h *Hooks) claimCreating(c *civ.Claim) error {
	if h == nil || h.ClaimCreating == nil {
		return nil
	}
	return h.ClaimCreating(c)
}

func (h *Hooks) claimDeleted(c *civ.Claim) {
	if h != nil && h.ClaimDeleted != nil {
		h.ClaimDeleted(c)
	}
}
