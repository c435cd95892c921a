// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

// Package civ defines the domain entities for player civilizations:
// the civilizations themselves, territorial claims, wars, invitations
// and bank transactions. Entities carry no storage or engine logic;
// compound mutations are serialized by the repository's per-record locks.
package civ

import "time"

// Settings holds per-civilization policy knobs.
type Settings struct {
	PvPInternal  bool   `json:"pvp_internal"`
	TaxPercent   int    `json:"tax_percent"`
	InviteMode   string `json:"invite_mode"`
	EntryMessage string `json:"entry_message,omitempty"`
	ExitMessage  string `json:"exit_message,omitempty"`
	OfficerSlots int    `json:"officer_slots"`
}

// DefaultSettings returns the settings a new civilization starts with.
func DefaultSettings() Settings {
	return Settings{
		InviteMode:   "invite-only",
		OfficerSlots: 5,
	}
}

// Home is a named teleport anchor inside a civilization's territory.
type Home struct {
	World string  `json:"world"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float32 `json:"yaw"`
	Pitch float32 `json:"pitch"`
}

// Civilization is a named player organization with a role hierarchy,
// treasury and territory.
//
// Invariants: a player appears in at most one civilization system-wide,
// and within one civilization in at most one of leader/officers/members/
// recruits. BankBalance never goes negative. The Wars set is append-only
// history; only the war's own state marks liveness.
type Civilization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Level       int       `json:"level"`
	BankBalance float64   `json:"bank_balance"`
	LeaderID    string    `json:"leader_id"`
	Officers    Set       `json:"officers"`
	Members     Set       `json:"members"`
	Recruits    Set       `json:"recruits"`
	CreatedAt   time.Time `json:"created_at"`
	Home        *Home     `json:"home,omitempty"`
	Claims      Set       `json:"claims"`
	Allies      Set       `json:"allies"`
	Wars        Set       `json:"wars"`
	Settings    Settings  `json:"settings"`

	Transactions []Transaction `json:"transactions"`

	// Tax bookkeeping. LastTaxAt is the last successful collection;
	// TaxDebt accumulates when the bank cannot cover a collection.
	LastTaxAt      time.Time `json:"last_tax_at,omitzero"`
	LastTaxAttempt time.Time `json:"last_tax_attempt,omitzero"`
	TaxDebt        float64   `json:"tax_debt,omitempty"`
}

// NewCivilization creates a civilization with the founder as sole leader.
func NewCivilization(name, leaderID string) *Civilization {
	return &Civilization{
		ID:        NewID(),
		Name:      name,
		Level:     1,
		LeaderID:  leaderID,
		Officers:  NewSet(),
		Members:   NewSet(),
		Recruits:  NewSet(),
		Claims:    NewSet(),
		Allies:    NewSet(),
		Wars:      NewSet(),
		Settings:  DefaultSettings(),
		CreatedAt: time.Now(),
	}
}

// Role returns the player's rank, or RoleNone for non-members.
func (c *Civilization) Role(playerID string) Role {
	switch {
	case playerID == c.LeaderID:
		return RoleLeader
	case c.Officers.Has(playerID):
		return RoleOfficer
	case c.Members.Has(playerID):
		return RoleMember
	case c.Recruits.Has(playerID):
		return RoleRecruit
	default:
		return RoleNone
	}
}

// IsMember reports whether the player holds any rank, leader included.
func (c *Civilization) IsMember(playerID string) bool {
	return c.Role(playerID) != RoleNone
}

// AddMember places the player at the given rank, removing them from any
// other rank set first. RoleLeader is not assignable here; leadership
// changes go through SetLeader.
func (c *Civilization) AddMember(playerID string, role Role) {
	c.RemoveMember(playerID)
	switch role {
	case RoleOfficer:
		c.Officers.Add(playerID)
	case RoleMember:
		c.Members.Add(playerID)
	case RoleRecruit:
		c.Recruits.Add(playerID)
	}
}

// RemoveMember drops the player from every rank set. The leader slot is
// untouched; a leader leaves only via SetLeader or disband.
func (c *Civilization) RemoveMember(playerID string) {
	c.Officers.Remove(playerID)
	c.Members.Remove(playerID)
	c.Recruits.Remove(playerID)
}

// Promote moves the player up exactly one rung. RECRUIT becomes MEMBER,
// MEMBER becomes OFFICER. Officers and the leader are unchanged; LEADER
// is never a promotion target.
func (c *Civilization) Promote(playerID string) {
	switch c.Role(playerID) {
	case RoleRecruit:
		c.AddMember(playerID, RoleMember)
	case RoleMember:
		c.AddMember(playerID, RoleOfficer)
	}
}

// Demote moves the player down exactly one rung. OFFICER becomes MEMBER,
// MEMBER becomes RECRUIT. Recruits and the leader are unchanged.
func (c *Civilization) Demote(playerID string) {
	switch c.Role(playerID) {
	case RoleOfficer:
		c.AddMember(playerID, RoleMember)
	case RoleMember:
		c.AddMember(playerID, RoleRecruit)
	}
}

// SetLeader transfers leadership. The previous leader is demoted to
// OFFICER, not removed.
func (c *Civilization) SetLeader(playerID string) {
	old := c.LeaderID
	c.LeaderID = playerID
	c.RemoveMember(playerID)
	if old != "" && old != playerID {
		c.AddMember(old, RoleOfficer)
	}
}

// AllMembers returns every member ID including the leader.
func (c *Civilization) AllMembers() []string {
	all := NewSet()
	if c.LeaderID != "" {
		all.Add(c.LeaderID)
	}
	for id := range c.Officers {
		all.Add(id)
	}
	for id := range c.Members {
		all.Add(id)
	}
	for id := range c.Recruits {
		all.Add(id)
	}
	return all.Values()
}

// MemberCount returns the total head count including the leader.
func (c *Civilization) MemberCount() int {
	return len(c.AllMembers())
}

// Deposit increases the bank balance and appends a ledger entry.
// The caller must hold the civilization's record lock.
func (c *Civilization) Deposit(amount float64, actorID, note string) {
	c.BankBalance += amount
	c.AppendTransaction(Transaction{
		ID:           NewID(),
		Timestamp:    time.Now(),
		CivID:        c.ID,
		ActorID:      actorID,
		Type:         TxDeposit,
		Amount:       amount,
		BalanceAfter: c.BankBalance,
		Note:         note,
	})
}

// Withdraw decreases the bank balance and appends a ledger entry.
// Returns false without mutating anything if the balance is insufficient.
// The caller must hold the civilization's record lock.
func (c *Civilization) Withdraw(amount float64, actorID, note string) bool {
	if c.BankBalance < amount {
		return false
	}
	c.BankBalance -= amount
	c.AppendTransaction(Transaction{
		ID:           NewID(),
		Timestamp:    time.Now(),
		CivID:        c.ID,
		ActorID:      actorID,
		Type:         TxWithdraw,
		Amount:       amount,
		BalanceAfter: c.BankBalance,
		Note:         note,
	})
	return true
}

// AppendTransaction records a ledger entry, truncating history to the
// most recent MaxTransactionHistory entries.
func (c *Civilization) AppendTransaction(tx Transaction) {
	c.Transactions = append(c.Transactions, tx)
	if n := len(c.Transactions); n > MaxTransactionHistory {
		c.Transactions = append([]Transaction(nil), c.Transactions[n-MaxTransactionHistory:]...)
	}
}
