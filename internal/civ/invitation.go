// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package civ

import "time"

// Invitation is a time-boxed offer of RECRUIT membership to a player.
// Expired invitations are inert; accepting consumes the invitation.
type Invitation struct {
	ID        string    `json:"id"`
	TargetID  string    `json:"target_id"`
	CivID     string    `json:"civ_id"`
	SenderID  string    `json:"sender_id"`
	SentAt    time.Time `json:"sent_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewInvitation creates an invitation expiring after ttl.
func NewInvitation(targetID, civID, senderID string, ttl time.Duration) *Invitation {
	now := time.Now()
	return &Invitation{
		ID:        NewID(),
		TargetID:  targetID,
		CivID:     civID,
		SenderID:  senderID,
		SentAt:    now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the invitation has lapsed.
func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// TimeLeft returns the remaining validity, floored at zero.
func (i *Invitation) TimeLeft(now time.Time) time.Duration {
	if d := i.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
