// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package civ

import "time"

// WarState is a war's lifecycle phase. The machine only moves forward:
// PREPARING -> ACTIVE -> ENDED. ENDED is terminal; a finished war is
// never reopened, a fresh one must be declared.
type WarState string

// War states.
const (
	WarPreparing WarState = "PREPARING"
	WarActive    WarState = "ACTIVE"
	WarEnded     WarState = "ENDED"
)

// War is a stateful conflict between exactly two civilizations.
// The pair is unordered; at most one non-ended war exists per pair.
type War struct {
	ID           string    `json:"id"`
	CivA         string    `json:"civ_a"`
	CivB         string    `json:"civ_b"`
	State        WarState  `json:"state"`
	StartedAt    time.Time `json:"started_at"`
	WarmupEndsAt time.Time `json:"warmup_ends_at,omitzero"`
	EndedAt      time.Time `json:"ended_at,omitzero"`
	Reason       string    `json:"reason,omitempty"`
	EndReason    string    `json:"end_reason,omitempty"`
	ScoreA       int       `json:"score_a"`
	ScoreB       int       `json:"score_b"`
}

// NewWar declares a war between two civilizations. With a positive
// warmup the war starts PREPARING and activates once the warmup lapses;
// otherwise it starts ACTIVE immediately.
func NewWar(civA, civB, reason string, warmup time.Duration) *War {
	w := &War{
		ID:        NewID(),
		CivA:      civA,
		CivB:      civB,
		State:     WarActive,
		StartedAt: time.Now(),
		Reason:    reason,
	}
	if warmup > 0 {
		w.State = WarPreparing
		w.WarmupEndsAt = w.StartedAt.Add(warmup)
	}
	return w
}

// Involves reports whether the civilization is a belligerent.
func (w *War) Involves(civID string) bool {
	return w.CivA == civID || w.CivB == civID
}

// Opponent returns the other belligerent, or "" for outsiders.
func (w *War) Opponent(civID string) string {
	switch civID {
	case w.CivA:
		return w.CivB
	case w.CivB:
		return w.CivA
	default:
		return ""
	}
}

// IsActive reports whether hostilities are live.
func (w *War) IsActive() bool { return w.State == WarActive }

// IsEnded reports whether the war is over.
func (w *War) IsEnded() bool { return w.State == WarEnded }

// AddScore credits points to one side. Unknown civ IDs are ignored.
func (w *War) AddScore(civID string, points int) {
	switch civID {
	case w.CivA:
		w.ScoreA += points
	case w.CivB:
		w.ScoreB += points
	}
}
