// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civgrid/civgrid/internal/civ"
	"github.com/civgrid/civgrid/internal/config"
	"github.com/civgrid/civgrid/internal/engine"
)

func TestSchedulerTick(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Economy.TaxEnabled = true
		c.War.Warmup = time.Hour
	})
	scheduler := engine.NewScheduler(h.deps, h.engines)

	rome := h.founded(t, "Rome", "romulus")
	carthage := h.founded(t, "Carthage", "dido")
	fund(t, h, rome, 100)
	fund(t, h, carthage, 100)

	w, err := h.engines.Conflict.DeclareWar("romulus", rome.ID, carthage.ID, "")
	require.NoError(t, err)

	expired := civ.NewInvitation("laggard", rome.ID, "romulus", time.Minute)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	h.repo.PutInvitation(expired)

	scheduler.Tick(time.Now().Add(2 * time.Hour))

	_, ok := h.repo.Invitation(expired.ID)
	assert.False(t, ok, "expired invitations are purged")

	got, _ := h.repo.War(w.ID)
	assert.Equal(t, civ.WarActive, got.State, "warmed-up wars activate")

	a, _ := h.repo.Civilization(rome.ID)
	assert.Less(t, a.BankBalance, 100.0, "taxes were collected")
}
