// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civgrid/civgrid/internal/civ"
	"github.com/civgrid/civgrid/internal/config"
	"github.com/civgrid/civgrid/internal/engine"
)

func TestDepositToCivBank(t *testing.T) {
	ctx := context.Background()

	t.Run("member deposits", func(t *testing.T) {
		h := newHarness(t, nil)
		rome := h.founded(t, "Rome", "romulus")
		rome.AddMember("numa", civ.RoleRecruit)
		h.repo.IndexPlayer("numa", rome.ID)
		h.currency.balances["numa"] = 400

		got := h.engines.Ledger.DepositToCivBank(ctx, "numa", rome.ID, 150)
		assert.Equal(t, engine.BankSuccess, got)

		c, _ := h.repo.Civilization(rome.ID)
		assert.Equal(t, 150.0, c.BankBalance)
		assert.Equal(t, 250.0, h.currency.balances["numa"])
		require.NotEmpty(t, c.Transactions)
		assert.Equal(t, civ.TxDeposit, c.Transactions[len(c.Transactions)-1].Type)
	})

	t.Run("rejections", func(t *testing.T) {
		h := newHarness(t, nil)
		rome := h.founded(t, "Rome", "romulus")
		h.currency.balances["romulus"] = 50

		assert.Equal(t, engine.BankError,
			h.engines.Ledger.DepositToCivBank(ctx, "romulus", rome.ID, 0))
		assert.Equal(t, engine.BankError,
			h.engines.Ledger.DepositToCivBank(ctx, "romulus", rome.ID, -10))
		assert.Equal(t, engine.BankCivNotFound,
			h.engines.Ledger.DepositToCivBank(ctx, "romulus", "no-such-civ", 10))
		assert.Equal(t, engine.BankNotAMember,
			h.engines.Ledger.DepositToCivBank(ctx, "stranger", rome.ID, 10))
		assert.Equal(t, engine.BankInsufficientFunds,
			h.engines.Ledger.DepositToCivBank(ctx, "romulus", rome.ID, 100))
		assert.Equal(t, 50.0, h.currency.balances["romulus"], "failed deposit leaves the player whole")
	})
}

func TestWithdrawFromCivBank(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	rome := h.founded(t, "Rome", "romulus")
	rome.AddMember("remus", civ.RoleOfficer)
	rome.AddMember("numa", civ.RoleMember)
	h.repo.IndexPlayer("remus", rome.ID)
	h.repo.IndexPlayer("numa", rome.ID)
	fund(t, h, rome, 500)

	assert.Equal(t, engine.BankNoPermission,
		h.engines.Ledger.WithdrawFromCivBank(ctx, "numa", rome.ID, 100),
		"plain members cannot draw on the bank")
	assert.Equal(t, engine.BankNotAMember,
		h.engines.Ledger.WithdrawFromCivBank(ctx, "stranger", rome.ID, 100))
	assert.Equal(t, engine.BankInsufficientFunds,
		h.engines.Ledger.WithdrawFromCivBank(ctx, "remus", rome.ID, 9999))

	assert.Equal(t, engine.BankSuccess,
		h.engines.Ledger.WithdrawFromCivBank(ctx, "remus", rome.ID, 200))
	c, _ := h.repo.Civilization(rome.ID)
	assert.Equal(t, 300.0, c.BankBalance)
	assert.Equal(t, 200.0, h.currency.balances["remus"])
}

func TestWithdrawCompensatesFailedCredit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	rome := h.founded(t, "Rome", "romulus")
	fund(t, h, rome, 500)

	h.currency.depositError = errors.New("economy plugin unavailable")
	got := h.engines.Ledger.WithdrawFromCivBank(ctx, "romulus", rome.ID, 200)
	assert.Equal(t, engine.BankTransactionFailed, got)

	c, _ := h.repo.Civilization(rome.ID)
	assert.Equal(t, 500.0, c.BankBalance, "bank debit is compensated")
	assert.Zero(t, h.currency.balances["romulus"])
}

func TestTransferBetweenCivs(t *testing.T) {
	h := newHarness(t, nil)
	rome := h.founded(t, "Rome", "romulus")
	rome.AddMember("numa", civ.RoleMember)
	h.repo.IndexPlayer("numa", rome.ID)
	carthage := h.founded(t, "Carthage", "dido")
	fund(t, h, rome, 1000)
	fund(t, h, carthage, 100)

	assert.Equal(t, engine.BankError,
		h.engines.Ledger.TransferBetweenCivs("romulus", rome.ID, rome.ID, 50))
	assert.Equal(t, engine.BankCivNotFound,
		h.engines.Ledger.TransferBetweenCivs("romulus", rome.ID, "no-such-civ", 50))
	assert.Equal(t, engine.BankNoPermission,
		h.engines.Ledger.TransferBetweenCivs("numa", rome.ID, carthage.ID, 50))
	assert.Equal(t, engine.BankInsufficientFunds,
		h.engines.Ledger.TransferBetweenCivs("romulus", rome.ID, carthage.ID, 5000))

	assert.Equal(t, engine.BankSuccess,
		h.engines.Ledger.TransferBetweenCivs("romulus", rome.ID, carthage.ID, 300))

	a, _ := h.repo.Civilization(rome.ID)
	b, _ := h.repo.Civilization(carthage.ID)
	assert.Equal(t, 700.0, a.BankBalance)
	assert.Equal(t, 400.0, b.BankBalance)
	assert.Equal(t, 1100.0, a.BankBalance+b.BankBalance, "transfers conserve money")
}

func TestAdminBalanceEdits(t *testing.T) {
	h := newHarness(t, nil)
	rome := h.founded(t, "Rome", "romulus")

	require.NoError(t, h.engines.Ledger.SetBalance(rome.ID, "console", 2500))
	c, _ := h.repo.Civilization(rome.ID)
	assert.Equal(t, 2500.0, c.BankBalance)

	require.NoError(t, h.engines.Ledger.AddBalance(rome.ID, "console", -500))
	c, _ = h.repo.Civilization(rome.ID)
	assert.Equal(t, 2000.0, c.BankBalance)

	require.NoError(t, h.engines.Ledger.AddBalance(rome.ID, "console", -99999))
	c, _ = h.repo.Civilization(rome.ID)
	assert.Zero(t, c.BankBalance, "balance floors at zero")

	assert.ErrorIs(t, h.engines.Ledger.SetBalance("no-such-civ", "console", 1), civ.ErrNotFound)
}

func TestUpgrade(t *testing.T) {
	h := newHarness(t, nil)
	rome := h.founded(t, "Rome", "romulus")
	rome.AddMember("numa", civ.RoleMember)
	h.repo.IndexPlayer("numa", rome.ID)

	assert.Equal(t, engine.BankNoPermission, h.engines.Ledger.Upgrade("numa", rome.ID))
	assert.Equal(t, engine.BankInsufficientFunds, h.engines.Ledger.Upgrade("romulus", rome.ID))

	fund(t, h, rome, 600)
	assert.Equal(t, engine.BankSuccess, h.engines.Ledger.Upgrade("romulus", rome.ID))

	c, _ := h.repo.Civilization(rome.ID)
	assert.Equal(t, 2, c.Level)
	assert.Equal(t, 100.0, c.BankBalance, "level 2 costs 500")
	assert.Equal(t, civ.TxUpgrade, c.Transactions[len(c.Transactions)-1].Type)
}

func TestUpgradeAtTableCeiling(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Upgrades = map[int]config.UpgradeLevel{1: {ClaimsMax: 5}, 2: {ClaimsMax: 10, Cost: 500}}
	})
	rome := h.founded(t, "Rome", "romulus")
	fund(t, h, rome, 10000)

	assert.Equal(t, engine.BankSuccess, h.engines.Ledger.Upgrade("romulus", rome.ID))
	assert.Equal(t, engine.BankError, h.engines.Ledger.Upgrade("romulus", rome.ID),
		"no level above the table ceiling")
}

func TestCollectTaxes(t *testing.T) {
	now := time.Now()

	t.Run("disabled by default", func(t *testing.T) {
		h := newHarness(t, nil)
		h.founded(t, "Rome", "romulus")
		assert.Zero(t, h.engines.Ledger.CollectTaxes(now))
	})

	t.Run("charges base plus per claim", func(t *testing.T) {
		h := newHarness(t, func(c *config.Config) { c.Economy.TaxEnabled = true })
		rome := h.founded(t, "Rome", "romulus")
		fund(t, h, rome, 100)
		h.claimAt(t, rome, "overworld", 0, 0)
		h.claimAt(t, rome, "overworld", 1, 0)

		assert.Equal(t, 1, h.engines.Ledger.CollectTaxes(now))
		c, _ := h.repo.Civilization(rome.ID)
		assert.Equal(t, 100.0-(10+2*1), c.BankBalance)
		assert.Zero(t, c.TaxDebt)
		assert.Equal(t, civ.TxTax, c.Transactions[len(c.Transactions)-1].Type)
	})

	t.Run("interval gates repeat collection", func(t *testing.T) {
		h := newHarness(t, func(c *config.Config) { c.Economy.TaxEnabled = true })
		rome := h.founded(t, "Rome", "romulus")
		fund(t, h, rome, 100)

		require.Equal(t, 1, h.engines.Ledger.CollectTaxes(now))
		assert.Zero(t, h.engines.Ledger.CollectTaxes(now.Add(time.Hour)), "interval not elapsed")
		assert.Equal(t, 1, h.engines.Ledger.CollectTaxes(now.Add(25*time.Hour)))
		c, _ := h.repo.Civilization(rome.ID)
		assert.Equal(t, 80.0, c.BankBalance)
	})

	t.Run("shortfall becomes debt", func(t *testing.T) {
		h := newHarness(t, func(c *config.Config) { c.Economy.TaxEnabled = true })
		rome := h.founded(t, "Rome", "romulus")
		fund(t, h, rome, 4)

		require.Equal(t, 1, h.engines.Ledger.CollectTaxes(now))
		c, _ := h.repo.Civilization(rome.ID)
		assert.Zero(t, c.BankBalance, "everything on hand goes to the bill")
		assert.Equal(t, 6.0, c.TaxDebt)
		assert.True(t, c.LastTaxAt.IsZero(), "partial payment is not a successful collection")

		// The next cycle bills base plus the carried debt.
		fund(t, h, rome, 100)
		require.Equal(t, 1, h.engines.Ledger.CollectTaxes(now.Add(25*time.Hour)))
		c, _ = h.repo.Civilization(rome.ID)
		assert.Equal(t, 100.0-(10+6), c.BankBalance)
		assert.Zero(t, c.TaxDebt)
		assert.False(t, c.LastTaxAt.IsZero())
	})
}
