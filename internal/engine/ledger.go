// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/civgrid/civgrid/internal/civ"
)

// LedgerEngine owns the civilization bank: player deposits and
// withdrawals against the host economy, civ-to-civ transfers,
// administrative balance edits, upgrades and periodic taxation.
type LedgerEngine struct {
	d    Deps
	civs *CivilizationEngine
}

// NewLedgerEngine creates the engine.
func NewLedgerEngine(d Deps, civs *CivilizationEngine) *LedgerEngine {
	return &LedgerEngine{d: d.normalize(), civs: civs}
}

// DepositToCivBank moves money from the player's personal balance into
// their civilization's bank. Any member may deposit. The player debit
// is rolled back if the bank credit cannot commit.
func (e *LedgerEngine) DepositToCivBank(ctx context.Context, playerID, civID string, amount float64) BankResult {
	if amount <= 0 {
		return e.count("deposit", BankError)
	}
	c, ok := e.d.Repo.Civilization(civID)
	if !ok {
		return e.count("deposit", BankCivNotFound)
	}
	if !c.IsMember(playerID) {
		return e.count("deposit", BankNotAMember)
	}

	if err := e.d.Currency.Withdraw(ctx, playerID, amount); err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return e.count("deposit", BankInsufficientFunds)
		}
		e.d.Log.Error("deposit debit failed", "player", playerID, "error", err)
		return e.count("deposit", BankError)
	}

	err := e.d.Repo.WithCiv(civID, func(locked *civ.Civilization) error {
		locked.Deposit(amount, playerID, "player deposit")
		return nil
	})
	if err != nil {
		// Credit never landed; give the player their money back.
		if rerr := e.d.Currency.Deposit(ctx, playerID, amount); rerr != nil {
			e.d.Log.Error("deposit rollback failed, player debited without credit",
				"player", playerID, "civ_id", civID, "amount", amount, "error", rerr)
		}
		return e.count("deposit", BankTransactionFailed)
	}
	return e.count("deposit", BankSuccess)
}

// WithdrawFromCivBank moves money from the civilization bank to the
// player's personal balance. Needs the manage_bank permission. The civ
// debit is compensated if the player credit fails.
func (e *LedgerEngine) WithdrawFromCivBank(ctx context.Context, playerID, civID string, amount float64) BankResult {
	if amount <= 0 {
		return e.count("withdraw", BankError)
	}
	c, ok := e.d.Repo.Civilization(civID)
	if !ok {
		return e.count("withdraw", BankCivNotFound)
	}
	if !c.IsMember(playerID) {
		return e.count("withdraw", BankNotAMember)
	}
	if !RoleHolds(c.Role(playerID), PermManageBank) {
		return e.count("withdraw", BankNoPermission)
	}

	result := BankError
	err := e.d.Repo.WithCiv(civID, func(locked *civ.Civilization) error {
		if !locked.Withdraw(amount, playerID, "player withdrawal") {
			result = BankInsufficientFunds
			return ErrInsufficientFunds
		}
		if err := e.d.Currency.Deposit(ctx, playerID, amount); err != nil {
			// Player never got the money; put it back in the bank.
			locked.Deposit(amount, playerID, "withdrawal compensation")
			e.d.Log.Error("withdrawal credit failed, bank compensated",
				"player", playerID, "civ_id", civID, "amount", amount, "error", err)
			result = BankTransactionFailed
			return err
		}
		result = BankSuccess
		return nil
	})
	if err != nil && result == BankError {
		e.d.Log.Error("withdrawal failed", "player", playerID, "civ_id", civID, "error", err)
	}
	return e.count("withdraw", result)
}

// TransferBetweenCivs moves money from one civilization bank to
// another. Actor needs manage_bank in the source civilization. Both civ
// locks are taken in deterministic order.
func (e *LedgerEngine) TransferBetweenCivs(actorID, fromCivID, toCivID string, amount float64) BankResult {
	if amount <= 0 || fromCivID == toCivID {
		return e.count("transfer", BankError)
	}
	from, ok := e.d.Repo.Civilization(fromCivID)
	if !ok {
		return e.count("transfer", BankCivNotFound)
	}
	if _, ok := e.d.Repo.Civilization(toCivID); !ok {
		return e.count("transfer", BankCivNotFound)
	}
	if !RoleHolds(from.Role(actorID), PermManageBank) {
		return e.count("transfer", BankNoPermission)
	}

	result := BankError
	first, second := orderPair(fromCivID, toCivID)
	err := e.d.Repo.WithCiv(first, func(a *civ.Civilization) error {
		return e.d.Repo.WithCiv(second, func(b *civ.Civilization) error {
			src, dst := a, b
			if src.ID != fromCivID {
				src, dst = b, a
			}
			if !src.Withdraw(amount, actorID, "transfer to "+dst.Name) {
				result = BankInsufficientFunds
				return ErrInsufficientFunds
			}
			dst.Deposit(amount, actorID, "transfer from "+src.Name)
			result = BankSuccess
			return nil
		})
	})
	if err != nil && result == BankError {
		e.d.Log.Error("transfer failed", "from", fromCivID, "to", toCivID, "error", err)
	}
	return e.count("transfer", result)
}

// SetBalance overwrites a civilization's bank balance. Administrative;
// the change is recorded as an explicit transaction.
func (e *LedgerEngine) SetBalance(civID, actorID string, balance float64) error {
	return e.d.Repo.WithCiv(civID, func(c *civ.Civilization) error {
		old := c.BankBalance
		c.BankBalance = balance
		c.AppendTransaction(civ.Transaction{
			ID:           civ.NewID(),
			Timestamp:    time.Now(),
			CivID:        civID,
			ActorID:      actorID,
			Type:         civ.TxTransfer,
			Amount:       balance - old,
			BalanceAfter: balance,
			Note:         "admin set balance",
		})
		e.d.Log.Info("bank balance set", "civ_id", civID, "actor", actorID, "balance", balance)
		return nil
	})
}

// AddBalance adjusts a civilization's bank balance by a delta, which
// may be negative. The balance never drops below zero.
func (e *LedgerEngine) AddBalance(civID, actorID string, delta float64) error {
	return e.d.Repo.WithCiv(civID, func(c *civ.Civilization) error {
		next := c.BankBalance + delta
		if next < 0 {
			next = 0
		}
		applied := next - c.BankBalance
		c.BankBalance = next
		c.AppendTransaction(civ.Transaction{
			ID:           civ.NewID(),
			Timestamp:    time.Now(),
			CivID:        civID,
			ActorID:      actorID,
			Type:         civ.TxTransfer,
			Amount:       applied,
			BalanceAfter: next,
			Note:         "admin adjust balance",
		})
		e.d.Log.Info("bank balance adjusted", "civ_id", civID, "actor", actorID, "delta", applied)
		return nil
	})
}

// Upgrade raises the civilization's level by one, paying the next
// level's cost from the bank. Needs manage_bank.
func (e *LedgerEngine) Upgrade(actorID, civID string) BankResult {
	cfg := e.d.Config.Current()
	c, ok := e.d.Repo.Civilization(civID)
	if !ok {
		return e.count("upgrade", BankCivNotFound)
	}
	if !RoleHolds(c.Role(actorID), PermManageBank) {
		return e.count("upgrade", BankNoPermission)
	}

	result := BankError
	err := e.d.Repo.WithCiv(civID, func(locked *civ.Civilization) error {
		cost, exists := cfg.UpgradeCost(locked.Level + 1)
		if !exists {
			result = BankError
			return errors.New("already at maximum level")
		}
		if !locked.Withdraw(cost, actorID, "upgrade to level") {
			result = BankInsufficientFunds
			return ErrInsufficientFunds
		}
		locked.Level++
		locked.AppendTransaction(civ.Transaction{
			ID:           civ.NewID(),
			Timestamp:    time.Now(),
			CivID:        civID,
			ActorID:      actorID,
			Type:         civ.TxUpgrade,
			Amount:       cost,
			BalanceAfter: locked.BankBalance,
			Note:         "level upgrade",
		})
		result = BankSuccess
		return nil
	})
	if err != nil && result == BankError {
		e.d.Log.Warn("upgrade rejected", "civ_id", civID, "error", err)
	}
	if result == BankSuccess {
		e.d.Log.Info("civilization upgraded", "civ_id", civID, "actor", actorID)
	}
	return e.count("upgrade", result)
}

// CollectTaxes charges every civilization whose tax interval elapsed:
// base plus a per-claim rate. A bank that cannot cover the bill
// accumulates debt instead. Returns how many civs were charged.
func (e *LedgerEngine) CollectTaxes(now time.Time) int {
	cfg := e.d.Config.Current()
	if !cfg.Economy.TaxEnabled {
		return 0
	}

	charged := 0
	for _, c := range e.d.Repo.Civilizations() {
		last := c.LastTaxAt
		if c.LastTaxAttempt.After(last) {
			last = c.LastTaxAttempt
		}
		if !last.IsZero() && now.Sub(last) < cfg.Economy.TaxInterval {
			continue
		}

		claims := e.d.Repo.ClaimCount(c.ID)
		due := cfg.Economy.TaxBase + float64(claims)*cfg.Economy.TaxPerClaim + c.TaxDebt

		err := e.d.Repo.WithCiv(c.ID, func(locked *civ.Civilization) error {
			if locked.BankBalance >= due {
				locked.BankBalance -= due
				locked.TaxDebt = 0
				locked.LastTaxAt = now
				locked.LastTaxAttempt = now
				locked.AppendTransaction(civ.Transaction{
					ID:           civ.NewID(),
					Timestamp:    now,
					CivID:        locked.ID,
					ActorID:      "system",
					Type:         civ.TxTax,
					Amount:       due,
					BalanceAfter: locked.BankBalance,
					Note:         "periodic tax",
				})
			} else {
				locked.TaxDebt = due - locked.BankBalance
				if locked.BankBalance > 0 {
					paid := locked.BankBalance
					locked.BankBalance = 0
					locked.AppendTransaction(civ.Transaction{
						ID:           civ.NewID(),
						Timestamp:    now,
						CivID:        locked.ID,
						ActorID:      "system",
						Type:         civ.TxTax,
						Amount:       paid,
						BalanceAfter: 0,
						Note:         "partial tax, debt accrued",
					})
				}
				locked.LastTaxAttempt = now
			}
			return nil
		})
		if err != nil {
			e.d.Log.Error("tax collection failed", "civ_id", c.ID, "error", err)
			continue
		}
		charged++
	}
	if charged > 0 {
		e.d.Log.Info("taxes collected", "civilizations", charged)
	}
	return charged
}

func (e *LedgerEngine) count(op string, r BankResult) BankResult {
	e.d.Metrics.RecordOperation("bank_"+op, string(r))
	return r
}
