// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package civ

import "time"

// TransactionType classifies a bank ledger entry.
type TransactionType string

// Transaction types.
const (
	TxDeposit  TransactionType = "DEPOSIT"
	TxWithdraw TransactionType = "WITHDRAW"
	TxClaim    TransactionType = "CLAIM"
	TxUpgrade  TransactionType = "UPGRADE"
	TxPenalty  TransactionType = "PENALTY"
	TxTax      TransactionType = "TAX"
	TxRefund   TransactionType = "REFUND"
	TxTransfer TransactionType = "TRANSFER"
)

// MaxTransactionHistory is the number of ledger entries retained per
// civilization. History is truncated to the most recent entries on write.
const MaxTransactionHistory = 100

// Transaction is an immutable bank ledger entry.
type Transaction struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	CivID        string          `json:"civ_id"`
	ActorID      string          `json:"actor_id"`
	Type         TransactionType `json:"type"`
	Amount       float64         `json:"amount"`
	BalanceAfter float64         `json:"balance_after"`
	Note         string          `json:"note,omitempty"`
}
