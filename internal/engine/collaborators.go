// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/civgrid/civgrid/internal/civ"
)

// ErrInsufficientFunds is returned by CurrencyService implementations
// when a withdrawal would overdraw the player.
var ErrInsufficientFunds = errors.New("insufficient funds")

// CurrencyService is the host economy the engines debit and credit
// player balances through. Withdraw must return ErrInsufficientFunds
// when the player cannot cover the amount.
type CurrencyService interface {
	Balance(ctx context.Context, playerID string) (float64, error)
	Withdraw(ctx context.Context, playerID string, amount float64) error
	Deposit(ctx context.Context, playerID string, amount float64) error
	Format(amount float64) string
}

// NopCurrency is the degraded mode when no economy is wired: every
// player has unlimited funds and all transfers succeed.
type NopCurrency struct{}

// Balance implements CurrencyService.
func (NopCurrency) Balance(context.Context, string) (float64, error) { return 0, nil }

// Withdraw implements CurrencyService.
func (NopCurrency) Withdraw(context.Context, string, float64) error { return nil }

// Deposit implements CurrencyService.
func (NopCurrency) Deposit(context.Context, string, float64) error { return nil }

// Format implements CurrencyService.
func (NopCurrency) Format(amount float64) string { return fmt.Sprintf("%.2f", amount) }

// Identity resolves player IDs to display names for player-facing
// messages. The host owns the roster; CivGrid never stores names.
type Identity interface {
	DisplayName(playerID string) string
}

// NopIdentity falls back to the raw player ID.
type NopIdentity struct{}

// DisplayName implements Identity.
func (NopIdentity) DisplayName(playerID string) string { return playerID }

// Notifier delivers a message to an online player. Implementations must
// tolerate offline players silently.
type Notifier interface {
	Notify(playerID, message string)
}

// NopNotifier drops all messages.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(string, string) {}

// Position is a player's location in a world.
type Position struct {
	World string
	X     float64
	Y     float64
	Z     float64
}

// DistanceSq returns the squared distance to another position, or +Inf
// semantics via a large value when the worlds differ.
func (p Position) DistanceSq(o Position) float64 {
	if p.World != o.World {
		return 1 << 30
	}
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return dx*dx + dy*dy + dz*dz
}

// PresenceProvider reports where online players are.
type PresenceProvider interface {
	// Position returns the player's position and whether they are online.
	Position(playerID string) (Position, bool)
}

// Teleporter moves a player to a home anchor.
type Teleporter interface {
	Teleport(playerID string, home civ.Home) error
}
