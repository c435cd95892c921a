// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine

import "errors"

// CreateResult is the outcome of a civilization creation attempt.
type CreateResult string

// Creation outcomes.
const (
	CreateSuccess               CreateResult = "SUCCESS"
	CreateNameTooShort          CreateResult = "NAME_TOO_SHORT"
	CreateNameTooLong           CreateResult = "NAME_TOO_LONG"
	CreateInvalidName           CreateResult = "INVALID_NAME"
	CreateAlreadyInCivilization CreateResult = "ALREADY_IN_CIVILIZATION"
	CreateNameTaken             CreateResult = "NAME_TAKEN"
	CreateInsufficientFunds     CreateResult = "INSUFFICIENT_FUNDS"
	CreateError                 CreateResult = "ERROR"
)

// ClaimResult is the outcome of a claim attempt.
type ClaimResult string

// Claim outcomes, in the order the checks run.
const (
	ClaimSuccess           ClaimResult = "SUCCESS"
	ClaimNotInCivilization ClaimResult = "NOT_IN_CIVILIZATION"
	ClaimNoPermission      ClaimResult = "NO_PERMISSION"
	ClaimLimitReached      ClaimResult = "CLAIM_LIMIT_REACHED"
	ClaimAlreadyClaimed    ClaimResult = "ALREADY_CLAIMED"
	ClaimWorldNotClaimable ClaimResult = "WORLD_NOT_CLAIMABLE"
	ClaimInsufficientFunds ClaimResult = "INSUFFICIENT_FUNDS"
	ClaimNotAdjacent       ClaimResult = "NOT_ADJACENT"
	ClaimError             ClaimResult = "ERROR"
)

// UnclaimResult is the outcome of an unclaim attempt.
type UnclaimResult string

// Unclaim outcomes.
const (
	UnclaimSuccess      UnclaimResult = "SUCCESS"
	UnclaimNotClaimed   UnclaimResult = "NOT_CLAIMED"
	UnclaimNotOwner     UnclaimResult = "NOT_OWNER"
	UnclaimNoPermission UnclaimResult = "NO_PERMISSION"
)

// BankResult is the outcome of a civilization bank operation.
type BankResult string

// Bank outcomes.
const (
	BankSuccess           BankResult = "SUCCESS"
	BankCivNotFound       BankResult = "CIVILIZATION_NOT_FOUND"
	BankNotAMember        BankResult = "NOT_A_MEMBER"
	BankNoPermission      BankResult = "NO_PERMISSION"
	BankInsufficientFunds BankResult = "INSUFFICIENT_FUNDS"
	BankTransactionFailed BankResult = "TRANSACTION_FAILED"
	BankError             BankResult = "ERROR"
)

// Sentinel errors for membership, war and invitation operations.
var (
	ErrAlreadyInCivilization = errors.New("player already belongs to a civilization")
	ErrNotInCivilization     = errors.New("player does not belong to a civilization")
	ErrLeaderCannotLeave     = errors.New("leader must transfer leadership or disband")
	ErrMemberCapReached      = errors.New("civilization member cap reached")
	ErrInvitationExpired     = errors.New("invitation expired")
	ErrCivsAllied            = errors.New("civilizations are allied")
	ErrWarAlreadyLive        = errors.New("a war between these civilizations is already live")
	ErrWarDisabled           = errors.New("wars are disabled")
	ErrAllianceDisabled      = errors.New("alliances are disabled")
	ErrAllianceCapReached    = errors.New("alliance cap reached")
	ErrOperationVetoed       = errors.New("operation vetoed by host")
	ErrHomeNotSet            = errors.New("home is not set")
	ErrHomeOutsideTerritory  = errors.New("home must be inside claimed territory")
	ErrTeleportOnCooldown    = errors.New("home teleport on cooldown")
)
