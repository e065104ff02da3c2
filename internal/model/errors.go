package model

import "errors"

// Staking errors. Every one of them rejects the triggering request as a
// whole; callers branch on them with errors.Is.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("staker not found")
	ErrIndexOutOfRange     = errors.New("stake index out of range")
	ErrInvalidInput        = errors.New("invalid input")
	ErrLockupActive        = errors.New("lockup period has not elapsed")
	ErrNothingToClaim      = errors.New("no rewards available to claim")
	ErrNothingToDistribute = errors.New("no stake weight to distribute to")
	ErrExternalCallFailed  = errors.New("external call failed")
	ErrOwnershipMismatch   = errors.New("item is not owned by staker")

	ErrInsufficientPool   = errors.New("insufficient funds in reward pool")
	ErrDistributionNotDue = errors.New("distribution interval has not elapsed")
	ErrItemAlreadyStaked  = errors.New("item is already staked")
	ErrUnknownRequest     = errors.New("no verification in flight for request")
)
