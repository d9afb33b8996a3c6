package domain

import "errors"

// Error taxonomy shared by the engine and its adapters. Callers match with errors.Is.
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrDuplicateGrant       = errors.New("duplicate grant")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidSchedule      = errors.New("invalid schedule")
	ErrInsufficientTreasury = errors.New("insufficient treasury")
	ErrOverflow             = errors.New("arithmetic overflow")
	ErrInvalidArgument      = errors.New("invalid argument")

	// ErrTransferFailed is returned after claim bookkeeping committed but the
	// treasury did not confirm the transfer. Only the transfer may be retried.
	ErrTransferFailed = errors.New("transfer failed")
)
