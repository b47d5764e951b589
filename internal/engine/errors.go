package engine

import "errors"

// Failure taxonomy for the leasing engine. Every operation fails
// synchronously with one of these (possibly wrapped); nothing is retried
// and no operation partially applies on failure.
var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotOwner            = errors.New("caller is not the lease owner")
	ErrNotManager          = errors.New("caller is not the manager")
	ErrNotRunning          = errors.New("lease is not running")
	ErrNotPaused           = errors.New("lease is not paused")
	ErrNotPausable         = errors.New("lease engine does not support pause")
	ErrAlreadyStopped      = errors.New("lease is already stopped")
	ErrUnknownLease        = errors.New("lease not found")
	ErrUnknownResource     = errors.New("resource not found in registry")
	ErrDeprecatedResource  = errors.New("resource is deprecated")
	ErrWrongResourceKind   = errors.New("resource kind does not match engine")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrTransferFailed      = errors.New("token transfer failed")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
)
