package escrow

import (
	"errors"
	"fmt"
	"math/big"
)

// One sentinel per error class so callers can dispatch with errors.Is. All
// package errors wrap exactly one of these.
var (
	// ErrConfig: activation input rejected, no state created.
	ErrConfig = errors.New("ConfigError")
	// ErrPhase: operation invalid for the current phase, nothing mutated.
	ErrPhase = errors.New("PhaseError")
	// ErrCapacity: mint would exceed max supply. The call still performs
	// the partial mint and residual refund before reporting this.
	ErrCapacity = errors.New("CapacityError")
	// ErrTransfer: an external asset or mint capability failed; the whole
	// call was rolled back.
	ErrTransfer = errors.New("TransferFailure")
	// ErrUnauthorized: caller is not allowed to perform the operation.
	ErrUnauthorized = errors.New("Unauthorized")
)

var (
	ErrAlreadyInitialized = fmt.Errorf("%w: project already initialized", ErrConfig)
	ErrNotInitialized     = fmt.Errorf("%w: project not initialized", ErrPhase)
	ErrPaused             = fmt.Errorf("%w: escrow is paused", ErrPhase)

	errMustBePositive       = errors.New("must be positive")
	errMustBeSet            = errors.New("must be set")
	errPreMintExceedsSupply = errors.New("pre-mint amount exceeds max supply")
	errFeesExceedDivisor    = errors.New("treasury and finder fees must sum below the fee divisor")
)

func ErrInvalidConfig(field string, err error) error {
	return fmt.Errorf("%w: invalid %s: %v", ErrConfig, field, err)
}

func ErrInvalidPhase(op string, phase Phase) error {
	return fmt.Errorf("%w: %s is not allowed in phase %s", ErrPhase, op, phase)
}

func ErrNotOwner(caller string) error {
	return fmt.Errorf("%w: %s is not the project owner", ErrUnauthorized, caller)
}

func ErrInvalidAmount(amount *big.Int) error {
	return fmt.Errorf("%w: contribution amount must be positive, got %v", ErrConfig, amount)
}

func ErrTransferFailed(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransfer, op, err)
}

func ErrSupplyExhausted(contributor string) error {
	return fmt.Errorf("%w: no mintable supply left for %s", ErrCapacity, contributor)
}

func ErrAlreadyClaimed(contributor string) error {
	return fmt.Errorf("%w: contributor %s already claimed", ErrPhase, contributor)
}

func ErrUnknownContributor(contributor string) error {
	return fmt.Errorf("%w: no contribution recorded for %s", ErrPhase, contributor)
}
