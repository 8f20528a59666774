// Package escrow implements the fund-custody ledger. It is the only
// component that moves value: the task controller asks it to lock,
// release and refund escrowed amounts but never holds funds itself.
package escrow

import (
	"errors"

	"github.com/airinterface/contract-safe/pkg/principal"
)

// Asset identifies a fungible value unit. There is no swap or price
// logic here; an asset is an opaque denomination key.
type Asset string

// Payment is one leg of a release: a recipient and the amount they get.
type Payment struct {
	Recipient principal.Principal `json:"recipient"`
	Amount    int64               `json:"amount"`
}

var (
	// ErrUnauthorized is returned when the caller is not in the
	// authorized caller set.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrNotAdmin is returned when a non-admin principal attempts
	// authorization management.
	ErrNotAdmin = errors.New("caller is not the ledger admin")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAmountMismatch is returned when the supplied native value does
	// not match the declared deposit amount.
	ErrAmountMismatch = errors.New("supplied value does not match amount")

	// ErrInsufficientFunds is returned when a release or refund would
	// overdraw the escrow balance entry.
	ErrInsufficientFunds = errors.New("insufficient escrow balance")

	// ErrEmptyRecipients is returned when a release names no recipients.
	ErrEmptyRecipients = errors.New("no recipients")

	// ErrLengthMismatch is returned when recipients and amounts differ
	// in length.
	ErrLengthMismatch = errors.New("recipients and amounts length mismatch")

	// ErrZeroPrincipal is returned for an absent recipient or caller
	// identifier.
	ErrZeroPrincipal = errors.New("zero principal")

	// ErrAlreadyAuthorized is returned when adding a caller that is
	// already in the authorized set.
	ErrAlreadyAuthorized = errors.New("caller already authorized")

	// ErrNotAuthorized is returned when removing a caller that is not
	// in the authorized set.
	ErrNotAuthorized = errors.New("caller not in authorized set")
)
