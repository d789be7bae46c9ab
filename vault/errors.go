package vault

import "errors"

var (
	// ErrInsufficientFunds indicates a transfer larger than the vault balance.
	ErrInsufficientFunds = errors.New("vault: insufficient funds")

	// ErrInvalidRecipient indicates an empty transfer recipient.
	ErrInvalidRecipient = errors.New("vault: invalid recipient")

	// ErrZeroAmount indicates a deposit of zero.
	ErrZeroAmount = errors.New("vault: zero amount")

	// ErrInvalidRef indicates an empty transfer reference.
	ErrInvalidRef = errors.New("vault: invalid transfer reference")

	// ErrInvalidAmount indicates an amount that cannot be applied.
	ErrInvalidAmount = errors.New("vault: invalid amount")
)
