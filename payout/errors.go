package payout

import "errors"

// Authorization errors.
var (
	// ErrNotOwner indicates an administrative call from someone other than the owner.
	ErrNotOwner = errors.New("payout: caller is not the owner")

	// ErrNotHolder indicates a claim from an address holding no tokens.
	ErrNotHolder = errors.New("payout: caller holds no tokens")
)

// State errors.
var (
	// ErrPaused indicates the distributor is paused.
	ErrPaused = errors.New("payout: distributor is paused")

	// ErrOutsideWindow indicates an automated-mode claim after the payout window closed.
	ErrOutsideWindow = errors.New("payout: outside payout window")

	// ErrWithinWindow indicates an automated-mode deposit while the payout window is open.
	ErrWithinWindow = errors.New("payout: deposits are refused during the payout window")
)

// Input errors.
var (
	// ErrInvalidAddress indicates an empty or malformed address in an admin call.
	ErrInvalidAddress = errors.New("payout: invalid address")

	// ErrInvalidAmount indicates a zero or unusable amount.
	ErrInvalidAmount = errors.New("payout: invalid amount")

	// ErrInvalidDuration indicates a negative interval or window length.
	ErrInvalidDuration = errors.New("payout: invalid duration")

	// ErrUnknownRegistry indicates a registry address with no resolvable oracle.
	ErrUnknownRegistry = errors.New("payout: unknown registry")
)

// Collaborator and internal errors.
var (
	// ErrNilParam indicates a required constructor dependency is nil.
	ErrNilParam = errors.New("payout: required parameter is nil")

	// ErrZeroSupply indicates the registry reported no tokens in existence.
	ErrZeroSupply = errors.New("payout: registry reports zero supply")

	// ErrOracle indicates the ownership registry failed to answer.
	ErrOracle = errors.New("payout: ownership oracle failed")

	// ErrLedger indicates the claim ledger failed.
	ErrLedger = errors.New("payout: claim ledger failed")

	// ErrVault indicates the vault could not report its balance or accept funds.
	ErrVault = errors.New("payout: vault failed")

	// ErrTransferFailed indicates the outgoing transfer failed; the call was undone.
	ErrTransferFailed = errors.New("payout: transfer failed")

	// ErrPersist indicates the checkpoint could not be saved; the call was undone.
	ErrPersist = errors.New("payout: persist checkpoint failed")

	// ErrOverflow indicates an amount exceeded 64 bits.
	ErrOverflow = errors.New("payout: amount overflow")
)

// IsAuthorization reports whether err is an authorization rejection.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotOwner) || errors.Is(err, ErrNotHolder)
}

// IsState reports whether err is a state rejection.
func IsState(err error) bool {
	return errors.Is(err, ErrPaused) || errors.Is(err, ErrOutsideWindow) || errors.Is(err, ErrWithinWindow)
}

// IsInput reports whether err is an input rejection.
func IsInput(err error) bool {
	return errors.Is(err, ErrInvalidAddress) || errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidDuration) || errors.Is(err, ErrUnknownRegistry)
}

// reason returns a short metric label for err.
func reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPaused):
		return "paused"
	case errors.Is(err, ErrNotHolder):
		return "not_holder"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrOutsideWindow):
		return "outside_window"
	case errors.Is(err, ErrWithinWindow):
		return "within_window"
	case IsInput(err):
		return "invalid_input"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	default:
		return "error"
	}
}
