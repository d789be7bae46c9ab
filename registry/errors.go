package registry

import "errors"

var (
	// ErrTokenNotFound indicates the token has no owner (never minted or burned).
	ErrTokenNotFound = errors.New("registry: token not found")

	// ErrTokenExists indicates a mint for an already-owned token.
	ErrTokenExists = errors.New("registry: token already exists")

	// ErrNotTokenOwner indicates a transfer from an address that does not own the token.
	ErrNotTokenOwner = errors.New("registry: sender does not own token")

	// ErrEmptyAddress indicates a required address is empty.
	ErrEmptyAddress = errors.New("registry: empty address")

	// ErrUnknownRegistry indicates no oracle is registered under the address.
	ErrUnknownRegistry = errors.New("registry: unknown registry address")

	// ErrInvalidSnapshot indicates an ownership snapshot file is malformed.
	ErrInvalidSnapshot = errors.New("registry: invalid ownership snapshot")
)
