package account

import "errors"

var (
	// ErrInvalidAddress indicates an address is empty or fails base58check decoding.
	ErrInvalidAddress = errors.New("account: invalid address")

	// ErrInvalidPublicKey indicates a public key cannot be parsed.
	ErrInvalidPublicKey = errors.New("account: invalid public key")

	// ErrInvalidSignature indicates a signature is malformed or does not verify.
	ErrInvalidSignature = errors.New("account: invalid signature")
)
