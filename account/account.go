// Package account validates holder and operator addresses and verifies
// request signatures using BSV primitives.
package account

import (
	"bytes"
	"encoding/hex"
	"fmt"

	base58 "github.com/bsv-blockchain/go-sdk/compat/base58"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	bsvhash "github.com/bsv-blockchain/go-sdk/primitives/hash"
	"github.com/bsv-blockchain/go-sdk/script"
)

// Validate checks that addr is a well-formed base58check P2PKH address.
func Validate(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if _, err := script.NewAddressFromString(addr); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidAddress, addr, err)
	}
	// NewAddressFromString checks length and version but not the checksum.
	decoded, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidAddress, addr, err)
	}
	payload, checksum := decoded[:len(decoded)-4], decoded[len(decoded)-4:]
	if !bytes.Equal(checksum, bsvhash.Sha256d(payload)[:4]) {
		return fmt.Errorf("%w: %q: bad checksum", ErrInvalidAddress, addr)
	}
	return nil
}

// FromPublicKey returns the P2PKH address for pub.
func FromPublicKey(pub *ec.PublicKey, mainnet bool) (string, error) {
	if pub == nil {
		return "", ErrInvalidPublicKey
	}
	addr, err := script.NewAddressFromPublicKey(pub, mainnet)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	return addr.AddressString, nil
}

// Digest returns SHA256 over the concatenation of parts.
func Digest(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return bsvhash.Sha256(buf)
}

// VerifySignature checks a DER signature over digest made by the compressed
// public key pubKeyHex, and returns the signer's address.
func VerifySignature(pubKeyHex, sigHex string, digest []byte, mainnet bool) (string, error) {
	pubBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	pub, err := ec.PublicKeyFromBytes(pubBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}

	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	sig, err := ec.ParseDERSignature(sigBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if !sig.Verify(digest, pub) {
		return "", fmt.Errorf("%w: verification failed", ErrInvalidSignature)
	}

	return FromPublicKey(pub, mainnet)
}

// Sign produces a hex DER signature over digest. Intended for clients and tests.
func Sign(priv *ec.PrivateKey, digest []byte) (string, error) {
	if priv == nil {
		return "", fmt.Errorf("%w: nil private key", ErrInvalidSignature)
	}
	sig, err := priv.Sign(digest)
	if err != nil {
		return "", fmt.Errorf("account: sign: %w", err)
	}
	return hex.EncodeToString(sig.Serialize()), nil
}
