package permit

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingOwner is returned when no owner was supplied and no signer
	// address is available to stand in for it.
	ErrMissingOwner = errors.New("permit: owner address is required")

	// ErrNotReady is returned when signing is attempted before the signer,
	// spender, chain ID, token contract, token name and nonce are all known.
	ErrNotReady = errors.New("permit: not ready to sign")

	// ErrSigningFailed is matched by every error returned from the signing
	// capability, including malformed signatures.
	ErrSigningFailed = errors.New("permit: signing failed")

	// ErrMissingValue is returned when an EIP-2612 permit is built without an amount.
	ErrMissingValue = errors.New("permit: value is required for EIP-2612 permits")

	// ErrInvalidParameter is returned for numeric fields outside the uint256 range.
	ErrInvalidParameter = errors.New("permit: invalid parameter")

	// ErrInvalidSignature is returned for signatures that are not 65 bytes or
	// carry an unknown recovery id.
	ErrInvalidSignature = errors.New("permit: invalid signature")

	// ErrInvalidNonce reports that the token's nonce for the owner no longer
	// matches the nonce a permit was signed over. A permit signed over a stale
	// nonce reverts on-chain; re-read the nonce right before signing.
	ErrInvalidNonce = errors.New("permit: nonce is stale")

	// ErrDomainMismatch reports that a locally built domain separator differs
	// from the one the token contract exposes.
	ErrDomainMismatch = errors.New("permit: domain separator mismatch")
)

// SigningError wraps the cause of a failed signing request.
type SigningError struct {
	Cause error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("%s: %v", ErrSigningFailed, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SigningError) Unwrap() error {
	return e.Cause
}

// Is reports ErrSigningFailed as a match so callers can use errors.Is.
func (e *SigningError) Is(target error) bool {
	return target == ErrSigningFailed
}
