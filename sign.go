// Package permit builds and signs ERC-20 permit messages.
//
// Two dialects are supported and must be chosen explicitly, since tokens of
// both kinds expose the same name and version getters:
//
//   - EIP2612: Permit(owner, spender, value, nonce, deadline)
//   - Dai: Permit(holder, spender, nonce, expiry, allowed)
//
// The flow is Resolve -> Build -> Sign. Resolve turns a partial Input into
// Parameters, the builders produce an immutable TypedData, and Sign hands it to
// a SigningCapability exactly once and splits the result into (v, r, s).
//
// Nonces are never computed here. A permit is only valid on-chain while the
// token's nonce for the owner equals the signed nonce, so read it immediately
// before signing (see CheckNonce).
package permit

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SigningCapability produces EIP-712 signatures for a single account, e.g. a
// local key, a hardware wallet or a remote wallet behind JSON-RPC. Signing may
// block on user approval for as long as ctx allows.
type SigningCapability interface {
	Address() common.Address
	SignTypedData(ctx context.Context, td *TypedData) ([]byte, error)
}

// Sign asks signer for a signature over td and decomposes it. There is no
// retry: a rejected request is returned to the caller as a *SigningError.
func Sign(ctx context.Context, signer SigningCapability, td *TypedData) (*PermitSignature, error) {
	if signer == nil {
		return nil, ErrNotReady
	}

	hash, err := td.Hash()
	if err != nil {
		return nil, err
	}

	raw, err := signer.SignTypedData(ctx, td)
	if err != nil {
		return nil, &SigningError{Cause: err}
	}

	v, r, s, err := SplitSignature(raw)
	if err != nil {
		return nil, &SigningError{Cause: err}
	}

	return &PermitSignature{
		Dialect: td.Dialect(),
		V:       v,
		R:       r,
		S:       s,
		Hash:    hash,
	}, nil
}

// SignPermit builds an EIP-2612 permit from p and signs it.
func SignPermit(ctx context.Context, signer SigningCapability, p Parameters) (*PermitSignature, error) {
	return SignDialect(ctx, EIP2612, signer, p)
}

// SignDaiPermit builds a Dai-style permit from p and signs it.
func SignDaiPermit(ctx context.Context, signer SigningCapability, p Parameters) (*PermitSignature, error) {
	return SignDialect(ctx, Dai, signer, p)
}

// SignDialect builds the permit for d and signs it, echoing the arguments the
// token's permit call needs.
func SignDialect(ctx context.Context, d Dialect, signer SigningCapability, p Parameters) (*PermitSignature, error) {
	td, err := Build(d, p)
	if err != nil {
		return nil, err
	}

	sig, err := Sign(ctx, signer, td)
	if err != nil {
		return nil, err
	}

	sig.Owner = p.Owner
	sig.Spender = p.Spender
	sig.Nonce = new(big.Int).Set(p.Nonce)
	sig.Deadline = new(big.Int).Set(deadlineOrMax(p.Deadline))
	switch d {
	case EIP2612:
		sig.Value = new(big.Int).Set(p.Value)
	case Dai:
		sig.Allowed = true
	}
	return sig, nil
}

// NonceReader reads a token's current permit nonce for an owner.
type NonceReader interface {
	Nonce(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// CheckNonce re-reads the owner's nonce and returns ErrInvalidNonce if it no
// longer matches p.Nonce.
func CheckNonce(ctx context.Context, nonces NonceReader, p Parameters) error {
	current, err := nonces.Nonce(ctx, p.Contract, p.Owner)
	if err != nil {
		return err
	}
	if p.Nonce == nil || current.Cmp(p.Nonce) != 0 {
		return fmt.Errorf("%w: signed %s, token has %s", ErrInvalidNonce, p.Nonce, current)
	}
	return nil
}
