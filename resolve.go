package permit

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DefaultPermitVersion is used when neither the caller nor the token contract
// provides a version string.
const DefaultPermitVersion = "1"

// Input is a partially populated parameter set. Nil pointers and empty strings
// mean the value is absent and should be resolved.
type Input struct {
	ChainID       *big.Int
	Contract      *common.Address
	Owner         *common.Address
	Spender       *common.Address
	Value         *big.Int
	Nonce         *big.Int
	Deadline      *big.Int
	ERC20Name     string
	PermitVersion string
}

// Merge returns a copy of in with every field present in override taking
// precedence.
func (in Input) Merge(override Input) Input {
	out := in
	if override.ChainID != nil {
		out.ChainID = override.ChainID
	}
	if override.Contract != nil {
		out.Contract = override.Contract
	}
	if override.Owner != nil {
		out.Owner = override.Owner
	}
	if override.Spender != nil {
		out.Spender = override.Spender
	}
	if override.Value != nil {
		out.Value = override.Value
	}
	if override.Nonce != nil {
		out.Nonce = override.Nonce
	}
	if override.Deadline != nil {
		out.Deadline = override.Deadline
	}
	if override.ERC20Name != "" {
		out.ERC20Name = override.ERC20Name
	}
	if override.PermitVersion != "" {
		out.PermitVersion = override.PermitVersion
	}
	return out
}

// TokenState holds what was read from the token contract. Empty fields mean the
// read did not happen or failed.
type TokenState struct {
	Name    string
	Version string
	Nonce   *big.Int
}

// Parameters is a fully resolved permit request.
type Parameters struct {
	ChainID       *big.Int
	Contract      common.Address
	Owner         common.Address
	Spender       common.Address
	Value         *big.Int // nil for Dai permits
	Nonce         *big.Int
	Deadline      *big.Int
	ERC20Name     string
	PermitVersion string
}

// Input returns p as a fully specified Input.
func (p Parameters) Input() Input {
	contract, owner, spender := p.Contract, p.Owner, p.Spender
	return Input{
		ChainID:       p.ChainID,
		Contract:      &contract,
		Owner:         &owner,
		Spender:       &spender,
		Value:         p.Value,
		Nonce:         p.Nonce,
		Deadline:      p.Deadline,
		ERC20Name:     p.ERC20Name,
		PermitVersion: p.PermitVersion,
	}
}

// CheckReady reports whether everything needed to sign is known. The returned
// error wraps ErrNotReady and names each missing field.
func CheckReady(signer SigningCapability, in Input, state TokenState) error {
	var missing []string
	if signer == nil {
		missing = append(missing, "signer")
	}
	if in.Spender == nil {
		missing = append(missing, "spender")
	}
	if in.ChainID == nil {
		missing = append(missing, "chainId")
	}
	if in.Contract == nil {
		missing = append(missing, "contract")
	}
	if in.ERC20Name == "" && state.Name == "" {
		missing = append(missing, "erc20Name")
	}
	if in.Nonce == nil && state.Nonce == nil {
		missing = append(missing, "nonce")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotReady, strings.Join(missing, ", "))
	}
	return nil
}

// Resolve fills the gaps in in from the signer and the token state:
//
//   - owner: explicit, then the signer's address, else ErrMissingOwner
//   - spender: explicit, else the zero address
//   - version: explicit, then the token's version, then "1"
//   - name and nonce: explicit, then the token state
//   - deadline: explicit, else MaxDeadline
//
// The zero-address spender is accepted as-is; a permit for it authorizes
// nobody useful. Callers should check readiness first, which requires one.
func Resolve(signer SigningCapability, in Input, state TokenState) (Parameters, error) {
	p := Parameters{
		ChainID:       in.ChainID,
		Value:         in.Value,
		Nonce:         in.Nonce,
		Deadline:      in.Deadline,
		ERC20Name:     in.ERC20Name,
		PermitVersion: in.PermitVersion,
	}

	switch {
	case in.Owner != nil:
		p.Owner = *in.Owner
	case signer != nil:
		p.Owner = signer.Address()
	}
	if p.Owner == (common.Address{}) {
		return Parameters{}, ErrMissingOwner
	}

	if in.Spender != nil {
		p.Spender = *in.Spender
	}
	if p.PermitVersion == "" {
		p.PermitVersion = state.Version
	}
	if p.PermitVersion == "" {
		p.PermitVersion = DefaultPermitVersion
	}
	if p.ERC20Name == "" {
		p.ERC20Name = state.Name
	}
	if p.Nonce == nil {
		p.Nonce = state.Nonce
	}
	if p.Deadline == nil {
		p.Deadline = new(big.Int).Set(MaxDeadline)
	}

	var missing []string
	if p.ChainID == nil {
		missing = append(missing, "chainId")
	}
	if in.Contract == nil {
		missing = append(missing, "contract")
	} else {
		p.Contract = *in.Contract
	}
	if p.ERC20Name == "" {
		missing = append(missing, "erc20Name")
	}
	if p.Nonce == nil {
		missing = append(missing, "nonce")
	}
	if len(missing) > 0 {
		return Parameters{}, fmt.Errorf("%w: missing %s", ErrNotReady, strings.Join(missing, ", "))
	}

	if err := p.validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

// validate checks the fields every builder relies on.
func (p Parameters) validate() error {
	if p.Owner == (common.Address{}) {
		return ErrMissingOwner
	}
	if p.ChainID == nil || p.Nonce == nil {
		return fmt.Errorf("%w: missing chainId or nonce", ErrNotReady)
	}
	return errors.Join(
		checkUint256("chainId", p.ChainID),
		checkUint256("value", p.Value),
		checkUint256("nonce", p.Nonce),
		checkUint256("deadline", p.Deadline),
	)
}

func (p Parameters) domain() Domain {
	return Domain{
		Name:              p.ERC20Name,
		Version:           p.PermitVersion,
		ChainID:           new(big.Int).Set(p.ChainID),
		VerifyingContract: p.Contract,
	}
}

// checkUint256 accepts nil and any value representable as a uint256.
func checkUint256(field string, v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s is negative", ErrInvalidParameter, field)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return fmt.Errorf("%w: %s exceeds uint256", ErrInvalidParameter, field)
	}
	return nil
}
