package permit

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PermitSignature is a signed permit together with the arguments the token's
// permit entry point takes alongside (v, r, s).
//
// For EIP2612 the call is permit(Owner, Spender, Value, Deadline, V, R, S).
// For Dai it is permit(Owner, Spender, Nonce, Deadline, Allowed, V, R, S).
type PermitSignature struct {
	Dialect Dialect     `json:"-"`
	V       uint8       `json:"v"`
	R       common.Hash `json:"r"`
	S       common.Hash `json:"s"`
	Hash    common.Hash `json:"hash"`

	Owner    common.Address `json:"owner"`
	Spender  common.Address `json:"spender"`
	Value    *big.Int       `json:"value,omitempty"`
	Nonce    *big.Int       `json:"nonce"`
	Deadline *big.Int       `json:"deadline"`
	Allowed  bool           `json:"allowed,omitempty"`
}

// SplitSignature decomposes a 65-byte r||s||v signature. A recovery id of 0 or
// 1 is normalized to 27 or 28.
func SplitSignature(raw []byte) (v uint8, r, s common.Hash, err error) {
	if len(raw) != crypto.SignatureLength {
		return 0, r, s, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(raw))
	}

	v = raw[64]
	switch v {
	case 0, 1:
		v += 27
	case 27, 28:
	default:
		return 0, r, s, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, v)
	}

	copy(r[:], raw[:32])
	copy(s[:], raw[32:64])
	return v, r, s, nil
}

// Bytes returns the 65-byte r||s||v encoding with v in {27, 28}.
func (sig *PermitSignature) Bytes() []byte {
	out := make([]byte, 0, crypto.SignatureLength)
	out = append(out, sig.R[:]...)
	out = append(out, sig.S[:]...)
	return append(out, sig.V)
}

// Recover returns the address that signed td.
func (sig *PermitSignature) Recover(td *TypedData) (common.Address, error) {
	hash, err := td.Hash()
	if err != nil {
		return common.Address{}, err
	}
	return recoverAddress(hash, sig.Bytes())
}

// VerifySignature reports whether sig over td was produced by expected.
func VerifySignature(sig *PermitSignature, expected common.Address, td *TypedData) (bool, error) {
	recovered, err := sig.Recover(td)
	if err != nil {
		return false, err
	}
	return recovered == expected, nil
}

func recoverAddress(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature must be 65 bytes", ErrInvalidSignature)
	}
	buf := make([]byte, len(sig))
	copy(buf, sig)

	// Transform V from 27/28 to 0/1 for recovery
	if buf[64] >= 27 {
		buf[64] -= 27
	}

	pubKey, err := crypto.SigToPub(hash[:], buf)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}
