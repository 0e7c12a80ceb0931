// Package chain connects the permit engine to Ethereum nodes and wallets.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// PermitABI covers the read-only getters of EIP-2612 and Dai-style tokens.
const PermitABI = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"version","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"nonces","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"DOMAIN_SEPARATOR","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]}
]`

var permitABI = mustParseABI(PermitABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid permit ABI: %v", err))
	}
	return parsed
}

// Reader reads permit state from token contracts. It implements
// permit.TokenReader and does not cache: every call hits the node.
type Reader struct {
	caller ethereum.ContractCaller
}

// NewReader creates a Reader over any contract caller, typically an
// *ethclient.Client.
func NewReader(caller ethereum.ContractCaller) *Reader {
	return &Reader{caller: caller}
}

// Dial connects to the node at rawURL and returns a Reader with its client.
// The caller owns the client and should Close it.
func Dial(ctx context.Context, rawURL string) (*Reader, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", rawURL, err)
	}
	return NewReader(client), client, nil
}

// Name returns the token's name().
func (r *Reader) Name(ctx context.Context, token common.Address) (string, error) {
	out, err := r.call(ctx, token, "name")
	if err != nil {
		return "", err
	}
	name, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("unexpected name type: %T", out)
	}
	return name, nil
}

// Version returns the token's version(). Many tokens do not implement it.
func (r *Reader) Version(ctx context.Context, token common.Address) (string, error) {
	out, err := r.call(ctx, token, "version")
	if err != nil {
		return "", err
	}
	version, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("unexpected version type: %T", out)
	}
	return version, nil
}

// Nonce returns the token's nonces(owner).
func (r *Reader) Nonce(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := r.call(ctx, token, "nonces", owner)
	if err != nil {
		return nil, err
	}
	nonce, ok := out.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonce type: %T", out)
	}
	return nonce, nil
}

// DomainSeparator returns the token's DOMAIN_SEPARATOR().
func (r *Reader) DomainSeparator(ctx context.Context, token common.Address) (common.Hash, error) {
	out, err := r.call(ctx, token, "DOMAIN_SEPARATOR")
	if err != nil {
		return common.Hash{}, err
	}
	sep, ok := out.([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("unexpected domain separator type: %T", out)
	}
	return common.Hash(sep), nil
}

func (r *Reader) call(ctx context.Context, token common.Address, method string, args ...interface{}) (interface{}, error) {
	data, err := permitABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%s call failed: %w", method, errEmptyResult)
	}

	outputs, err := permitABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("%s returned %d values", method, len(outputs))
	}
	return outputs[0], nil
}

// errEmptyResult is what a call to a missing function on a contract without a
// fallback looks like.
var errEmptyResult = errors.New("empty result")
